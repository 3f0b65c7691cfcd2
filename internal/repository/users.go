package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
)

// UsersRepository stores accounts and their profiles.
type UsersRepository struct {
	pool *pgxpool.Pool
}

const userColumns = `id::text, email, display_name, password_hash, google_id, created_at`

// UserCreateParams bundles the fields required to create an account.
type UserCreateParams struct {
	Email        string
	DisplayName  string
	PasswordHash *string
	GoogleID     *string
}

// ProfileUpdateParams holds profile edits. Nil fields keep their value.
type ProfileUpdateParams struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	HomeTown    *string
}

// Create inserts a user together with an empty profile. A duplicate email or
// provider id yields ErrConflict.
func (r *UsersRepository) Create(ctx context.Context, params UserCreateParams) (domain.User, error) {
	var user domain.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		user, err = createUser(ctx, tx, params)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func createUser(ctx context.Context, tx pgx.Tx, params UserCreateParams) (domain.User, error) {
	row := tx.QueryRow(ctx, `
        INSERT INTO users (email, display_name, password_hash, google_id)
        VALUES ($1,$2,$3,$4)
        RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(params.Email)), params.DisplayName, params.PasswordHash, params.GoogleID)
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("create user: %w", ErrConflict)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO profiles (user_id) VALUES ($1)`, user.ID); err != nil {
		return domain.User{}, fmt.Errorf("create profile: %w", err)
	}
	return user, nil
}

// GetByID fetches a user by id.
func (r *UsersRepository) GetByID(ctx context.Context, userID string) (domain.User, error) {
	id, err := parseID("user", userID)
	if err != nil {
		return domain.User{}, err
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, fmt.Errorf("%w: missing email", ErrInvalidArgument)
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, email)
}

// FindOrCreateGoogleUser returns the account linked to googleID. An existing
// account with the same email is linked; otherwise a new one is created.
func (r *UsersRepository) FindOrCreateGoogleUser(ctx context.Context, googleID, email, displayName string) (domain.User, error) {
	if googleID == "" || strings.TrimSpace(email) == "" {
		return domain.User{}, fmt.Errorf("%w: provider id and email are required", ErrInvalidArgument)
	}
	email = strings.ToLower(strings.TrimSpace(email))

	var user domain.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		user, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		user, err = scanUser(tx.QueryRow(ctx, `
            UPDATE users SET google_id = $2
            WHERE lower(email) = $1 AND google_id IS NULL
            RETURNING `+userColumns, email, googleID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		if strings.TrimSpace(displayName) == "" {
			displayName = strings.Split(email, "@")[0]
		}
		user, err = createUser(ctx, tx, UserCreateParams{
			Email:       email,
			DisplayName: displayName,
			GoogleID:    &googleID,
		})
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetProfile returns a user with their profile.
func (r *UsersRepository) GetProfile(ctx context.Context, userID string) (domain.User, domain.Profile, error) {
	id, err := parseID("user", userID)
	if err != nil {
		return domain.User{}, domain.Profile{}, err
	}

	var (
		user    domain.User
		profile domain.Profile
	)
	err = r.pool.QueryRow(ctx, `
        SELECT u.id::text, u.email, u.display_name, u.created_at,
               p.bio, p.avatar_url, p.home_town, p.updated_at
        FROM users u
        JOIN profiles p ON p.user_id = u.id
        WHERE u.id = $1
    `, id).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.CreatedAt,
		&profile.Bio,
		&profile.AvatarURL,
		&profile.HomeTown,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.Profile{}, ErrNotFound
		}
		return domain.User{}, domain.Profile{}, err
	}
	profile.UserID = user.ID
	return user, profile, nil
}

// UpdateProfile applies profile edits and returns the updated state.
func (r *UsersRepository) UpdateProfile(ctx context.Context, userID string, params ProfileUpdateParams) (domain.User, domain.Profile, error) {
	id, err := parseID("user", userID)
	if err != nil {
		return domain.User{}, domain.Profile{}, err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if params.DisplayName != nil {
			tag, err := tx.Exec(ctx, `UPDATE users SET display_name = $2 WHERE id = $1`, id, *params.DisplayName)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}
		}
		tag, err := tx.Exec(ctx, `
            UPDATE profiles
            SET bio = COALESCE($2, bio),
                avatar_url = COALESCE($3, avatar_url),
                home_town = COALESCE($4, home_town),
                updated_at = now()
            WHERE user_id = $1
        `, id, params.Bio, params.AvatarURL, params.HomeTown)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.User{}, domain.Profile{}, err
	}
	return r.GetProfile(ctx, id)
}

func (r *UsersRepository) getOne(ctx context.Context, query string, args ...any) (domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.GoogleID,
		&user.CreatedAt,
	)
	return user, err
}
