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

// PhotosRepository stores metadata of uploaded photos. File bytes live on disk.
type PhotosRepository struct {
	pool *pgxpool.Pool
}

const photoColumns = `id::text, user_id::text, place_id::text, file_name, content_type, caption, created_at`

// PhotoCreateParams bundles the fields of a new photo.
type PhotoCreateParams struct {
	UserID      string
	PlaceID     *string
	FileName    string
	ContentType string
	Caption     string
}

// PhotoListFilters narrows a photo listing.
type PhotoListFilters struct {
	UserID  *string
	PlaceID *string
	Limit   int
}

// Create records a photo.
func (r *PhotosRepository) Create(ctx context.Context, params PhotoCreateParams) (domain.Photo, error) {
	user, err := parseID("user", params.UserID)
	if err != nil {
		return domain.Photo{}, err
	}
	var place *string
	if params.PlaceID != nil {
		id, err := parseID("place", *params.PlaceID)
		if err != nil {
			return domain.Photo{}, err
		}
		place = &id
	}

	row := r.pool.QueryRow(ctx, `
        INSERT INTO user_photos (user_id, place_id, file_name, content_type, caption)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING `+photoColumns,
		user, place, params.FileName, params.ContentType, params.Caption)
	photo, err := scanPhoto(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Photo{}, fmt.Errorf("create photo: %w", ErrNotFound)
		}
		return domain.Photo{}, err
	}
	return photo, nil
}

// Get fetches one photo.
func (r *PhotosRepository) Get(ctx context.Context, photoID string) (domain.Photo, error) {
	id, err := parseID("photo", photoID)
	if err != nil {
		return domain.Photo{}, err
	}
	photo, err := scanPhoto(r.pool.QueryRow(ctx, `SELECT `+photoColumns+` FROM user_photos WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Photo{}, ErrNotFound
		}
		return domain.Photo{}, err
	}
	return photo, nil
}

// List returns photos, newest first.
func (r *PhotosRepository) List(ctx context.Context, filters PhotoListFilters) ([]domain.Photo, error) {
	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 50
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filters.UserID != nil {
		id, err := parseID("user", *filters.UserID)
		if err != nil {
			return nil, err
		}
		args = append(args, id)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filters.PlaceID != nil {
		id, err := parseID("place", *filters.PlaceID)
		if err != nil {
			return nil, err
		}
		args = append(args, id)
		where = append(where, fmt.Sprintf("place_id = $%d", len(args)))
	}

	query := `SELECT ` + photoColumns + ` FROM user_photos`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", filters.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := make([]domain.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// Delete removes a photo owned by userID and returns it so the caller can
// remove the file.
func (r *PhotosRepository) Delete(ctx context.Context, photoID, userID string) (domain.Photo, error) {
	photo, err := r.Get(ctx, photoID)
	if err != nil {
		return domain.Photo{}, err
	}
	owner, err := parseID("user", userID)
	if err != nil {
		return domain.Photo{}, err
	}
	if photo.UserID != owner {
		return domain.Photo{}, ErrForbidden
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM user_photos WHERE id = $1`, photo.ID); err != nil {
		return domain.Photo{}, err
	}
	return photo, nil
}

func scanPhoto(row pgx.Row) (domain.Photo, error) {
	var photo domain.Photo
	err := row.Scan(
		&photo.ID,
		&photo.UserID,
		&photo.PlaceID,
		&photo.FileName,
		&photo.ContentType,
		&photo.Caption,
		&photo.CreatedAt,
	)
	return photo, err
}
