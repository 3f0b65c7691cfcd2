package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/metrics"
)

type aggregateRecomputer interface {
	Recompute(ctx context.Context, q Querier, placeID string) (domain.RatingAggregate, error)
}

type statisticsReader interface {
	Statistics(ctx context.Context, q Querier, placeID string) (domain.RatingStatistics, error)
}

// RatingsRepository provides helpers for place ratings. Every mutation runs
// in one transaction together with the recomputation of the place aggregate,
// so either both are committed or neither is.
type RatingsRepository struct {
	pool       *pgxpool.Pool
	recomputer aggregateRecomputer
	stats      statisticsReader
}

// RatingUpsertParams captures the payload required to upsert a rating.
type RatingUpsertParams struct {
	PlaceID string
	UserID  string
	Value   int
}

// RatingResult is the outcome of a rating mutation.
type RatingResult struct {
	Rating    domain.Rating
	Inserted  bool
	Aggregate domain.RatingAggregate
}

const ratingColumns = `id::text, place_id::text, user_id::text, rating::int, created_at, updated_at`

// Upsert inserts or updates the caller's rating of a place and recomputes the
// place aggregate.
func (r *RatingsRepository) Upsert(ctx context.Context, params RatingUpsertParams) (result RatingResult, err error) {
	defer func() { metrics.RecordRatingMutation("upsert", err) }()

	placeID, err := parseID("place", params.PlaceID)
	if err != nil {
		return RatingResult{}, err
	}
	userID, err := parseID("user", params.UserID)
	if err != nil {
		return RatingResult{}, err
	}
	if !domain.ValidRating(params.Value) {
		return RatingResult{}, fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidArgument, domain.MinRating, domain.MaxRating)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockPlace(ctx, tx, placeID); err != nil {
			return err
		}

		const query = `
            INSERT INTO place_ratings (place_id, user_id, rating)
            VALUES ($1,$2,$3)
            ON CONFLICT (user_id, place_id)
            DO UPDATE SET rating = EXCLUDED.rating, updated_at = now()
            RETURNING ` + ratingColumns + `, (xmax = 0) AS inserted
        `
		row := tx.QueryRow(ctx, query, placeID, userID, params.Value)
		rating, inserted, err := scanRatingWithFlag(row)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("upsert rating: %w", ErrNotFound)
			}
			return fmt.Errorf("upsert rating: %w", err)
		}

		agg, err := r.recomputer.Recompute(ctx, tx, placeID)
		if err != nil {
			return err
		}
		result = RatingResult{Rating: rating, Inserted: inserted, Aggregate: agg}
		return nil
	})
	if err != nil {
		return RatingResult{}, err
	}
	return result, nil
}

// Update changes the value of an existing rating owned by userID.
func (r *RatingsRepository) Update(ctx context.Context, ratingID, userID string, value int) (result RatingResult, err error) {
	defer func() { metrics.RecordRatingMutation("update", err) }()

	id, err := parseID("rating", ratingID)
	if err != nil {
		return RatingResult{}, err
	}
	owner, err := parseID("user", userID)
	if err != nil {
		return RatingResult{}, err
	}
	if !domain.ValidRating(value) {
		return RatingResult{}, fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidArgument, domain.MinRating, domain.MaxRating)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		placeID, err := lockRatingPlace(ctx, tx, id, owner)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
            UPDATE place_ratings
            SET rating = $2, updated_at = now()
            WHERE id = $1
            RETURNING `+ratingColumns, id, value)
		rating, err := scanRating(row)
		if err != nil {
			return fmt.Errorf("update rating: %w", err)
		}

		agg, err := r.recomputer.Recompute(ctx, tx, placeID)
		if err != nil {
			return err
		}
		result = RatingResult{Rating: rating, Aggregate: agg}
		return nil
	})
	if err != nil {
		return RatingResult{}, err
	}
	return result, nil
}

// Delete removes a rating owned by userID and returns the place's new aggregate.
func (r *RatingsRepository) Delete(ctx context.Context, ratingID, userID string) (result RatingResult, err error) {
	defer func() { metrics.RecordRatingMutation("delete", err) }()

	id, err := parseID("rating", ratingID)
	if err != nil {
		return RatingResult{}, err
	}
	owner, err := parseID("user", userID)
	if err != nil {
		return RatingResult{}, err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		placeID, err := lockRatingPlace(ctx, tx, id, owner)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `DELETE FROM place_ratings WHERE id = $1 RETURNING `+ratingColumns, id)
		rating, err := scanRating(row)
		if err != nil {
			return fmt.Errorf("delete rating: %w", err)
		}

		agg, err := r.recomputer.Recompute(ctx, tx, placeID)
		if err != nil {
			return err
		}
		result = RatingResult{Rating: rating, Aggregate: agg}
		return nil
	})
	if err != nil {
		return RatingResult{}, err
	}
	return result, nil
}

// DeleteForPlace retracts userID's rating of placeID.
func (r *RatingsRepository) DeleteForPlace(ctx context.Context, placeID, userID string) (result RatingResult, err error) {
	defer func() { metrics.RecordRatingMutation("delete", err) }()

	place, err := parseID("place", placeID)
	if err != nil {
		return RatingResult{}, err
	}
	owner, err := parseID("user", userID)
	if err != nil {
		return RatingResult{}, err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockPlace(ctx, tx, place); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
            DELETE FROM place_ratings
            WHERE place_id = $1 AND user_id = $2
            RETURNING `+ratingColumns, place, owner)
		rating, err := scanRating(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("delete rating: %w", ErrNotFound)
			}
			return fmt.Errorf("delete rating: %w", err)
		}

		agg, err := r.recomputer.Recompute(ctx, tx, place)
		if err != nil {
			return err
		}
		result = RatingResult{Rating: rating, Aggregate: agg}
		return nil
	})
	if err != nil {
		return RatingResult{}, err
	}
	return result, nil
}

// Recompute refreshes the cached aggregate of a place outside any mutation.
func (r *RatingsRepository) Recompute(ctx context.Context, placeID string) (domain.RatingAggregate, error) {
	return r.recomputer.Recompute(ctx, r.pool, placeID)
}

// Statistics returns the statistics projection of a place.
func (r *RatingsRepository) Statistics(ctx context.Context, placeID string) (domain.RatingStatistics, error) {
	return r.stats.Statistics(ctx, r.pool, placeID)
}

// Get retrieves a rating by id.
func (r *RatingsRepository) Get(ctx context.Context, ratingID string) (domain.Rating, error) {
	id, err := parseID("rating", ratingID)
	if err != nil {
		return domain.Rating{}, err
	}
	rating, err := scanRating(r.pool.QueryRow(ctx, `SELECT `+ratingColumns+` FROM place_ratings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// GetForUser retrieves the rating a user gave a place.
func (r *RatingsRepository) GetForUser(ctx context.Context, placeID, userID string) (domain.Rating, error) {
	place, err := parseID("place", placeID)
	if err != nil {
		return domain.Rating{}, err
	}
	user, err := parseID("user", userID)
	if err != nil {
		return domain.Rating{}, err
	}

	const query = `SELECT ` + ratingColumns + ` FROM place_ratings WHERE place_id = $1 AND user_id = $2`
	rating, err := scanRating(r.pool.QueryRow(ctx, query, place, user))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// ListByPlace returns every rating of a place, newest first.
func (r *RatingsRepository) ListByPlace(ctx context.Context, placeID string) ([]domain.Rating, error) {
	place, err := parseID("place", placeID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
        SELECT `+ratingColumns+`
        FROM place_ratings
        WHERE place_id = $1
        ORDER BY updated_at DESC, id DESC
    `, place)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ratings := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

// lockPlace serialises rating mutations of one place for the rest of the
// transaction.
func lockPlace(ctx context.Context, tx pgx.Tx, placeID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id::text FROM places WHERE id = $1 FOR UPDATE`, placeID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("place %s: %w", placeID, ErrNotFound)
		}
		return fmt.Errorf("lock place: %w", err)
	}
	return nil
}

// lockRatingPlace checks ownership of a rating and locks its place.
func lockRatingPlace(ctx context.Context, tx pgx.Tx, ratingID, userID string) (string, error) {
	var placeID, owner string
	err := tx.QueryRow(ctx, `SELECT place_id::text, user_id::text FROM place_ratings WHERE id = $1`, ratingID).Scan(&placeID, &owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("rating %s: %w", ratingID, ErrNotFound)
		}
		return "", fmt.Errorf("load rating: %w", err)
	}
	if owner != userID {
		return "", fmt.Errorf("rating %s: %w", ratingID, ErrForbidden)
	}
	if err := lockPlace(ctx, tx, placeID); err != nil {
		return "", err
	}
	return placeID, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.ID,
		&rating.PlaceID,
		&rating.UserID,
		&rating.Value,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	return rating, err
}

func scanRatingWithFlag(row pgx.Row) (domain.Rating, bool, error) {
	var rating domain.Rating
	var inserted bool
	err := row.Scan(
		&rating.ID,
		&rating.PlaceID,
		&rating.UserID,
		&rating.Value,
		&rating.CreatedAt,
		&rating.UpdatedAt,
		&inserted,
	)
	return rating, inserted, err
}
