package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/metrics"
)

// Aggregator keeps places.average_rating/total_ratings in line with
// place_ratings and computes the statistics projection. Both operations
// derive from the rating rows every time, so a stale cached value is fixed by
// the next recompute.
type Aggregator struct{}

// Recompute derives the aggregate of placeID from its ratings and writes it
// onto the place row. Only that row is modified.
func (a *Aggregator) Recompute(ctx context.Context, q Querier, placeID string) (domain.RatingAggregate, error) {
	start := time.Now()
	agg, err := a.recompute(ctx, q, placeID)
	metrics.RecordRecompute(recomputeResult(err), time.Since(start))
	return agg, err
}

func (a *Aggregator) recompute(ctx context.Context, q Querier, placeID string) (domain.RatingAggregate, error) {
	id, err := parseID("place", placeID)
	if err != nil {
		return domain.RatingAggregate{}, err
	}

	const query = `
        UPDATE places p
        SET average_rating = agg.average,
            total_ratings = agg.total
        FROM (
            SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0) AS average,
                   COUNT(*)::int AS total
            FROM place_ratings
            WHERE place_id = $1
        ) agg
        WHERE p.id = $1
        RETURNING p.average_rating::float8, p.total_ratings::int8
    `

	var agg domain.RatingAggregate
	err = q.QueryRow(ctx, query, id).Scan(&agg.Average, &agg.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingAggregate{}, fmt.Errorf("recompute place %s: %w", id, ErrNotFound)
		}
		return domain.RatingAggregate{}, fmt.Errorf("recompute place %s: %w", id, err)
	}
	return agg, nil
}

// Statistics computes average, count and the 5..1 distribution for placeID
// without writing anything.
func (a *Aggregator) Statistics(ctx context.Context, q Querier, placeID string) (domain.RatingStatistics, error) {
	id, err := parseID("place", placeID)
	if err != nil {
		return domain.RatingStatistics{}, err
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM places WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.RatingStatistics{}, fmt.Errorf("check place %s: %w", id, err)
	}
	if !exists {
		return domain.RatingStatistics{}, fmt.Errorf("statistics for place %s: %w", id, ErrNotFound)
	}

	rows, err := q.Query(ctx, `
        SELECT rating::int, COUNT(*)::int8
        FROM place_ratings
        WHERE place_id = $1
        GROUP BY rating
    `, id)
	if err != nil {
		return domain.RatingStatistics{}, fmt.Errorf("rating histogram: %w", err)
	}
	defer rows.Close()

	histogram := make(map[int]int64, domain.MaxRating)
	for rows.Next() {
		var value int
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return domain.RatingStatistics{}, fmt.Errorf("scan rating histogram: %w", err)
		}
		histogram[value] = count
	}
	if err := rows.Err(); err != nil {
		return domain.RatingStatistics{}, fmt.Errorf("rating histogram: %w", err)
	}

	return domain.NewRatingStatistics(histogram), nil
}

func recomputeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}
