package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
)

type reactionsTable struct {
	name       string // reactions table
	target     string // foreign key column
	targetKind string
}

var (
	commentReactionsTable = reactionsTable{name: "comment_reactions", target: "comment_id", targetKind: "comment"}
	photoReactionsTable   = reactionsTable{name: "photo_reactions", target: "photo_id", targetKind: "photo"}
)

// ReactionsRepository stores one reaction per (target, user) for either
// comments or photos.
type ReactionsRepository struct {
	pool  *pgxpool.Pool
	table reactionsTable

	upsertSQL  string
	deleteSQL  string
	summarySQL string
	mineSQL    string
}

func newReactionsRepository(pool *pgxpool.Pool, table reactionsTable) *ReactionsRepository {
	return &ReactionsRepository{
		pool:  pool,
		table: table,
		upsertSQL: fmt.Sprintf(`
            INSERT INTO %[1]s (%[2]s, user_id, reaction_type)
            VALUES ($1,$2,$3)
            ON CONFLICT (%[2]s, user_id)
            DO UPDATE SET reaction_type = EXCLUDED.reaction_type, created_at = now()
        `, table.name, table.target),
		deleteSQL:  fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND user_id = $2`, table.name, table.target),
		summarySQL: fmt.Sprintf(`SELECT reaction_type, COUNT(*)::int8 FROM %s WHERE %s = $1 GROUP BY reaction_type`, table.name, table.target),
		mineSQL:    fmt.Sprintf(`SELECT reaction_type FROM %s WHERE %s = $1 AND user_id = $2`, table.name, table.target),
	}
}

// ValidReactionType reports whether t is an accepted reaction kind.
func ValidReactionType(t string) bool {
	return slices.Contains(domain.ReactionTypes, t)
}

// Set records or replaces userID's reaction on the target.
func (r *ReactionsRepository) Set(ctx context.Context, targetID, userID, reactionType string) error {
	target, err := parseID(r.table.targetKind, targetID)
	if err != nil {
		return err
	}
	user, err := parseID("user", userID)
	if err != nil {
		return err
	}
	if !ValidReactionType(reactionType) {
		return fmt.Errorf("%w: unknown reaction type %q", ErrInvalidArgument, reactionType)
	}
	if _, err := r.pool.Exec(ctx, r.upsertSQL, target, user, reactionType); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("set reaction: %w", ErrNotFound)
		}
		return err
	}
	return nil
}

// Remove deletes userID's reaction on the target.
func (r *ReactionsRepository) Remove(ctx context.Context, targetID, userID string) error {
	target, err := parseID(r.table.targetKind, targetID)
	if err != nil {
		return err
	}
	user, err := parseID("user", userID)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, r.deleteSQL, target, user)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Summary counts reactions per type. When userID is non-empty the caller's
// own reaction is included.
func (r *ReactionsRepository) Summary(ctx context.Context, targetID, userID string) (domain.ReactionSummary, error) {
	target, err := parseID(r.table.targetKind, targetID)
	if err != nil {
		return domain.ReactionSummary{}, err
	}

	summary := domain.ReactionSummary{Counts: make(map[string]int64, len(domain.ReactionTypes))}
	for _, t := range domain.ReactionTypes {
		summary.Counts[t] = 0
	}

	rows, err := r.pool.Query(ctx, r.summarySQL, target)
	if err != nil {
		return domain.ReactionSummary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var count int64
		if err := rows.Scan(&t, &count); err != nil {
			return domain.ReactionSummary{}, err
		}
		summary.Counts[t] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return domain.ReactionSummary{}, err
	}

	if userID != "" {
		user, err := parseID("user", userID)
		if err != nil {
			return domain.ReactionSummary{}, err
		}
		var mine string
		err = r.pool.QueryRow(ctx, r.mineSQL, target, user).Scan(&mine)
		switch {
		case err == nil:
			summary.Mine = &mine
		case !errors.Is(err, pgx.ErrNoRows):
			return domain.ReactionSummary{}, err
		}
	}
	return summary, nil
}
