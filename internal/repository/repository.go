package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/tourist-hub/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidArgument indicates a malformed or missing identifier or value.
	ErrInvalidArgument = errors.New("repository: invalid argument")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("repository: conflict")
	// ErrForbidden indicates the caller does not own the entity.
	ErrForbidden = errors.New("repository: forbidden")
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Users            *UsersRepository
	Places           *PlacesRepository
	Ratings          *RatingsRepository
	Comments         *CommentsRepository
	Photos           *PhotosRepository
	CommentReactions *ReactionsRepository
	PhotoReactions   *ReactionsRepository
	Aggregator       *Aggregator
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	agg := &Aggregator{}
	return &Repository{
		Users:            &UsersRepository{pool: pool},
		Places:           &PlacesRepository{pool: pool},
		Ratings:          &RatingsRepository{pool: pool, recomputer: agg, stats: agg},
		Comments:         &CommentsRepository{pool: pool},
		Photos:           &PhotosRepository{pool: pool},
		CommentReactions: newReactionsRepository(pool, commentReactionsTable),
		PhotoReactions:   newReactionsRepository(pool, photoReactionsTable),
		Aggregator:       agg,
	}
}

// parseID validates an identifier and returns it in canonical form.
func parseID(kind, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: missing %s id", ErrInvalidArgument, kind)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: malformed %s id %q", ErrInvalidArgument, kind, id)
	}
	return parsed.String(), nil
}

// ValidID reports whether id is a well-formed identifier.
func ValidID(id string) bool {
	_, err := parseID("entity", id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
