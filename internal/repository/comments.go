package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
)

// CommentsRepository stores comments on places.
type CommentsRepository struct {
	pool *pgxpool.Pool
}

const commentSelect = `
    SELECT c.id::text, c.place_id::text, c.user_id::text, u.display_name, c.content, c.created_at, c.updated_at
    FROM comments c
    JOIN users u ON u.id = c.user_id
`

// Create adds a comment to a place.
func (r *CommentsRepository) Create(ctx context.Context, placeID, userID, content string) (domain.Comment, error) {
	place, err := parseID("place", placeID)
	if err != nil {
		return domain.Comment{}, err
	}
	user, err := parseID("user", userID)
	if err != nil {
		return domain.Comment{}, err
	}

	var id string
	err = r.pool.QueryRow(ctx, `
        INSERT INTO comments (place_id, user_id, content)
        VALUES ($1,$2,$3)
        RETURNING id::text
    `, place, user, content).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Comment{}, fmt.Errorf("create comment: %w", ErrNotFound)
		}
		return domain.Comment{}, err
	}
	return r.Get(ctx, id)
}

// Get fetches one comment.
func (r *CommentsRepository) Get(ctx context.Context, commentID string) (domain.Comment, error) {
	id, err := parseID("comment", commentID)
	if err != nil {
		return domain.Comment{}, err
	}
	comment, err := scanComment(r.pool.QueryRow(ctx, commentSelect+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Comment{}, ErrNotFound
		}
		return domain.Comment{}, err
	}
	return comment, nil
}

// ListByPlace returns a place's comments, newest first.
func (r *CommentsRepository) ListByPlace(ctx context.Context, placeID string) ([]domain.Comment, error) {
	place, err := parseID("place", placeID)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, commentSelect+` WHERE c.place_id = $1 ORDER BY c.created_at DESC, c.id DESC`, place)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

// Update edits a comment written by userID.
func (r *CommentsRepository) Update(ctx context.Context, commentID, userID, content string) (domain.Comment, error) {
	id, err := parseID("comment", commentID)
	if err != nil {
		return domain.Comment{}, err
	}
	if err := r.checkAuthor(ctx, id, userID); err != nil {
		return domain.Comment{}, err
	}
	if _, err := r.pool.Exec(ctx, `UPDATE comments SET content = $2, updated_at = now() WHERE id = $1`, id, content); err != nil {
		return domain.Comment{}, err
	}
	return r.Get(ctx, id)
}

// Delete removes a comment written by userID.
func (r *CommentsRepository) Delete(ctx context.Context, commentID, userID string) error {
	id, err := parseID("comment", commentID)
	if err != nil {
		return err
	}
	if err := r.checkAuthor(ctx, id, userID); err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	return err
}

func (r *CommentsRepository) checkAuthor(ctx context.Context, commentID, userID string) error {
	user, err := parseID("user", userID)
	if err != nil {
		return err
	}
	var author string
	err = r.pool.QueryRow(ctx, `SELECT user_id::text FROM comments WHERE id = $1`, commentID).Scan(&author)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if author != user {
		return ErrForbidden
	}
	return nil
}

func scanComment(row pgx.Row) (domain.Comment, error) {
	var comment domain.Comment
	err := row.Scan(
		&comment.ID,
		&comment.PlaceID,
		&comment.UserID,
		&comment.AuthorName,
		&comment.Content,
		&comment.CreatedAt,
		&comment.UpdatedAt,
	)
	return comment, err
}
