package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
)

// PlacesRepository provides persistence helpers for place entities.
type PlacesRepository struct {
	pool *pgxpool.Pool
}

const placeColumns = `
    id::text,
    name,
    description,
    image_url,
    location,
    category,
    average_rating::float8,
    total_ratings::int8,
    created_by::text,
    created_at,
    updated_at
`

// PlaceCreateParams bundles the fields required to create a place.
type PlaceCreateParams struct {
	Name        string
	Description string
	ImageURL    *string
	Location    string
	Category    string
	CreatedBy   string
}

// PlaceUpdateParams holds the user-editable fields of a place. Nil fields keep
// their stored value. The rating aggregate is deliberately absent.
type PlaceUpdateParams struct {
	Name        *string
	Description *string
	ImageURL    *string
	Location    *string
	Category    *string
}

// PlaceListFilters encapsulates search and pagination options.
type PlaceListFilters struct {
	Query     *string
	Category  *string
	MinRating *float64
	Limit     int
	Cursor    *PlaceCursor
}

// PlaceCursor allows stable pagination by created_at/id.
type PlaceCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// PlaceListResult returns the paginated payload.
type PlaceListResult struct {
	Items      []domain.Place
	NextCursor *string
}

// Create inserts a new place row and returns the stored entity. New places
// start with a zero aggregate.
func (r *PlacesRepository) Create(ctx context.Context, params PlaceCreateParams) (domain.Place, error) {
	creator, err := parseID("user", params.CreatedBy)
	if err != nil {
		return domain.Place{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO places (name, description, image_url, location, category, created_by)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING %s
    `, placeColumns)

	row := r.pool.QueryRow(ctx, query, params.Name, params.Description, params.ImageURL, params.Location, params.Category, creator)
	place, err := scanPlace(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Place{}, fmt.Errorf("create place: %w", ErrNotFound)
		}
		return domain.Place{}, err
	}
	return place, nil
}

// GetByID fetches a place by its identifier.
func (r *PlacesRepository) GetByID(ctx context.Context, placeID string) (domain.Place, error) {
	id, err := parseID("place", placeID)
	if err != nil {
		return domain.Place{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM places WHERE id = $1`, placeColumns)
	place, err := scanPlace(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Place{}, ErrNotFound
		}
		return domain.Place{}, err
	}
	return place, nil
}

// Update applies user edits to a place created by userID.
func (r *PlacesRepository) Update(ctx context.Context, placeID, userID string, params PlaceUpdateParams) (domain.Place, error) {
	id, err := parseID("place", placeID)
	if err != nil {
		return domain.Place{}, err
	}
	owner, err := parseID("user", userID)
	if err != nil {
		return domain.Place{}, err
	}
	if err := r.checkOwner(ctx, id, owner); err != nil {
		return domain.Place{}, err
	}

	query := fmt.Sprintf(`
        UPDATE places
        SET name = COALESCE($2, name),
            description = COALESCE($3, description),
            image_url = COALESCE($4, image_url),
            location = COALESCE($5, location),
            category = COALESCE($6, category),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, placeColumns)

	row := r.pool.QueryRow(ctx, query, id, params.Name, params.Description, params.ImageURL, params.Location, params.Category)
	place, err := scanPlace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Place{}, ErrNotFound
		}
		return domain.Place{}, err
	}
	return place, nil
}

// Delete removes a place created by userID together with its ratings,
// comments and reactions.
func (r *PlacesRepository) Delete(ctx context.Context, placeID, userID string) error {
	id, err := parseID("place", placeID)
	if err != nil {
		return err
	}
	owner, err := parseID("user", userID)
	if err != nil {
		return err
	}
	if err := r.checkOwner(ctx, id, owner); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM places WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PlacesRepository) checkOwner(ctx context.Context, placeID, userID string) error {
	var createdBy *string
	err := r.pool.QueryRow(ctx, `SELECT created_by::text FROM places WHERE id = $1`, placeID).Scan(&createdBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if createdBy == nil || *createdBy != userID {
		return ErrForbidden
	}
	return nil
}

// List returns places that match the provided filters.
func (r *PlacesRepository) List(ctx context.Context, filters PlaceListFilters) (PlaceListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := "%" + strings.TrimSpace(*filters.Query) + "%"
		p1 := arg(q)
		p2 := arg(q)
		p3 := arg(q)
		where = append(where, fmt.Sprintf("(name ILIKE %s OR description ILIKE %s OR location ILIKE %s)", p1, p2, p3))
	}
	if filters.Category != nil && strings.TrimSpace(*filters.Category) != "" {
		where = append(where, fmt.Sprintf("category ILIKE %s", arg(strings.TrimSpace(*filters.Category))))
	}
	if filters.MinRating != nil {
		where = append(where, fmt.Sprintf("average_rating >= %s", arg(*filters.MinRating)))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s::uuid)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(placeColumns)
	queryBuilder.WriteString(" FROM places")

	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return PlaceListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Place, 0)
	for rows.Next() {
		place, err := scanPlace(rows)
		if err != nil {
			return PlaceListResult{}, err
		}
		items = append(items, place)
	}
	if err := rows.Err(); err != nil {
		return PlaceListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		cursor := PlaceCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		token, err := encodeCursor(cursor)
		if err != nil {
			return PlaceListResult{}, err
		}
		nextCursor = &token
	}

	return PlaceListResult{Items: items, NextCursor: nextCursor}, nil
}

func scanPlace(row pgx.Row) (domain.Place, error) {
	var place domain.Place
	err := row.Scan(
		&place.ID,
		&place.Name,
		&place.Description,
		&place.ImageURL,
		&place.Location,
		&place.Category,
		&place.AverageRating,
		&place.TotalRatings,
		&place.CreatedBy,
		&place.CreatedAt,
		&place.UpdatedAt,
	)
	if err != nil {
		return domain.Place{}, err
	}
	return place, nil
}

func encodeCursor(c PlaceCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a PlaceCursor.
func DecodeCursor(token string) (*PlaceCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor PlaceCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	if !ValidID(cursor.ID) {
		return nil, fmt.Errorf("invalid cursor id")
	}
	return &cursor, nil
}
