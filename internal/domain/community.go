package domain

import "time"

// Comment is a user's comment on a place.
type Comment struct {
	ID         string
	PlaceID    string
	UserID     string
	AuthorName string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Photo is an image uploaded by a user, optionally attached to a place.
type Photo struct {
	ID          string
	UserID      string
	PlaceID     *string
	FileName    string
	ContentType string
	Caption     string
	CreatedAt   time.Time
}

// ReactionTypes lists the accepted reaction kinds.
var ReactionTypes = []string{"like", "love", "haha", "wow", "sad"}

// ReactionSummary counts reactions on one comment or photo.
type ReactionSummary struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
	Mine   *string          `json:"mine,omitempty"`
}
