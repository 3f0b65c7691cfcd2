package domain

import "time"

// Place is a point of interest. AverageRating and TotalRatings are a cached
// aggregate over the place's ratings and are only written by the aggregator.
type Place struct {
	ID            string
	Name          string
	Description   string
	ImageURL      *string
	Location      string
	Category      string
	AverageRating float64
	TotalRatings  int64
	CreatedBy     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
