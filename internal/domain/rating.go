package domain

import (
	"math"
	"time"
)

// Ratings are whole stars in [MinRating, MaxRating].
const (
	MinRating = 1
	MaxRating = 5
)

// Rating represents a single user's rating for a place.
type Rating struct {
	ID        string
	PlaceID   string
	UserID    string
	Value     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingAggregate provides average and count for a place's ratings.
type RatingAggregate struct {
	Average float64 `json:"average_rating"`
	Count   int64   `json:"total_ratings"`
}

// RatingBucket is one entry of a ratings histogram.
type RatingBucket struct {
	Rating int   `json:"rating"`
	Count  int64 `json:"count"`
}

// RatingStatistics is the read-only projection served by the stats endpoint.
type RatingStatistics struct {
	AverageRating      float64        `json:"average_rating"`
	TotalRatings       int64          `json:"total_ratings"`
	RatingDistribution []RatingBucket `json:"rating_distribution"`
}

// Aggregate returns the average/count pair of the statistics.
func (s RatingStatistics) Aggregate() RatingAggregate {
	return RatingAggregate{Average: s.AverageRating, Count: s.TotalRatings}
}

// NewRatingStatistics builds statistics from a rating value -> count histogram.
// The distribution always lists MaxRating down to MinRating; values outside
// that range are ignored.
func NewRatingStatistics(histogram map[int]int64) RatingStatistics {
	stats := RatingStatistics{
		RatingDistribution: make([]RatingBucket, 0, MaxRating-MinRating+1),
	}
	var sum int64
	for value := MaxRating; value >= MinRating; value-- {
		count := histogram[value]
		stats.RatingDistribution = append(stats.RatingDistribution, RatingBucket{Rating: value, Count: count})
		stats.TotalRatings += count
		sum += int64(value) * count
	}
	stats.AverageRating = RoundedAverage(sum, stats.TotalRatings)
	return stats
}

// RoundedAverage returns sum/count rounded half-up to one decimal place,
// or zero when count is zero. Integer arithmetic keeps x.x5 exact.
func RoundedAverage(sum, count int64) float64 {
	if count <= 0 {
		return 0
	}
	tenths := (sum*20 + count) / (2 * count)
	return float64(tenths) / 10
}

// RoundToOneDecimal rounds a non-negative value half-up to one decimal place.
func RoundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10.0
}

// ValidRating reports whether value is an accepted star rating.
func ValidRating(value int) bool {
	return value >= MinRating && value <= MaxRating
}
