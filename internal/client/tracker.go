package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
)

var (
	// ErrSubmissionInFlight is returned when a place already has a pending
	// rating submission.
	ErrSubmissionInFlight = errors.New("client: rating submission already in flight")
	// ErrInvalidRating is returned for values outside 1..5.
	ErrInvalidRating = errors.New("client: invalid rating")
)

// State is the rating state of one place.
type State int

const (
	Idle State = iota
	Submitting
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Settled:
		return "settled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RatingSubmitter sends a rating to the server.
type RatingSubmitter interface {
	SubmitRating(ctx context.Context, placeID string, value int) (*RatingResult, error)
}

// RefreshFunc is invoked after a submission settles.
type RefreshFunc func(ctx context.Context, placeID string)

type placeRating struct {
	state      State
	settled    int
	optimistic int
}

// RatingTracker holds the caller's rating of each place. A submission is shown
// immediately and rolled back if the server rejects it. Only one submission
// per place may be pending.
type RatingTracker struct {
	submitter RatingSubmitter
	onSettled RefreshFunc

	mu     sync.Mutex
	places map[string]*placeRating
}

// NewRatingTracker builds a tracker. onSettled may be nil.
func NewRatingTracker(submitter RatingSubmitter, onSettled RefreshFunc) *RatingTracker {
	return &RatingTracker{
		submitter: submitter,
		onSettled: onSettled,
		places:    make(map[string]*placeRating),
	}
}

// Submit rates placeID with value. While the request is pending Displayed
// reports value. On failure the previous rating is restored and the error is
// returned.
func (t *RatingTracker) Submit(ctx context.Context, placeID string, value int) (*RatingResult, error) {
	if !domain.ValidRating(value) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, value)
	}

	t.mu.Lock()
	entry, ok := t.places[placeID]
	if !ok {
		entry = &placeRating{}
		t.places[placeID] = entry
	}
	if entry.state == Submitting {
		t.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	previous := *entry
	entry.state = Submitting
	entry.optimistic = value
	t.mu.Unlock()

	result, err := t.submitter.SubmitRating(ctx, placeID, value)

	t.mu.Lock()
	if err != nil {
		*entry = previous
		t.mu.Unlock()
		return nil, err
	}
	entry.state = Settled
	entry.settled = result.Rating.Rating
	entry.optimistic = 0
	t.mu.Unlock()

	if t.onSettled != nil {
		t.onSettled(ctx, placeID)
	}
	return result, nil
}

// Displayed returns the rating to show for placeID. The second result is
// false when the caller has not rated the place.
func (t *RatingTracker) Displayed(placeID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.places[placeID]
	if !ok {
		return 0, false
	}
	switch entry.state {
	case Submitting:
		return entry.optimistic, true
	case Settled:
		return entry.settled, true
	default:
		return 0, false
	}
}

// State returns the state of placeID.
func (t *RatingTracker) State(placeID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.places[placeID]; ok {
		return entry.state
	}
	return Idle
}
