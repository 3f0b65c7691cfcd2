package client

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
)

// PlaceView caches the place list and per-place statistics last read from
// the server. Its Refresh method is meant to be a RatingTracker's RefreshFunc.
type PlaceView struct {
	api    *HTTPClient
	params ListPlacesParams
	logger zerolog.Logger

	mu     sync.RWMutex
	places []Place
	stats  map[string]domain.RatingStatistics
}

// NewPlaceView builds a view that lists places with params.
func NewPlaceView(api *HTTPClient, params ListPlacesParams, logger zerolog.Logger) *PlaceView {
	return &PlaceView{
		api:    api,
		params: params,
		logger: logger,
		stats:  make(map[string]domain.RatingStatistics),
	}
}

// Refresh reloads the place list and the statistics of placeID. Failed reads
// keep the previous data.
func (v *PlaceView) Refresh(ctx context.Context, placeID string) {
	page, err := v.api.ListPlaces(ctx, v.params)
	if err != nil {
		v.logger.Warn().Err(err).Msg("refresh place list failed")
	} else {
		v.mu.Lock()
		v.places = page.Items
		v.mu.Unlock()
	}

	if placeID == "" {
		return
	}
	stats, err := v.api.PlaceStats(ctx, placeID)
	if err != nil {
		v.logger.Warn().Err(err).Str("place_id", placeID).Msg("refresh place stats failed")
		return
	}
	v.mu.Lock()
	v.stats[placeID] = stats
	v.mu.Unlock()
}

// Places returns the cached place list.
func (v *PlaceView) Places() []Place {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Place, len(v.places))
	copy(out, v.places)
	return out
}

// Stats returns the cached statistics of placeID.
func (v *PlaceView) Stats(placeID string) (domain.RatingStatistics, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	stats, ok := v.stats[placeID]
	return stats, ok
}
