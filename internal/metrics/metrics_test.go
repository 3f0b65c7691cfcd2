package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRecompute(t *testing.T) {
	before := testutil.ToFloat64(RatingRecomputes.WithLabelValues("ok"))
	RecordRecompute("ok", 5*time.Millisecond)
	after := testutil.ToFloat64(RatingRecomputes.WithLabelValues("ok"))
	if after != before+1 {
		t.Fatalf("recomputes ok = %v, want %v", after, before+1)
	}
}

func TestRecordRatingMutation(t *testing.T) {
	okBefore := testutil.ToFloat64(RatingMutations.WithLabelValues("create", "ok"))
	errBefore := testutil.ToFloat64(RatingMutations.WithLabelValues("create", "error"))

	RecordRatingMutation("create", nil)
	RecordRatingMutation("create", errors.New("boom"))

	if got := testutil.ToFloat64(RatingMutations.WithLabelValues("create", "ok")); got != okBefore+1 {
		t.Fatalf("ok = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(RatingMutations.WithLabelValues("create", "error")); got != errBefore+1 {
		t.Fatalf("error = %v, want %v", got, errBefore+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Fatalf("active = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Fatalf("active = %v, want %v", got, before)
	}
}
