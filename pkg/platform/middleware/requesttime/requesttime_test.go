package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crowdfund/pkg/requestcontext"
)

func TestWithClockPinsRequestTime(t *testing.T) {
	pinned := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("PKT", 5*3600))
	calls := 0
	clock := func() time.Time {
		calls++
		return pinned.Add(time.Duration(calls-1) * time.Hour)
	}

	var first, second time.Time
	h := WithClock(clock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1, calls)
	assert.True(t, first.Equal(pinned))
	assert.Equal(t, first, second)
	assert.Equal(t, time.UTC, first.Location())
}
