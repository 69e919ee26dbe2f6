package payout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/platform/circuit"
)

func newGateway(t *testing.T, handler http.HandlerFunc, opts ...GatewayOption) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]GatewayOption{WithGatewayLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewHTTPGateway(srv.URL+"/", time.Second, opts...)
}

func TestHTTPGateway_Transfer(t *testing.T) {
	ctx := context.Background()
	transfer := Transfer{Reference: Reference(3), Recipient: "0xcreator", Amount: 1000}

	t.Run("posts the transfer with an idempotency key", func(t *testing.T) {
		g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/transfers", r.URL.Path)
			assert.Equal(t, "campaign-3-payout", r.Header.Get("Idempotency-Key"))

			var body transferBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, transferBody{Reference: "campaign-3-payout", Recipient: "0xcreator", Amount: 1000}, body)

			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"reference":      body.Reference,
				"recipient":      body.Recipient,
				"amount":         body.Amount,
				"transferred_at": "2025-06-01T10:00:00Z",
			})
		})

		receipt, err := g.Transfer(ctx, transfer)
		require.NoError(t, err)
		assert.Equal(t, "campaign-3-payout", receipt.Reference)
		assert.EqualValues(t, 1000, receipt.Amount)
		assert.Equal(t, 2025, receipt.TransferredAt.Year())
	})

	t.Run("server error fails the transfer", func(t *testing.T) {
		g := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := g.Transfer(ctx, transfer)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("conflict is reported with its code", func(t *testing.T) {
		g := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})

		_, err := g.Transfer(ctx, transfer)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("receipt with different terms is rejected", func(t *testing.T) {
		g := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"recipient": "0xother", "amount": 1000})
		})

		_, err := g.Transfer(ctx, transfer)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestHTTPGateway_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	g := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithBreaker(breaker))
	transfer := Transfer{Reference: "r", Recipient: "0xa", Amount: 1}

	for range 2 {
		_, err := g.Transfer(context.Background(), transfer)
		require.Error(t, err)
	}
	assert.True(t, breaker.IsOpen())

	_, err := g.Transfer(context.Background(), transfer)
	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
	assert.EqualValues(t, 2, calls.Load(), "open breaker short-circuits the call")

	now = now.Add(2 * time.Minute)
	_, err = g.Transfer(context.Background(), transfer)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load(), "cooldown allows a probe")
}
