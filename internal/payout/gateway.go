package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/platform/circuit"
)

// ErrGatewayUnavailable is returned while the circuit breaker is open.
var ErrGatewayUnavailable = errors.New("payout gateway unavailable")

type transferBody struct {
	Reference string `json:"reference"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// HTTPGateway posts transfers to an external payout service. The reference
// doubles as the Idempotency-Key so retries after a timeout are safe.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type GatewayOption func(*HTTPGateway)

func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.client = client
		}
	}
}

func WithBreaker(b *circuit.Breaker) GatewayOption {
	return func(g *HTTPGateway) {
		if b != nil {
			g.breaker = b
		}
	}
}

func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *HTTPGateway) {
		g.logger = logger
	}
}

// NewHTTPGateway creates a gateway posting to {baseURL}/transfers.
func NewHTTPGateway(baseURL string, timeout time.Duration, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: circuit.New("payout-gateway"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPGateway) Transfer(ctx context.Context, t Transfer) (*Receipt, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if !g.breaker.Allow() {
		return nil, ErrGatewayUnavailable
	}

	receipt, err := g.post(ctx, t)
	if err != nil {
		// A refused transfer is an answer, not an outage.
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			g.recordSuccess(ctx)
			return nil, err
		}
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "payout gateway circuit opened",
				"breaker", g.breaker.Name(),
				"error", err,
			)
		}
		return nil, err
	}
	g.recordSuccess(ctx)
	return receipt, nil
}

func (g *HTTPGateway) recordSuccess(ctx context.Context) {
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "payout gateway circuit closed", "breaker", g.breaker.Name())
	}
}

func (g *HTTPGateway) post(ctx context.Context, t Transfer) (*Receipt, error) {
	payload, err := json.Marshal(transferBody{
		Reference: t.Reference,
		Recipient: t.Recipient.String(),
		Amount:    int64(t.Amount),
	})
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transfers", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", t.Reference)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transfer request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, dErrors.Newf(dErrors.CodeConflict, "transfer %s rejected by gateway", t.Reference)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("transfer returned %s", resp.Status)
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decode transfer receipt: %w", err)
	}
	if err := receipt.matches(t); err != nil {
		return nil, err
	}
	if receipt.Reference == "" {
		receipt.Reference = t.Reference
	}
	return &receipt, nil
}
