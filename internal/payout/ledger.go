package payout

import (
	"context"
	"sync"
	"time"

	id "crowdfund/pkg/domain"
)

// Ledger is an in-process payout backend that credits recipient balances.
type Ledger struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt
	balances map[id.Identity]id.Amount
	now      func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		receipts: make(map[string]*Receipt),
		balances: make(map[id.Identity]id.Amount),
		now:      time.Now,
	}
}

func (l *Ledger) Transfer(_ context.Context, t Transfer) (*Receipt, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.receipts[t.Reference]; ok {
		if err := existing.matches(t); err != nil {
			return nil, err
		}
		r := *existing
		return &r, nil
	}
	r := &Receipt{
		Reference:     t.Reference,
		Recipient:     t.Recipient,
		Amount:        t.Amount,
		TransferredAt: l.now(),
	}
	l.receipts[t.Reference] = r
	l.balances[t.Recipient] += t.Amount
	out := *r
	return &out, nil
}

// Balance returns the total paid out to recipient.
func (l *Ledger) Balance(recipient id.Identity) id.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[recipient]
}

// Count returns the number of distinct transfers issued.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.receipts)
}
