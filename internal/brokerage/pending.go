package brokerage

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingTTL bounds how long a dry-run validated trade stays
// confirmable before it must be re-validated.
const PendingTTL = 300 * time.Second

// PendingTrade is a dry-run validated order waiting for confirmation.
type PendingTrade struct {
	TradeID        string
	AccountNumber  string
	Symbol         string
	Action         string
	Quantity       int
	OrderType      string
	LimitPrice     float64
	InstrumentType string
	OptionSymbol   string
	Description    string
	Order          map[string]any
	CreatedAt      time.Time
}

// Expired reports whether the trade has outlived PendingTTL.
func (p *PendingTrade) Expired(now time.Time) bool {
	return now.Sub(p.CreatedAt) > PendingTTL
}

// Ledger holds pending trades between the dry-run and confirm phases.
// Take removes the trade before any submission happens, so a trade can
// be executed at most once no matter how many confirmations race.
type Ledger struct {
	mu      sync.Mutex
	pending map[string]*PendingTrade
	now     func() time.Time
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		pending: make(map[string]*PendingTrade),
		now:     time.Now,
	}
}

// NewTradeID returns a short identifier for user-facing confirmation.
func NewTradeID() string {
	return uuid.NewString()[:8]
}

// sweep drops expired entries. Callers must hold mu.
func (l *Ledger) sweep() {
	now := l.now()
	for id, pt := range l.pending {
		if pt.Expired(now) {
			delete(l.pending, id)
		}
	}
}

// Add registers a validated trade and stamps its creation time.
func (l *Ledger) Add(pt *PendingTrade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	pt.CreatedAt = l.now()
	l.pending[pt.TradeID] = pt
}

// Take removes and returns the trade in one step. The second return is
// false when the id is unknown or the trade expired.
func (l *Ledger) Take(tradeID string) (*PendingTrade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	pt, ok := l.pending[tradeID]
	if !ok {
		return nil, false
	}
	delete(l.pending, tradeID)
	return pt, true
}

// Get returns the trade without removing it.
func (l *Ledger) Get(tradeID string) (*PendingTrade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	pt, ok := l.pending[tradeID]
	return pt, ok
}

// Cancel discards a pending trade. It reports whether one was present.
func (l *Ledger) Cancel(tradeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	if _, ok := l.pending[tradeID]; !ok {
		return false
	}
	delete(l.pending, tradeID)
	return true
}

// Count returns the number of live pending trades.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	return len(l.pending)
}
