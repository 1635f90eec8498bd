package payment

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Intent binds a gateway order to the order and amount it was created for.
type Intent struct {
	GatewayOrderID string
	OrderID        uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	CreatedAt      time.Time
}

// IntentStore persists intents. FindIntent returns ErrIntentNotFound when the
// gateway order is unknown.
type IntentStore interface {
	SaveIntent(ctx context.Context, in Intent) error
	FindIntent(ctx context.Context, gatewayOrderID string) (*Intent, error)
}

// ReplayGuard remembers gateway payment ids this process already applied.
// A hit is only a hint: it may be a false positive and the repository stays
// the authority.
type ReplayGuard struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewReplayGuard sizes the filter for n payment ids at false positive rate fp.
func NewReplayGuard(n uint, fp float64) *ReplayGuard {
	return &ReplayGuard{filter: bloom.NewWithEstimates(n, fp)}
}

// MaybeSeen reports whether ref may have been applied before.
func (g *ReplayGuard) MaybeSeen(ref string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.TestString(ref)
}

// Remember records ref as applied.
func (g *ReplayGuard) Remember(ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter.AddString(ref)
}
