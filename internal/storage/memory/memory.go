// Package memory is an in-process store for development and tests.
// It implements the same contracts as the postgres store, including
// compare-and-swap writes and unique order numbers.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kiwari-pos/ordering/internal/catalog"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/payment"
)

// Store keeps orders, counters, intents and menu items in maps.
type Store struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*order.Order
	numbers  map[string]uuid.UUID
	refs     map[string]uuid.UUID
	counters map[string]int64
	intents  map[string]payment.Intent
	items    map[uuid.UUID]catalog.Item
}

var (
	_ order.Repository    = (*Store)(nil)
	_ order.Counter       = (*Store)(nil)
	_ catalog.Catalog     = (*Store)(nil)
	_ payment.IntentStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		orders:   make(map[uuid.UUID]*order.Order),
		numbers:  make(map[string]uuid.UUID),
		refs:     make(map[string]uuid.UUID),
		counters: make(map[string]int64),
		intents:  make(map[string]payment.Intent),
		items:    make(map[uuid.UUID]catalog.Item),
	}
}

// PutItem adds or replaces a menu item.
func (s *Store) PutItem(it catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = it
}

func (s *Store) GetItem(_ context.Context, id uuid.UUID) (*catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &it, nil
}

func (s *Store) NextSequence(ctx context.Context, day string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[day]++
	return s.counters[day], nil
}

func (s *Store) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.numbers[o.Number]; ok {
		return order.ErrDuplicateNumber
	}
	for _, p := range o.Payments {
		if _, ok := s.refs[p.ExternalReference]; ok && p.ExternalReference != "" {
			return order.ErrDuplicateReference
		}
	}
	stored := o.Clone()
	stored.Version = 1
	s.orders[o.ID] = stored
	s.numbers[o.Number] = o.ID
	for _, p := range o.Payments {
		if p.ExternalReference != "" {
			s.refs[p.ExternalReference] = o.ID
		}
	}
	o.Version = stored.Version
	return nil
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *Store) List(_ context.Context, f order.ListFilter) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*order.Order
	for _, o := range s.orders {
		if !matches(o, f) {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Timestamps.Created, out[j].Timestamps.Created
		if a.Equal(b) {
			return out[i].Number > out[j].Number
		}
		return a.After(b)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(o *order.Order, f order.ListFilter) bool {
	switch {
	case f.Status != "" && o.Status != f.Status:
		return false
	case f.Channel != "" && o.Channel != f.Channel:
		return false
	case f.CustomerRef != nil && (o.CustomerRef == nil || *o.CustomerRef != *f.CustomerRef):
		return false
	case !f.From.IsZero() && o.Timestamps.Created.Before(f.From):
		return false
	case !f.To.IsZero() && !o.Timestamps.Created.Before(f.To):
		return false
	}
	return true
}

func (s *Store) UpdateStatus(_ context.Context, u order.StatusUpdate) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[u.ID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != u.From || o.Version != u.ExpectedVersion {
		return nil, order.ErrConflict
	}
	o.Status = u.To
	o.Timestamps.Stamp(u.To, u.At)
	o.History = append(o.History, order.StatusChange{
		From:    u.From,
		To:      u.To,
		ActorID: u.Actor.ID,
		Role:    u.Actor.Role,
		Reason:  u.Reason,
		At:      u.At,
	})
	o.Version++
	return o.Clone(), nil
}

func (s *Store) AppendPayments(_ context.Context, id uuid.UUID, expectedVersion int64, payments []order.Payment) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Version != expectedVersion {
		return nil, order.ErrConflict
	}
	seen := make(map[string]bool, len(payments))
	for _, p := range payments {
		ref := p.ExternalReference
		if ref == "" {
			continue
		}
		if _, ok := s.refs[ref]; ok || seen[ref] {
			return nil, order.ErrDuplicateReference
		}
		seen[ref] = true
	}

	o.Payments = append(o.Payments, payments...)
	o.Flags.Split = len(o.Payments) > 1
	for ref := range seen {
		s.refs[ref] = id
	}
	o.Version++
	return o.Clone(), nil
}

func (s *Store) MarkKOTPrinted(_ context.Context, id uuid.UUID, expectedVersion int64) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Version != expectedVersion {
		return nil, order.ErrConflict
	}
	o.Flags.KOTPrinted = true
	o.Version++
	return o.Clone(), nil
}

func (s *Store) FindPaymentByReference(_ context.Context, ref string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refs[ref]
	if !ok || ref == "" {
		return nil, order.ErrNotFound
	}
	return s.orders[id].Clone(), nil
}

func (s *Store) SaveIntent(_ context.Context, in payment.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[in.GatewayOrderID] = in
	return nil
}

func (s *Store) FindIntent(_ context.Context, gatewayOrderID string) (*payment.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[gatewayOrderID]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	return &in, nil
}
