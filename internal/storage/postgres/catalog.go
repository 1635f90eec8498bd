package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kiwari-pos/ordering/internal/catalog"
	"github.com/kiwari-pos/ordering/internal/payment"
)

var (
	_ catalog.Catalog     = (*Store)(nil)
	_ payment.IntentStore = (*Store)(nil)
)

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*catalog.Item, error) {
	var it catalog.Item
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, price, available FROM menu_items WHERE id = $1`, id,
	).Scan(&it.ID, &it.Name, &it.Price, &it.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get menu item")
	}
	return &it, nil
}

// UpsertItems inserts or replaces menu items in one batch.
func (s *Store) UpsertItems(ctx context.Context, items []catalog.Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO menu_items (id, name, price, available) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, price = EXCLUDED.price, available = EXCLUDED.available, updated_at = now()`,
			it.ID, it.Name, it.Price, it.Available)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert menu items")
	}
	return nil
}

func (s *Store) SaveIntent(ctx context.Context, in payment.Intent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_intents (gateway_order_id, order_id, amount, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		in.GatewayOrderID, in.OrderID, in.Amount, in.Currency, in.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert intent")
	}
	return nil
}

func (s *Store) FindIntent(ctx context.Context, gatewayOrderID string) (*payment.Intent, error) {
	var in payment.Intent
	err := s.pool.QueryRow(ctx,
		`SELECT gateway_order_id, order_id, amount, currency, created_at
		 FROM payment_intents WHERE gateway_order_id = $1`, gatewayOrderID,
	).Scan(&in.GatewayOrderID, &in.OrderID, &in.Amount, &in.Currency, &in.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payment.ErrIntentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find intent")
	}
	return &in, nil
}
