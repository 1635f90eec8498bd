// Package catalog is the menu lookup the order engine snapshots items from.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("menu item not found")

// Item is the part of a menu item orders care about.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// Catalog resolves menu items by id.
type Catalog interface {
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
}
