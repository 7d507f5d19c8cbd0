package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
)

// Orders is the orders repository. Items are reached through their order.
type Orders struct{ t *Tx }

// Orders returns the orders repository bound to t.
func (t *Tx) Orders() Orders { return Orders{t} }

// OrderWithItems is an order and its line items, as the quote generator
// reads them.
type OrderWithItems struct {
	models.Order
	Items []models.OrderItem `json:"items"`
}

// Create inserts the order and then each item under it. Item order ids
// are overwritten with the new order's id.
func (r Orders) Create(ctx context.Context, o *models.Order, items []models.OrderItem) error {
	if err := insertRow(ctx, r.t, o); err != nil {
		return err
	}
	for i := range items {
		items[i].OrderID = o.ID
		if err := insertRow(ctx, r.t, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns one order.
func (r Orders) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return getByID[models.Order](ctx, r.t, id)
}

// GetByNumber returns the order with the given order number.
func (r Orders) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	return firstRow[models.Order](ctx, r.t, squirrel.Expr("order_number = ?", number))
}

// List returns visible orders, newest first, optionally for one user.
func (r Orders) List(ctx context.Context, userID uuid.UUID, limit uint64) ([]models.Order, error) {
	q := query{orderBy: []string{"created_at DESC"}, limit: limit}
	if userID != uuid.Nil {
		q.where = append(q.where, squirrel.Expr("user_id = ?", userID))
	}
	return selectRows[models.Order](ctx, r.t, q)
}

// Items returns the visible items of an order.
func (r Orders) Items(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	return selectRows[models.OrderItem](ctx, r.t, query{
		where:   []squirrel.Sqlizer{squirrel.Expr("order_id = ?", orderID)},
		orderBy: []string{"created_at", "id"},
	})
}

// WithItems reads an order and its items.
func (r Orders) WithItems(ctx context.Context, id uuid.UUID) (*OrderWithItems, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := r.Items(ctx, id)
	if err != nil {
		return nil, err
	}
	return &OrderWithItems{Order: *o, Items: items}, nil
}

// SetStatus moves an order to status.
func (r Orders) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Order, error) {
	return updateByID[models.Order](ctx, r.t, id, map[string]any{"status": status})
}

// Delete removes an order and its items.
func (r Orders) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.Order](ctx, r.t, id)
}

// DeleteItem removes one line item.
func (r Orders) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.OrderItem](ctx, r.t, id)
}

// Count returns the number of visible orders of a user.
func (r Orders) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.t.count(ctx, "orders", squirrel.Expr("user_id = ?", userID))
}
