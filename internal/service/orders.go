package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// Orders manages purchase orders.
type Orders struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewOrders creates the order service.
func NewOrders(st *store.Store, log *zap.Logger) *Orders {
	return &Orders{store: st, log: log.Named("orders"), now: time.Now}
}

// ItemInput is one requested line item.
type ItemInput struct {
	ProductName        string       `json:"product_name"`
	ProductDescription *string      `json:"product_description,omitempty"`
	Quantity           int          `json:"quantity"`
	UnitPrice          float64      `json:"unit_price"`
	ProductData        schema.JSONB `json:"product_data,omitempty"`
}

// OrderInput is a new order. Currency defaults to USD.
type OrderInput struct {
	Items           []ItemInput   `json:"items"`
	Currency        string        `json:"currency,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
	ShippingAddress *schema.JSONB `json:"shipping_address,omitempty"`
	BillingAddress  *schema.JSONB `json:"billing_address,omitempty"`
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber returns PO-YYYYMMDD-XXXXXX for the day of t.
func NewOrderNumber(t time.Time) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	for i := range b {
		b[i] = orderNumberAlphabet[int(b[i])%len(orderNumberAlphabet)]
	}
	return "PO-" + t.UTC().Format("20060102") + "-" + string(b), nil
}

// buildItems validates the items and prices each line, returning the
// order total.
func buildItems(in []ItemInput) ([]models.OrderItem, float64, error) {
	if len(in) == 0 {
		return nil, 0, invalid("items", "at least one item is required")
	}
	items := make([]models.OrderItem, len(in))
	var total float64
	for i, it := range in {
		if strings.TrimSpace(it.ProductName) == "" {
			return nil, 0, invalid(fmt.Sprintf("items[%d].product_name", i), "is required")
		}
		if it.Quantity <= 0 {
			return nil, 0, invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
		if it.UnitPrice < 0 {
			return nil, 0, invalid(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
		line := roundCents(it.UnitPrice * float64(it.Quantity))
		items[i] = models.OrderItem{
			ProductName:        it.ProductName,
			ProductDescription: it.ProductDescription,
			Quantity:           it.Quantity,
			UnitPrice:          it.UnitPrice,
			TotalPrice:         line,
			ProductData:        it.ProductData,
		}
		total += line
	}
	return items, roundCents(total), nil
}

// Create places an order for the caller with its items in one
// transaction.
func (s *Orders) Create(ctx context.Context, p policy.Principal, in OrderInput) (*store.OrderWithItems, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if in.Currency != "" && len(in.Currency) != 3 {
		return nil, invalid("currency", "must be a three letter code")
	}
	items, total, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}
	number, err := NewOrderNumber(s.now())
	if err != nil {
		return nil, err
	}
	o := &models.Order{
		UserID:          p.UserID,
		OrderNumber:     number,
		TotalAmount:     total,
		Currency:        strings.ToUpper(in.Currency),
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		Notes:           in.Notes,
	}
	err = s.store.Do(ctx, p, func(tx *store.Tx) error {
		if err := tx.Orders().Create(ctx, o, items); err != nil {
			return err
		}
		return logActivity(ctx, tx, p.UserID, ActionOrder, schema.JSONB{
			"order_number": number,
			"total_amount": total,
			"items":        len(items),
		}, RequestMeta{})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order created", zap.String("order_number", number), zap.Float64("total", total))
	return &store.OrderWithItems{Order: *o, Items: items}, nil
}

// List returns the caller's visible orders, newest first. Admins see
// every order.
func (s *Orders) List(ctx context.Context, p policy.Principal, limit uint64) ([]models.Order, error) {
	var out []models.Order
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Orders().List(ctx, uuid.Nil, limit)
		return err
	})
	return out, err
}

// Get returns an order with its items.
func (s *Orders) Get(ctx context.Context, p policy.Principal, id uuid.UUID) (*store.OrderWithItems, error) {
	var out *store.OrderWithItems
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Orders().WithItems(ctx, id)
		return err
	})
	return out, err
}

// Quote counts one quote against the caller's daily allowance and returns
// the order for the quote generator.
func (s *Orders) Quote(ctx context.Context, p policy.Principal, id uuid.UUID) (*store.OrderWithItems, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	var out *store.OrderWithItems
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		if out, err = tx.Orders().WithItems(ctx, id); err != nil {
			return err
		}
		return consume(ctx, tx, p.UserID, ActionQuote, schema.JSONB{"order_number": out.OrderNumber}, s.now())
	})
	return out, err
}

// SetStatus moves an order to status.
func (s *Orders) SetStatus(ctx context.Context, p policy.Principal, id uuid.UUID, status string) (*models.Order, error) {
	var out *models.Order
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Orders().SetStatus(ctx, id, status)
		return err
	})
	return out, err
}

// Delete removes an order and its items.
func (s *Orders) Delete(ctx context.Context, p policy.Principal, id uuid.UUID) error {
	return s.store.Do(ctx, p, func(tx *store.Tx) error {
		return tx.Orders().Delete(ctx, id)
	})
}
