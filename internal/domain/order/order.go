// Package order holds the immutable per-seller order snapshot, its
// status lifecycle, and the docstore-backed order service.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

const orderCollection = "orders"

var ErrOrderNotFound = errors.New("order not found")

// Item is one denormalized line of an order. Price and quantity are
// frozen copies from checkout time; later product changes never alter an
// existing order.
type Item struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	Unit        string  `json:"unit"`
}

// Customer is the delivery destination captured on the order.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Pincode string `json:"pincode"`
}

// Order is the persisted order record for one seller's share of a
// checkout. It is an immutable snapshot except for the status field.
type Order struct {
	ID          string    `json:"id"`
	BuyerID     string    `json:"buyer_id"`
	SellerID    string    `json:"seller_id"`
	SellerName  string    `json:"seller_name"`
	Items       []Item    `json:"items"`
	TotalAmount float64   `json:"total_amount"`
	Status      Status    `json:"status"`
	Customer    Customer  `json:"customer"`
	QRPayload   string    `json:"qr_payload"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Service persists orders and enforces the status machine on writes.
type Service struct {
	store docstore.Store
	log   *slog.Logger
}

func NewService(store docstore.Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) Create(ctx context.Context, o *Order) error {
	const op = "order.Create"

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = o.CreatedAt

	if err := s.store.Add(ctx, orderCollection, o.ID, o); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("order created",
		slog.String("op", op),
		slog.String("order_id", o.ID),
		slog.String("seller_id", o.SellerID),
		slog.Float64("total_amount", o.TotalAmount))
	return nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	raw, err := s.store.Get(ctx, orderCollection, orderID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}

	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return &o, nil
}

// ListForSeller returns every order belonging to the seller.
func (s *Service) ListForSeller(ctx context.Context, sellerID string) ([]Order, error) {
	docs, err := s.store.GetAll(ctx, orderCollection)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var orders []Order
	for _, doc := range docs {
		var o Order
		if err := json.Unmarshal(doc, &o); err != nil {
			s.log.Warn("skipping undecodable order", slog.Any("error", err))
			continue
		}
		if o.SellerID == sellerID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// SetStatus moves the order to target after validating the transition.
func (s *Service) SetStatus(ctx context.Context, orderID string, target Status) error {
	const op = "order.SetStatus"

	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if err := CheckTransition(o.Status, target); err != nil {
		return fmt.Errorf("%s: order %s: %w", op, orderID, err)
	}

	err = s.store.Update(ctx, orderCollection, orderID, map[string]any{
		"status":     target,
		"updated_at": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%s: order %s: %w", op, orderID, err)
	}

	s.log.Info("order status changed",
		slog.String("op", op),
		slog.String("order_id", orderID),
		slog.String("from", string(o.Status)),
		slog.String("to", string(target)))
	return nil
}
