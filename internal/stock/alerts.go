package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

const alertCollection = "lowStockAlerts"

// Alert is a seller-facing warning that a product's stock has crossed the
// low-stock threshold. At most one alert is active per product; the
// document id is the product id.
type Alert struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	SellerID     string    `json:"seller_id"`
	CurrentStock int       `json:"current_stock"`
	Threshold    int       `json:"threshold"`
	CreatedAt    time.Time `json:"created_at"`
}

// AlertService persists low-stock alerts in the document store.
type AlertService struct {
	store docstore.Store
	log   *slog.Logger
}

func NewAlertService(store docstore.Store, log *slog.Logger) *AlertService {
	return &AlertService{store: store, log: log}
}

// Raise creates an alert for the product unless one is already active.
func (s *AlertService) Raise(ctx context.Context, alert Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	err := s.store.Add(ctx, alertCollection, alert.ProductID, alert)
	if errors.Is(err, docstore.ErrExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("raise alert for %s: %w", alert.ProductID, err)
	}

	s.log.Info("low stock alert raised",
		slog.String("product_id", alert.ProductID),
		slog.Int("current_stock", alert.CurrentStock),
		slog.Int("threshold", alert.Threshold))
	return nil
}

// Dismiss removes the active alert for a product. Used both for explicit
// seller dismissal and for implicit resolution when stock is raised back
// above the threshold.
func (s *AlertService) Dismiss(ctx context.Context, productID string) error {
	if err := s.store.Delete(ctx, alertCollection, productID); err != nil {
		return fmt.Errorf("dismiss alert for %s: %w", productID, err)
	}
	return nil
}

// Active reports whether an alert is currently raised for the product.
func (s *AlertService) Active(ctx context.Context, productID string) (bool, error) {
	_, err := s.store.Get(ctx, alertCollection, productID)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListForSeller returns every active alert belonging to the seller.
func (s *AlertService) ListForSeller(ctx context.Context, sellerID string) ([]Alert, error) {
	docs, err := s.store.GetAll(ctx, alertCollection)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	var alerts []Alert
	for _, doc := range docs {
		var a Alert
		if err := json.Unmarshal(doc, &a); err != nil {
			s.log.Warn("skipping undecodable alert", slog.Any("error", err))
			continue
		}
		if a.SellerID == sellerID {
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}
