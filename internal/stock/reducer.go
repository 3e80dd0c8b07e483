package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

// DefaultLowStockThreshold is used when no threshold is configured.
const DefaultLowStockThreshold = 5

// Delta is one signed stock adjustment. A positive QuantityChange
// decrements stock (order placed); a negative one restores it (order
// cancelled). Restoring runs through the identical path with the sign
// flipped, there is no separate release protocol.
type Delta struct {
	ProductID      string `json:"product_id"`
	QuantityChange int    `json:"quantity_change"`
}

// Publisher pushes committed stock changes onto the stock feed so that
// caches converge. Publish failures are logged, never propagated: the
// authoritative write already committed.
type Publisher interface {
	PublishStockChange(ctx context.Context, productID string, stock int) error
}

// Reducer applies batches of stock deltas against the authoritative store.
// The batch commits atomically; stock is clamped at zero rather than going
// negative, and a batch that hits the clamp still succeeds. A non-nil
// error means stock is not guaranteed updated; callers surface a generic
// retry-later failure, there is no partial-success granularity.
type Reducer struct {
	store     docstore.Store
	alerts    *AlertService
	feed      Publisher
	log       *slog.Logger
	threshold int
}

// NewReducer builds a reducer. feed may be nil when no stock feed is
// wired (single-process deployments reading through docstore watches).
func NewReducer(store docstore.Store, alerts *AlertService, feed Publisher, log *slog.Logger, threshold int) *Reducer {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return &Reducer{store: store, alerts: alerts, feed: feed, log: log, threshold: threshold}
}

type productState struct {
	ID       string
	Name     string
	SellerID string
	Prev     int
	Next     int
}

// ApplyDeltas reads current stock for every delta, computes the clamped
// new values, and commits them as one atomic batch. Deltas for the same
// product are summed first so each product is read and written once and
// alerts are evaluated on the net change. After a successful commit it
// publishes the new values to the feed and reconciles low-stock alerts
// for every threshold crossing.
func (r *Reducer) ApplyDeltas(ctx context.Context, orderID string, deltas []Delta) error {
	logger := r.log.With(slog.String("op", "stock.ApplyDeltas"), slog.String("order_id", orderID))

	if len(deltas) == 0 {
		return nil
	}
	deltas = coalesce(deltas)

	states := make([]productState, 0, len(deltas))
	writes := make([]docstore.Write, 0, len(deltas))
	for _, d := range deltas {
		raw, err := r.store.Get(ctx, "products", d.ProductID)
		if err != nil {
			logger.Error("failed to read product", slog.String("product_id", d.ProductID), slog.Any("error", err))
			return fmt.Errorf("read product %s: %w", d.ProductID, err)
		}

		var doc struct {
			Name     string `json:"name"`
			SellerID string `json:"seller_id"`
			Stock    int    `json:"stock"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			logger.Error("failed to decode product", slog.String("product_id", d.ProductID), slog.Any("error", err))
			return fmt.Errorf("decode product %s: %w", d.ProductID, err)
		}

		next := doc.Stock - d.QuantityChange
		if next < 0 {
			next = 0
		}

		states = append(states, productState{
			ID:       d.ProductID,
			Name:     doc.Name,
			SellerID: doc.SellerID,
			Prev:     doc.Stock,
			Next:     next,
		})
		writes = append(writes, docstore.Write{
			Collection: "products",
			ID:         d.ProductID,
			Fields:     map[string]any{"stock": next},
		})
	}

	if err := r.store.ApplyBatch(ctx, writes); err != nil {
		logger.Error("stock batch failed", slog.Any("error", err))
		return fmt.Errorf("apply stock batch: %w", err)
	}

	for _, st := range states {
		r.publish(ctx, logger, st)
		r.reconcileAlert(ctx, logger, st)
	}

	logger.Info("stock batch applied", slog.Int("products", len(states)))
	return nil
}

// coalesce sums deltas sharing a product id, keeping first-seen order.
func coalesce(deltas []Delta) []Delta {
	index := make(map[string]int, len(deltas))
	out := make([]Delta, 0, len(deltas))
	for _, d := range deltas {
		if i, ok := index[d.ProductID]; ok {
			out[i].QuantityChange += d.QuantityChange
			continue
		}
		index[d.ProductID] = len(out)
		out = append(out, d)
	}
	return out
}

func (r *Reducer) publish(ctx context.Context, logger *slog.Logger, st productState) {
	if r.feed == nil {
		return
	}
	if err := r.feed.PublishStockChange(ctx, st.ID, st.Next); err != nil {
		logger.Error("failed to publish stock change",
			slog.String("product_id", st.ID), slog.Any("error", err))
	}
}

// reconcileAlert raises an alert exactly when stock crosses from above the
// threshold to at-or-below it, and resolves the active alert when stock
// comes back above.
func (r *Reducer) reconcileAlert(ctx context.Context, logger *slog.Logger, st productState) {
	crossedDown := st.Prev > r.threshold && st.Next <= r.threshold
	crossedUp := st.Prev <= r.threshold && st.Next > r.threshold

	switch {
	case crossedDown:
		err := r.alerts.Raise(ctx, Alert{
			ProductID:    st.ID,
			ProductName:  st.Name,
			SellerID:     st.SellerID,
			CurrentStock: st.Next,
			Threshold:    r.threshold,
		})
		if err != nil {
			logger.Error("failed to raise low stock alert",
				slog.String("product_id", st.ID), slog.Any("error", err))
		}
	case crossedUp:
		if err := r.alerts.Dismiss(ctx, st.ID); err != nil {
			logger.Error("failed to resolve low stock alert",
				slog.String("product_id", st.ID), slog.Any("error", err))
		}
	}
}

// Threshold returns the configured low-stock threshold.
func (r *Reducer) Threshold() int {
	return r.threshold
}
