// Package checkout converts a validated cart into one persisted order
// per seller and drives the stock reduction for each.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aaravsagar/agriatoo-core/internal/domain/cart"
	"github.com/aaravsagar/agriatoo-core/internal/domain/order"
	"github.com/aaravsagar/agriatoo-core/internal/payment"
	"github.com/aaravsagar/agriatoo-core/internal/pincode"
	"github.com/aaravsagar/agriatoo-core/internal/stock"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidDetails       = errors.New("customer details are incomplete or invalid")
	ErrInvalidPincode       = errors.New("destination pincode is not serviceable")
	ErrNoDeliveryInfo       = errors.New("seller has no delivery coverage information")
	ErrNotDeliverable       = errors.New("seller does not deliver to this pincode")
	ErrStockUnavailable     = errors.New("one or more items are no longer in stock")
	ErrStockReductionFailed = errors.New("stock reduction failed")
	ErrCheckoutIncomplete   = errors.New("checkout did not complete for all sellers")
)

// CustomerDetails is the delivery destination the buyer fills in.
// Indian mobile numbers are ten digits starting 6-9.
type CustomerDetails struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required,indianmobile"`
	Address string `json:"address" validate:"required"`
	Pincode string `json:"pincode" validate:"required,len=6,numeric"`
}

// StockChecker is the read surface checkout needs from the stock cache.
type StockChecker interface {
	IsInStock(productID string, requestedQty int) bool
}

// Reducer applies one seller's stock decrements atomically.
type Reducer interface {
	ApplyDeltas(ctx context.Context, orderID string, deltas []stock.Delta) error
}

// Orders is the order persistence surface checkout drives.
type Orders interface {
	Create(ctx context.Context, o *order.Order) error
	SetStatus(ctx context.Context, orderID string, target order.Status) error
}

// UPIPayee identifies the platform's payment recipient.
type UPIPayee struct {
	Address string
	Name    string
}

// SellerOutcome is the per-seller result of one checkout. Err is nil on
// success; a failed seller never rolls back another seller's order.
type SellerOutcome struct {
	SellerID    string       `json:"seller_id"`
	SellerName  string       `json:"seller_name"`
	OrderID     string       `json:"order_id"`
	TotalAmount float64      `json:"total_amount"`
	Status      order.Status `json:"status"`
	Error       string       `json:"error,omitempty"`
	Err         error        `json:"-"`
}

// Result is the aggregate outcome of a checkout. PaymentURI is set only
// when every seller succeeded.
type Result struct {
	Outcomes   []SellerOutcome `json:"outcomes"`
	PaymentURI string          `json:"payment_uri,omitempty"`
}

// Orchestrator runs the two validation phases and the per-seller order
// creation saga: create pending, reduce stock, flip to received, or mark
// failed when the reduction does not commit.
type Orchestrator struct {
	pincodes pincode.Validator
	stock    StockChecker
	orders   Orders
	reducer  Reducer
	payee    UPIPayee
	log      *slog.Logger
	validate *validator.Validate
}

func NewOrchestrator(pincodes pincode.Validator, stockChecker StockChecker, orders Orders, reducer Reducer, payee UPIPayee, log *slog.Logger) *Orchestrator {
	v := validator.New()
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("indianmobile", func(fl validator.FieldLevel) bool {
		phone := fl.Field().String()
		if len(phone) != 10 {
			return false
		}
		if phone[0] < '6' || phone[0] > '9' {
			return false
		}
		for _, c := range phone[1:] {
			if c < '0' || c > '9' {
				return false
			}
		}
		return true
	})

	return &Orchestrator{
		pincodes: pincodes,
		stock:    stockChecker,
		orders:   orders,
		reducer:  reducer,
		payee:    payee,
		log:      log,
		validate: v,
	}
}

type sellerGroup struct {
	sellerID   string
	sellerName string
	entries    []cart.Entry
}

// Checkout validates the cart and destination, then creates one order
// per seller. All validation is all-or-nothing and runs before any
// write. Per-seller order creation and stock reduction run concurrently
// with no ordering between sellers; within one seller the order is
// always created before its stock is reduced.
//
// The cart is cleared only when every seller succeeded. On partial
// failure the successful sellers' orders stand (no rollback) and the
// per-seller outcomes carry the detail.
func (o *Orchestrator) Checkout(ctx context.Context, buyerID string, c *cart.Manager, details CustomerDetails) (*Result, error) {
	logger := o.log.With(
		slog.String("op", "checkout.Checkout"),
		slog.String("buyer_id", buyerID),
		slog.String("pincode", details.Pincode),
	)

	entries := c.Entries()
	if len(entries) == 0 {
		return nil, ErrEmptyCart
	}

	// Phase 1: external validation against the serviceable-pincode
	// reference. Runs before any local check; a failure aborts checkout
	// outright.
	if err := o.pincodes.Validate(ctx, details.Pincode); err != nil {
		logger.Warn("destination pincode rejected", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %s", ErrInvalidPincode, details.Pincode)
	}

	// Phase 2: local synchronous checks.
	if err := o.validateLocal(entries, details); err != nil {
		return nil, err
	}

	groups := groupBySeller(entries)
	result := &Result{Outcomes: make([]SellerOutcome, len(groups))}

	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(i int, g sellerGroup) {
			defer wg.Done()
			result.Outcomes[i] = o.placeSellerOrder(ctx, buyerID, g, details)
		}(i, g)
	}
	wg.Wait()

	var failed bool
	var orderIDs []string
	var total float64
	for i := range result.Outcomes {
		out := &result.Outcomes[i]
		if out.Err != nil {
			out.Error = out.Err.Error()
			failed = true
			continue
		}
		orderIDs = append(orderIDs, out.OrderID)
		total += out.TotalAmount
	}

	if failed {
		logger.Error("checkout incomplete",
			slog.Int("sellers", len(groups)),
			slog.Int("succeeded", len(orderIDs)))
		return result, ErrCheckoutIncomplete
	}

	result.PaymentURI = payment.URI(payment.UPIParams{
		PayeeAddress: o.payee.Address,
		PayeeName:    o.payee.Name,
		Amount:       total,
		Note:         strings.Join(orderIDs, ","),
	})

	if err := c.Clear(ctx); err != nil {
		// Orders are placed; a stale cart is an annoyance, not a failure.
		logger.Error("failed to clear cart after checkout", slog.Any("error", err))
	}

	logger.Info("checkout completed", slog.Int("orders", len(orderIDs)), slog.Float64("total", total))
	return result, nil
}

func (o *Orchestrator) validateLocal(entries []cart.Entry, details CustomerDetails) error {
	if err := o.validate.Struct(details); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}

	for _, e := range entries {
		if !o.stock.IsInStock(e.ProductID, e.Quantity) {
			return fmt.Errorf("product %s: %w", e.ProductID, ErrStockUnavailable)
		}
	}

	// Per-seller coverage: the coverage list captured on the product
	// snapshot must exist and contain the destination. A missing list is
	// a hard failure, not an empty match.
	for _, e := range entries {
		if len(e.Product.DeliveryPincodes) == 0 {
			return fmt.Errorf("seller %s: %w", e.Product.SellerID, ErrNoDeliveryInfo)
		}
		if !e.Product.DeliversTo(details.Pincode) {
			return fmt.Errorf("seller %s: %w", e.Product.SellerID, ErrNotDeliverable)
		}
	}
	return nil
}

// placeSellerOrder runs one seller's saga: pending order, stock
// reduction, then received or failed.
func (o *Orchestrator) placeSellerOrder(ctx context.Context, buyerID string, g sellerGroup, details CustomerDetails) SellerOutcome {
	outcome := SellerOutcome{SellerID: g.sellerID, SellerName: g.sellerName}

	items := make([]order.Item, len(g.entries))
	deltas := make([]stock.Delta, len(g.entries))
	var total float64
	for i, e := range g.entries {
		items[i] = order.Item{
			ProductID:   e.ProductID,
			ProductName: e.Product.Name,
			Price:       e.Product.Price,
			Quantity:    e.Quantity,
			Unit:        e.Product.Unit,
		}
		deltas[i] = stock.Delta{ProductID: e.ProductID, QuantityChange: e.Quantity}
		total += e.Product.Price * float64(e.Quantity)
	}

	orderID := order.NewID(time.Now(), details.Pincode)
	outcome.OrderID = orderID
	outcome.TotalAmount = total

	err := o.orders.Create(ctx, &order.Order{
		ID:          orderID,
		BuyerID:     buyerID,
		SellerID:    g.sellerID,
		SellerName:  g.sellerName,
		Items:       items,
		TotalAmount: total,
		Status:      order.StatusPending,
		Customer: order.Customer{
			Name:    details.Name,
			Phone:   details.Phone,
			Address: details.Address,
			Pincode: details.Pincode,
		},
		QRPayload: orderID,
	})
	if err != nil {
		o.log.Error("order creation failed",
			slog.String("seller_id", g.sellerID), slog.Any("error", err))
		outcome.Err = err
		return outcome
	}

	if err := o.reducer.ApplyDeltas(ctx, orderID, deltas); err != nil {
		o.log.Error("stock reduction failed",
			slog.String("order_id", orderID), slog.Any("error", err))
		if stErr := o.orders.SetStatus(ctx, orderID, order.StatusFailed); stErr != nil {
			o.log.Error("failed to mark order failed",
				slog.String("order_id", orderID), slog.Any("error", stErr))
		}
		outcome.Status = order.StatusFailed
		outcome.Err = fmt.Errorf("order %s: %w", orderID, ErrStockReductionFailed)
		return outcome
	}

	if err := o.orders.SetStatus(ctx, orderID, order.StatusReceived); err != nil {
		o.log.Error("failed to mark order received",
			slog.String("order_id", orderID), slog.Any("error", err))
		outcome.Err = err
		return outcome
	}

	outcome.Status = order.StatusReceived
	return outcome
}

// groupBySeller partitions entries by seller id, preserving first-seen
// seller order and the entry order within each group.
func groupBySeller(entries []cart.Entry) []sellerGroup {
	var groups []sellerGroup
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.Product.SellerID]
		if !ok {
			i = len(groups)
			index[e.Product.SellerID] = i
			groups = append(groups, sellerGroup{
				sellerID:   e.Product.SellerID,
				sellerName: e.Product.SellerName,
			})
		}
		groups[i].entries = append(groups[i].entries, e)
	}
	return groups
}
