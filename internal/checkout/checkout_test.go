package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
	"github.com/aaravsagar/agriatoo-core/internal/domain/cart"
	"github.com/aaravsagar/agriatoo-core/internal/domain/order"
	"github.com/aaravsagar/agriatoo-core/internal/domain/product"
	"github.com/aaravsagar/agriatoo-core/internal/pincode"
	"github.com/aaravsagar/agriatoo-core/internal/stock"
)

type fakeStock struct {
	stocks map[string]int
}

func (f *fakeStock) IsInStock(productID string, requestedQty int) bool {
	s, ok := f.stocks[productID]
	if !ok {
		return true
	}
	return s >= requestedQty
}

func (f *fakeStock) GetStock(productID string) (int, bool) {
	s, ok := f.stocks[productID]
	return s, ok
}

type fakeOrders struct {
	mu       sync.Mutex
	created  []order.Order
	statuses map[string]order.Status
	failFor  string
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{statuses: make(map[string]order.Status)}
}

func (f *fakeOrders) Create(ctx context.Context, o *order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && o.SellerID == f.failFor {
		return errors.New("store unavailable")
	}
	f.created = append(f.created, *o)
	f.statuses[o.ID] = o.Status
	return nil
}

func (f *fakeOrders) SetStatus(ctx context.Context, orderID string, target order.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderID] = target
	return nil
}

func (f *fakeOrders) bySeller(sellerID string) *order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.created {
		if f.created[i].SellerID == sellerID {
			return &f.created[i]
		}
	}
	return nil
}

type fakeReducer struct {
	mu          sync.Mutex
	applied     map[string][]stock.Delta
	failProduct string
}

func newFakeReducer() *fakeReducer {
	return &fakeReducer{applied: make(map[string][]stock.Delta)}
}

func (f *fakeReducer) ApplyDeltas(ctx context.Context, orderID string, deltas []stock.Delta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range deltas {
		if d.ProductID == f.failProduct {
			return errors.New("product not found")
		}
	}
	f.applied[orderID] = deltas
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tomatoes() product.Snapshot {
	return product.Snapshot{
		ID:               "p-tomato",
		Name:             "Tomatoes",
		Price:            50,
		Unit:             "kg",
		Stock:            20,
		SellerID:         "seller-a",
		SellerName:       "Green Farms",
		DeliveryPincodes: []string{"380052", "380015"},
	}
}

func onions() product.Snapshot {
	return product.Snapshot{
		ID:               "p-onion",
		Name:             "Onions",
		Price:            30,
		Unit:             "kg",
		Stock:            15,
		SellerID:         "seller-a",
		SellerName:       "Green Farms",
		DeliveryPincodes: []string{"380052", "380015"},
	}
}

func mangoes() product.Snapshot {
	return product.Snapshot{
		ID:               "p-mango",
		Name:             "Mangoes",
		Price:            25,
		Unit:             "kg",
		Stock:            10,
		SellerID:         "seller-b",
		SellerName:       "Orchard Co",
		DeliveryPincodes: []string{"380052"},
	}
}

func validDetails() CustomerDetails {
	return CustomerDetails{
		Name:    "Asha Patel",
		Phone:   "9876543210",
		Address: "12 Ring Road, Ahmedabad",
		Pincode: "380052",
	}
}

func loadedCart(t *testing.T, stocks *fakeStock, adds ...func(ctx context.Context, m *cart.Manager) error) *cart.Manager {
	t.Helper()
	ctx := context.Background()
	m := cart.NewManager(cart.NewMemoryStore(), stocks, nil, testLogger())
	require.NoError(t, m.Load(ctx))
	for _, add := range adds {
		require.NoError(t, add(ctx, m))
	}
	return m
}

func addItem(p product.Snapshot, qty int) func(ctx context.Context, m *cart.Manager) error {
	return func(ctx context.Context, m *cart.Manager) error {
		return m.AddToCart(ctx, p, qty)
	}
}

func newOrchestrator(orders *fakeOrders, reducer *fakeReducer, stocks *fakeStock) *Orchestrator {
	return NewOrchestrator(
		pincode.NewStatic([]string{"380052", "380015"}),
		stocks,
		orders,
		reducer,
		UPIPayee{Address: "agriatoo@upi", Name: "Agriatoo"},
		testLogger(),
	)
}

func TestCheckout_SplitsCartPerSeller(t *testing.T) {
	ctx := context.Background()
	stocks := &fakeStock{stocks: map[string]int{"p-tomato": 20, "p-onion": 15, "p-mango": 10}}
	orders := newFakeOrders()
	reducer := newFakeReducer()
	c := loadedCart(t, stocks,
		addItem(tomatoes(), 2), // 100
		addItem(onions(), 1),   // 30
		addItem(mangoes(), 2),  // 50
	)

	o := newOrchestrator(orders, reducer, stocks)
	result, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	require.Len(t, orders.created, 2)

	a := orders.bySeller("seller-a")
	require.NotNil(t, a)
	assert.Equal(t, "buyer-1", a.BuyerID)
	assert.Equal(t, "Green Farms", a.SellerName)
	assert.Len(t, a.Items, 2)
	assert.Equal(t, 130.0, a.TotalAmount)
	assert.Equal(t, a.ID, a.QRPayload)
	assert.True(t, order.ValidID(a.ID))

	b := orders.bySeller("seller-b")
	require.NotNil(t, b)
	assert.Len(t, b.Items, 1)
	assert.Equal(t, 50.0, b.TotalAmount)

	// Both orders travelled pending -> received.
	assert.Equal(t, order.StatusReceived, orders.statuses[a.ID])
	assert.Equal(t, order.StatusReceived, orders.statuses[b.ID])

	// Each seller's stock reduction ran against its own order id only.
	assert.Len(t, reducer.applied[a.ID], 2)
	assert.Len(t, reducer.applied[b.ID], 1)

	// Cart cleared only after full success.
	assert.Empty(t, c.Entries())
	assert.Equal(t, 0, c.TotalItems())
}

func TestCheckout_TwoSellerTotals(t *testing.T) {
	ctx := context.Background()
	a := product.Snapshot{
		ID: "p-a", Name: "A", Price: 100, Unit: "kg", Stock: 10,
		SellerID: "s1", SellerName: "Seller One",
		DeliveryPincodes: []string{"380052"},
	}
	b := product.Snapshot{
		ID: "p-b", Name: "B", Price: 50, Unit: "kg", Stock: 10,
		SellerID: "s2", SellerName: "Seller Two",
		DeliveryPincodes: []string{"380052"},
	}
	stocks := &fakeStock{stocks: map[string]int{"p-a": 10, "p-b": 10}}
	orders := newFakeOrders()
	c := loadedCart(t, stocks, addItem(a, 2), addItem(b, 1))

	o := newOrchestrator(orders, newFakeReducer(), stocks)
	result, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	require.NotNil(t, orders.bySeller("s1"))
	require.NotNil(t, orders.bySeller("s2"))
	assert.Equal(t, 200.0, orders.bySeller("s1").TotalAmount)
	assert.Equal(t, 50.0, orders.bySeller("s2").TotalAmount)
	assert.Empty(t, c.Entries())
}

func TestCheckout_PaymentURICoversGrandTotal(t *testing.T) {
	ctx := context.Background()
	stocks := &fakeStock{stocks: map[string]int{"p-tomato": 20, "p-mango": 10}}
	orders := newFakeOrders()
	c := loadedCart(t, stocks,
		addItem(tomatoes(), 2), // 100
		addItem(mangoes(), 2),  // 50
	)

	o := newOrchestrator(orders, newFakeReducer(), stocks)
	result, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.PaymentURI, "upi://pay?"))

	u, err := url.Parse(result.PaymentURI)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "agriatoo@upi", q.Get("pa"))
	assert.Equal(t, "150.00", q.Get("am"))
	assert.Equal(t, "INR", q.Get("cu"))

	require.Len(t, orders.created, 2)
	ids := []string{orders.created[0].ID, orders.created[1].ID}
	assert.ElementsMatch(t, ids, strings.Split(q.Get("tn"), ","), "note lists every order id")
}

func TestCheckout_EmptyCart(t *testing.T) {
	ctx := context.Background()
	stocks := &fakeStock{stocks: map[string]int{}}
	c := loadedCart(t, stocks)

	o := newOrchestrator(newFakeOrders(), newFakeReducer(), stocks)
	_, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_UnserviceablePincodeAbortsBeforeLocalChecks(t *testing.T) {
	ctx := context.Background()
	// Stock would fail the local phase too; the pincode failure must be
	// the one reported.
	stocks := &fakeStock{stocks: map[string]int{"p-tomato": 0}}
	orders := newFakeOrders()
	c := cart.NewManager(cart.NewMemoryStore(), &fakeStock{stocks: map[string]int{"p-tomato": 20}}, nil, testLogger())
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.AddToCart(ctx, tomatoes(), 1))

	o := newOrchestrator(orders, newFakeReducer(), stocks)
	details := validDetails()
	details.Pincode = "999999"
	_, err := o.Checkout(ctx, "buyer-1", c, details)

	assert.ErrorIs(t, err, ErrInvalidPincode)
	assert.Empty(t, orders.created)
	assert.NotEmpty(t, c.Entries())
}

func TestCheckout_RejectsInvalidCustomerDetails(t *testing.T) {
	ctx := context.Background()
	stocks := &fakeStock{stocks: map[string]int{"p-tomato": 20}}

	cases := []struct {
		name   string
		mutate func(d *CustomerDetails)
	}{
		{"missing name", func(d *CustomerDetails) { d.Name = "" }},
		{"missing address", func(d *CustomerDetails) { d.Address = "" }},
		{"short phone", func(d *CustomerDetails) { d.Phone = "98765" }},
		{"phone wrong leading digit", func(d *CustomerDetails) { d.Phone = "5876543210" }},
		{"phone with letters", func(d *CustomerDetails) { d.Phone = "987654321x" }},
		{"short pincode", func(d *CustomerDetails) { d.Pincode = "380" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := newFakeOrders()
			c := loadedCart(t, stocks, addItem(tomatoes(), 1))
			o := NewOrchestrator(
				pincode.NewStatic([]string{"380052", "380"}),
				stocks, orders, newFakeReducer(),
				UPIPayee{Address: "agriatoo@upi", Name: "Agriatoo"},
				testLogger(),
			)

			// The static list includes "380" so the short-pincode case is
			// rejected by the details validation, not the pincode phase.
			details := validDetails()
			tc.mutate(&details)
			_, err := o.Checkout(ctx, "buyer-1", c, details)

			assert.ErrorIs(t, err, ErrInvalidDetails)
			assert.Empty(t, orders.created)
		})
	}
}

func TestCheckout_StockGoneBetweenCartAndCheckout(t *testing.T) {
	ctx := context.Background()
	cartStocks := &fakeStock{stocks: map[string]int{"p-tomato": 20}}
	c := loadedCart(t, cartStocks, addItem(tomatoes(), 3))

	// By checkout time the live cache says only 2 left.
	checkoutStocks := &fakeStock{stocks: map[string]int{"p-tomato": 2}}
	orders := newFakeOrders()
	o := newOrchestrator(orders, newFakeReducer(), checkoutStocks)
	_, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	assert.ErrorIs(t, err, ErrStockUnavailable)
	assert.Empty(t, orders.created)
	assert.NotEmpty(t, c.Entries())
}

func TestCheckout_SellerWithoutCoverageList(t *testing.T) {
	ctx := context.Background()
	stocks := &fakeStock{stocks: map[string]int{"p-bare": 5}}
	bare := product.Snapshot{
		ID: "p-bare", Name: "Bare", Price: 10, Unit: "kg", Stock: 5,
		SellerID: "seller-x", SellerName: "No Coverage",
	}
	orders := newFakeOrders()
	c := loadedCart(t, stocks, addItem(bare, 1))

	o := newOrchestrator(orders, newFakeReducer(), stocks)
	_, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	assert.ErrorIs(t, err, ErrNoDeliveryInfo)
	assert.Empty(t, orders.created)
}

func TestCheckout_SellerDoesNotDeliverToDestination(t *testing.T) {
	ctx := context.Background()
	stocks := &fakeStock{stocks: map[string]int{"p-tomato": 20, "p-mango": 10}}
	orders := newFakeOrders()
	c := loadedCart(t, stocks,
		addItem(tomatoes(), 1),
		addItem(mangoes(), 1), // seller-b only covers 380052
	)

	o := newOrchestrator(orders, newFakeReducer(), stocks)
	details := validDetails()
	details.Pincode = "380015"
	_, err := o.Checkout(ctx, "buyer-1", c, details)

	// One non-covering seller fails the entire checkout before any write.
	assert.ErrorIs(t, err, ErrNotDeliverable)
	assert.Empty(t, orders.created)
	assert.NotEmpty(t, c.Entries())
}

func TestCheckout_ReductionFailureMarksOrderFailed(t *testing.T) {
	ctx := context.Background()
	stocks := &fakeStock{stocks: map[string]int{"p-tomato": 20, "p-mango": 10}}
	orders := newFakeOrders()
	reducer := newFakeReducer()
	reducer.failProduct = "p-mango"
	c := loadedCart(t, stocks,
		addItem(tomatoes(), 2),
		addItem(mangoes(), 1),
	)

	o := newOrchestrator(orders, reducer, stocks)
	result, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	require.ErrorIs(t, err, ErrCheckoutIncomplete)
	require.NotNil(t, result)
	require.Len(t, result.Outcomes, 2)

	var good, bad *SellerOutcome
	for i := range result.Outcomes {
		if result.Outcomes[i].SellerID == "seller-a" {
			good = &result.Outcomes[i]
		} else {
			bad = &result.Outcomes[i]
		}
	}
	require.NotNil(t, good)
	require.NotNil(t, bad)

	// The healthy seller's order stands; no cross-seller rollback.
	assert.NoError(t, good.Err)
	assert.Equal(t, order.StatusReceived, good.Status)
	assert.Equal(t, order.StatusReceived, orders.statuses[good.OrderID])

	assert.ErrorIs(t, bad.Err, ErrStockReductionFailed)
	assert.Equal(t, order.StatusFailed, bad.Status)
	assert.Equal(t, order.StatusFailed, orders.statuses[bad.OrderID])

	// Cart is preserved so the buyer can retry the failed part.
	assert.NotEmpty(t, c.Entries())
	assert.Empty(t, result.PaymentURI)
}

func TestCheckout_OrderCreationFailureReportedPerSeller(t *testing.T) {
	ctx := context.Background()
	stocks := &fakeStock{stocks: map[string]int{"p-tomato": 20, "p-mango": 10}}
	orders := newFakeOrders()
	orders.failFor = "seller-b"
	c := loadedCart(t, stocks,
		addItem(tomatoes(), 1),
		addItem(mangoes(), 1),
	)

	o := newOrchestrator(orders, newFakeReducer(), stocks)
	result, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	require.ErrorIs(t, err, ErrCheckoutIncomplete)
	require.Len(t, orders.created, 1)
	assert.Equal(t, "seller-a", orders.created[0].SellerID)

	var failed int
	for _, out := range result.Outcomes {
		if out.Err != nil {
			failed++
			assert.Equal(t, "seller-b", out.SellerID)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestGroupBySeller_PreservesFirstSeenOrder(t *testing.T) {
	entries := []cart.Entry{
		{ProductID: "p-mango", Product: mangoes(), Quantity: 1},
		{ProductID: "p-tomato", Product: tomatoes(), Quantity: 1},
		{ProductID: "p-onion", Product: onions(), Quantity: 1},
	}

	groups := groupBySeller(entries)

	require.Len(t, groups, 2)
	assert.Equal(t, "seller-b", groups[0].sellerID)
	assert.Equal(t, "seller-a", groups[1].sellerID)
	require.Len(t, groups[1].entries, 2)
	assert.Equal(t, "p-tomato", groups[1].entries[0].ProductID)
	assert.Equal(t, "p-onion", groups[1].entries[1].ProductID)
}

// Wires the real document store, stock source and cache around the cart
// so the checkout stock check reads the authoritative value, not the
// snapshot taken when the item was added.
func TestCheckout_RejectsStockDroppedAfterAdd(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	source := stock.NewStoreSource(store, product.Collection)
	cache := stock.NewCache(source, testLogger(), true)

	p := tomatoes()
	require.NoError(t, store.Add(ctx, product.Collection, p.ID, map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"seller_id": p.SellerID,
		"stock":     5,
	}))

	c := cart.NewManager(cart.NewMemoryStore(), cache, cache, testLogger())
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.AddToCart(ctx, p, 2))

	// The add put the product under watch, so this write reaches the
	// cache before checkout runs.
	require.NoError(t, store.Update(ctx, product.Collection, p.ID, map[string]any{"stock": 0}))

	orders := newFakeOrders()
	o := NewOrchestrator(
		pincode.NewStatic([]string{"380052", "380015"}),
		cache,
		orders,
		newFakeReducer(),
		UPIPayee{Address: "agriatoo@upi", Name: "Agriatoo"},
		testLogger(),
	)

	_, err := o.Checkout(ctx, "buyer-1", c, validDetails())

	assert.ErrorIs(t, err, ErrStockUnavailable)
	assert.Empty(t, orders.created, "no order placed against depleted stock")
	assert.Len(t, c.Entries(), 1, "cart preserved on failed checkout")
}
