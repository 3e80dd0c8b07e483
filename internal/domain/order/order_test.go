package order

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() *Service {
	return NewService(docstore.NewMemory(), testLogger())
}

func sampleOrder(id string) *Order {
	return &Order{
		ID:         id,
		BuyerID:    "buyer-1",
		SellerID:   "s1",
		SellerName: "Green Farm",
		Items: []Item{
			{ProductID: "p1", ProductName: "Wheat", Price: 100, Quantity: 2, Unit: "kg"},
		},
		TotalAmount: 200,
		Status:      StatusPending,
		Customer:    Customer{Name: "Asha", Phone: "9876543210", Address: "12 Farm Rd", Pincode: "380052"},
		QRPayload:   id,
	}
}

// ============================================
// Status Machine Tests
// ============================================

func TestStatus_ValidTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
	}{
		{StatusPending, StatusReceived},
		{StatusPending, StatusFailed},
		{StatusReceived, StatusPacked},
		{StatusPacked, StatusOutForDelivery},
		{StatusOutForDelivery, StatusDelivered},
		{StatusOutForDelivery, StatusNotDelivered},
		{StatusNotDelivered, StatusOutForDelivery}, // retry
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.NoError(t, CheckTransition(tt.from, tt.to))
		})
	}
}

func TestStatus_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
	}{
		{StatusDelivered, StatusPacked},
		{StatusDelivered, StatusOutForDelivery},
		{StatusFailed, StatusReceived},
		{StatusPacked, StatusReceived},
		{StatusReceived, StatusDelivered},
		{StatusPending, StatusPacked},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.ErrorIs(t, CheckTransition(tt.from, tt.to), ErrInvalidTransition)
		})
	}
}

func TestStatus_UnknownRejected(t *testing.T) {
	assert.ErrorIs(t, CheckTransition(Status("bogus"), StatusPacked), ErrUnknownStatus)
	assert.ErrorIs(t, CheckTransition(StatusPacked, Status("bogus")), ErrUnknownStatus)
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusNotDelivered.Terminal(), "not_delivered can be retried")
	assert.False(t, StatusReceived.Terminal())
}

// ============================================
// Service Tests
// ============================================

func TestService_CreateAndGet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, sampleOrder("AGRI30082026521407ABCD")))

	got, err := svc.Get(ctx, "AGRI30082026521407ABCD")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 200.0, got.TotalAmount)
	assert.Equal(t, "Green Farm", got.SellerName)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestService_Get_NotFound(t *testing.T) {
	svc := newTestService()

	_, err := svc.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestService_SetStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, sampleOrder("o1")))

	require.NoError(t, svc.SetStatus(ctx, "o1", StatusReceived))
	require.NoError(t, svc.SetStatus(ctx, "o1", StatusPacked))

	got, err := svc.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusPacked, got.Status)
}

func TestService_SetStatus_RejectsIllegalMove(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, sampleOrder("o1")))

	err := svc.SetStatus(ctx, "o1", StatusDelivered)

	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, getErr := svc.Get(ctx, "o1")
	require.NoError(t, getErr)
	assert.Equal(t, StatusPending, got.Status, "rejected transition leaves the order untouched")
}

func TestService_ListForSeller(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	a := sampleOrder("o1")
	b := sampleOrder("o2")
	b.SellerID = "s2"
	require.NoError(t, svc.Create(ctx, a))
	require.NoError(t, svc.Create(ctx, b))

	orders, err := svc.ListForSeller(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
}
