package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmart/storefront/internal/domain/order"
)

// --- Mock implementations ---

type mockHistory struct {
	order       *order.Order
	recentCount int
	completed   int
	addresses   []order.Address
}

func (m *mockHistory) GetByID(_ context.Context, _ string) (*order.Order, error) {
	return m.order, nil
}

func (m *mockHistory) CountOrdersSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return m.recentCount, nil
}

func (m *mockHistory) CountCompletedOrders(_ context.Context, _ string) (int, error) {
	return m.completed, nil
}

func (m *mockHistory) RecentCompletedAddresses(_ context.Context, _ string, _ int) ([]order.Address, error) {
	return m.addresses, nil
}

type mockWriter struct {
	orderID string
	score   int
	flags   []string
}

func (m *mockWriter) UpdateRiskAssessment(_ context.Context, orderID string, score int, flags []string) error {
	m.orderID = orderID
	m.score = score
	m.flags = flags
	return nil
}

// --- Helpers ---

func lagosAddress() order.Address {
	return order.Address{
		FullName: "Test Buyer",
		Street:   "1 Marina Rd",
		City:     "Lagos",
		Region:   "Lagos",
		Country:  "NG",
	}
}

func baseOrder() *order.Order {
	return &order.Order{
		ID:              "order-1",
		Number:          "ORD-1700000000000-ABCDEF123",
		UserID:          "user-1",
		TotalAmount:     decimal.RequireFromString("150.00"),
		DiscountAmount:  decimal.Zero,
		ShippingAddress: lagosAddress(),
		Items:           []order.Item{{ProductID: "p1", Quantity: 1}},
	}
}

// cleanHistory is a buyer profile that triggers no rules.
func cleanHistory(o *order.Order) *mockHistory {
	return &mockHistory{
		order:       o,
		recentCount: 1,
		completed:   3,
		addresses:   []order.Address{o.ShippingAddress},
	}
}

// --- Tests ---

func TestScore_CleanOrder(t *testing.T) {
	o := baseOrder()
	w := &mockWriter{}
	scorer := NewScorer(cleanHistory(o), w)

	a, err := scorer.Score(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, a.Score)
	assert.Empty(t, a.Flags)
	assert.Equal(t, RiskLow, a.Level)
	assert.Equal(t, RecommendApprove, a.Recommendation)

	assert.Equal(t, "order-1", w.orderID)
	assert.Equal(t, 0, w.score)
}

func TestScore_HighVelocity(t *testing.T) {
	o := baseOrder()
	h := cleanHistory(o)
	h.recentCount = 4 // above threshold, counting the current order

	a, err := NewScorer(h, &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, 25, a.Score)
	assert.Contains(t, a.Flags, FlagHighVelocity)
}

func TestScore_VelocityAtThresholdIsClean(t *testing.T) {
	o := baseOrder()
	h := cleanHistory(o)
	h.recentCount = 3

	a, err := NewScorer(h, &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Score)
}

func TestScore_ExcessiveDiscount(t *testing.T) {
	o := baseOrder()
	o.TotalAmount = decimal.RequireFromString("40.00")
	o.DiscountAmount = decimal.RequireFromString("30.00")

	a, err := NewScorer(cleanHistory(o), &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, 20, a.Score)
	assert.Contains(t, a.Flags, FlagExcessiveDiscount)
}

func TestScore_DiscountExactlyHalfIsClean(t *testing.T) {
	o := baseOrder()
	o.TotalAmount = decimal.RequireFromString("40.00")
	o.DiscountAmount = decimal.RequireFromString("20.00")

	a, err := NewScorer(cleanHistory(o), &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Score)
}

func TestScore_HighValueFirstOrder(t *testing.T) {
	o := baseOrder()
	o.TotalAmount = decimal.RequireFromString("150000.00")
	h := &mockHistory{order: o, recentCount: 1, completed: 0}

	a, err := NewScorer(h, &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, 30, a.Score)
	assert.Contains(t, a.Flags, FlagHighValueFirst)
	assert.Equal(t, RiskMedium, a.Level)
	assert.Equal(t, RecommendReview, a.Recommendation)
}

func TestScore_HighValueEstablishedBuyerIsClean(t *testing.T) {
	o := baseOrder()
	o.TotalAmount = decimal.RequireFromString("150000.00")

	a, err := NewScorer(cleanHistory(o), &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)
	assert.NotContains(t, a.Flags, FlagHighValueFirst)
}

func TestScore_NewShippingAddress(t *testing.T) {
	o := baseOrder()
	h := cleanHistory(o)
	other := lagosAddress()
	other.City = "Abuja"
	h.addresses = []order.Address{other}

	a, err := NewScorer(h, &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, 15, a.Score)
	assert.Contains(t, a.Flags, FlagNewShippingAddress)
}

func TestScore_FirstOrderSkipsAddressRule(t *testing.T) {
	o := baseOrder()
	h := &mockHistory{order: o, recentCount: 1, completed: 0}

	a, err := NewScorer(h, &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)
	assert.NotContains(t, a.Flags, FlagNewShippingAddress)
}

func TestScore_BulkOrder(t *testing.T) {
	o := baseOrder()
	o.Items = []order.Item{
		{ProductID: "p1", Quantity: 6},
		{ProductID: "p2", Quantity: 5},
	}

	a, err := NewScorer(cleanHistory(o), &mockWriter{}).Score(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, 10, a.Score)
	assert.Contains(t, a.Flags, FlagBulkOrder)
}

func TestScore_StackedRulesBlock(t *testing.T) {
	o := baseOrder()
	o.TotalAmount = decimal.RequireFromString("150000.00")
	o.DiscountAmount = decimal.RequireFromString("100000.00")
	o.Items = []order.Item{{ProductID: "p1", Quantity: 20}}
	h := &mockHistory{order: o, recentCount: 5, completed: 0}
	w := &mockWriter{}

	a, err := NewScorer(h, w).Score(context.Background(), o.ID)
	require.NoError(t, err)

	// velocity 25 + discount 20 + high value 30 + bulk 10.
	assert.Equal(t, 85, a.Score)
	assert.Equal(t, RiskHigh, a.Level)
	assert.Equal(t, RecommendBlock, a.Recommendation)
	assert.ElementsMatch(t, a.Flags, w.flags)
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		score int
		level RiskLevel
		rec   Recommendation
	}{
		{0, RiskLow, RecommendApprove},
		{29, RiskLow, RecommendApprove},
		{30, RiskMedium, RecommendReview},
		{49, RiskMedium, RecommendReview},
		{50, RiskHigh, RecommendBlock},
		{85, RiskHigh, RecommendBlock},
	}

	for _, tt := range tests {
		level, rec := classify(tt.score)
		assert.Equal(t, tt.level, level, "score %d", tt.score)
		assert.Equal(t, tt.rec, rec, "score %d", tt.score)
	}
}
