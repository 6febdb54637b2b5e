// Package fraud scores finalized orders with additive, rule-based risk
// heuristics. Scoring is advisory: it persists a score and flags onto the
// order for review but never changes order status itself.
package fraud

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/velmart/storefront/internal/domain/order"
)

// Rule weights and flags.
const (
	velocityScore  = 25
	discountScore  = 20
	highValueScore = 30
	addressScore   = 15
	bulkScore      = 10

	FlagHighVelocity       = "high_order_velocity"
	FlagExcessiveDiscount  = "excessive_discount"
	FlagHighValueFirst     = "high_value_first_order"
	FlagNewShippingAddress = "new_shipping_address"
	FlagBulkOrder          = "bulk_order"
)

// Tunables shared with the reference rules.
const (
	velocityWindow    = time.Hour
	velocityThreshold = 3  // more than this many orders in the window
	bulkQtyThreshold  = 10 // total line quantity above this
	addressLookback   = 5  // completed orders compared for address novelty
)

// HighValueThreshold is the order total above which a first-time buyer
// triggers the high-value rule.
var HighValueThreshold = decimal.NewFromInt(100000)

// RiskLevel buckets a numeric score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Recommendation is the suggested enforcement action. Enforcement itself is
// a separate, policy-driven step outside this package.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReview  Recommendation = "manual_review"
	RecommendBlock   Recommendation = "block"
)

// Assessment is the outcome of scoring one order.
type Assessment struct {
	OrderID        string
	Score          int
	Level          RiskLevel
	Flags          []string
	Recommendation Recommendation
}

// HistoryReader supplies the point-in-time order data the rules evaluate.
type HistoryReader interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
	// CountOrdersSince counts all of the user's orders created at or after
	// since, including the order being scored.
	CountOrdersSince(ctx context.Context, userID string, since time.Time) (int, error)
	// CountCompletedOrders counts the user's orders with completed payment.
	CountCompletedOrders(ctx context.Context, userID string) (int, error)
	// RecentCompletedAddresses returns shipping addresses of the user's most
	// recent completed orders, newest first, at most limit entries.
	RecentCompletedAddresses(ctx context.Context, userID string, limit int) ([]order.Address, error)
}

// AssessmentWriter persists the computed score back onto the order.
type AssessmentWriter interface {
	UpdateRiskAssessment(ctx context.Context, orderID string, score int, flags []string) error
}

// Scorer evaluates the rule set against one order.
type Scorer struct {
	history HistoryReader
	writer  AssessmentWriter
	now     func() time.Time
}

// NewScorer creates a Scorer over the given order history.
func NewScorer(history HistoryReader, writer AssessmentWriter) *Scorer {
	return &Scorer{history: history, writer: writer, now: time.Now}
}

// Score evaluates all rules for the order and persists the result. Scoring
// is idempotent: a re-run overwrites the stored score, it never accumulates.
func (s *Scorer) Score(ctx context.Context, orderID string) (*Assessment, error) {
	o, err := s.history.GetByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}

	score := 0
	var flags []string

	// Velocity: many orders by this user in the trailing hour.
	recent, err := s.history.CountOrdersSince(ctx, o.UserID, s.now().Add(-velocityWindow))
	if err != nil {
		return nil, errors.Wrap(err, "count recent orders")
	}
	if recent > velocityThreshold {
		score += velocityScore
		flags = append(flags, FlagHighVelocity)
	}

	// Discount abuse: discount covers more than half the total.
	half := o.TotalAmount.Div(decimal.NewFromInt(2))
	if o.DiscountAmount.GreaterThan(half) {
		score += discountScore
		flags = append(flags, FlagExcessiveDiscount)
	}

	completed, err := s.history.CountCompletedOrders(ctx, o.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "count completed orders")
	}

	// Cold start: a first-time buyer placing a high-value order.
	if completed == 0 && o.TotalAmount.GreaterThan(HighValueThreshold) {
		score += highValueScore
		flags = append(flags, FlagHighValueFirst)
	}

	// Address novelty: an established buyer shipping somewhere never seen in
	// their recent completed orders.
	if completed > 0 {
		prev, err := s.history.RecentCompletedAddresses(ctx, o.UserID, addressLookback)
		if err != nil {
			return nil, errors.Wrap(err, "load previous addresses")
		}
		known := false
		for _, addr := range prev {
			if addr.Equal(o.ShippingAddress) {
				known = true
				break
			}
		}
		if !known {
			score += addressScore
			flags = append(flags, FlagNewShippingAddress)
		}
	}

	// Bulk quantity across all lines.
	totalQty := 0
	for _, item := range o.Items {
		totalQty += item.Quantity
	}
	if totalQty > bulkQtyThreshold {
		score += bulkScore
		flags = append(flags, FlagBulkOrder)
	}

	if err := s.writer.UpdateRiskAssessment(ctx, o.ID, score, flags); err != nil {
		return nil, errors.Wrap(err, "persist risk assessment")
	}

	level, rec := classify(score)
	return &Assessment{
		OrderID:        o.ID,
		Score:          score,
		Level:          level,
		Flags:          flags,
		Recommendation: rec,
	}, nil
}

func classify(score int) (RiskLevel, Recommendation) {
	switch {
	case score >= 50:
		return RiskHigh, RecommendBlock
	case score >= 30:
		return RiskMedium, RecommendReview
	default:
		return RiskLow, RecommendApprove
	}
}
