// Package order defines the Order aggregate and its lifecycle states.
package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDispatched Status = "dispatched"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Address is a structured shipping address, frozen onto the order.
type Address struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Street     string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"state"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// Equal reports structural equality of two addresses. The fraud scorer uses
// it to decide whether a shipping address has been seen before.
func (a Address) Equal(b Address) bool {
	return a == b
}

// Item is a single order line. Unit price is a frozen copy taken at purchase
// time, never a live join against the catalog.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Order is a customer order moving through the fulfillment pipeline.
// Paid orders are never deleted, only transitioned.
type Order struct {
	ID                string
	Number            string
	UserID            string
	Items             []Item
	TotalAmount       decimal.Decimal
	DiscountAmount    decimal.Decimal
	DiscountCode      string
	ShippingAddress   Address
	Status            Status
	PaymentStatus     PaymentStatus
	PaymentReference  string
	AssignedCourierID string
	FraudRiskScore    *int
	FraudFlags        []string
	CreatedAt         time.Time
}

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewNumber generates a human-readable order number of the form
// ORD-<unix millis>-<9 random alphanumerics>. The order number doubles as
// the payment reference sent to the gateway.
func NewNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), RandomSuffix(9))
}

// RandomSuffix returns n random characters from the order-number alphabet.
func RandomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = numberAlphabet[rand.IntN(len(numberAlphabet))]
	}
	return string(b)
}

// Repository defines the persistence operations checkout needs.
type Repository interface {
	// Create persists the order and its items.
	Create(ctx context.Context, o *Order) error
	// Delete removes a never-paid order and its items. It is only valid as
	// the compensating action of a failed checkout.
	Delete(ctx context.Context, id string) error
	// GetByID loads an order with its items.
	GetByID(ctx context.Context, id string) (*Order, error)
}
