package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func activeCode(typ Type, value string) *Code {
	now := time.Now()
	return &Code{
		Code:       "TEST",
		Type:       typ,
		Value:      decimal.RequireFromString(value),
		IsActive:   true,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
	}
}

func TestEligibleFor(t *testing.T) {
	now := time.Now()
	minHundred := decimal.NewFromInt(100)

	tests := []struct {
		name   string
		modify func(*Code)
		total  string
		want   bool
	}{
		{name: "active in window", modify: func(*Code) {}, total: "10", want: true},
		{
			name:   "inactive",
			modify: func(c *Code) { c.IsActive = false },
			total:  "10",
		},
		{
			name:   "not yet valid",
			modify: func(c *Code) { c.ValidFrom = now.Add(time.Hour) },
			total:  "10",
		},
		{
			name:   "expired",
			modify: func(c *Code) { c.ValidUntil = now.Add(-time.Minute) },
			total:  "10",
		},
		{
			name:   "uses exhausted",
			modify: func(c *Code) { c.MaxUses = 5; c.UsedCount = 5 },
			total:  "10",
		},
		{
			name:   "uses remaining",
			modify: func(c *Code) { c.MaxUses = 5; c.UsedCount = 4 },
			total:  "10",
			want:   true,
		},
		{
			name:   "unlimited uses",
			modify: func(c *Code) { c.UsedCount = 1000000 },
			total:  "10",
			want:   true,
		},
		{
			name:   "below minimum purchase",
			modify: func(c *Code) { c.MinPurchaseAmount = &minHundred },
			total:  "99.99",
		},
		{
			name:   "at minimum purchase",
			modify: func(c *Code) { c.MinPurchaseAmount = &minHundred },
			total:  "100.00",
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCode(TypePercentage, "10")
			tt.modify(c)
			got := c.EligibleFor(decimal.RequireFromString(tt.total), now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		value string
		total string
		want  string
	}{
		{name: "percentage", typ: TypePercentage, value: "10", total: "200.00", want: "20.00"},
		{name: "percentage rounds to cents", typ: TypePercentage, value: "15", total: "33.33", want: "5.00"},
		{name: "fixed", typ: TypeFixed, value: "5", total: "50.00", want: "5.00"},
		{name: "fixed capped at total", typ: TypeFixed, value: "80", total: "50.00", want: "50.00"},
		{name: "full percentage", typ: TypePercentage, value: "100", total: "50.00", want: "50.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCode(tt.typ, tt.value)
			got := c.Amount(decimal.RequireFromString(tt.total))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
		})
	}
}
