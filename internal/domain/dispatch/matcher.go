// Package dispatch ranks available couriers for a delivery location and
// performs the order/courier assignment transitions.
package dispatch

import (
	"context"
	"math"
	"sort"

	"github.com/go-faster/errors"
)

// Scoring weights: lower score is better. The deliveries-mod-10 term is a
// cheap proxy for recent load without tracking an active-delivery counter.
const (
	distanceWeight = 0.5
	ratingWeight   = 0.3
	loadWeight     = 0.2

	assumedSpeedKmh = 30.0
	earthRadiusKm   = 6371.0

	// DefaultLimit is how many candidates a search returns at most.
	DefaultLimit = 5
)

// ErrCourierUnavailable is returned when an assignment targets a courier
// that is no longer available.
var ErrCourierUnavailable = errors.New("courier not available")

// Location is a geographic point.
type Location struct {
	Lat float64
	Lng float64
}

// Courier is a delivery rider as the matcher sees it.
type Courier struct {
	ID              string
	Name            string
	IsAvailable     bool
	Location        *Location
	Rating          float64
	TotalDeliveries int
}

// Candidate is a ranked courier for a specific delivery location.
type Candidate struct {
	Courier
	DistanceKm float64
	ETAMinutes int
	Score      float64
}

// Repository provides courier reads and the two-entity assignment writes.
type Repository interface {
	// ListAvailable returns couriers with is_available = true.
	ListAvailable(ctx context.Context) ([]Courier, error)
	// Assign atomically sets the order to dispatched with the courier id and
	// flips the courier's availability to false. It fails with
	// ErrCourierUnavailable if the courier was grabbed concurrently, leaving
	// both entities untouched.
	Assign(ctx context.Context, orderID, courierID string) error
	// CompleteDelivery atomically sets the order to delivered and, when a
	// courier is assigned, restores its availability and increments its
	// delivery counter.
	CompleteDelivery(ctx context.Context, orderID string) error
}

// Matcher ranks couriers and applies dispatch transitions.
type Matcher struct {
	couriers Repository
}

// NewMatcher creates a Matcher over the given courier repository.
func NewMatcher(couriers Repository) *Matcher {
	return &Matcher{couriers: couriers}
}

// FindCandidates returns up to limit available couriers within radiusKm of
// the delivery location, sorted ascending by weighted score. Couriers with
// no known location are skipped.
func (m *Matcher) FindCandidates(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	couriers, err := m.couriers.ListAvailable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list available couriers")
	}

	candidates := make([]Candidate, 0, len(couriers))
	for _, c := range couriers {
		if c.Location == nil {
			continue
		}
		dist := haversineKm(lat, lng, c.Location.Lat, c.Location.Lng)
		if dist > radiusKm {
			continue
		}

		score := dist*distanceWeight +
			(5-c.Rating)*ratingWeight +
			float64(c.TotalDeliveries%10)*loadWeight

		candidates = append(candidates, Candidate{
			Courier:    c,
			DistanceKm: round2(dist),
			ETAMinutes: int(math.Ceil(dist / assumedSpeedKmh * 60)),
			Score:      round2(score),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score < candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Assign dispatches the order to the courier. The order must never read as
// dispatched while the courier still reads as available, so both writes
// happen in one repository transaction.
func (m *Matcher) Assign(ctx context.Context, orderID, courierID string) error {
	if err := m.couriers.Assign(ctx, orderID, courierID); err != nil {
		return errors.Wrap(err, "assign courier")
	}
	return nil
}

// CompleteDelivery marks the order delivered and returns its courier to the
// available pool. An order with no assigned courier still transitions.
func (m *Matcher) CompleteDelivery(ctx context.Context, orderID string) error {
	if err := m.couriers.CompleteDelivery(ctx, orderID); err != nil {
		return errors.Wrap(err, "complete delivery")
	}
	return nil
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
