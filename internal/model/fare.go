// Package model defines the domain types shared across the scanner:
// fare observations, route baselines, and detected deals.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Route is an ordered origin/destination pair of IATA airport codes.
type Route struct {
	Origin      string
	Destination string
}

// String renders the route as "CDG-NRT".
func (r Route) String() string {
	return r.Origin + "-" + r.Destination
}

// Validate checks both codes are 3-letter uppercase IATA codes.
func (r Route) Validate() error {
	if !validIATA(r.Origin) {
		return &ValidationError{Field: "origin", Reason: fmt.Sprintf("%q is not a 3-letter IATA code", r.Origin)}
	}
	if !validIATA(r.Destination) {
		return &ValidationError{Field: "destination", Reason: fmt.Sprintf("%q is not a 3-letter IATA code", r.Destination)}
	}
	return nil
}

func validIATA(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// FareObservation is a single round-trip fare capture. Observations are
// immutable once recorded; the history table only ever appends.
type FareObservation struct {
	Origin       string
	Destination  string
	OutboundDate time.Time
	ReturnDate   time.Time
	Price        decimal.Decimal
	Currency     string
	Carrier      string
	ObservedAt   time.Time
}

// Route returns the observation's route.
func (o FareObservation) Route() Route {
	return Route{Origin: o.Origin, Destination: o.Destination}
}

// StayDays is the trip length in whole days.
func (o FareObservation) StayDays() int {
	return int(o.ReturnDate.Sub(o.OutboundDate).Hours() / 24)
}

// Validate re-checks the invariants the upstream source should already
// enforce: valid route, non-negative price, return strictly after outbound,
// and a stay length within the configured bounds.
func (o FareObservation) Validate(minStayDays, maxStayDays int) error {
	if err := o.Route().Validate(); err != nil {
		return err
	}
	if o.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("negative price %s", o.Price)}
	}
	if !o.ReturnDate.After(o.OutboundDate) {
		return &ValidationError{Field: "return_date", Reason: "return date must be after outbound date"}
	}
	if stay := o.StayDays(); stay < minStayDays || stay > maxStayDays {
		return &ValidationError{
			Field:  "stay_days",
			Reason: fmt.Sprintf("stay of %d days outside [%d, %d]", stay, minStayDays, maxStayDays),
		}
	}
	return nil
}

// BaselineStat is the derived "usual price" for one (route, month, year)
// bucket: the median of every recorded price plus the bucket size.
type BaselineStat struct {
	Median       decimal.Decimal
	Observations int
}

// Deal is a fare observation that cleared both the absolute price cap and
// the relative discount threshold against its bucket baseline.
type Deal struct {
	Fingerprint   string
	Origin        string
	Destination   string
	OutboundDate  time.Time
	ReturnDate    time.Time
	ObservedPrice decimal.Decimal
	BaselinePrice decimal.Decimal
	DiscountRatio decimal.Decimal
	Currency      string
	Carrier       string
	Observations  int
}

// Route returns the deal's route.
func (d Deal) Route() Route {
	return Route{Origin: d.Origin, Destination: d.Destination}
}

// ValidationError reports a malformed observation. The scan cycle logs it
// and moves on; it never aborts a route.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid observation: %s: %s", e.Field, e.Reason)
}
