// Package detector classifies fare observations against a route baseline.
// Evaluate is a pure function: no I/O, no clock, no randomness, so the
// whole qualification pipeline is testable without a database.
package detector

import (
	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/model"
)

// Config carries the deal qualification thresholds.
type Config struct {
	// MaxPrice is an absolute cap: a fare must be cheap in absolute terms,
	// not merely cheap relative to an inflated baseline.
	MaxPrice decimal.Decimal
	// DiscountThreshold is the minimum discount ratio in [0, 1).
	DiscountThreshold decimal.Decimal
}

// Outcome is the detector's verdict for one observation.
type Outcome int

const (
	// NoBaseline means the bucket has too little history to judge against.
	NoBaseline Outcome = iota
	// PriceAboveCap means the fare exceeds the absolute price cap.
	PriceAboveCap
	// InsufficientDiscount means the discount against the baseline is too
	// small, or the baseline median was zero or negative.
	InsufficientDiscount
	// DealFound means the observation qualifies as a deal.
	DealFound
)

func (o Outcome) String() string {
	switch o {
	case NoBaseline:
		return "no_baseline"
	case PriceAboveCap:
		return "price_above_cap"
	case InsufficientDiscount:
		return "insufficient_discount"
	case DealFound:
		return "deal"
	default:
		return "unknown"
	}
}

// Result bundles the outcome with the deal when one was found.
type Result struct {
	Outcome Outcome
	Deal    *model.Deal
}

// IsDeal reports whether the observation qualified.
func (r Result) IsDeal() bool {
	return r.Outcome == DealFound && r.Deal != nil
}

var one = decimal.NewFromInt(1)

// Evaluate runs the qualification pipeline in strict order, first failing
// predicate short-circuiting:
//
//  1. nil baseline → NoBaseline
//  2. price > MaxPrice → PriceAboveCap (price == MaxPrice still qualifies)
//  3. discount_ratio = 1 − price/median < DiscountThreshold →
//     InsufficientDiscount (ratio == threshold still qualifies); a zero or
//     negative median cannot support a discount ratio and lands here too
//  4. otherwise → DealFound
func Evaluate(obs model.FareObservation, baseline *model.BaselineStat, cfg Config) Result {
	if baseline == nil {
		return Result{Outcome: NoBaseline}
	}

	if obs.Price.GreaterThan(cfg.MaxPrice) {
		return Result{Outcome: PriceAboveCap}
	}

	if baseline.Median.Sign() <= 0 {
		return Result{Outcome: InsufficientDiscount}
	}

	discountRatio := one.Sub(obs.Price.Div(baseline.Median))
	if discountRatio.LessThan(cfg.DiscountThreshold) {
		return Result{Outcome: InsufficientDiscount}
	}

	deal := model.Deal{
		Fingerprint:   Fingerprint(obs),
		Origin:        obs.Origin,
		Destination:   obs.Destination,
		OutboundDate:  obs.OutboundDate,
		ReturnDate:    obs.ReturnDate,
		ObservedPrice: obs.Price,
		BaselinePrice: baseline.Median,
		DiscountRatio: discountRatio,
		Currency:      obs.Currency,
		Carrier:       obs.Carrier,
		Observations:  baseline.Observations,
	}
	return Result{Outcome: DealFound, Deal: &deal}
}
