package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/detector"
	"fare-deal-alerts/internal/model"
)

// SimulateOptions configure a synthetic detector evaluation.
type SimulateOptions struct {
	Origin       string
	Destination  string
	OutboundDate time.Time
	ReturnDate   time.Time
	Price        decimal.Decimal
	Baseline     decimal.Decimal
	Notify       bool
}

// SimulateDeal evaluates a synthetic observation against a supplied
// baseline and optionally pushes a test notification. Nothing is recorded
// or claimed; this exercises the detector and delivery path only.
func (a *App) SimulateDeal(ctx context.Context, opts SimulateOptions) error {
	obs := model.FareObservation{
		Origin:       opts.Origin,
		Destination:  opts.Destination,
		OutboundDate: opts.OutboundDate,
		ReturnDate:   opts.ReturnDate,
		Price:        opts.Price,
		Currency:     a.Config.Scan.Currency,
		ObservedAt:   time.Now().UTC(),
	}
	if err := obs.Validate(a.Config.Scan.MinStayDays, a.Config.Scan.MaxStayDays); err != nil {
		return err
	}

	baseline := &model.BaselineStat{
		Median:       opts.Baseline,
		Observations: a.Config.Detector.MinObservations,
	}

	cfg := detector.Config{
		MaxPrice:          decimal.NewFromFloat(a.Config.Detector.MaxPrice),
		DiscountThreshold: decimal.NewFromFloat(a.Config.Detector.DiscountThreshold),
	}

	result := detector.Evaluate(obs, baseline, cfg)
	fmt.Fprintf(os.Stdout, "outcome: %s\n", result.Outcome)
	if !result.IsDeal() {
		return nil
	}

	deal := result.Deal
	fmt.Fprintf(os.Stdout, "fingerprint: %s\n", deal.Fingerprint)
	fmt.Fprintf(os.Stdout, "discount: %s%%\n", deal.DiscountRatio.Mul(hundred).StringFixed(1))

	if !opts.Notify {
		return nil
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}
	return notifier.Notify(ctx, *deal)
}
