package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Notifier delivers a detected deal to the operator. A returned error
// means delivery is unconfirmed: the caller must leave the deal unclaimed
// so it is retried on the next cycle.
type Notifier interface {
	Notify(ctx context.Context, deal model.Deal) error
}

// Fanout dispatches one deal to every configured channel. Delivery counts
// as confirmed only when every channel succeeds.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout combines notifiers into one.
func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

// Notify attempts every channel and joins their failures.
func (f *Fanout) Notify(ctx context.Context, deal model.Deal) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, deal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const dateLayout = "2006-01-02"

func renderMessage(deal model.Deal) string {
	stay := int(deal.ReturnDate.Sub(deal.OutboundDate).Hours() / 24)
	discountPct := deal.DiscountRatio.Mul(hundred)

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Flight Deal] %s -> %s\n", deal.Origin, deal.Destination))
	builder.WriteString(fmt.Sprintf("Outbound: %s\n", deal.OutboundDate.Format(dateLayout)))
	builder.WriteString(fmt.Sprintf("Return: %s (%d-day stay)\n", deal.ReturnDate.Format(dateLayout), stay))
	if deal.Carrier != "" {
		builder.WriteString(fmt.Sprintf("Carrier: %s\n", deal.Carrier))
	}
	builder.WriteString(fmt.Sprintf("Price: %s %s\n", deal.ObservedPrice.StringFixed(2), deal.Currency))
	builder.WriteString(fmt.Sprintf("Usual price: ~%s %s\n", deal.BaselinePrice.StringFixed(2), deal.Currency))
	builder.WriteString(fmt.Sprintf("Discount: %s%% below usual\n", discountPct.StringFixed(1)))
	if deal.Observations > 0 {
		builder.WriteString(fmt.Sprintf("Based on %d observations\n", deal.Observations))
	}
	return builder.String()
}

var _ Notifier = (*Fanout)(nil)
