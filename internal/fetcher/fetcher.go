package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/model"
)

// Query describes one route and date pair to search round-trip fares for.
type Query struct {
	Origin       string
	Destination  string
	OutboundDate time.Time
	ReturnDate   time.Time
	// MaxPrice is forwarded to sources that support server-side price
	// filtering; zero means no filter.
	MaxPrice decimal.Decimal
	Currency string
}

// FareSource retrieves round-trip fare observations from an external API.
type FareSource interface {
	SearchFares(ctx context.Context, q Query) ([]model.FareObservation, error)
}
