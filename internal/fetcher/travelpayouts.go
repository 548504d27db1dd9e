package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/model"
)

const travelpayoutsCheapPath = "/v1/prices/cheap"

// TravelpayoutsOptions parameterise the Travelpayouts fetcher.
type TravelpayoutsOptions struct {
	APIToken string
	BaseURL  string
	Timeout  time.Duration
	// RubToEurRate converts RUB-denominated responses into the reference
	// currency; the API quotes cached prices in RUB by default.
	RubToEurRate decimal.Decimal
}

// Travelpayouts fetches cached round-trip prices from the
// Travelpayouts/Aviasales API. The API is month-granular, so queries carry
// YYYY-MM dates and the response's own departure/return timestamps decide
// the observation dates.
type Travelpayouts struct {
	opts    TravelpayoutsOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTravelpayouts constructs a Travelpayouts fetcher.
func NewTravelpayouts(opts TravelpayoutsOptions, logger zerolog.Logger) *Travelpayouts {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.travelpayouts.com"
	}

	return &Travelpayouts{
		opts:    opts,
		logger:  logger.With().Str("component", "travelpayouts_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// SearchFares queries cached prices for the months of the requested dates.
// The max-price filter is applied client-side; the API has none.
func (t *Travelpayouts) SearchFares(ctx context.Context, q Query) ([]model.FareObservation, error) {
	params := url.Values{}
	params.Set("origin", q.Origin)
	params.Set("destination", q.Destination)
	params.Set("depart_date", q.OutboundDate.Format("2006-01"))
	params.Set("return_date", q.ReturnDate.Format("2006-01"))

	endpoint := t.baseURL + travelpayoutsCheapPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Access-Token", t.opts.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError("travelpayouts", resp.StatusCode, payload)
	}

	return t.parsePrices(payload, q)
}

type travelpayoutsResponse struct {
	Success  bool                                     `json:"success"`
	Currency string                                   `json:"currency"`
	Data     map[string]map[string]travelpayoutsOffer `json:"data"`
}

type travelpayoutsOffer struct {
	Price       json.Number `json:"price"`
	Airline     string      `json:"airline"`
	DepartureAt string      `json:"departure_at"`
	ReturnAt    string      `json:"return_at"`
}

func (t *Travelpayouts) parsePrices(payload []byte, q Query) ([]model.FareObservation, error) {
	var res travelpayoutsResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("parse travelpayouts response: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("travelpayouts returned success=false")
	}

	rate := decimal.NewFromInt(1)
	currency := strings.ToUpper(res.Currency)
	if strings.EqualFold(res.Currency, "rub") && t.opts.RubToEurRate.Sign() > 0 {
		rate = t.opts.RubToEurRate
		currency = "EUR"
	}

	observedAt := time.Now().UTC()
	observations := make([]model.FareObservation, 0)
	for _, offer := range res.Data[q.Destination] {
		price, err := decimal.NewFromString(offer.Price.String())
		if err != nil {
			t.logger.Warn().Str("price", offer.Price.String()).Msg("skipping offer with unparseable price")
			continue
		}
		price = price.Mul(rate).Round(2)

		if q.MaxPrice.Sign() > 0 && price.GreaterThan(q.MaxPrice) {
			continue
		}

		outbound := parseOfferDate(offer.DepartureAt, q.OutboundDate)
		returnDate := parseOfferDate(offer.ReturnAt, q.ReturnDate)
		if !returnDate.After(outbound) {
			continue
		}

		observations = append(observations, model.FareObservation{
			Origin:       q.Origin,
			Destination:  q.Destination,
			OutboundDate: outbound,
			ReturnDate:   returnDate,
			Price:        price,
			Currency:     currency,
			Carrier:      offer.Airline,
			ObservedAt:   observedAt,
		})
	}

	t.logger.Debug().
		Str("route", q.Origin+"-"+q.Destination).
		Int("offers", len(observations)).
		Msg("parsed cached prices")

	return observations, nil
}

func parseOfferDate(value string, fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", dateLayout} {
		if at, err := time.Parse(layout, value); err == nil {
			return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return fallback
}

var _ FareSource = (*Travelpayouts)(nil)
