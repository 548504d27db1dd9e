package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/model"
)

const (
	amadeusTokenPath  = "/v1/security/oauth2/token"
	amadeusOffersPath = "/v2/shopping/flight-offers"
)

// AmadeusOptions parameterise the Amadeus flight-offers fetcher.
type AmadeusOptions struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	Timeout    time.Duration
	MaxResults int
}

// Amadeus fetches round-trip offers from the Amadeus flight-offers API.
type Amadeus struct {
	opts    AmadeusOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewAmadeus constructs an Amadeus fetcher.
func NewAmadeus(opts AmadeusOptions, logger zerolog.Logger) *Amadeus {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.amadeus.com"
	}

	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}

	return &Amadeus{
		opts:    opts,
		logger:  logger.With().Str("component", "amadeus_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// SearchFares queries flight offers for one route and date pair. A 401 on
// the first attempt triggers exactly one re-authentication and retry.
func (a *Amadeus) SearchFares(ctx context.Context, q Query) ([]model.FareObservation, error) {
	token, err := a.ensureToken(ctx, false)
	if err != nil {
		return nil, err
	}

	payload, status, err := a.searchOnce(ctx, q, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		a.logger.Warn().Msg("token rejected, re-authenticating")
		token, err = a.ensureToken(ctx, true)
		if err != nil {
			return nil, err
		}
		payload, status, err = a.searchOnce(ctx, q, token)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, parseAPIError("amadeus", status, payload)
	}

	return a.parseOffers(payload, q)
}

func (a *Amadeus) searchOnce(ctx context.Context, q Query, token string) ([]byte, int, error) {
	params := url.Values{}
	params.Set("originLocationCode", q.Origin)
	params.Set("destinationLocationCode", q.Destination)
	params.Set("departureDate", q.OutboundDate.Format(dateLayout))
	params.Set("returnDate", q.ReturnDate.Format(dateLayout))
	params.Set("adults", "1")
	params.Set("max", strconv.Itoa(a.opts.MaxResults))
	if q.Currency != "" {
		params.Set("currencyCode", q.Currency)
	}
	if q.MaxPrice.Sign() > 0 {
		params.Set("maxPrice", q.MaxPrice.Round(0).String())
	}

	endpoint := a.baseURL + amadeusOffersPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return payload, resp.StatusCode, nil
}

// ensureToken returns a cached OAuth2 token, fetching a fresh one when the
// cache is empty, expired, or force is set.
func (a *Amadeus) ensureToken(ctx context.Context, force bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !force && a.token != "" && time.Now().Before(a.tokenExpiry) {
		return a.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.opts.APIKey)
	form.Set("client_secret", a.opts.APISecret)

	endpoint := a.baseURL + amadeusTokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("amadeus token request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError("amadeus auth", resp.StatusCode, payload)
	}

	var tokenRes struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(payload, &tokenRes); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tokenRes.AccessToken == "" {
		return "", fmt.Errorf("amadeus auth returned empty token")
	}

	expiresIn := tokenRes.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 1800
	}

	a.token = tokenRes.AccessToken
	// renew one minute early so in-flight requests never carry a stale token
	a.tokenExpiry = time.Now().Add(time.Duration(expiresIn-60) * time.Second)

	a.logger.Debug().Msg("amadeus token refreshed")
	return a.token, nil
}

type amadeusOffersResponse struct {
	Data []struct {
		Price struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
		ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
		Itineraries            []struct {
			Segments []struct {
				Departure struct {
					At string `json:"at"`
				} `json:"departure"`
			} `json:"segments"`
		} `json:"itineraries"`
	} `json:"data"`
}

func (a *Amadeus) parseOffers(payload []byte, q Query) ([]model.FareObservation, error) {
	var res amadeusOffersResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("parse offers response: %w", err)
	}

	observedAt := time.Now().UTC()
	observations := make([]model.FareObservation, 0, len(res.Data))
	for _, offer := range res.Data {
		price, err := decimal.NewFromString(offer.Price.Total)
		if err != nil {
			a.logger.Warn().Str("total", offer.Price.Total).Msg("skipping offer with unparseable price")
			continue
		}

		// one-way offers carry a single itinerary; only round trips count
		if len(offer.Itineraries) < 2 {
			continue
		}

		returnDate := q.ReturnDate
		if segs := offer.Itineraries[1].Segments; len(segs) > 0 {
			if at, err := time.Parse("2006-01-02T15:04:05", segs[0].Departure.At); err == nil {
				returnDate = time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
			}
		}

		carrier := ""
		if len(offer.ValidatingAirlineCodes) > 0 {
			carrier = offer.ValidatingAirlineCodes[0]
		}

		currency := offer.Price.Currency
		if currency == "" {
			currency = q.Currency
		}

		observations = append(observations, model.FareObservation{
			Origin:       q.Origin,
			Destination:  q.Destination,
			OutboundDate: q.OutboundDate,
			ReturnDate:   returnDate,
			Price:        price,
			Currency:     currency,
			Carrier:      carrier,
			ObservedAt:   observedAt,
		})
	}

	a.logger.Debug().
		Str("route", q.Origin+"-"+q.Destination).
		Int("offers", len(observations)).
		Msg("parsed flight offers")

	return observations, nil
}

var _ FareSource = (*Amadeus)(nil)
