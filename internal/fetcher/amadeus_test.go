package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func amadeusQuery() Query {
	return Query{
		Origin:       "CDG",
		Destination:  "NRT",
		OutboundDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		ReturnDate:   time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC),
		MaxPrice:     decimal.NewFromInt(200),
		Currency:     "EUR",
	}
}

const amadeusOffersPayload = `{
	"data": [
		{
			"price": {"total": "150.00", "currency": "EUR"},
			"validatingAirlineCodes": ["AF"],
			"itineraries": [
				{"segments": [{"departure": {"at": "2026-03-14T10:30:00"}}]},
				{"segments": [{"departure": {"at": "2026-03-21T18:05:00"}}]}
			]
		},
		{
			"price": {"total": "99.00", "currency": "EUR"},
			"itineraries": [
				{"segments": [{"departure": {"at": "2026-03-14T06:00:00"}}]}
			]
		},
		{
			"price": {"total": "not-a-number", "currency": "EUR"},
			"itineraries": [
				{"segments": [{"departure": {"at": "2026-03-14T06:00:00"}}]},
				{"segments": [{"departure": {"at": "2026-03-21T09:00:00"}}]}
			]
		}
	]
}`

func TestAmadeusSearchFares(t *testing.T) {
	var tokenRequests, offerRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case amadeusTokenPath:
			tokenRequests++
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if r.Form.Get("grant_type") != "client_credentials" {
				t.Fatalf("unexpected grant_type %q", r.Form.Get("grant_type"))
			}
			w.Write([]byte(`{"access_token": "tok-1", "expires_in": 1799}`))
		case amadeusOffersPath:
			offerRequests++
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Fatalf("unexpected authorization header %q", got)
			}
			if got := r.URL.Query().Get("departureDate"); got != "2026-03-14" {
				t.Fatalf("unexpected departureDate %q", got)
			}
			if got := r.URL.Query().Get("maxPrice"); got != "200" {
				t.Fatalf("unexpected maxPrice %q", got)
			}
			w.Write([]byte(amadeusOffersPayload))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	fetcher := NewAmadeus(AmadeusOptions{APIKey: "k", APISecret: "s", BaseURL: server.URL}, zerolog.Nop())

	observations, err := fetcher.SearchFares(context.Background(), amadeusQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(observations) != 1 {
		t.Fatalf("expected 1 observation (one-way and unparseable offers skipped), got %d", len(observations))
	}

	obs := observations[0]
	if !obs.Price.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("unexpected price %s", obs.Price)
	}
	if obs.Carrier != "AF" {
		t.Fatalf("unexpected carrier %q", obs.Carrier)
	}
	if !obs.ReturnDate.Equal(time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected return date %s", obs.ReturnDate)
	}

	// second search reuses the cached token
	if _, err := fetcher.SearchFares(context.Background(), amadeusQuery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenRequests != 1 {
		t.Fatalf("expected 1 token request, got %d", tokenRequests)
	}
	if offerRequests != 2 {
		t.Fatalf("expected 2 offer requests, got %d", offerRequests)
	}
}

func TestAmadeusReauthenticatesOn401(t *testing.T) {
	var tokenRequests, offerRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case amadeusTokenPath:
			tokenRequests++
			w.Write([]byte(`{"access_token": "tok", "expires_in": 1799}`))
		case amadeusOffersPath:
			offerRequests++
			if offerRequests == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"errors": [{"detail": "expired token"}]}`))
				return
			}
			w.Write([]byte(`{"data": []}`))
		}
	}))
	defer server.Close()

	fetcher := NewAmadeus(AmadeusOptions{APIKey: "k", APISecret: "s", BaseURL: server.URL}, zerolog.Nop())

	observations, err := fetcher.SearchFares(context.Background(), amadeusQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(observations) != 0 {
		t.Fatalf("expected no observations, got %d", len(observations))
	}
	if tokenRequests != 2 {
		t.Fatalf("expected a re-authentication, got %d token requests", tokenRequests)
	}
	if offerRequests != 2 {
		t.Fatalf("expected a retried search, got %d offer requests", offerRequests)
	}
}

func TestAmadeusSearchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == amadeusTokenPath {
			w.Write([]byte(`{"access_token": "tok", "expires_in": 1799}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors": [{"detail": "Invalid query parameter"}]}`))
	}))
	defer server.Close()

	fetcher := NewAmadeus(AmadeusOptions{APIKey: "k", APISecret: "s", BaseURL: server.URL}, zerolog.Nop())

	_, err := fetcher.SearchFares(context.Background(), amadeusQuery())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Invalid query parameter") {
		t.Fatalf("error should carry the API detail, got %v", err)
	}
}

func TestAmadeusAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error_description": "Invalid client credentials"}`))
	}))
	defer server.Close()

	fetcher := NewAmadeus(AmadeusOptions{APIKey: "bad", APISecret: "bad", BaseURL: server.URL}, zerolog.Nop())

	_, err := fetcher.SearchFares(context.Background(), amadeusQuery())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Invalid client credentials") {
		t.Fatalf("error should carry the auth detail, got %v", err)
	}
}
