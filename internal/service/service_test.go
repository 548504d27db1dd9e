package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/config"
	"fare-deal-alerts/internal/fetcher"
	"fare-deal-alerts/internal/model"
	"fare-deal-alerts/internal/storage"
)

// memStore backs ObservationStore and DealRegistry with in-memory maps.
type memStore struct {
	mu           sync.Mutex
	observations map[string][]decimal.Decimal
	claims       map[string]model.Deal
	minStayDays  int
	maxStayDays  int

	recordErr   error
	baselineErr error
}

func newMemStore() *memStore {
	return &memStore{
		observations: make(map[string][]decimal.Decimal),
		claims:       make(map[string]model.Deal),
		minStayDays:  3,
		maxStayDays:  30,
	}
}

func bucketKey(route model.Route, month time.Month, year int) string {
	return fmt.Sprintf("%s|%d|%d", route, month, year)
}

func (m *memStore) RecordObservation(ctx context.Context, obs model.FareObservation) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	if err := obs.Validate(m.minStayDays, m.maxStayDays); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bucketKey(obs.Route(), obs.OutboundDate.Month(), obs.OutboundDate.Year())
	m.observations[key] = append(m.observations[key], obs.Price)
	return nil
}

func (m *memStore) Baseline(ctx context.Context, route model.Route, month time.Month, year int, minObservations int) (*model.BaselineStat, error) {
	if m.baselineErr != nil {
		return nil, m.baselineErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prices := m.observations[bucketKey(route, month, year)]
	if len(prices) < minObservations {
		return nil, nil
	}
	return &model.BaselineStat{Median: storage.Median(prices), Observations: len(prices)}, nil
}

func (m *memStore) IsClaimed(ctx context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.claims[fingerprint]
	return ok, nil
}

func (m *memStore) Claim(ctx context.Context, deal model.Deal) (storage.ClaimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[deal.Fingerprint]; ok {
		return storage.AlreadyClaimed, nil
	}
	m.claims[deal.Fingerprint] = deal
	return storage.Claimed, nil
}

func (m *memStore) recordedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, prices := range m.observations {
		total += len(prices)
	}
	return total
}

func (m *memStore) claimCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claims)
}

// scriptedSource answers every query with observations built from the
// query's own route and dates.
type scriptedSource struct {
	mu           sync.Mutex
	queries      int
	err          error
	observations func(origin, destination string, outbound, ret time.Time) []model.FareObservation
}

func (s *scriptedSource) SearchFares(ctx context.Context, q fetcher.Query) ([]model.FareObservation, error) {
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.observations(q.Origin, q.Destination, q.OutboundDate, q.ReturnDate), nil
}

var _ fetcher.FareSource = (*scriptedSource)(nil)

type recordingNotifier struct {
	mu       sync.Mutex
	deals    []model.Deal
	failures int
}

func (n *recordingNotifier) Notify(ctx context.Context, deal model.Deal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deals = append(n.deals, deal)
	if n.failures > 0 {
		n.failures--
		return errors.New("delivery failed")
	}
	return nil
}

func (n *recordingNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deals)
}

func testServiceConfig() *config.Config {
	return &config.Config{
		Scan: config.ScanConfig{
			Origins:             []string{"CDG"},
			Destinations:        []string{"NRT"},
			MinDaysFromNow:      7,
			MaxDaysFromNow:      10,
			DateStepDays:        7,
			MinStayDays:         3,
			MaxStayDays:         30,
			MaxConcurrentRoutes: 2,
			Currency:            "EUR",
		},
		Detector: config.DetectorConfig{
			MaxPrice:          200,
			DiscountThreshold: 0.5,
			MinObservations:   3,
		},
		Alerting: config.AlertingConfig{Enabled: true},
	}
}

// seedBucket preloads prior history into the bucket the test cycle will hit.
func seedBucket(t *testing.T, store *memStore, startedAt time.Time, prices ...float64) {
	t.Helper()
	outbound := startedAt.Truncate(24 * time.Hour).AddDate(0, 0, 7)
	for _, p := range prices {
		obs := model.FareObservation{
			Origin:       "CDG",
			Destination:  "NRT",
			OutboundDate: outbound,
			ReturnDate:   outbound.AddDate(0, 0, 5),
			Price:        decimal.NewFromFloat(p),
			Currency:     "EUR",
		}
		if err := store.RecordObservation(context.Background(), obs); err != nil {
			t.Fatalf("seed observation: %v", err)
		}
	}
}

func TestRunCycleNotifiesThenClaimsDeal(t *testing.T) {
	startedAt := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	seedBucket(t, store, startedAt, 400, 410, 420)

	source := &scriptedSource{
		observations: func(origin, destination string, outbound, ret time.Time) []model.FareObservation {
			return []model.FareObservation{{
				Origin:       origin,
				Destination:  destination,
				OutboundDate: outbound,
				ReturnDate:   ret,
				Price:        decimal.NewFromInt(150),
				Currency:     "EUR",
				Carrier:      "AF",
			}}
		},
	}
	notifier := &recordingNotifier{}

	svc := New(testServiceConfig(), nil, source, store, store, notifier, zerolog.Nop())
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notifier.callCount() != 1 {
		t.Fatalf("expected 1 notification, got %d", notifier.callCount())
	}
	if store.claimCount() != 1 {
		t.Fatalf("expected 1 claim, got %d", store.claimCount())
	}

	deal := notifier.deals[0]
	if deal.Origin != "CDG" || deal.Destination != "NRT" {
		t.Fatalf("unexpected deal route %s-%s", deal.Origin, deal.Destination)
	}
	if !deal.ObservedPrice.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected deal price %s", deal.ObservedPrice)
	}

	// a second cycle sees the same fare already claimed and stays quiet
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.callCount() != 1 {
		t.Fatalf("claimed deal was re-notified: %d calls", notifier.callCount())
	}
	if store.claimCount() != 1 {
		t.Fatalf("expected 1 claim after second cycle, got %d", store.claimCount())
	}
}

func TestRunCycleLeavesDealUnclaimedOnDeliveryFailure(t *testing.T) {
	startedAt := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	seedBucket(t, store, startedAt, 400, 410, 420)

	source := &scriptedSource{
		observations: func(origin, destination string, outbound, ret time.Time) []model.FareObservation {
			return []model.FareObservation{{
				Origin:       origin,
				Destination:  destination,
				OutboundDate: outbound,
				ReturnDate:   ret,
				Price:        decimal.NewFromInt(150),
				Currency:     "EUR",
			}}
		},
	}
	notifier := &recordingNotifier{failures: 1}

	svc := New(testServiceConfig(), nil, source, store, store, notifier, zerolog.Nop())

	// first cycle: delivery fails, the fingerprint must stay unclaimed
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.claimCount() != 0 {
		t.Fatal("failed delivery must not claim the deal")
	}

	// second cycle retries the same deal and claims it after delivery
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.callCount() != 2 {
		t.Fatalf("expected a retry, got %d notifications", notifier.callCount())
	}
	if store.claimCount() != 1 {
		t.Fatalf("expected 1 claim after retry, got %d", store.claimCount())
	}
}

func TestRunCycleNoBaselineStaysQuiet(t *testing.T) {
	startedAt := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	store := newMemStore()

	source := &scriptedSource{
		observations: func(origin, destination string, outbound, ret time.Time) []model.FareObservation {
			return []model.FareObservation{{
				Origin:       origin,
				Destination:  destination,
				OutboundDate: outbound,
				ReturnDate:   ret,
				Price:        decimal.NewFromInt(50),
				Currency:     "EUR",
			}}
		},
	}
	notifier := &recordingNotifier{}

	svc := New(testServiceConfig(), nil, source, store, store, notifier, zerolog.Nop())
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.recordedCount() != 1 {
		t.Fatalf("observation should still be recorded, got %d", store.recordedCount())
	}
	if notifier.callCount() != 0 {
		t.Fatal("no notification without enough history")
	}
}

func TestRunCycleBaselineGate(t *testing.T) {
	startedAt := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	source := &scriptedSource{
		observations: func(origin, destination string, outbound, ret time.Time) []model.FareObservation {
			return []model.FareObservation{{
				Origin:       origin,
				Destination:  destination,
				OutboundDate: outbound,
				ReturnDate:   ret,
				Price:        decimal.NewFromInt(150),
				Currency:     "EUR",
			}}
		},
	}

	// one prior row: the bucket reaches min_observations-1 after the scan
	// and the fare stays below the radar
	store := newMemStore()
	seedBucket(t, store, startedAt, 400)
	notifier := &recordingNotifier{}
	svc := New(testServiceConfig(), nil, source, store, store, notifier, zerolog.Nop())
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.callCount() != 0 {
		t.Fatal("bucket below min_observations must not produce a deal")
	}

	// one more prior row crosses the gate and the same fare becomes a deal
	store = newMemStore()
	seedBucket(t, store, startedAt, 400, 420)
	notifier = &recordingNotifier{}
	svc = New(testServiceConfig(), nil, source, store, store, notifier, zerolog.Nop())
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.callCount() != 1 {
		t.Fatalf("expected the gate to open at min_observations, got %d notifications", notifier.callCount())
	}
}

func TestRunCycleSkipsInvalidObservations(t *testing.T) {
	startedAt := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	store := newMemStore()

	source := &scriptedSource{
		observations: func(origin, destination string, outbound, ret time.Time) []model.FareObservation {
			return []model.FareObservation{
				{
					Origin:       origin,
					Destination:  destination,
					OutboundDate: outbound,
					ReturnDate:   outbound, // zero-length stay is invalid
					Price:        decimal.NewFromInt(99),
					Currency:     "EUR",
				},
				{
					Origin:       origin,
					Destination:  destination,
					OutboundDate: outbound,
					ReturnDate:   ret,
					Price:        decimal.NewFromInt(120),
					Currency:     "EUR",
				},
			}
		},
	}
	notifier := &recordingNotifier{}

	svc := New(testServiceConfig(), nil, source, store, store, notifier, zerolog.Nop())
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.recordedCount() != 1 {
		t.Fatalf("only the valid observation should be recorded, got %d", store.recordedCount())
	}
}

func TestRunCycleSourceFailureSkipsDatePair(t *testing.T) {
	startedAt := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	source := &scriptedSource{err: errors.New("upstream 503")}
	notifier := &recordingNotifier{}

	svc := New(testServiceConfig(), nil, source, store, store, notifier, zerolog.Nop())
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("source faults must not fail the cycle: %v", err)
	}
	if store.recordedCount() != 0 {
		t.Fatalf("nothing should be recorded, got %d", store.recordedCount())
	}
}

func TestRunCycleAlertingDisabled(t *testing.T) {
	startedAt := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	seedBucket(t, store, startedAt, 400, 410, 420)

	source := &scriptedSource{
		observations: func(origin, destination string, outbound, ret time.Time) []model.FareObservation {
			return []model.FareObservation{{
				Origin:       origin,
				Destination:  destination,
				OutboundDate: outbound,
				ReturnDate:   ret,
				Price:        decimal.NewFromInt(150),
				Currency:     "EUR",
			}}
		},
	}
	notifier := &recordingNotifier{}

	cfg := testServiceConfig()
	cfg.Alerting.Enabled = false

	svc := New(cfg, nil, source, store, store, notifier, zerolog.Nop())
	if err := svc.RunCycle(context.Background(), startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notifier.callCount() != 0 {
		t.Fatal("alerting disabled must suppress notifications")
	}
	if store.claimCount() != 0 {
		t.Fatal("alerting disabled must not claim deals")
	}
	if store.recordedCount() != 4 {
		t.Fatalf("history must still grow, got %d observations", store.recordedCount())
	}
}
