// Package service orchestrates one scan cycle: search fares, append them
// to the observation history, evaluate each against its bucket baseline,
// and notify newly found deals exactly once.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fare-deal-alerts/internal/alerting"
	"fare-deal-alerts/internal/config"
	"fare-deal-alerts/internal/detector"
	"fare-deal-alerts/internal/fetcher"
	"fare-deal-alerts/internal/model"
	"fare-deal-alerts/internal/scheduler"
	"fare-deal-alerts/internal/storage"
)

// Service wires the fare source, observation store, dedup registry, and
// notification sink into the scan loop.
type Service struct {
	scheduler    *scheduler.Scheduler
	source       fetcher.FareSource
	observations storage.ObservationStore
	registry     storage.DealRegistry
	notifier     alerting.Notifier
	logger       zerolog.Logger

	detectorCfg     detector.Config
	scan            config.ScanConfig
	minObservations int
	alertsOn        bool
	locker          storage.AdvisoryLocker
	lockKey         int64
}

// New constructs the scanning service.
func New(cfg *config.Config, sched *scheduler.Scheduler, source fetcher.FareSource, observations storage.ObservationStore, registry storage.DealRegistry, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := observations.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:    sched,
		source:       source,
		observations: observations,
		registry:     registry,
		notifier:     notifier,
		logger:       logger.With().Str("component", "service").Logger(),
		detectorCfg: detector.Config{
			MaxPrice:          decimal.NewFromFloat(cfg.Detector.MaxPrice),
			DiscountThreshold: decimal.NewFromFloat(cfg.Detector.DiscountThreshold),
		},
		scan:            cfg.Scan,
		minObservations: cfg.Detector.MinObservations,
		alertsOn:        cfg.Alerting.Enabled,
		locker:          locker,
		lockKey:         cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the continuous scan loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.RunCycle)
}

// cycleStats aggregates per-cycle counters across route workers.
type cycleStats struct {
	recorded int64
	deals    int64
	notified int64
	failed   int64
}

// RunCycle executes one full scan over every configured route and date
// pair. Routes degrade independently: a storage fault on one route skips
// that route and the rest continue.
func (s *Service) RunCycle(ctx context.Context, startedAt time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	pairs := s.datePairs(startedAt)
	routes := s.routes()
	s.logger.Info().
		Int("routes", len(routes)).
		Int("date_pairs", len(pairs)).
		Msg("scan cycle started")

	stats := &cycleStats{}

	g := &errgroup.Group{}
	limit := s.scan.MaxConcurrentRoutes
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, route := range routes {
		g.Go(func() error {
			if err := s.scanRoute(ctx, route, pairs, stats); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				atomic.AddInt64(&stats.failed, 1)
				s.logger.Error().Err(err).Stringer("route", route).Msg("route skipped for this cycle")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info().
		Int64("observations", atomic.LoadInt64(&stats.recorded)).
		Int64("deals", atomic.LoadInt64(&stats.deals)).
		Int64("notified", atomic.LoadInt64(&stats.notified)).
		Int64("routes_failed", atomic.LoadInt64(&stats.failed)).
		Msg("scan cycle finished")
	return nil
}

func (s *Service) scanRoute(ctx context.Context, route model.Route, pairs []datePair, stats *cycleStats) error {
	for _, pair := range pairs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		observations, err := s.source.SearchFares(ctx, fetcher.Query{
			Origin:       route.Origin,
			Destination:  route.Destination,
			OutboundDate: pair.outbound,
			ReturnDate:   pair.ret,
			MaxPrice:     s.detectorCfg.MaxPrice,
			Currency:     s.scan.Currency,
		})
		if err != nil {
			// source faults cost one date pair, not the whole route
			s.logger.Warn().Err(err).Stringer("route", route).
				Time("outbound", pair.outbound).
				Msg("fare search failed")
			continue
		}

		for _, obs := range observations {
			if err := s.processObservation(ctx, obs, stats); err != nil {
				var vErr *model.ValidationError
				if errors.As(err, &vErr) {
					s.logger.Debug().Err(err).Stringer("route", route).Msg("observation rejected")
					continue
				}
				return err
			}
		}
	}
	return nil
}

// processObservation runs the per-observation pipeline: record, baseline,
// evaluate, and — for an unclaimed deal — notify then claim. The claim is
// written only after confirmed delivery; a delivery failure leaves the
// fingerprint unclaimed so the next cycle retries it.
func (s *Service) processObservation(ctx context.Context, obs model.FareObservation, stats *cycleStats) error {
	if err := s.observations.RecordObservation(ctx, obs); err != nil {
		return err
	}
	atomic.AddInt64(&stats.recorded, 1)

	baseline, err := s.observations.Baseline(ctx, obs.Route(), obs.OutboundDate.Month(), obs.OutboundDate.Year(), s.minObservations)
	if err != nil {
		return err
	}

	result := detector.Evaluate(obs, baseline, s.detectorCfg)
	if !result.IsDeal() {
		s.logger.Debug().
			Stringer("route", obs.Route()).
			Str("price", obs.Price.StringFixed(2)).
			Stringer("outcome", result.Outcome).
			Msg("observation evaluated")
		return nil
	}

	deal := *result.Deal
	atomic.AddInt64(&stats.deals, 1)
	s.logger.Info().
		Stringer("route", obs.Route()).
		Str("price", deal.ObservedPrice.StringFixed(2)).
		Str("baseline", deal.BaselinePrice.StringFixed(2)).
		Str("discount", deal.DiscountRatio.StringFixed(3)).
		Msg("deal detected")

	if !s.alertsOn || s.notifier == nil || s.registry == nil {
		return nil
	}

	claimed, err := s.registry.IsClaimed(ctx, deal.Fingerprint)
	if err != nil {
		return err
	}
	if claimed {
		s.logger.Debug().Str("fingerprint", deal.Fingerprint).Msg("deal already notified")
		return nil
	}

	if err := s.notifier.Notify(ctx, deal); err != nil {
		// unclaimed on purpose: the next cycle retries delivery
		s.logger.Error().Err(err).Str("fingerprint", deal.Fingerprint).Msg("deal delivery failed; left unclaimed for retry")
		return nil
	}

	claimResult, err := s.registry.Claim(ctx, deal)
	if err != nil {
		return err
	}
	if claimResult == storage.AlreadyClaimed {
		s.logger.Debug().Str("fingerprint", deal.Fingerprint).Msg("deal claimed concurrently elsewhere")
		return nil
	}

	atomic.AddInt64(&stats.notified, 1)
	s.logger.Info().Str("fingerprint", deal.Fingerprint).Msg("deal notified and claimed")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
