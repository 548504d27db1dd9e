package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertObservationSQL = `INSERT INTO fare_observations (
        origin,
        destination,
        outbound_date,
        return_date,
        outbound_month,
        outbound_year,
        price,
        currency,
        carrier,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    );`

	bucketPricesSQL = `SELECT price
    FROM fare_observations
    WHERE origin = $1
      AND destination = $2
      AND outbound_month = $3
      AND outbound_year = $4;`

	countObservationsSQL = `SELECT COUNT(*) FROM fare_observations;`

	listObservationsSQL = `SELECT
        origin,
        destination,
        outbound_date,
        return_date,
        price,
        currency,
        carrier,
        observed_at
    FROM fare_observations
    WHERE origin = $1
      AND destination = $2
      AND observed_at >= $3
      AND observed_at < $4
    ORDER BY observed_at;`

	isClaimedSQL = `SELECT EXISTS (SELECT 1 FROM deal_claims WHERE fingerprint = $1);`

	claimDealSQL = `INSERT INTO deal_claims (
        fingerprint,
        origin,
        destination,
        outbound_date,
        return_date,
        observed_price,
        baseline_price,
        discount_ratio,
        currency,
        carrier
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (fingerprint) DO NOTHING;`

	listRecentClaimsSQL = `SELECT
        fingerprint,
        origin,
        destination,
        outbound_date,
        return_date,
        observed_price,
        baseline_price,
        discount_ratio,
        currency,
        carrier,
        claimed_at
    FROM deal_claims
    ORDER BY claimed_at DESC
    LIMIT $1;`

	countClaimsSQL = `SELECT COUNT(*) FROM deal_claims;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore defines the append-only fare history and its derived
// per-bucket baseline.
type ObservationStore interface {
	RecordObservation(ctx context.Context, obs model.FareObservation) error
	Baseline(ctx context.Context, route model.Route, month time.Month, year int, minObservations int) (*model.BaselineStat, error)
}

// DealRegistry defines the fingerprint-keyed dedup registry.
type DealRegistry interface {
	IsClaimed(ctx context.Context, fingerprint string) (bool, error)
	Claim(ctx context.Context, deal model.Deal) (ClaimResult, error)
}

// ClaimReader exposes read access to claimed deals for audit commands.
type ClaimReader interface {
	ListRecentClaims(ctx context.Context, limit int) ([]DealClaim, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to fare observations and deal claims.
type Store struct {
	pool        *pgxpool.Pool
	minStayDays int
	maxStayDays int
}

// NewStore wires a pgx pool into a Store. The stay bounds are re-checked
// on every recorded observation even though the upstream source should
// already enforce them.
func NewStore(pool *pgxpool.Pool, minStayDays, maxStayDays int) *Store {
	return &Store{pool: pool, minStayDays: minStayDays, maxStayDays: maxStayDays}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// RecordObservation appends one fare observation to the history. The same
// fare may be recorded many times across cycles; that repetition is what
// builds the baseline, so no dedup happens here.
func (s *Store) RecordObservation(ctx context.Context, obs model.FareObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if err := obs.Validate(s.minStayDays, s.maxStayDays); err != nil {
		return err
	}

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	_, execErr := pool.Exec(ctx, insertObservationSQL,
		obs.Origin,
		obs.Destination,
		obs.OutboundDate,
		obs.ReturnDate,
		int(obs.OutboundDate.Month()),
		obs.OutboundDate.Year(),
		obs.Price.StringFixed(2),
		obs.Currency,
		obs.Carrier,
		observedAt,
	)
	if execErr != nil {
		return fmt.Errorf("record observation: %w", execErr)
	}
	return nil
}

// Baseline computes the median price for a (route, month, year) bucket.
// Returns nil when the bucket holds fewer than minObservations rows.
func (s *Store) Baseline(ctx context.Context, route model.Route, month time.Month, year int, minObservations int) (*model.BaselineStat, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, bucketPricesSQL, route.Origin, route.Destination, int(month), year)
	if queryErr != nil {
		return nil, fmt.Errorf("query bucket prices: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]decimal.Decimal, 0, minObservations)
	for rows.Next() {
		var priceStr string
		if scanErr := rows.Scan(&priceStr); scanErr != nil {
			return nil, scanErr
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse price: %w", convErr)
		}
		prices = append(prices, price)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if len(prices) < minObservations {
		return nil, nil
	}

	return &model.BaselineStat{
		Median:       Median(prices),
		Observations: len(prices),
	}, nil
}

// CountObservations counts stored observations.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// ListObservations lists a route's observations captured within a window.
func (s *Store) ListObservations(ctx context.Context, route model.Route, from, to time.Time) ([]model.FareObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSQL, route.Origin, route.Destination, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]model.FareObservation, 0)
	for rows.Next() {
		obs, scanErr := scanObservation(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// IsClaimed reports whether a fingerprint already exists in the registry.
// The answer is advisory: the authoritative race-free check is the unique
// constraint behind Claim.
func (s *Store) IsClaimed(ctx context.Context, fingerprint string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var claimed bool
	if scanErr := pool.QueryRow(ctx, isClaimedSQL, fingerprint).Scan(&claimed); scanErr != nil {
		return false, fmt.Errorf("check claim: %w", scanErr)
	}
	return claimed, nil
}

// Claim atomically records that a deal fingerprint has been notified.
// The fingerprint primary key makes concurrent claims safe: exactly one
// caller observes Claimed, every other caller observes AlreadyClaimed.
func (s *Store) Claim(ctx context.Context, deal model.Deal) (ClaimResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlreadyClaimed, err
	}

	cmdTag, execErr := pool.Exec(ctx, claimDealSQL,
		deal.Fingerprint,
		deal.Origin,
		deal.Destination,
		deal.OutboundDate,
		deal.ReturnDate,
		deal.ObservedPrice.StringFixed(2),
		deal.BaselinePrice.StringFixed(2),
		deal.DiscountRatio.StringFixed(6),
		deal.Currency,
		deal.Carrier,
	)
	if execErr != nil {
		return AlreadyClaimed, fmt.Errorf("claim deal: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return AlreadyClaimed, nil
	}
	return Claimed, nil
}

// ListRecentClaims lists most recently claimed deals.
func (s *Store) ListRecentClaims(ctx context.Context, limit int) ([]DealClaim, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentClaimsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent claims: %w", queryErr)
	}
	defer rows.Close()

	claims := make([]DealClaim, 0, limit)
	for rows.Next() {
		var (
			claim            DealClaim
			observedStr      string
			baselineStr      string
			discountRatioStr string
		)
		if err := rows.Scan(
			&claim.Fingerprint,
			&claim.Origin,
			&claim.Destination,
			&claim.OutboundDate,
			&claim.ReturnDate,
			&observedStr,
			&baselineStr,
			&discountRatioStr,
			&claim.Currency,
			&claim.Carrier,
			&claim.ClaimedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		claim.ObservedPrice, convErr = decimal.NewFromString(observedStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse observed price: %w", convErr)
		}
		claim.BaselinePrice, convErr = decimal.NewFromString(baselineStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse baseline price: %w", convErr)
		}
		claim.DiscountRatio, convErr = decimal.NewFromString(discountRatioStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse discount ratio: %w", convErr)
		}

		claims = append(claims, claim)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return claims, nil
}

// CountClaims counts registry entries.
func (s *Store) CountClaims(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countClaimsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count claims: %w", scanErr)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func scanObservation(scan func(dest ...any) error) (model.FareObservation, error) {
	var (
		obs      model.FareObservation
		priceStr string
	)
	if err := scan(
		&obs.Origin,
		&obs.Destination,
		&obs.OutboundDate,
		&obs.ReturnDate,
		&priceStr,
		&obs.Currency,
		&obs.Carrier,
		&obs.ObservedAt,
	); err != nil {
		return model.FareObservation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return model.FareObservation{}, fmt.Errorf("parse price: %w", err)
	}
	obs.Price = price

	return obs, nil
}
