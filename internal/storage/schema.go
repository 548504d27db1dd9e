package storage

import (
	"context"
	"fmt"
)

// Observation history is append-only: rows are inserted, never updated or
// deleted. The bucket index keeps baseline lookups off a full table scan.
// The deal-claim primary key is what makes Claim an atomic check-and-insert.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS fare_observations (
        id             BIGSERIAL PRIMARY KEY,
        origin         TEXT NOT NULL,
        destination    TEXT NOT NULL,
        outbound_date  DATE NOT NULL,
        return_date    DATE NOT NULL,
        outbound_month INT NOT NULL,
        outbound_year  INT NOT NULL,
        price          NUMERIC(12,2) NOT NULL,
        currency       TEXT NOT NULL DEFAULT 'EUR',
        carrier        TEXT,
        observed_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_fare_observations_bucket
        ON fare_observations (origin, destination, outbound_month, outbound_year);`,
	`CREATE TABLE IF NOT EXISTS deal_claims (
        fingerprint    TEXT PRIMARY KEY,
        origin         TEXT NOT NULL,
        destination    TEXT NOT NULL,
        outbound_date  DATE NOT NULL,
        return_date    DATE NOT NULL,
        observed_price NUMERIC(12,2) NOT NULL,
        baseline_price NUMERIC(12,2) NOT NULL,
        discount_ratio NUMERIC(8,6) NOT NULL,
        currency       TEXT NOT NULL DEFAULT 'EUR',
        carrier        TEXT,
        claimed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
}

// EnsureSchema creates the observation history and deal-claim tables if
// they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}
