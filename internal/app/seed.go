package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/model"
)

// Seed bulk-imports historical fare observations from a CSV file so a
// fresh deployment has baselines before its first live cycle. Expected
// columns: origin, destination, outbound_date, return_date, price,
// currency, carrier, observed_at (RFC3339, optional).
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	file, err := os.Open(opts.Path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	if opts.DryRun {
		a.Logger.Warn().Msg("seed dry-run: nothing will be written")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read seed header: %w", err)
	}
	if len(header) < 6 {
		return errors.New("seed file must have at least origin, destination, outbound_date, return_date, price, currency columns")
	}

	processed := 0
	failed := 0
	line := 1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read seed row: %w", err)
		}
		line++

		obs, err := parseSeedRecord(record)
		if err != nil {
			failed++
			a.Logger.Warn().Err(err).Int("line", line).Msg("seed row rejected")
			continue
		}

		if opts.DryRun {
			processed++
			continue
		}

		if err := store.RecordObservation(ctx, obs); err != nil {
			var vErr *model.ValidationError
			if errors.As(err, &vErr) {
				failed++
				a.Logger.Warn().Err(err).Int("line", line).Msg("seed row rejected")
				continue
			}
			return err
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("seed finished")
	if failed > 0 {
		return fmt.Errorf("%d seed rows were rejected; see log", failed)
	}
	return nil
}

func parseSeedRecord(record []string) (model.FareObservation, error) {
	if len(record) < 6 {
		return model.FareObservation{}, fmt.Errorf("expected at least 6 columns, got %d", len(record))
	}

	outbound, err := time.Parse("2006-01-02", record[2])
	if err != nil {
		return model.FareObservation{}, fmt.Errorf("parse outbound_date: %w", err)
	}
	ret, err := time.Parse("2006-01-02", record[3])
	if err != nil {
		return model.FareObservation{}, fmt.Errorf("parse return_date: %w", err)
	}
	price, err := decimal.NewFromString(record[4])
	if err != nil {
		return model.FareObservation{}, fmt.Errorf("parse price: %w", err)
	}

	obs := model.FareObservation{
		Origin:       record[0],
		Destination:  record[1],
		OutboundDate: outbound,
		ReturnDate:   ret,
		Price:        price,
		Currency:     record[5],
	}
	if len(record) > 6 {
		obs.Carrier = record[6]
	}
	if len(record) > 7 && record[7] != "" {
		observedAt, err := time.Parse(time.RFC3339, record[7])
		if err != nil {
			return model.FareObservation{}, fmt.Errorf("parse observed_at: %w", err)
		}
		obs.ObservedAt = observedAt
	}
	return obs, nil
}
