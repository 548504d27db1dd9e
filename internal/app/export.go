package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"fare-deal-alerts/internal/model"
	"fare-deal-alerts/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// defaultExportWindow is how far back export reaches when --from is omitted.
const defaultExportWindow = 90 * 24 * time.Hour

// Export renders a route's observation history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	route := model.Route{Origin: opts.Origin, Destination: opts.Destination}
	if err := route.Validate(); err != nil {
		return err
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	observations, err := store.ListObservations(ctx, route, from, to)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		a.Logger.Info().Stringer("route", route).Msg("no observations found for export window")
		return nil
	}

	downsampled := downsampleObservations(observations, opts.MaxPoints)
	a.Logger.Info().
		Stringer("route", route).
		Int("total", len(observations)).
		Int("exported", len(downsampled)).
		Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writeObservationsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeObservationsPNG(opts.PNGPath, route, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleObservations(observations []model.FareObservation, max int) []model.FareObservation {
	if max <= 0 || len(observations) <= max {
		return observations
	}

	result := make([]model.FareObservation, 0, max)
	step := float64(len(observations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}
		result = append(result, observations[idx])
	}
	return result
}

func writeObservationsCSV(path string, observations []model.FareObservation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "origin", "destination", "outbound_date", "return_date", "price", "currency", "carrier"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, obs := range observations {
		record := []string{
			obs.ObservedAt.Format(time.RFC3339),
			obs.Origin,
			obs.Destination,
			obs.OutboundDate.Format("2006-01-02"),
			obs.ReturnDate.Format("2006-01-02"),
			obs.Price.StringFixed(2),
			obs.Currency,
			obs.Carrier,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeObservationsPNG(path string, route model.Route, observations []model.FareObservation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(observations))
	prices := make([]float64, len(observations))
	allPrices := make([]decimal.Decimal, len(observations))
	for i, obs := range observations {
		x[i] = obs.ObservedAt
		prices[i] = obs.Price.InexactFloat64()
		allPrices[i] = obs.Price
	}

	median := storage.Median(allPrices).InexactFloat64()
	medianLine := make([]float64, len(observations))
	for i := range medianLine {
		medianLine[i] = median
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  route.String() + " fare history",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Observed",
				XValues: x,
				YValues: prices,
			},
			chart.TimeSeries{
				Name:    "Window median",
				XValues: x,
				YValues: medianLine,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
