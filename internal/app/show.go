package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recently claimed deals.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	totalObservations, err := store.CountObservations(ctx)
	if err != nil {
		return err
	}
	totalClaims, err := store.CountClaims(ctx)
	if err != nil {
		return err
	}

	claims, err := store.ListRecentClaims(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		fmt.Fprintf(os.Stdout, "no claimed deals found (%d observations in history)\n", totalObservations)
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Claimed (UTC)\tRoute\tOutbound\tReturn\tPrice\tUsual\tDiscount%\tCarrier")

	for _, claim := range claims {
		fmt.Fprintf(
			writer,
			"%s\t%s-%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			claim.ClaimedAt.UTC().Format(time.RFC3339),
			claim.Origin,
			claim.Destination,
			claim.OutboundDate.Format("2006-01-02"),
			claim.ReturnDate.Format("2006-01-02"),
			claim.ObservedPrice.StringFixed(2),
			claim.BaselinePrice.StringFixed(2),
			claim.DiscountRatio.Mul(hundred).StringFixed(1),
			sanitizeInline(claim.Carrier),
		)
	}

	writer.Flush()
	fmt.Fprintf(os.Stdout, "\n%d claimed deals total, %d observations in history\n", totalClaims, totalObservations)
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
