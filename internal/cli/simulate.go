package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fare-deal-alerts/internal/app"
)

var (
	simulateOrigin      string
	simulateDestination string
	simulateOutbound    string
	simulateReturn      string
	simulatePrice       float64
	simulateBaseline    float64
	simulateNotify      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-deal",
	Short: "Evaluate a synthetic fare against a supplied baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 || simulateBaseline <= 0 {
			return errors.New("--price and --baseline must be greater than 0")
		}

		outbound, err := time.Parse("2006-01-02", simulateOutbound)
		if err != nil {
			return fmt.Errorf("invalid --outbound value: %w", err)
		}
		ret, err := time.Parse("2006-01-02", simulateReturn)
		if err != nil {
			return fmt.Errorf("invalid --return value: %w", err)
		}

		opts := app.SimulateOptions{
			Origin:       simulateOrigin,
			Destination:  simulateDestination,
			OutboundDate: outbound,
			ReturnDate:   ret,
			Price:        decimal.NewFromFloat(simulatePrice),
			Baseline:     decimal.NewFromFloat(simulateBaseline),
			Notify:       simulateNotify,
		}

		return getApp().SimulateDeal(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOrigin, "origin", "CDG", "Origin IATA code")
	simulateCmd.Flags().StringVar(&simulateDestination, "destination", "NRT", "Destination IATA code")
	simulateCmd.Flags().StringVar(&simulateOutbound, "outbound", "", "Outbound date (YYYY-MM-DD)")
	simulateCmd.Flags().StringVar(&simulateReturn, "return", "", "Return date (YYYY-MM-DD)")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Observed fare price")
	simulateCmd.Flags().Float64Var(&simulateBaseline, "baseline", 0, "Baseline median price to evaluate against")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "Push a test notification when the fare qualifies")
}
