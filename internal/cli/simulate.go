package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateSymbol   string
	simulateBaseline float64
	simulatePrice    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Replay a synthetic price move through the alert pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol must be provided")
		}
		if simulateBaseline <= 0 || simulatePrice <= 0 {
			return errors.New("--baseline and --price must be greater than 0")
		}

		baseline := decimal.NewFromFloat(simulateBaseline)
		price := decimal.NewFromFloat(simulatePrice)
		return getApp().SimulateAlert(cmd.Context(), simulateSymbol, baseline, price)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Tracked symbol to simulate")
	simulateCmd.Flags().Float64Var(&simulateBaseline, "baseline", 0, "Baseline price in USD")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Follow-up price in USD")
}
