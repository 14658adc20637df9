package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ridehail/internal/geo"
	"ridehail/internal/service"
)

var (
	estimatePickup geo.Coordinate
	estimateDrop   geo.Coordinate
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Quote a fare with the configured rates",
	Long:  "Prints the great-circle distance and fare between two points using BASE_FARE and PER_KM_RATE.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fares := service.NewFareCalculator(cfg.Pricing.BaseFare, cfg.Pricing.PerKmRate)
		quote, err := fares.EstimateChecked(estimatePickup, estimateDrop)
		if err != nil {
			return err
		}

		d := quote.Display()
		fmt.Fprintf(cmd.OutOrStdout(), "distance_km=%.2f fare=%.2f\n", d.DistanceKm, d.Fare)
		return nil
	},
}

func init() {
	f := estimateCmd.Flags()
	f.Float64Var(&estimatePickup.Lat, "pickup-lat", 0, "pickup latitude")
	f.Float64Var(&estimatePickup.Lng, "pickup-lng", 0, "pickup longitude")
	f.Float64Var(&estimateDrop.Lat, "drop-lat", 0, "drop latitude")
	f.Float64Var(&estimateDrop.Lng, "drop-lng", 0, "drop longitude")
	rootCmd.AddCommand(estimateCmd)
}
