/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"ibkr-paper-gateway/internal/bootstrap"

	"github.com/spf13/cobra"
)

// gatewayCmd represents the gateway command
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the Trading Gateway service",
	Long: `The Trading Gateway serves the JSON API for paper trading through a
running TWS or IB Gateway instance. It handles connection checks and market
order submission, delegating contract qualification and order routing to the
broker connectivity layer.`,
	Run: bootstrap.StartTradingGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
	gatewayCmd.PersistentFlags().String("policy", "", "connection policy reuse|per_request (overrides config)")
	gatewayCmd.PersistentFlags().Bool("simulate", false, "use the in-memory simulated gateway instead of TWS")
}
