package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sku-scraper",
	Short: "Scrape product data for a list of SKUs",
	Long: "sku-scraper looks up product codes on the storefront, appends name, description, price and stock " +
		"to a persistent results table and exports it as CSV or XLSX.",
	SilenceUsage: true,
}

var statePath string

func init() {
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "Path to the results table state file (default TABLE_STATE_FILE)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
