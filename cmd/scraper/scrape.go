package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/sku-scraper/internal/app"
	"github.com/maltedev/sku-scraper/internal/batch"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [codes...]",
	Short: "Scrape a batch of SKUs and append them to the results table",
	Long: "Scrape each SKU in order on one browser session. Successful rows are appended to the results " +
		"table, failures are reported as warnings. The whole table is printed and exported afterwards.",
	RunE: runScrape,
}

var (
	scrapeFile   string
	scrapeOut    string
	scrapeXLSX   bool
	scrapeNoSave bool
)

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeFile, "file", "f", "", "File with one SKU per line (# starts a comment)")
	scrapeCmd.Flags().StringVarP(&scrapeOut, "out", "o", "", "Export path (default EXPORT_CSV_FILENAME or EXPORT_XLSX_FILENAME)")
	scrapeCmd.Flags().BoolVar(&scrapeXLSX, "xlsx", false, "Export as XLSX instead of CSV")
	scrapeCmd.Flags().BoolVar(&scrapeNoSave, "no-export", false, "Do not write an export file")

	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}

	codes, err := collectCodes(args, scrapeFile)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	core := app.NewCore(e.cfg, e.table, nil, nil, e.log)
	defer func() {
		if err := core.Sessions.Release(); err != nil {
			e.log.Warn("failed to release browser session", "error", err)
		}
	}()

	report, err := core.Runner.Run(ctx, codes)
	if errors.Is(err, batch.ErrNoCodes) {
		fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: Please enter at least one SKU.")
		return nil
	}
	if err != nil {
		return err
	}

	printWarnings(cmd.ErrOrStderr(), report.Warnings)
	if report.Cancelled {
		fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: interrupted, remaining SKUs were skipped.")
	}

	if err := e.store.Save(e.table); err != nil {
		return err
	}

	rows := e.table.View()
	if err := printTable(cmd.OutOrStdout(), rows); err != nil {
		return err
	}

	if scrapeNoSave || len(rows) == 0 {
		return nil
	}

	path := exportPath(e.cfg, scrapeOut, scrapeXLSX)
	if err := writeExport(path, scrapeXLSX, rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d SKUs added, table exported to %s\n", report.Appended, report.Requested, path)
	return nil
}
