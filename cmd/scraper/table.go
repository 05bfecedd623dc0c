package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the results table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}

		n := e.table.Len()
		e.table.Clear()
		if err := e.store.Save(e.table); err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "removed %d rows\n", n)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the results table with scores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		return printTable(cmd.OutOrStdout(), e.table.View())
	},
}

var (
	exportOut  string
	exportXLSX bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the results table as CSV or XLSX",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}

		path := exportPath(e.cfg, exportOut, exportXLSX)
		if err := writeExport(path, exportXLSX, e.table.View()); err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows to %s\n", e.table.Len(), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Export path (default EXPORT_CSV_FILENAME or EXPORT_XLSX_FILENAME)")
	exportCmd.Flags().BoolVar(&exportXLSX, "xlsx", false, "Export as XLSX instead of CSV")

	rootCmd.AddCommand(clearCmd, showCmd, exportCmd)
}
