package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/maltedev/sku-scraper/internal/batch"
	"github.com/maltedev/sku-scraper/internal/config"
	"github.com/maltedev/sku-scraper/internal/export"
	"github.com/maltedev/sku-scraper/internal/table"
	"github.com/maltedev/sku-scraper/pkg/logger"
)

type env struct {
	cfg   *config.Config
	log   *slog.Logger
	store *table.FileStore
	table *table.Table
}

// setup loads configuration and the persisted table. Logs go to stderr so
// stdout carries only the table and warnings.
func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	path := statePath
	if path == "" {
		path = cfg.Export.StateFile
	}

	e := &env{
		cfg:   cfg,
		log:   logger.NewWithWriter(os.Stderr, cfg.Logging.Level, "text"),
		store: table.NewFileStore(path),
		table: table.New(),
	}
	if err := e.store.Load(e.table); err != nil {
		return nil, err
	}
	return e, nil
}

// readCodes reads one code per line. Blank lines and lines starting with #
// are skipped.
func readCodes(r io.Reader) ([]string, error) {
	var codes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		codes = append(codes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read codes: %w", err)
	}
	return codes, nil
}

// collectCodes merges codes from args (each may hold several lines) and an
// optional file, in that order.
func collectCodes(args []string, file string) ([]string, error) {
	codes := batch.ParseCodes(strings.Join(args, "\n"))
	if file == "" {
		return codes, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open codes file: %w", err)
	}
	defer f.Close()

	fromFile, err := readCodes(f)
	if err != nil {
		return nil, err
	}
	return append(codes, fromFile...), nil
}

func printWarnings(w io.Writer, warnings []batch.Warning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warn.Message)
	}
}

func printTable(w io.Writer, rows []table.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(table.Columns, "\t"))
	for _, row := range rows {
		cells := export.Cells(row)
		for i, c := range cells {
			cells[i] = truncate(strings.Join(strings.Fields(c), " "), 60)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// writeExport writes the table to path as CSV, or XLSX when xlsx is set.
func writeExport(path string, xlsx bool, rows []table.Row) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	if xlsx {
		err = export.WriteXLSX(f, rows)
	} else {
		err = export.WriteCSV(f, rows)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func exportPath(cfg *config.Config, out string, xlsx bool) string {
	switch {
	case out != "":
		return out
	case xlsx:
		return cfg.Export.XLSXFilename
	default:
		return cfg.Export.CSVFilename
	}
}
