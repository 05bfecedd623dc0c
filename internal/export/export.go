// Package export renders the results table to downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/maltedev/sku-scraper/internal/table"
)

const (
	CSVFilename  = "home_depot_products.csv"
	XLSXFilename = "home_depot_products.xlsx"
	SheetName    = "Products"
)

// Cells renders one row in column order. Missing fields carry the sentinel.
func Cells(row table.Row) []string {
	return []string{
		row.SKU,
		row.Name.String(),
		row.Description.String(),
		row.Price.String(),
		row.Stock.String(),
		row.URL,
		strconv.Itoa(row.Score.Total),
	}
}

func WriteCSV(w io.Writer, rows []table.Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(Cells(row)); err != nil {
			return fmt.Errorf("failed to write csv row %s: %w", row.SKU, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the same columns as WriteCSV to a single-sheet workbook.
// Found prices and stock counts are stored as numbers.
func WriteXLSX(w io.Writer, rows []table.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	header := make([]interface{}, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write xlsx header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, xlsxValues(row)); err != nil {
			return fmt.Errorf("failed to write xlsx row %s: %w", row.SKU, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush xlsx: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func xlsxValues(row table.Row) []interface{} {
	values := make([]interface{}, 0, len(table.Columns))
	for _, c := range Cells(row) {
		values = append(values, c)
	}
	if row.Price.Found {
		values[3] = row.Price.Value.InexactFloat64()
	}
	if row.Stock.Found {
		values[4] = row.Stock.Value
	}
	values[6] = row.Score.Total
	return values
}

// PricePoint is one bar of the price chart.
type PricePoint struct {
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
}

// PriceSeries returns the rows that have a price, in table order.
func PriceSeries(rows []table.Row) []PricePoint {
	points := make([]PricePoint, 0, len(rows))
	for _, row := range rows {
		if !row.Price.Found {
			continue
		}
		points = append(points, PricePoint{SKU: row.SKU, Price: row.Price.Value})
	}
	return points
}
