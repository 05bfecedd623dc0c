package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maltedev/sku-scraper/internal/batch"
	"github.com/maltedev/sku-scraper/internal/database"
	"github.com/maltedev/sku-scraper/internal/export"
	"github.com/maltedev/sku-scraper/internal/table"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// BatchRunner runs one batch of codes against the results table.
type BatchRunner interface {
	Run(ctx context.Context, codes []string) (*batch.Report, error)
}

// OutboxStats reports the archive backlog. Nil when archiving is off.
type OutboxStats interface {
	Stats(ctx context.Context) (database.RelayStats, error)
}

// SessionState reports whether a browser session is open.
type SessionState interface {
	Active() bool
}

type Handlers struct {
	runner       BatchRunner
	table        *table.Table
	sessions     SessionState
	outbox       OutboxStats
	csvFilename  string
	xlsxFilename string
	validate     *validator.Validate
	logger       *slog.Logger
}

type Options struct {
	Sessions     SessionState
	Outbox       OutboxStats
	CSVFilename  string
	XLSXFilename string
}

func NewHandlers(runner BatchRunner, tbl *table.Table, opts Options, logger *slog.Logger) *Handlers {
	if opts.CSVFilename == "" {
		opts.CSVFilename = export.CSVFilename
	}
	if opts.XLSXFilename == "" {
		opts.XLSXFilename = export.XLSXFilename
	}
	return &Handlers{
		runner:       runner,
		table:        tbl,
		sessions:     opts.Sessions,
		outbox:       opts.Outbox,
		csvFilename:  opts.CSVFilename,
		xlsxFilename: opts.XLSXFilename,
		validate:     validator.New(),
		logger:       logger.With("component", "api"),
	}
}

// BatchRequest accepts the codes as multi-line text, as a list, or both.
type BatchRequest struct {
	Codes   string   `json:"codes" validate:"max=100000"`
	SKUList []string `json:"sku_list" validate:"max=1000,dive,max=64"`
}

func (r BatchRequest) codes() []string {
	codes := batch.ParseCodes(r.Codes)
	for _, sku := range r.SKUList {
		if sku = strings.TrimSpace(sku); sku != "" {
			codes = append(codes, sku)
		}
	}
	return codes
}

type BatchResponse struct {
	*batch.Report
	TableRows int `json:"table_rows"`
}

type TableResponse struct {
	Columns []string    `json:"columns"`
	Rows    []table.Row `json:"rows"`
	Count   int         `json:"count"`
}

// RunBatch is the "Get Info" action.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A client disconnect must not cut the batch short.
	report, err := h.runner.Run(context.WithoutCancel(r.Context()), req.codes())
	switch {
	case errors.Is(err, batch.ErrNoCodes):
		h.respondError(w, http.StatusUnprocessableEntity, "Please enter at least one SKU.")
		return
	case err != nil:
		h.logger.Error("batch failed", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, BatchResponse{Report: report, TableRows: h.table.Len()})
}

func (h *Handlers) GetTable(w http.ResponseWriter, r *http.Request) {
	rows := h.table.View()
	h.respondJSON(w, http.StatusOK, TableResponse{
		Columns: table.Columns,
		Rows:    rows,
		Count:   len(rows),
	})
}

// ClearTable is the "Clear Table" action.
func (h *Handlers) ClearTable(w http.ResponseWriter, r *http.Request) {
	h.table.Clear()
	h.logger.Info("table cleared")
	h.respondJSON(w, http.StatusOK, TableResponse{Columns: table.Columns, Rows: []table.Row{}})
}

func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, h.table.View()); err != nil {
		h.logger.Error("csv export failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "export failed")
		return
	}
	h.respondFile(w, "text/csv; charset=utf-8", h.csvFilename, buf.Bytes())
}

func (h *Handlers) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, h.table.View()); err != nil {
		h.logger.Error("xlsx export failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "export failed")
		return
	}
	h.respondFile(w, xlsxContentType, h.xlsxFilename, buf.Bytes())
}

func (h *Handlers) PriceSeries(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, export.PriceSeries(h.table.View()))
}

// Outbox thresholds beyond which health degrades.
const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":     "ok",
		"table_rows": h.table.Len(),
	}
	if h.sessions != nil {
		health["browser_session"] = h.sessions.Active()
	}

	status := http.StatusOK
	if h.outbox != nil {
		stats, err := h.outbox.Stats(r.Context())
		switch {
		case err != nil:
			health["status"] = "warning"
			health["message"] = "outbox unavailable"
		case stats.DeadLetter > deadLetterFailThreshold:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case stats.Pending > pendingWarnThreshold:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if err == nil {
			health["outbox"] = stats
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *Handlers) respondFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write export", "error", err)
	}
}
