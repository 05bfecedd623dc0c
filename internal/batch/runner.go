// Package batch runs a list of product codes through the extractor on the
// shared browser session and appends the results to the table.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/metrics"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/ratelimit"
	"github.com/maltedev/sku-scraper/internal/scraper"
	"github.com/maltedev/sku-scraper/internal/table"
)

var ErrNoCodes = errors.New("please enter at least one SKU")

// NoValidData is the aggregate warning of a batch in which every code failed.
const NoValidData = "No valid data was retrieved from the provided SKUs."

// Sessions hands out the browser page a batch runs on.
type Sessions interface {
	Acquire(ctx context.Context) (browser.Page, error)
	Release() error
}

// Archiver receives every record a batch appended. Failures are logged only.
type Archiver interface {
	Archive(ctx context.Context, batchID uuid.UUID, rec *models.ProductRecord) error
}

type Warning struct {
	SKU     string `json:"sku,omitempty"`
	Message string `json:"message"`
}

type Report struct {
	ID         uuid.UUID              `json:"id"`
	Requested  int                    `json:"requested"`
	Appended   int                    `json:"appended"`
	Records    []models.ProductRecord `json:"records"`
	Warnings   []Warning              `json:"warnings"`
	Cancelled  bool                   `json:"cancelled,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

type Options struct {
	// ReleasePerBatch closes the session after each run instead of keeping
	// it for the life of the process.
	ReleasePerBatch bool
	Pacer           ratelimit.Pacer
	Archiver        Archiver
}

type Runner struct {
	sessions Sessions
	scraper  scraper.Scraper
	table    *table.Table
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewRunner(sessions Sessions, s scraper.Scraper, tbl *table.Table, opts Options, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if opts.Pacer == nil {
		opts.Pacer = ratelimit.NewJittered(0, 0)
	}
	return &Runner{
		sessions: sessions,
		scraper:  s,
		table:    tbl,
		opts:     opts,
		metrics:  m,
		logger:   logger.With("component", "batch_runner"),
	}
}

// ParseCodes splits multi-line input into codes, trimming each line and
// dropping blank ones.
func ParseCodes(text string) []string {
	var codes []string
	for _, line := range strings.Split(text, "\n") {
		if code := strings.TrimSpace(line); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// Run scrapes codes in order. Only one batch runs at a time; a second call
// waits for the first. Per-code failures become report warnings. The
// returned error is ErrNoCodes or a session failure, in which case the table
// is not touched.
func (r *Runner) Run(ctx context.Context, codes []string) (*Report, error) {
	if len(codes) == 0 {
		return nil, ErrNoCodes
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	report := &Report{
		ID:        uuid.New(),
		Requested: len(codes),
		StartedAt: time.Now(),
	}
	logger := r.logger.With("batch", report.ID)

	page, err := r.sessions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser session: %w", err)
	}
	if r.opts.ReleasePerBatch {
		defer func() {
			if err := r.sessions.Release(); err != nil {
				logger.Warn("failed to release session", "error", err)
			}
		}()
	}

	r.metrics.BatchRun()
	logger.Info("batch started", "codes", len(codes))

	var valid []*models.ProductRecord
	for i, code := range codes {
		if ctx.Err() != nil || r.opts.Pacer.Wait(ctx) != nil {
			report.Cancelled = true
			report.Warnings = append(report.Warnings, skipped(codes[i:])...)
			logger.Warn("batch cancelled", "skipped", len(codes)-i)
			break
		}

		rec, err := r.extract(ctx, page, code)
		switch {
		case err != nil:
			r.feedback(false)
			logger.Warn("failed to scrape sku", "sku", code, "error", err)
			report.Warnings = append(report.Warnings, Warning{
				SKU:     code,
				Message: fmt.Sprintf("Error scraping %s: %v", code, err),
			})
		case rec.IsEmpty():
			r.feedback(false)
			report.Warnings = append(report.Warnings, Warning{
				SKU:     code,
				Message: fmt.Sprintf("SKU %s returned invalid data.", code),
			})
		default:
			r.feedback(true)
			valid = append(valid, rec)
		}
	}

	if len(valid) == 0 {
		report.Warnings = append(report.Warnings, Warning{Message: NoValidData})
	} else {
		report.Appended = r.table.Append(valid...)
		for _, rec := range valid {
			report.Records = append(report.Records, *rec)
		}
		r.archive(ctx, logger, report.ID, valid)
	}

	report.FinishedAt = time.Now()
	logger.Info("batch finished",
		"requested", report.Requested,
		"appended", report.Appended,
		"warnings", len(report.Warnings),
		"cancelled", report.Cancelled,
		"took", report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

// SkippedMessage is the warning for a code the batch never attempted.
const SkippedMessage = "SKU %s was skipped: batch cancelled."

func skipped(codes []string) []Warning {
	warnings := make([]Warning, 0, len(codes))
	for _, code := range codes {
		warnings = append(warnings, Warning{SKU: code, Message: fmt.Sprintf(SkippedMessage, code)})
	}
	return warnings
}

func (r *Runner) extract(ctx context.Context, page browser.Page, code string) (rec *models.ProductRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.scraper.Extract(ctx, page, code)
}

func (r *Runner) feedback(ok bool) {
	fb, isFeedback := r.opts.Pacer.(ratelimit.Feedback)
	if !isFeedback {
		return
	}
	if ok {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}

func (r *Runner) archive(ctx context.Context, logger *slog.Logger, batchID uuid.UUID, recs []*models.ProductRecord) {
	if r.opts.Archiver == nil {
		return
	}
	// Archive even when the request that triggered the batch was cancelled.
	ctx = context.WithoutCancel(ctx)
	for _, rec := range recs {
		if err := r.opts.Archiver.Archive(ctx, batchID, rec); err != nil {
			logger.Error("failed to archive record", "sku", rec.SKU, "error", err)
		}
	}
}
