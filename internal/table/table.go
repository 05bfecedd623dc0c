package table

import (
	"sync"

	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/scoring"
)

// Columns of the rendered and exported table, in order.
var Columns = []string{"SKU", "Name", "Description", "Price", "Stock Available", "URL", "Score"}

// Row is a record as displayed: the stored fields plus the derived score.
type Row struct {
	models.ProductRecord
	Score scoring.Breakdown `json:"score"`
}

// Table accumulates scraped records for the lifetime of a session. It only
// grows until Clear; duplicate SKUs are kept as separate rows.
type Table struct {
	mu       sync.RWMutex
	records  []models.ProductRecord
	onChange func(rows int)
}

func New() *Table {
	return &Table{}
}

// OnChange registers fn to be called with the row count after every change.
func (t *Table) OnChange(fn func(rows int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Append adds the non-nil records in order and returns how many were added.
func (t *Table) Append(recs ...*models.ProductRecord) int {
	t.mu.Lock()
	added := 0
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		t.records = append(t.records, *rec)
		added++
	}
	n, fn := len(t.records), t.onChange
	t.mu.Unlock()

	if fn != nil && added > 0 {
		fn(n)
	}
	return added
}

func (t *Table) Clear() {
	t.mu.Lock()
	t.records = nil
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(0)
	}
}

// Replace swaps the whole content, used when restoring a snapshot.
func (t *Table) Replace(recs []models.ProductRecord) {
	t.mu.Lock()
	t.records = append([]models.ProductRecord(nil), recs...)
	n, fn := len(t.records), t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(n)
	}
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func (t *Table) Records() []models.ProductRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.ProductRecord(nil), t.records...)
}

// View renders the table with a freshly computed score per row.
func (t *Table) View() []Row {
	records := t.Records()
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row{ProductRecord: rec, Score: scoring.Evaluate(rec)}
	}
	return rows
}
