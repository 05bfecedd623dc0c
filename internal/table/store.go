package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/maltedev/sku-scraper/internal/models"
)

type snapshot struct {
	SavedAt time.Time              `json:"saved_at"`
	Records []models.ProductRecord `json:"records"`
}

// FileStore keeps a JSON snapshot of a Table so the CLI can accumulate rows
// across invocations.
type FileStore struct {
	filename string
}

func NewFileStore(filename string) *FileStore {
	return &FileStore{filename: filename}
}

func (s *FileStore) Filename() string {
	return s.filename
}

// Load replaces t with the snapshot. A missing file loads an empty table.
func (s *FileStore) Load(t *Table) error {
	data, err := os.ReadFile(s.filename)
	if errors.Is(err, os.ErrNotExist) {
		t.Replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read table state: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode table state %s: %w", s.filename, err)
	}

	t.Replace(snap.Records)
	return nil
}

func (s *FileStore) Save(t *Table) error {
	data, err := json.MarshalIndent(snapshot{
		SavedAt: time.Now(),
		Records: t.Records(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode table state: %w", err)
	}

	// Write to temp file first for atomicity
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write table state: %w", err)
	}

	if err := os.Rename(tmpFile, s.filename); err != nil {
		return fmt.Errorf("failed to replace table state: %w", err)
	}
	return nil
}
