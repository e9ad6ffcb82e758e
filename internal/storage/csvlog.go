package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var csvHeader = []string{"timestamp", "symbol", "price", "change_24h", "asset_type"}

// CSVMirror appends stored samples to a flat export file. Writes are best
// effort: the caller treats a mirror failure as non-fatal.
type CSVMirror struct {
	path string
	mu   sync.Mutex
}

// NewCSVMirror ensures the export file exists with a header row.
func NewCSVMirror(path string) (*CSVMirror, error) {
	if path == "" {
		return nil, fmt.Errorf("csv mirror path is required")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create csv log directory: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err == nil && info.Size() > 0 {
		return &CSVMirror{path: path}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create csv log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVMirror{path: path}, nil
}

// Append writes one sample line to the export file.
func (m *CSVMirror) Append(sample PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	record := []string{
		sample.ObservedAt.UTC().Format(time.RFC3339),
		sample.Symbol,
		sample.Price.String(),
		sample.Change24h.String(),
		sample.AssetType,
	}
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	return nil
}
