// Package journal appends one NDJSON line per finished analysis run. The
// journal is an audit trail, not a source of truth: a write failure must
// never fail the run that produced it, so callers log and move on.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Record is one journal line.
type Record struct {
	Timestamp      string   `json:"timestamp"` // UTC RFC3339Nano
	RunID          string   `json:"run_id"`
	Symbol         string   `json:"symbol"`
	Mode           string   `json:"mode"`
	CacheFile      string   `json:"cache_file"`
	TotalScore     *float64 `json:"total_score,omitempty"`
	MaterialChange *bool    `json:"material_change,omitempty"`
	ElapsedMs      int64    `json:"elapsed_ms"`
	Stages         []string `json:"stages"`
}

// Writer appends to and reads back one NDJSON journal file.
type Writer struct {
	fsys afero.Fs
	path string
}

// NewWriter builds a journal writer for path.
func NewWriter(fsys afero.Fs, path string) *Writer {
	return &Writer{fsys: fsys, path: path}
}

// Path is the journal file location.
func (w *Writer) Path() string { return w.path }

// Append adds one record to the journal.
func (w *Writer) Append(rec Record) error {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if rec.Stages == nil {
		rec.Stages = []string{}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}

	if err := w.fsys.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	f, err := w.fsys.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	return nil
}

// Load reads every record in the journal, oldest first. Corrupt lines are
// skipped with a warning so one torn write does not hide the history. A
// missing journal reads as empty.
func (w *Writer) Load() ([]Record, error) {
	f, err := w.fsys.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Warn().
				Str("journal", w.path).
				Int("line", lineNum).
				Err(err).
				Msg("skipping corrupt journal line")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return records, nil
}
