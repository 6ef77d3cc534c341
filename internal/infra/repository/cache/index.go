package cache

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/foreverwb/swing-workflow/internal/domain/analysis"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

// Entry summarizes one cache document for history listings and backtest
// selection. Pointer fields are nil when the document never produced the
// stage that supplies them.
type Entry struct {
	File           string    `json:"file"`
	Symbol         string    `json:"symbol"`
	Day            time.Time `json:"day"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
	Mode           string    `json:"mode"`
	RunID          string    `json:"run_id"`
	TotalScore     *float64  `json:"total_score,omitempty"`
	Scenario       string    `json:"scenario,omitempty"`
	MaterialChange *bool     `json:"material_change,omitempty"`
	Snapshots      int       `json:"snapshots"`
}

func entryFromDocument(name string, day time.Time, doc *Document) Entry {
	e := Entry{
		File:        name,
		Symbol:      doc.Symbol,
		Day:         day,
		CreatedAt:   doc.CreatedAt,
		LastUpdated: doc.LastUpdated,
		Mode:        doc.Mode,
		RunID:       doc.RunID,
		Snapshots:   len(doc.GreeksSnapshots),
	}
	if scenario, ok := analysis.ScenarioOf(doc.DynParams); ok {
		e.Scenario = scenario
	}
	if doc.StageResults == nil {
		return e
	}
	if payload, ok := doc.StageResults.Latest(workflow.StageScoring); ok {
		if total, ok := analysis.TotalScore(payload); ok {
			e.TotalScore = &total
		}
	}
	if payload, ok := doc.StageResults.Latest(workflow.StageComparison); ok {
		if material, ok := analysis.MaterialChangeFlag(payload); ok {
			e.MaterialChange = &material
		}
	}
	return e
}

// Scanner iterates a symbol's cache documents in ascending day order,
// loading each document lazily on Next. Documents that cannot be read are
// skipped with a warning so one corrupt file does not hide the rest of the
// history.
type Scanner struct {
	repo  *Repository
	files []string
	days  []time.Time
	pos   int
	entry Entry
	doc   *Document
}

// Scan lists the cache files for symbol and returns a scanner positioned
// before the first. An empty symbol scans the whole directory.
func (r *Repository) Scan(symbol string) (*Scanner, error) {
	names, err := r.ListFiles()
	if err != nil {
		return nil, err
	}

	type candidate struct {
		name string
		day  time.Time
	}
	var candidates []candidate
	for _, name := range names {
		sym, day, err := ParseFileName(name)
		if err != nil {
			continue
		}
		if symbol != "" && sym != symbol {
			continue
		}
		candidates = append(candidates, candidate{name: name, day: day})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].day.Equal(candidates[j].day) {
			return candidates[i].day.Before(candidates[j].day)
		}
		return candidates[i].name < candidates[j].name
	})

	s := &Scanner{repo: r}
	for _, c := range candidates {
		s.files = append(s.files, c.name)
		s.days = append(s.days, c.day)
	}
	return s, nil
}

// Next advances to the next readable document, reporting false at the end.
func (s *Scanner) Next() bool {
	for s.pos < len(s.files) {
		name := s.files[s.pos]
		day := s.days[s.pos]
		s.pos++

		doc, err := s.repo.Load(name)
		if err != nil || doc == nil {
			log.Warn().
				Str("cache_file", name).
				Err(err).
				Msg("skipping unreadable cache document")
			continue
		}
		s.entry = entryFromDocument(name, day, doc)
		s.doc = doc
		return true
	}
	return false
}

// Entry is the summary of the current document.
func (s *Scanner) Entry() Entry { return s.entry }

// Document is the full current document.
func (s *Scanner) Document() *Document { return s.doc }

// Reset rewinds the scanner so the history can be walked again.
func (s *Scanner) Reset() {
	s.pos = 0
	s.entry = Entry{}
	s.doc = nil
}
