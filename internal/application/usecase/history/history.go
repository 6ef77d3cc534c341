// Package history reads back persisted analysis documents: listings for
// the history command and historical lookups for backtests.
package history

import (
	"fmt"
	"time"

	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/infra/repository/cache"
)

// Reader answers queries over the cache directory.
type Reader struct {
	repo *cache.Repository
}

// NewReader wraps a cache repository.
func NewReader(repo *cache.Repository) *Reader {
	return &Reader{repo: repo}
}

// List returns the run summaries for symbol in ascending day order. An
// empty symbol lists every symbol in the cache directory.
func (r *Reader) List(symbol string) ([]cache.Entry, error) {
	sc, err := r.repo.Scan(symbol)
	if err != nil {
		return nil, err
	}
	var out []cache.Entry
	for sc.Next() {
		out = append(out, sc.Entry())
	}
	return out, nil
}

// LoadForBacktest returns the newest document dated at or before testDate.
// The scan is ascending, so the last match wins.
func (r *Reader) LoadForBacktest(symbol string, testDate time.Time) (cache.Entry, *cache.Document, error) {
	sc, err := r.repo.Scan(symbol)
	if err != nil {
		return cache.Entry{}, nil, err
	}

	cutoff := dateOnly(testDate)
	var best cache.Entry
	var bestDoc *cache.Document
	for sc.Next() {
		entry := sc.Entry()
		if entry.Day.After(cutoff) {
			break
		}
		best = entry
		bestDoc = sc.Document()
	}
	if bestDoc == nil {
		return cache.Entry{}, nil, workflow.NewNotFoundError(
			fmt.Sprintf("no cached analysis for %s at or before %s",
				symbol, cutoff.Format("2006-01-02"))).
			WithDetail("symbol", symbol).
			WithDetail("test_date", cutoff.Format("2006-01-02"))
	}
	return best, bestDoc, nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
