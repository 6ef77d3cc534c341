package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/infra/persistence/file"
)

// fileNamePattern matches cache file names: SYMBOL_YYYYMMDD.json. Symbols
// may carry dots and dashes (BRK.B, BF-B).
var fileNamePattern = regexp.MustCompile(`^([A-Z0-9.\-]+)_(\d{8})\.json$`)

const fileDateLayout = "20060102"

// FileName builds the cache file name for a symbol on a given day.
func FileName(symbol string, day time.Time) string {
	return fmt.Sprintf("%s_%s.json", symbol, day.UTC().Format(fileDateLayout))
}

// ParseFileName splits a cache file name into its symbol and day.
func ParseFileName(name string) (symbol string, day time.Time, err error) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("not a cache file name: %s", name)
	}
	day, err = time.Parse(fileDateLayout, m[2])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("bad date in cache file name %s: %w", name, err)
	}
	return m[1], day, nil
}

// Repository stores cache documents as JSON files in one directory.
type Repository struct {
	fsys afero.Fs
	dir  string
}

// NewRepository builds a repository over fsys rooted at dir.
func NewRepository(fsys afero.Fs, dir string) *Repository {
	return &Repository{fsys: fsys, dir: dir}
}

// Fs exposes the underlying filesystem for lock acquisition.
func (r *Repository) Fs() afero.Fs { return r.fsys }

// Dir is the cache directory.
func (r *Repository) Dir() string { return r.dir }

// Path resolves a cache file name inside the cache directory.
func (r *Repository) Path(name string) string {
	return filepath.Join(r.dir, name)
}

// LockPath is the lock file guarding one cache file.
func (r *Repository) LockPath(name string) string {
	return r.Path(name) + ".lock"
}

// Exists reports whether a cache file is present.
func (r *Repository) Exists(name string) (bool, error) {
	ok, err := afero.Exists(r.fsys, r.Path(name))
	if err != nil {
		return false, workflow.NewCacheIOError(
			fmt.Sprintf("stat cache file %s", name), err)
	}
	return ok, nil
}

// Load reads and decodes one cache document. A missing file returns
// (nil, nil); the caller decides whether that violates its mode's
// preconditions. Unreadable or undecodable files are cache IO failures.
func (r *Repository) Load(name string) (*Document, error) {
	data, err := afero.ReadFile(r.fsys, r.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, workflow.NewCacheIOError(
			fmt.Sprintf("read cache file %s", name), err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, workflow.NewCacheIOError(
			fmt.Sprintf("decode cache file %s", name), err).
			WithDetail("cache_file", name)
	}
	return &doc, nil
}

// Save writes one cache document atomically.
func (r *Repository) Save(name string, doc *Document) error {
	if err := file.WriteJSONAtomic(r.fsys, r.Path(name), doc, 0o644); err != nil {
		return workflow.NewCacheIOError(
			fmt.Sprintf("write cache file %s", name), err).
			WithDetail("cache_file", name)
	}
	return nil
}

// ListFiles returns the cache file names in the directory, sorted. Names
// that do not look like cache files are ignored. An absent cache directory
// reads as empty.
func (r *Repository) ListFiles() ([]string, error) {
	infos, err := afero.ReadDir(r.fsys, r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, workflow.NewCacheIOError("list cache directory", err)
	}
	var names []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if fileNamePattern.MatchString(info.Name()) {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
