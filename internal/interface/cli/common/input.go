package common

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/foreverwb/swing-workflow/internal/app"
	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/params"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

// paramsFileName is the default document name when --input points at a
// directory.
const paramsFileName = "params.json"

// LoadParams reads a market parameter document. path may name the JSON
// file itself or a directory holding params.json. Top-level keys starting
// with an underscore are annotations for humans and are dropped.
func LoadParams(fsys afero.Fs, path string) (map[string]any, error) {
	isDir, err := afero.IsDir(fsys, path)
	if err == nil && isDir {
		path = filepath.Join(path, paramsFileName)
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, workflow.NewParameterError(
			fmt.Sprintf("read input %s: %v", path, err)).
			WithDetail("input", path)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, workflow.NewParameterError(
			fmt.Sprintf("parse input %s: %v", path, err)).
			WithDetail("input", path)
	}

	for key := range out {
		if strings.HasPrefix(key, "_") {
			delete(out, key)
		}
	}
	return out, nil
}

// ParseSetFlags converts --set key=value pairs into a nested override map.
// Dotted keys nest; values read as bool, then number, then string. Later
// pairs win over earlier ones.
func ParseSetFlags(pairs []string) (map[string]any, error) {
	out := map[string]any{}
	for _, raw := range pairs {
		key, val, found := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, workflow.NewParameterError(
				fmt.Sprintf("malformed --set %q, want key=value", raw))
		}
		mergeInto(out, params.Expand(key, parseScalar(strings.TrimSpace(val))))
	}
	return out, nil
}

func parseScalar(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if dstMap, ok := dst[k].(map[string]any); ok {
			if srcMap, ok := v.(map[string]any); ok {
				mergeInto(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}

// BuildRunInput assembles the market map and dynamic overlay for a run:
// the input document, then the derived market state when the core
// readings are present, then --set overrides on top. requireCore makes a
// missing or invalid core reading set fatal, which full runs demand.
func BuildRunInput(fsys afero.Fs, cfg app.Config, inputPath string, setFlags []string, requireCore bool) (map[string]any, map[string]any, error) {
	marketParams := map[string]any{}
	if inputPath != "" {
		loaded, err := LoadParams(fsys, inputPath)
		if err != nil {
			return nil, nil, err
		}
		marketParams = loaded
	}

	overrides, err := ParseSetFlags(setFlags)
	if err != nil {
		return nil, nil, err
	}

	dynParams := map[string]any{}
	if p, ferr := market.FromMap(marketParams); ferr == nil {
		dynParams = market.CalcState(p, cfg.CalcThresholds())
	} else if requireCore {
		return nil, nil, ferr
	}
	mergeInto(dynParams, overrides)

	return marketParams, dynParams, nil
}
