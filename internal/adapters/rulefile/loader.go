// Package rulefile loads the global rule catalog from YAML files and keeps it
// in sync while the files change.
package rulefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

// entry is one rule in a catalog file:
//
//	- code: GRADE_RANGE
//	  title: Grade level within K-12
//	  severity: error
//	  dsl: {type: grade_range, min: 0, max: 12}
type entry struct {
	Code        string         `yaml:"code"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Severity    string         `yaml:"severity"`
	AppliesTo   string         `yaml:"applies_to"`
	DSL         map[string]any `yaml:"dsl"`
	Remediation string         `yaml:"remediation"`
	Enabled     *bool          `yaml:"enabled"`
}

var extensions = []string{".yaml", ".yml"}

// Load reads a catalog file, or every catalog file in a directory in name
// order.
func Load(path string) ([]usecase.RuleVersionInput, error) {
	files, err := catalogFiles(path)
	if err != nil {
		return nil, err
	}
	var out []usecase.RuleVersionInput
	for _, f := range files {
		inputs, err := loadFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, inputs...)
	}
	return out, nil
}

func catalogFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rule catalog: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read rule catalog dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !hasCatalogExt(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func hasCatalogExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func loadFile(path string) ([]usecase.RuleVersionInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entries []entry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make([]usecase.RuleVersionInput, 0, len(entries))
	for i, e := range entries {
		title := e.Title
		if title == "" {
			title = e.Description
		}
		severity := e.Severity
		if severity == "" {
			severity = "error"
		}
		dsl := e.DSL
		if dsl == nil {
			dsl = map[string]any{}
		}
		body, err := json.Marshal(dsl)
		if err != nil {
			return nil, fmt.Errorf("%s: rule %d dsl: %w", path, i+1, err)
		}
		out = append(out, usecase.RuleVersionInput{
			Code:        e.Code,
			Title:       title,
			Severity:    severity,
			AppliesTo:   e.AppliesTo,
			DSL:         body,
			Remediation: e.Remediation,
			Enabled:     e.Enabled,
		})
	}
	return out, nil
}
