package tui

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ColumnSpec describes one table column. The built-in set can be overridden
// from a YAML file to reorder, rename, resize or hide columns.
type ColumnSpec struct {
	Name    string `yaml:"name"`
	Title   string `yaml:"title"`
	Width   int    `yaml:"width"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// Column names understood by the renderer.
const (
	ColHost     = "host"
	ColRole     = "role"
	ColUpstream = "upstream"
	ColLSN      = "lsn"
	ColSlot     = "slot"
	ColLagSec   = "lag_sec"
	ColLagBytes = "lag_mb"
	ColWALRate  = "wal_sec"
	ColDrift    = "drift"
)

// DefaultColumns is the built-in layout.
func DefaultColumns() []ColumnSpec {
	return []ColumnSpec{
		{Name: ColHost, Title: "HOST", Width: 25},
		{Name: ColRole, Title: "ROLE", Width: 11},
		{Name: ColUpstream, Title: "UPSTREAM", Width: 25},
		{Name: ColLSN, Title: "LSN", Width: 13},
		{Name: ColSlot, Title: "SLOT", Width: 12},
		{Name: ColLagSec, Title: "LAG(s)", Width: 8},
		{Name: ColLagBytes, Title: "LAG(MB)", Width: 10},
		{Name: ColWALRate, Title: "WAL MB/s", Width: 10},
		{Name: ColDrift, Title: "DRIFT", Width: 10},
	}
}

type columnsFile struct {
	Columns []ColumnSpec `yaml:"columns"`
}

// LoadColumns merges a YAML layout file over the defaults. Entries in the
// file pick order; unknown names are rejected so typos do not silently drop
// a column.
func LoadColumns(path string) ([]ColumnSpec, error) {
	if path == "" {
		return DefaultColumns(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("column layout: %w", err)
	}
	var cf columnsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("column layout %s: %w", path, err)
	}
	if len(cf.Columns) == 0 {
		return DefaultColumns(), nil
	}

	defaults := make(map[string]ColumnSpec)
	for _, c := range DefaultColumns() {
		defaults[c.Name] = c
	}

	out := make([]ColumnSpec, 0, len(cf.Columns))
	for _, c := range cf.Columns {
		base, ok := defaults[c.Name]
		if !ok {
			return nil, fmt.Errorf("column layout %s: unknown column %q", path, c.Name)
		}
		if c.Enabled != nil && !*c.Enabled {
			continue
		}
		if c.Title != "" {
			base.Title = c.Title
		}
		if c.Width > 0 {
			base.Width = c.Width
		}
		out = append(out, base)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("column layout %s: every column disabled", path)
	}
	return out, nil
}
