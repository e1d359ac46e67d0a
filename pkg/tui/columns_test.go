package tui

import (
	"os"
	"path/filepath"
	"testing"
)

func writeLayout(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "columns.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadColumnsEmptyPath(t *testing.T) {
	cols, err := LoadColumns("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != len(DefaultColumns()) {
		t.Errorf("got %d columns, want defaults", len(cols))
	}
}

func TestLoadColumnsReorderAndResize(t *testing.T) {
	path := writeLayout(t, `
columns:
  - name: role
  - name: host
    title: INSTANCE
    width: 40
  - name: lag_mb
`)
	cols, err := LoadColumns(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 3 {
		t.Fatalf("got %d columns, want 3", len(cols))
	}
	if cols[0].Name != ColRole || cols[1].Name != ColHost || cols[2].Name != ColLagBytes {
		t.Errorf("order = %v %v %v", cols[0].Name, cols[1].Name, cols[2].Name)
	}
	if cols[1].Title != "INSTANCE" || cols[1].Width != 40 {
		t.Errorf("override not applied: %+v", cols[1])
	}
	// Untouched fields come from the defaults.
	if cols[0].Title != "ROLE" || cols[0].Width != 11 {
		t.Errorf("default fields lost: %+v", cols[0])
	}
}

func TestLoadColumnsDisable(t *testing.T) {
	path := writeLayout(t, `
columns:
  - name: host
  - name: drift
    enabled: false
  - name: lsn
`)
	cols, err := LoadColumns(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 2 {
		t.Fatalf("got %d columns, want 2", len(cols))
	}
	for _, c := range cols {
		if c.Name == ColDrift {
			t.Error("disabled column still present")
		}
	}
}

func TestLoadColumnsRejectsUnknownName(t *testing.T) {
	path := writeLayout(t, "columns:\n  - name: bogus\n")
	if _, err := LoadColumns(path); err == nil {
		t.Fatal("unknown column name accepted")
	}
}

func TestLoadColumnsRejectsAllDisabled(t *testing.T) {
	path := writeLayout(t, `
columns:
  - name: host
    enabled: false
`)
	if _, err := LoadColumns(path); err == nil {
		t.Fatal("empty layout accepted")
	}
}

func TestLoadColumnsMissingFile(t *testing.T) {
	if _, err := LoadColumns(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
