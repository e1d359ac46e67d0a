package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		minLevel  Level
		logAt     Level
		wantWrite bool
	}{
		{"debug suppressed at info", InfoLevel, DebugLevel, false},
		{"info passes at info", InfoLevel, InfoLevel, true},
		{"warn passes at info", InfoLevel, WarnLevel, true},
		{"info suppressed at error", ErrorLevel, InfoLevel, false},
		{"error passes at error", ErrorLevel, ErrorLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewJSONLogger(&buf, tt.minLevel)
			l.log(tt.logAt, "hello")
			if got := buf.Len() > 0; got != tt.wantWrite {
				t.Errorf("wrote=%v, want %v", got, tt.wantWrite)
			}
		})
	}
}

func TestJSONLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, DebugLevel)

	l.Info("sampling instance", Instance("db01:5432"), Int("attempt", 2))

	var got entry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got.Level != "INFO" {
		t.Errorf("level = %q, want INFO", got.Level)
	}
	if got.Message != "sampling instance" {
		t.Errorf("msg = %q", got.Message)
	}
	if got.Fields["instance"] != "db01:5432" {
		t.Errorf("instance field = %v", got.Fields["instance"])
	}
	if got.Fields["attempt"] != float64(2) {
		t.Errorf("attempt field = %v", got.Fields["attempt"])
	}
}

func TestWithPresetsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, InfoLevel)

	child := l.With(Component("sampler"), Host("10.0.0.1"))
	child.Info("connected")

	out := buf.String()
	if !strings.Contains(out, `"component":"sampler"`) {
		t.Errorf("missing preset component field: %s", out)
	}
	if !strings.Contains(out, `"host":"10.0.0.1"`) {
		t.Errorf("missing preset host field: %s", out)
	}

	// Parent must not inherit the child's fields
	buf.Reset()
	l.Info("plain")
	if strings.Contains(buf.String(), "sampler") {
		t.Errorf("parent logger polluted by child fields: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestErrorFieldNil(t *testing.T) {
	f := Error(nil)
	if f.Key != "error" || f.Value != nil {
		t.Errorf("Error(nil) = %+v", f)
	}
}
