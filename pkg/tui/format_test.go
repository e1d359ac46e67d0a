package tui

import (
	"testing"
	"time"

	"github.com/sebmann/pgrepltop/pkg/monitor"
)

func TestCellString(t *testing.T) {
	fmtInt := func(v int64) string { return humanBytes(v) }

	if got := cellString(monitor.Known(int64(512)), fmtInt); got != "512B" {
		t.Errorf("known = %q", got)
	}
	if got := cellString(monitor.Known(int64(512)).Aged(), fmtInt); got != "512B*" {
		t.Errorf("stale = %q", got)
	}
	if got := cellString(monitor.Unknown[int64](), fmtInt); got != "?" {
		t.Errorf("unknown = %q", got)
	}
	if got := cellString(monitor.Unreadable[int64](), fmtInt); got != "?" {
		t.Errorf("unreadable = %q", got)
	}
}

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1.00K"},
		{1536, "1.50K"},
		{104857600, "100.00M"},
		{1073741824, "1.00G"},
		{-2048, "-2.00K"},
	}
	for _, tc := range cases {
		if got := humanBytes(tc.in); got != tc.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHumanRate(t *testing.T) {
	if got := humanRate(52.0 * 1024 * 1024); got != "52.00" {
		t.Errorf("humanRate = %q", got)
	}
	if got := humanRate(0); got != "0.00" {
		t.Errorf("humanRate(0) = %q", got)
	}
}

func TestHumanSeconds(t *testing.T) {
	if got := humanSeconds(2 * time.Second); got != "2" {
		t.Errorf("humanSeconds = %q", got)
	}
	if got := humanSeconds(90 * time.Second); got != "90" {
		t.Errorf("humanSeconds = %q", got)
	}
}

func TestHumanDrift(t *testing.T) {
	if got := humanDrift(-1500 * time.Millisecond); got != "-1.5s" {
		t.Errorf("humanDrift = %q", got)
	}
	if got := humanDrift(1234567 * time.Nanosecond); got != "1ms" {
		t.Errorf("humanDrift = %q", got)
	}
}
