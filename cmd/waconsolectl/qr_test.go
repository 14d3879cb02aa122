package main

import (
	"strings"
	"testing"
)

func TestRenderQR(t *testing.T) {
	out := renderQR("2@abc,def,ghi")
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("got %d lines, want a full code", len(lines))
	}
	width := len([]rune(lines[0]))
	for i, l := range lines {
		if n := len([]rune(l)); n != width {
			t.Fatalf("line %d has %d runes, want %d", i, n, width)
		}
	}
	if !strings.ContainsAny(out, "█▀▄") {
		t.Error("no dark modules rendered")
	}
}

func TestHalfBlock(t *testing.T) {
	tests := []struct {
		top, bottom bool
		want        rune
	}{
		{true, true, '█'},
		{true, false, '▀'},
		{false, true, '▄'},
		{false, false, ' '},
	}
	for _, tt := range tests {
		if got := halfBlock(tt.top, tt.bottom); got != tt.want {
			t.Errorf("halfBlock(%v, %v) = %q, want %q", tt.top, tt.bottom, got, tt.want)
		}
	}
}
