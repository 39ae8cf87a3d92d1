package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestMaskKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "<empty>"},
		{"abc", "***"},
		{"abcdefghij", "abc...hij"},
		{"ABCDEF1234567890xyz", "ABCDEF...890xyz (len=19)"},
	}
	for _, tt := range tests {
		if got := MaskKey(tt.in); got != tt.want {
			t.Errorf("MaskKey(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Fatal("debug not parsed")
	}
	if ParseLevel("warning") != zerolog.WarnLevel {
		t.Fatal("warning not parsed")
	}
	if ParseLevel("nonsense") != zerolog.InfoLevel {
		t.Fatal("unknown level should default to info")
	}
}

func TestJSONOutputCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewWithWriter(&buf, "info", "json"), "store")
	l.Info().Msg("hello")
	l.Debug().Msg("suppressed")

	out := buf.String()
	if !strings.Contains(out, `"component":"store"`) {
		t.Fatalf("missing component field: %s", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Fatalf("debug line should be filtered at info level: %s", out)
	}
}
