package log

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		environment string
		level       string
		want        zerolog.Level
	}{
		{environment: "development", level: "", want: zerolog.DebugLevel},
		{environment: "production", level: "", want: zerolog.InfoLevel},
		{environment: "production", level: "debug", want: zerolog.DebugLevel},
		{environment: "development", level: "WARN", want: zerolog.WarnLevel},
		{environment: "development", level: "error", want: zerolog.ErrorLevel},
		{environment: "production", level: "verbose", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.environment, tt.level); got != tt.want {
			t.Errorf("parseLevel(%q, %q) = %v, want %v", tt.environment, tt.level, got, tt.want)
		}
	}
}
