package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

func TestConsoleWriter(t *testing.T) {
	t.Setenv(DebugEnv, "")

	var out bytes.Buffer
	logger := zerolog.New(NewConsoleWriter(&out))

	logger.Info().Str("task", "styles").Msg("compiled style.min.css")
	logger.Info().Bool("command", true).Msg("sass scss/style.scss")
	logger.Error().Err(eris.New("boom")).Msg("build failed")

	lines := out.String()
	for _, expected := range []string{
		"styles: compiled style.min.css",
		"$ sass scss/style.scss",
		"Error: build failed",
		"boom",
	} {
		if !strings.Contains(lines, expected) {
			t.Errorf("output is missing %q:\n%s", expected, lines)
		}
	}
}

func TestConsoleWriterRejectsInvalidEvents(t *testing.T) {
	var out bytes.Buffer
	if _, err := NewConsoleWriter(&out).Write([]byte("not json")); err == nil {
		t.Error("expected an error for malformed events")
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be written, got %q", out.String())
	}
}
