package cmd

import (
	"testing"

	"github.com/rotisserie/eris"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys/cmd"
)

func TestExitCode(t *testing.T) {
	tests := map[string]struct {
		err  error
		code int
	}{
		"success":     {nil, 0},
		"failed task": {cmd.ErrTaskFailed, 1},
		"interrupted": {cmd.ErrInterrupted, 130},
		"other error": {eris.New("bad flag"), 1},
	}

	for name, test := range tests {
		if got := exitCode(test.err); got != test.code {
			t.Errorf("%s: exitCode() = %d, want %d", name, got, test.code)
		}
	}
}
