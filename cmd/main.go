package cmd

import (
	"os"

	"github.com/rotisserie/eris"

	"github.com/Den107/gulp-plus-webpack/pkg"
	"github.com/Den107/gulp-plus-webpack/pkg/buildsys/cmd"
)

var rootCmd = cmd.RootCmd

// exitCode maps the command's result to the process exit code. Interrupted runs use the
// shell's convention for SIGINT.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case eris.Is(err, cmd.ErrInterrupted):
		return 130
	default:
		return 1
	}
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		// failed and interrupted tasks have been logged already
		if !eris.Is(err, cmd.ErrTaskFailed) && !eris.Is(err, cmd.ErrInterrupted) {
			pkg.PrintError(err.Error())
		}
	}

	if code := exitCode(err); code != 0 {
		os.Exit(code)
	}
}
