// Package cmd implements the task runner command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Den107/gulp-plus-webpack/pkg"
	"github.com/Den107/gulp-plus-webpack/pkg/assets"
	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
	"github.com/Den107/gulp-plus-webpack/pkg/config"
)

// DefaultTask runs when no task is passed.
const DefaultTask = "default"

var (
	// ErrTaskFailed is returned after a failed task has been logged.
	ErrTaskFailed = eris.New("task failed")
	// ErrInterrupted is returned when a signal stopped the running task.
	ErrInterrupted = eris.New("interrupted")
)

var RootCmd = &cobra.Command{
	Use:   "assets [task ...] [option=value ...]",
	Short: "Front-end asset pipeline",
	Long: `Builds stylesheets, scripts, images and pages of a front-end project.

Without a task, the default task (the development mode) runs; --list shows the
available tasks. Tasks declared in the project's tasks.star are available next
to the built-in ones; option=value arguments are passed to that script.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		configFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		listTasks, err := cmd.Flags().GetBool("list")
		if err != nil {
			return err
		}

		taskArgs, options := parseArgs(args)

		projectRoot, err := pkg.GetProjectRoot()
		if err != nil {
			return err
		}

		cfg, err := config.Load(projectRoot, configFile)
		if err != nil {
			return err
		}

		var logger zerolog.Logger
		if cfg.Log.JSON {
			logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		} else {
			logger = zerolog.New(NewConsoleWriter(os.Stderr))
		}
		logger = logger.Level(cfg.LogLevel())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = buildsys.WithLogger(ctx, &logger)

		taskList, scriptOptions, err := loadTasks(ctx, projectRoot, cfg, options)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load tasks")
			return ErrTaskFailed
		}

		if listTasks {
			printTasks(taskList, scriptOptions)
			return nil
		}

		runner := buildsys.NewRunner(taskList, buildsys.RunOptions{
			ProjectRoot: projectRoot,
			DryRun:      dryRun,
			Force:       force,
		})

		for _, name := range taskArgs {
			err = runner.Run(ctx, name)
			if err != nil {
				if ctx.Err() != nil {
					logger.Warn().Msgf("Task %s was interrupted", name)
					return ErrInterrupted
				}

				logger.Error().Err(err).Msgf("Failed task %s", name)
				return ErrTaskFailed
			}
		}

		return nil
	},
}

// parseArgs splits the arguments into task names and option=value pairs. Without task names,
// DefaultTask is returned.
func parseArgs(args []string) ([]string, map[string]string) {
	taskArgs := make([]string, 0)
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			taskArgs = append(taskArgs, part)
		}
	}

	if len(taskArgs) == 0 {
		taskArgs = append(taskArgs, DefaultTask)
	}

	return taskArgs, options
}

// loadTasks builds the task registry and merges the tasks of the project script, if there is one.
func loadTasks(ctx context.Context, projectRoot string, cfg *config.Config, options map[string]string) (buildsys.TaskList, map[string]buildsys.ScriptOption, error) {
	project, err := assets.NewProject(projectRoot, cfg)
	if err != nil {
		return nil, nil, err
	}

	switch options["update"] {
	case "1", "true", "yes":
		project.VendorUpdate = true
	}

	taskList, err := assets.Registry(project)
	if err != nil {
		return nil, nil, err
	}

	scriptPath := filepath.Join(projectRoot, buildsys.ScriptName)
	if _, err := os.Stat(scriptPath); err != nil {
		if os.IsNotExist(err) {
			return taskList, nil, nil
		}
		return nil, nil, eris.Wrapf(err, "failed to check %s", scriptPath)
	}

	scriptTasks, scriptOptions, err := buildsys.LoadScript(ctx, scriptPath, projectRoot, options)
	if err != nil {
		return nil, nil, err
	}

	if err = taskList.Merge(scriptTasks); err != nil {
		return nil, nil, err
	}

	if err = taskList.Validate(); err != nil {
		return nil, nil, err
	}

	return taskList, scriptOptions, nil
}

func printTasks(taskList buildsys.TaskList, scriptOptions map[string]buildsys.ScriptOption) {
	pkg.PrintTask("Available tasks:")
	names := taskList.Names()

	maxNameLen := 0
	for _, name := range names {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		fmt.Printf(lineFmt, name+":", taskList[name].Desc)
	}

	if len(scriptOptions) > 0 {
		fmt.Println()
		pkg.PrintTask("Options:")

		optionNames := make([]string, 0, len(scriptOptions))
		for name := range scriptOptions {
			optionNames = append(optionNames, name)
		}
		sort.Strings(optionNames)

		for _, name := range optionNames {
			opt := scriptOptions[name]
			pkg.PrintSubtask(fmt.Sprintf("%s=%s  %s", name, opt.Default(), opt.Help))
		}
	}
}

func init() {
	RootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RootCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	RootCmd.Flags().BoolP("list", "l", false, "list the available tasks and script options")
	RootCmd.Flags().StringP("config", "c", "", "configuration file to use instead of assets.toml")
}
