package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ngld/mix/pkg/buildsys"
	"github.com/ngld/mix/pkg/config"
)

var (
	cfg    *config.Config
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "mixtool",
	Short: "Development tools for the MIX machine",
	Long: `This command bundles the tools used to develop the MIX machine model.
Most importantly it runs the project tasks (test, bench, tdd and clean) declared in tasks.star.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		if !cmd.Flags().Changed("config") {
			configFile = projectConfig(configFile)
		}

		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}

		logger = newLogger(cmd, cfg)

		if exe, err := os.Executable(); err == nil {
			buildsys.HelperBinary = exe
		}
		return nil
	},
}

// projectConfig returns the nearest config file in the working directory or its parents, so the project's
// config applies wherever mixtool runs inside the project. fallback is returned if there is none.
func projectConfig(fallback string) string {
	wd, err := os.Getwd()
	if err != nil {
		return fallback
	}

	found, err := findInParents(wd, config.DefaultFile)
	if err != nil {
		return fallback
	}
	return found
}

func newLogger(cmd *cobra.Command, cfg *config.Config) zerolog.Logger {
	out := cmd.ErrOrStderr()

	var result zerolog.Logger
	if cfg.Log.JSON {
		result = zerolog.New(out).With().Timestamp().Logger()
	} else {
		color := false
		if f, ok := out.(*os.File); ok {
			color = term.IsTerminal(int(f.Fd()))
		}
		result = zerolog.New(NewConsoleWriter(out, color))
	}

	return result.Level(cfg.LogLevel())
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultFile,
		"configuration file; by default the nearest "+config.DefaultFile+" in the working directory or its parents")

	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv("BUILDSYS_DEBUG") != "")
	}
}

// exitCode maps an error returned by a command to the process exit code. Failed shell commands pass their
// own exit status through.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	if status, ok := buildsys.ExitStatus(err); ok && status != 0 {
		return status
	}
	return 1
}

func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	if _, ok := buildsys.ExitStatus(err); ok {
		logger.Error().Msg(err.Error())
	} else {
		if cfg == nil {
			// the logger isn't configured if loading the config failed
			logger = zerolog.New(NewConsoleWriter(os.Stderr, false))
		}
		logger.Error().Err(err).Msg("failed")
	}

	os.Exit(exitCode(err))
}
