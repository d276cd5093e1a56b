package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sunnytower/psh/internal/config"
	"github.com/sunnytower/psh/internal/shell"
)

func main() {
	status, err := mainImplementation(os.Stdin, os.Stdout, os.Stderr, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "psh: %s\n", err)
		os.Exit(1)
	}
	os.Exit(status)
}

func mainImplementation(stdin, stdout, stderr *os.File, args []string) (int, error) {
	var command string
	var configPath string
	var logLevel string
	jobControl := true
	useColor := true

	status := 0

	rootCmd := &cobra.Command{
		Use:   "psh [script]",
		Short: "A line-oriented shell with pipelines, redirections and job control",
		Long: `psh reads command lines and runs each of them as a pipeline of
programs connected by pipes ("|"), with their input and output
optionally redirected from or to files ("<", ">").

Commands are read from the script, if one is given, or else from
standard input. If standard input is a terminal, psh shows a prompt
and runs each pipeline as a job in the terminal's foreground.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if command != "" && len(args) > 0 {
				return errors.New("a script can't be combined with --command")
			}

			cfg, err := config.Load(afero.NewOsFs(), configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("no-job-control") {
				cfg.JobControl = jobControl
			}
			if flags.Changed("no-color") {
				cfg.Color = useColor
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cfg.NewLogger(stderr)
			ctx := context.Background()

			switch {
			case command != "":
				session := &shell.Session{
					Stdin:  stdin,
					Stdout: stdout,
					Stderr: stderr,
					Config: cfg,
					Fs:     afero.NewOsFs(),
					Logger: logger,
				}
				status, err = shell.New(session).RunLine(ctx, command)
				if errors.Is(err, shell.ErrExit) {
					status = 0
				}
				return nil

			case len(args) == 1:
				script, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer script.Close()

				session := &shell.Session{
					Stdin:  stdin,
					Stdout: stdout,
					Stderr: stderr,
					Config: cfg,
					Fs:     afero.NewOsFs(),
					Logger: logger,
				}
				status = shell.New(session).Run(ctx, script)
				return nil

			default:
				session := shell.Open(cfg, stdin, stdout, stderr, logger)
				defer func() {
					if err := session.Close(); err != nil {
						logger.Warn("closing session", "err", err)
					}
				}()

				status = shell.New(session).Run(ctx, stdin)
				return nil
			}
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&command, "command", "c", "", "run `line` and exit with its status")
	flags.StringVar(
		&configPath, "config", "",
		"read settings from `file` (default $XDG_CONFIG_HOME/psh/config.yaml)",
	)
	flags.StringVar(&logLevel, "log-level", "", "log messages at `level` (debug, info, warn or error) and above")
	flags.Var(
		&NegatedBoolValue{&jobControl}, "no-job-control",
		"don't give pipelines their own process group and the terminal",
	)
	flags.Lookup("no-job-control").NoOptDefVal = "true"
	flags.Var(&NegatedBoolValue{&useColor}, "no-color", "don't color the prompt and diagnostics")
	flags.Lookup("no-color").NoOptDefVal = "true"

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		return 1, err
	}
	return status, nil
}
