// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the kretalogin command line.
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"go.kretalogin.dev/internal/plog"
)

func newRootCommand(login loginDeps, refresh refreshDeps) *cobra.Command {
	var logSpec plog.LogSpec
	logLevel := logLevelFlag(plog.LevelWarning)
	logFormat := logFormatFlag(plog.FormatCLI)

	cmd := &cobra.Command{
		Use:   "kretalogin",
		Short: "kretalogin",
		Long: "kretalogin logs a student in to e-KRÉTA without a browser and prints the issued tokens.\n\n" +
			"Logs are written to stderr, so stdout only ever contains the requested output.",
		SilenceUsage: true, // do not print usage message when commands fail
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logSpec.Level = plog.LogLevel(logLevel)
			logSpec.Format = plog.LogFormat(logFormat)
			return plog.ValidateAndSetLogLevelAndFormatGlobally(cmd.Context(), logSpec)
		},
	}
	cmd.PersistentFlags().Var(&logLevel, "log-level", "Log verbosity: one of info, debug, trace or all (warnings and errors are always logged)")
	cmd.PersistentFlags().Var(&logFormat, "log-format", "Log format: cli or json")

	cmd.AddCommand(newLoginCommand(login))
	cmd.AddCommand(newRefreshCommand(refresh))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// Execute runs the command line. It is called by main.main().
func Execute() error {
	defer plog.Setup()()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return newRootCommand(loginRealDeps(), refreshRealDeps()).ExecuteContext(ctx)
}
