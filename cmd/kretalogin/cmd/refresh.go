// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"go.kretalogin.dev/internal/credentialsource"
	"go.kretalogin.dev/internal/plog"
	"go.kretalogin.dev/pkg/oidcclient"
	"go.kretalogin.dev/pkg/oidcclient/oidctypes"
)

type refreshFunc func(ctx context.Context, instituteCode, refreshToken string, opts ...oidcclient.Option) (*oidctypes.TokenResponse, error)

type refreshDeps struct {
	refresh refreshFunc
	// environ replaces the process environment when non-nil.
	environ map[string]string
}

func refreshRealDeps() refreshDeps {
	return refreshDeps{
		refresh: oidcclient.Refresh,
	}
}

type refreshFlags struct {
	instituteCode string
	refreshToken  string
	envFile       string
	output        outputFormat
}

func newRefreshCommand(deps refreshDeps) *cobra.Command {
	flags := refreshFlags{output: outputJSON}
	cmd := &cobra.Command{
		Use:   "refresh [--institute-code CODE] [--refresh-token TOKEN]",
		Short: "Exchange a refresh token for new tokens",
		Long: "Exchange a refresh token for new tokens.\n\n" +
			"The institute code and the refresh token default to the KRETA_INSTITUTE_CODE and\n" +
			"KRETA_REFRESH_TOKEN environment variables.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd.Context(), cmd.OutOrStdout(), deps, flags)
		},
	}
	cmd.Flags().StringVar(&flags.instituteCode, "institute-code", "", "Institute code of the school")
	cmd.Flags().StringVar(&flags.refreshToken, "refresh-token", "", "Refresh token from an earlier login")
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Path of a dotenv file with KRETA_* variables, used where the environment does not set them")
	cmd.Flags().Var(&flags.output, "output", "Output format: json or access-token")
	return cmd
}

func runRefresh(ctx context.Context, out io.Writer, deps refreshDeps, flags refreshFlags) error {
	environ := deps.environ
	if flags.envFile != "" {
		var err error
		if environ, err = credentialsource.ReadEnvFile(flags.envFile, environ); err != nil {
			return err
		}
	}
	env, err := credentialsource.ParseEnv(environ)
	if err != nil {
		return err
	}
	if flags.instituteCode == "" {
		flags.instituteCode = strings.TrimSpace(env.InstituteCode)
	}
	if flags.refreshToken == "" {
		flags.refreshToken = env.RefreshToken
	}
	if flags.instituteCode == "" {
		return fmt.Errorf("missing institute code: use --institute-code or the %s environment variable", credentialsource.InstituteCodeEnvVarName)
	}
	if flags.refreshToken == "" {
		return fmt.Errorf("missing refresh token: use --refresh-token or the %s environment variable", credentialsource.RefreshTokenEnvVarName)
	}

	token, err := deps.refresh(ctx, flags.instituteCode, flags.refreshToken, oidcclient.WithLoginLogger(plog.New().WithName("oidcclient")))
	if err != nil {
		return fmt.Errorf("could not refresh tokens: %w", err)
	}
	return printTokenResponse(out, token, flags.output)
}
