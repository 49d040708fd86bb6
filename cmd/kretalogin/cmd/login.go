// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"go.kretalogin.dev/internal/credentialsource"
	"go.kretalogin.dev/internal/plog"
	"go.kretalogin.dev/pkg/oidcclient"
	"go.kretalogin.dev/pkg/oidcclient/oidctypes"
)

type loginFunc func(ctx context.Context, creds oidctypes.Credentials, opts ...oidcclient.Option) (*oidctypes.TokenResponse, error)

type loginDeps struct {
	login       loginFunc
	newResolver func() *credentialsource.Resolver
}

func loginRealDeps() loginDeps {
	return loginDeps{
		login:       oidcclient.Login,
		newResolver: credentialsource.NewResolver,
	}
}

type loginFlags struct {
	username        string
	instituteCode   string
	credentialsFile string
	envFile         string
	output          outputFormat
}

func newLoginCommand(deps loginDeps) *cobra.Command {
	flags := loginFlags{output: outputJSON}
	cmd := &cobra.Command{
		Use:   "login [--username USERNAME] [--institute-code CODE] [--credentials-file PATH]",
		Short: "Log in to e-KRÉTA and print the issued tokens",
		Long: heredoc.Doc(`
			Log in to e-KRÉTA and print the issued tokens.

			Each of the username, the password and the institute code is taken from the first of
			the flags, the credentials file, the KRETA_USERNAME, KRETA_PASSWORD and
			KRETA_INSTITUTE_CODE environment variables, or an interactive prompt which has it.
			The password can not be passed as a flag.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), deps, flags)
		},
	}
	cmd.Flags().StringVar(&flags.username, "username", "", "Username of the student, usually the student ID")
	cmd.Flags().StringVar(&flags.instituteCode, "institute-code", "", "Institute code of the school, e.g. klik012345001")
	cmd.Flags().StringVar(&flags.credentialsFile, "credentials-file", "", "Path of a file with the username, the password and the institute code on separate lines")
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Path of a dotenv file with KRETA_* variables, used where the environment does not set them")
	cmd.Flags().Var(&flags.output, "output", "Output format: json or access-token")
	return cmd
}

func runLogin(ctx context.Context, out, prompts io.Writer, deps loginDeps, flags loginFlags) error {
	resolver := deps.newResolver()
	resolver.Username = flags.username
	resolver.InstituteCode = flags.instituteCode
	resolver.CredentialsFile = flags.credentialsFile
	resolver.Out = prompts
	if flags.envFile != "" {
		environ, err := credentialsource.ReadEnvFile(flags.envFile, resolver.Environ)
		if err != nil {
			return err
		}
		resolver.Environ = environ
	}

	creds, err := resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	token, err := deps.login(ctx, creds, oidcclient.WithLoginLogger(plog.New().WithName("oidcclient")))
	if err != nil {
		return fmt.Errorf("could not complete login: %w", err)
	}
	return printTokenResponse(out, token, flags.output)
}

func printTokenResponse(out io.Writer, token *oidctypes.TokenResponse, format outputFormat) error {
	switch format {
	case outputAccessToken:
		_, err := fmt.Fprintln(out, token.AccessToken)
		return err
	default:
		raw, err := token.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(raw))
		return err
	}
}
