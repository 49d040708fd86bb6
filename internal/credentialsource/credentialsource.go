// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package credentialsource finds the credentials for a login from flags, a file, the environment
// or an interactive prompt, in that order of precedence.
package credentialsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"go.kretalogin.dev/internal/plog"
	"go.kretalogin.dev/pkg/oidcclient/oidctypes"
)

const (
	usernamePrompt      = "Username: "
	passwordPrompt      = "Password: "
	instituteCodePrompt = "Institute code: "

	// For CLI-based auth, the user may use these environment variables to avoid getting interactively prompted.
	UsernameEnvVarName      = "KRETA_USERNAME"
	PasswordEnvVarName      = "KRETA_PASSWORD" //nolint:gosec // this is not a credential
	InstituteCodeEnvVarName = "KRETA_INSTITUTE_CODE"
	RefreshTokenEnvVarName  = "KRETA_REFRESH_TOKEN" //nolint:gosec // this is not a credential
)

// Env holds the KRETA_* environment variables.
type Env struct {
	Username      string `env:"KRETA_USERNAME"`
	Password      string `env:"KRETA_PASSWORD"`
	InstituteCode string `env:"KRETA_INSTITUTE_CODE"`
	RefreshToken  string `env:"KRETA_REFRESH_TOKEN"`
}

// ParseEnv reads Env from environ, or from the process environment when environ is nil.
func ParseEnv(environ map[string]string) (Env, error) {
	e, err := env.ParseAsWithOptions[Env](env.Options{Environment: environ})
	if err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// ReadEnvFile layers the variables of a dotenv file under environ, or under the process
// environment when environ is nil. Variables which are already set are not overridden.
func ReadEnvFile(path string, environ map[string]string) (map[string]string, error) {
	fromFile, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("could not read env file: %w", err)
	}
	if environ == nil {
		environ = processEnviron()
	}
	merged := make(map[string]string, len(fromFile)+len(environ))
	for k, v := range fromFile {
		merged[k] = v
	}
	for k, v := range environ {
		merged[k] = v
	}
	return merged, nil
}

func processEnviron() map[string]string {
	environ := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	return environ
}

// ReadFile reads a credentials file: the username, the password and the institute code on the
// first three lines. Surrounding whitespace is kept only for the password.
func ReadFile(path string) (oidctypes.Credentials, error) {
	f, err := os.Open(path) //nolint:gosec // the path is chosen by the user
	if err != nil {
		return oidctypes.Credentials{}, fmt.Errorf("could not open credentials file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parseFile(f)
}

func parseFile(r io.Reader) (oidctypes.Credentials, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() && len(lines) < 3 {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return oidctypes.Credentials{}, fmt.Errorf("could not read credentials file: %w", err)
	}
	if len(lines) < 3 {
		return oidctypes.Credentials{}, fmt.Errorf(
			"credentials file must contain the username, the password and the institute code on separate lines, found %d line(s)",
			len(lines))
	}
	return oidctypes.Credentials{
		Username:      strings.TrimSpace(lines[0]),
		Password:      lines[1],
		InstituteCode: strings.TrimSpace(lines[2]),
	}, nil
}

// Resolver merges the credential sources. Earlier sources win for each field.
type Resolver struct {
	// Username and InstituteCode come from command line flags. There is deliberately no password flag.
	Username      string
	InstituteCode string

	// CredentialsFile is the optional path of a file in the format read by ReadFile.
	CredentialsFile string

	// Environ replaces the process environment when non-nil.
	Environ map[string]string

	// Out receives the interactive prompts.
	Out io.Writer

	log             plog.Logger
	stdinIsTTY      func() bool
	promptForValue  func(ctx context.Context, promptLabel string, out io.Writer) (string, error)
	promptForSecret func(promptLabel string, out io.Writer) (string, error)
}

// NewResolver returns a Resolver that prompts on the terminal when a field is still missing.
func NewResolver() *Resolver {
	return &Resolver{
		Out:             os.Stderr,
		log:             plog.New().WithName("credentials"),
		stdinIsTTY:      func() bool { return term.IsTerminal(stdin()) },
		promptForValue:  promptForValue,
		promptForSecret: promptForSecret,
	}
}

// Resolve returns complete credentials or an error naming what is missing.
func (r *Resolver) Resolve(ctx context.Context) (oidctypes.Credentials, error) {
	creds := oidctypes.Credentials{Username: r.Username, InstituteCode: r.InstituteCode}

	if r.CredentialsFile != "" {
		fromFile, err := ReadFile(r.CredentialsFile)
		if err != nil {
			return oidctypes.Credentials{}, err
		}
		r.log.Debug("read credentials file", "path", r.CredentialsFile)
		fill(&creds, fromFile)
	}

	fromEnv, err := ParseEnv(r.Environ)
	if err != nil {
		return oidctypes.Credentials{}, err
	}
	if creds.Username == "" && fromEnv.Username != "" {
		r.log.Debug("read username from environment variable", "name", UsernameEnvVarName)
	}
	if creds.Password == "" && fromEnv.Password != "" {
		r.log.Debug("read password from environment variable", "name", PasswordEnvVarName)
	}
	if creds.InstituteCode == "" && fromEnv.InstituteCode != "" {
		r.log.Debug("read institute code from environment variable", "name", InstituteCodeEnvVarName)
	}
	fill(&creds, oidctypes.Credentials{
		Username:      fromEnv.Username,
		Password:      fromEnv.Password,
		InstituteCode: fromEnv.InstituteCode,
	})

	if err := r.prompt(ctx, &creds); err != nil {
		return oidctypes.Credentials{}, err
	}
	return creds, creds.Validate()
}

func (r *Resolver) prompt(ctx context.Context, creds *oidctypes.Credentials) error {
	if creds.Username != "" && creds.Password != "" && creds.InstituteCode != "" {
		return nil
	}
	if !r.stdinIsTTY() {
		return fmt.Errorf("%w: set them with flags, a credentials file or the %s, %s and %s environment variables",
			creds.Validate(), UsernameEnvVarName, PasswordEnvVarName, InstituteCodeEnvVarName)
	}

	var err error
	if creds.Username == "" {
		creds.Username, err = r.promptForValue(ctx, usernamePrompt, r.Out)
		if err != nil {
			return fmt.Errorf("error prompting for username: %w", err)
		}
	}
	if creds.Password == "" {
		creds.Password, err = r.promptForSecret(passwordPrompt, r.Out)
		if err != nil {
			return fmt.Errorf("error prompting for password: %w", err)
		}
	}
	if creds.InstituteCode == "" {
		creds.InstituteCode, err = r.promptForValue(ctx, instituteCodePrompt, r.Out)
		if err != nil {
			return fmt.Errorf("error prompting for institute code: %w", err)
		}
	}
	return nil
}

func fill(dst *oidctypes.Credentials, src oidctypes.Credentials) {
	if dst.Username == "" {
		dst.Username = src.Username
	}
	if dst.Password == "" {
		dst.Password = src.Password
	}
	if dst.InstituteCode == "" {
		dst.InstituteCode = src.InstituteCode
	}
}

// stdin returns the file descriptor for stdin as an int.
func stdin() int { return int(os.Stdin.Fd()) } //nolint:gosec // this is an int, cast to uintptr, cast back to int

// promptForValue interactively prompts the user for a plaintext value and reads their input.
// If the context is canceled, it will return an error immediately.
func promptForValue(ctx context.Context, promptLabel string, out io.Writer) (string, error) {
	if !term.IsTerminal(stdin()) {
		return "", errors.New("stdin is not connected to a terminal")
	}
	_, err := fmt.Fprint(out, promptLabel)
	if err != nil {
		return "", fmt.Errorf("could not print prompt to stderr: %w", err)
	}

	type readResult struct {
		text string
		err  error
	}
	readResults := make(chan readResult)
	go func() {
		text, err := bufio.NewReader(os.Stdin).ReadString('\n')
		readResults <- readResult{text, err}
		close(readResults)
	}()

	// If the context is canceled, return immediately. The ReadString() operation will stay hung in the background
	// goroutine indefinitely.
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-readResults:
		return strings.TrimSpace(r.text), r.err
	}
}

// promptForSecret interactively prompts the user for a secret value, obscuring their input while reading it.
func promptForSecret(promptLabel string, out io.Writer) (string, error) {
	if !term.IsTerminal(stdin()) {
		return "", errors.New("stdin is not connected to a terminal")
	}
	_, err := fmt.Fprint(out, promptLabel)
	if err != nil {
		return "", fmt.Errorf("could not print prompt to stderr: %w", err)
	}
	password, err := term.ReadPassword(stdin())
	if err != nil {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	// term.ReadPassword swallows the newline that was typed by the user, so print one
	// to keep the next line of output off the prompt's line.
	_, err = fmt.Fprint(out, "\n")
	if err != nil {
		return "", fmt.Errorf("could not print newline to stderr: %w", err)
	}
	return string(password), nil
}
