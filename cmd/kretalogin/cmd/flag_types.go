// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"go.kretalogin.dev/internal/plog"
)

// outputFormat selects what the login and refresh commands print.
// this is meant to be a valid pflag.Value implementation.
type outputFormat string

var _ pflag.Value = new(outputFormat)

const (
	outputJSON        outputFormat = "json"
	outputAccessToken outputFormat = "access-token"
)

func (o *outputFormat) String() string { return string(*o) }

func (o *outputFormat) Set(s string) error {
	switch f := outputFormat(strings.ToLower(s)); f {
	case outputJSON, outputAccessToken:
		*o = f
		return nil
	default:
		return fmt.Errorf("invalid output format %q, valid formats are json and access-token", s)
	}
}

func (o *outputFormat) Type() string { return "format" }

// logLevelFlag is a plog.LogLevel which is validated while flags are parsed.
type logLevelFlag plog.LogLevel

var _ pflag.Value = new(logLevelFlag)

func (l *logLevelFlag) String() string { return string(*l) }

func (l *logLevelFlag) Set(s string) error {
	level := plog.LogLevel(strings.ToLower(s))
	if err := level.Validate(); err != nil {
		return err
	}
	*l = logLevelFlag(level)
	return nil
}

func (l *logLevelFlag) Type() string { return "level" }

// logFormatFlag is a plog.LogFormat which is validated while flags are parsed.
type logFormatFlag plog.LogFormat

var _ pflag.Value = new(logFormatFlag)

func (f *logFormatFlag) String() string { return string(*f) }

func (f *logFormatFlag) Set(s string) error {
	switch format := plog.LogFormat(strings.ToLower(s)); format {
	case plog.FormatCLI, plog.FormatJSON:
		*f = logFormatFlag(format)
		return nil
	default:
		return fmt.Errorf("invalid log format %q, valid formats are cli and json", s)
	}
}

func (f *logFormatFlag) Type() string { return "format" }
