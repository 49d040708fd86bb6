// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"context"
	"encoding/json"

	"go.uber.org/zap/zapcore"

	"go.kretalogin.dev/internal/constable"
)

type LogFormat string

func (l *LogFormat) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `""`, `"json"`:
		*l = FormatJSON
	case `"cli"`:
		*l = FormatCLI
	default:
		return errInvalidLogFormat
	}
	return nil
}

const (
	FormatJSON LogFormat = "json"
	FormatCLI  LogFormat = "cli"

	errInvalidLogFormat = constable.Error("invalid log format, valid choices are the empty string, 'json' and 'cli'")
)

var _ json.Unmarshaler = func() *LogFormat {
	var f LogFormat
	return &f
}()

type LogSpec struct {
	Level  LogLevel  `json:"level,omitempty"`
	Format LogFormat `json:"format,omitempty"`
}

// ValidateAndSetLogLevelAndFormatGlobally reconfigures the global logger.
// It may be called more than once, e.g. once with defaults and then again after flag parsing.
func ValidateAndSetLogLevelAndFormatGlobally(ctx context.Context, spec LogSpec) error {
	logrLevel := logrLevelForPlogLevel(spec.Level)
	if logrLevel < 0 {
		return errInvalidLogLevel
	}

	var encoding string
	switch spec.Format {
	case "", FormatJSON:
		encoding = "json"
	case FormatCLI:
		encoding = "console"
	default:
		return errInvalidLogFormat
	}

	//nolint:gosec // the range for logrLevel is [0,108]
	globalLevel.SetLevel(zapcore.Level(-logrLevel)) // logr levels are inverted when zap handles them

	log, flush, err := newLogr(ctx, encoding)
	if err != nil {
		return err
	}

	setGlobalLoggers(log, flush)

	return nil
}
