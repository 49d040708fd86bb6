// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"go.uber.org/zap/zapcore"

	"go.kretalogin.dev/internal/constable"
)

// LogLevel is an enum that controls verbosity of logs.
// Valid values in order of increasing verbosity are leaving it unset, info, debug, trace and all.
type LogLevel string

// Validate returns an error when l is not one of the known levels.
func (l LogLevel) Validate() error {
	if logrLevelForPlogLevel(l) < 0 {
		return errInvalidLogLevel
	}
	return nil
}

const (
	// LevelWarning (i.e. leaving the log level unset) maps to logr verbosity 0.
	LevelWarning LogLevel = ""
	// LevelInfo maps to logr verbosity 2.
	LevelInfo LogLevel = "info"
	// LevelDebug maps to logr verbosity 4.
	LevelDebug LogLevel = "debug"
	// LevelTrace maps to logr verbosity 6.
	LevelTrace LogLevel = "trace"
	// LevelAll maps to logr verbosity 108 (conceptually it is verbosity 8).
	LevelAll LogLevel = "all"

	errInvalidLogLevel = constable.Error("invalid log level, valid choices are the empty string, info, debug, trace and all")
)

const (
	logrLevelWarning = iota * 2
	logrLevelInfo
	logrLevelDebug
	logrLevelTrace
	logrLevelAll
)

// Enabled returns whether the provided plog level is enabled, i.e., whether print statements at the
// provided level will show up.
func Enabled(level LogLevel) bool {
	l := logrLevelForPlogLevel(level)
	// check that both our global level and the zap level are enabled
	// this allows us to have a finer level of control over logging than plain zap
	return l >= 0 && globalLevel.Enabled(zapcore.Level(-l))
}

func logrLevelForPlogLevel(plogLevel LogLevel) int {
	switch plogLevel {
	case LevelWarning:
		return logrLevelWarning // unset means minimal logs (Error and Warning)
	case LevelInfo:
		return logrLevelInfo
	case LevelDebug:
		return logrLevelDebug
	case LevelTrace:
		return logrLevelTrace
	case LevelAll:
		return logrLevelAll + 100 // make all really mean all
	default:
		return -1
	}
}
