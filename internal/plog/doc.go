// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package plog implements a thin layer over zap and logr to help enforce the kretalogin logging convention.
// Logs are always structured as a constant message with key and value pairs of related metadata.
//
// The logging levels in order of increasing verbosity are:
// error, warning, info, debug, trace and all.
//
// error and warning logs are always emitted (there is no way for the end user to disable them),
// and thus should be used sparingly.  Ideally, logs at these levels should be actionable.
//
// info should be reserved for "nice to know" information, such as which login step is running.
//
// debug should be used for information targeted at developers and to aid in support cases.  Care must
// be taken at this level to not leak any secrets into the log stream.  Passwords, anti-forgery tokens,
// authorization codes, PKCE verifiers and OAuth tokens must never be logged at any level.
//
// trace should be used to log information related to timing and to the (masked) HTTP exchanges
// performed against the identity provider.
//
// all is reserved for the most verbose output.  It is unfit for regular use and is generally an
// act of desperation to determine why a login against the identity provider is failing.
package plog
