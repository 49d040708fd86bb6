// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"go.kretalogin.dev/internal/here"
)

func TestPlog(t *testing.T) {
	l, log := TestLogger(t)

	l.Info("hello", "key", "value")
	l.Debug("a debug message", "step", "authorize")
	l.Warning("something is odd")
	l.Error("oops", errors.New("boom"))
	l.Trace("tracing", "status", 302)

	require.Equal(t, here.Doc(`
		{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/plog_test.go:<line>$plog.TestPlog","message":"hello","key":"value"}
		{"level":"debug","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/plog_test.go:<line>$plog.TestPlog","message":"a debug message","step":"authorize"}
		{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/plog_test.go:<line>$plog.TestPlog","message":"something is odd","warning":true}
		{"level":"error","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/plog_test.go:<line>$plog.TestPlog","message":"oops","error":"boom"}
		{"level":"trace","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/plog_test.go:<line>$plog.TestPlog","message":"tracing","status":302}
	`), log.String())
}

func TestPlogWithValuesAndName(t *testing.T) {
	l, log := TestLogger(t)

	l.WithName("oidcclient").WithValues("attempt", "a1").Info("step done", "step", "token")
	l.WithValues().WithName("").Info("unchanged")

	require.Equal(t, here.Doc(`
		{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","logger":"oidcclient","caller":"plog/plog_test.go:<line>$plog.TestPlogWithValuesAndName","message":"step done","attempt":"a1","step":"token"}
		{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/plog_test.go:<line>$plog.TestPlogWithValuesAndName","message":"unchanged"}
	`), log.String())
}

func TestPlogErrVariants(t *testing.T) {
	l, log := TestLogger(t)

	l.InfoErr("login rejected", errors.New("bad password"))
	l.DebugErr("retrying nothing", errors.New("nope"), "k", "v")

	require.Equal(t, here.Doc(`
		{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/plog_test.go:<line>$plog.TestPlogErrVariants","message":"login rejected","error":"bad password"}
		{"level":"debug","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/plog_test.go:<line>$plog.TestPlogErrVariants","message":"retrying nothing","error":"nope","k":"v"}
	`), log.String())
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := TestConsoleLogger(t, &buf)

	l.Info("hello from the cli", "key", "value")

	require.Equal(t, `plog/plog_test.go:<line>  hello from the cli  {"key": "value"}`+"\n", buf.String())
}

func TestTestLoggersDoNotShareOutput(t *testing.T) {
	first, firstLog := TestLogger(t)
	second, secondLog := TestLogger(t)
	var console bytes.Buffer
	third := TestConsoleLogger(t, &console)

	first.Info("first")
	second.Info("second")
	third.Info("third")

	require.Contains(t, firstLog.String(), `"message":"first"`)
	require.NotContains(t, firstLog.String(), "second")
	require.Contains(t, secondLog.String(), `"message":"second"`)
	require.NotContains(t, secondLog.String(), "first")
	require.Equal(t, "plog/plog_test.go:<line>  third\n", console.String())
}
