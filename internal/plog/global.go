// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals
var (
	// note that these globals have no locks on purpose - they are expected to be set at init and then again after flag parsing.
	globalLevel  zap.AtomicLevel
	globalLogger logr.Logger
	globalFlush  func()

	// used as a temporary storage for a buffer per call of newLogr. see the init function below for more details.
	sinkMap sync.Map
)

//nolint:gochecknoinits
func init() {
	// make sure we always have a functional global logger
	globalLevel = zap.NewAtomicLevelAt(0) // log at the 0 verbosity level to start with, i.e. the "always" logs
	// use console encoding to start with since the only consumer is the CLI
	// the context here is just used for test injection and thus can be ignored
	log, flush, err := newLogr(context.Background(), "console")
	if err != nil {
		panic(err) // default logging config must always work
	}
	setGlobalLoggers(log, flush)

	// zap's builder code does not allow us to directly specify what writer we want to use as our log sink.
	// to get around this limitation in tests, we use a global map to temporarily hold the writer (the key
	// is a random string that is generated per invocation of newLogr).  we register a fake "kretalogin"
	// scheme so that we can lookup the writer via kretalogin:///<per newLogr invocation random string>.
	if err := zap.RegisterSink("kretalogin", func(u *url.URL) (zap.Sink, error) {
		value, ok := sinkMap.Load(u.Path)
		if !ok {
			return nil, fmt.Errorf("key %q not in global sink", u.Path)
		}
		return value.(zap.Sink), nil
	}); err != nil {
		panic(err) // custom sink must always work
	}
}

// Setup returns a function which flushes any buffered logs. Call it before the process exits.
func Setup() func() {
	return func() {
		globalFlush()
	}
}

// setGlobalLoggers sets the plog global loggers.  it is *not* go routine safe.
func setGlobalLoggers(log logr.Logger, flush func()) {
	globalLogger = log
	globalFlush = flush
}
