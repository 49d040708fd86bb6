// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package roundtripper provides small adapters for composing http.RoundTrippers.
package roundtripper

import "net/http"

var _ http.RoundTripper = Func(nil)

type Func func(*http.Request) (*http.Response, error)

func (f Func) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Wrapper is implemented by round trippers that delegate to another round tripper.
type Wrapper interface {
	WrappedRoundTripper() http.RoundTripper
}

var _ Wrapper = &wrapper{}

type wrapper struct {
	delegate http.RoundTripper
	f        Func
}

func (w *wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	return w.f(req)
}

func (w *wrapper) WrappedRoundTripper() http.RoundTripper {
	return w.delegate
}

// WrapFunc returns f as a round tripper which remembers delegate, so that Unwrap can find the innermost transport.
func WrapFunc(delegate http.RoundTripper, f Func) http.RoundTripper {
	return &wrapper{delegate: delegate, f: f}
}

// Unwrap follows WrappedRoundTripper until it reaches a round tripper that wraps nothing.
func Unwrap(rt http.RoundTripper) http.RoundTripper {
	for {
		w, ok := rt.(Wrapper)
		if !ok {
			return rt
		}
		rt = w.WrappedRoundTripper()
	}
}
