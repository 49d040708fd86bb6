// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package phttp builds the HTTP clients used to talk to the identity provider.
package phttp

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"

	"go.kretalogin.dev/internal/httputil/roundtripper"
	"go.kretalogin.dev/internal/plog"
)

// Default returns a client that requires TLS 1.2 or newer and logs masked requests when the trace level is enabled.
// A nil rootCAs uses the system roots.
func Default(rootCAs *x509.CertPool) *http.Client {
	baseRT := defaultTransport()
	baseRT.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    rootCAs,
		NextProtos: []string{"h2", "http/1.1"},
	}

	return &http.Client{
		Transport: defaultWrap(baseRT),
		Timeout:   3 * time.Hour, // make it impossible for requests to hang indefinitely
	}
}

// WithUserAgent returns a shallow copy of client whose requests always carry userAgent.
func WithUserAgent(client *http.Client, userAgent string) *http.Client {
	out := *client
	rt := out.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	out.Transport = userAgentWrapper(rt, userAgent)
	return &out
}

func defaultTransport() *http.Transport {
	baseRT := http.DefaultTransport.(*http.Transport).Clone()
	baseRT.MaxIdleConnsPerHost = 25
	baseRT.TLSHandshakeTimeout = 10 * time.Second
	return baseRT
}

func defaultWrap(rt http.RoundTripper) http.RoundTripper {
	return safeDebugWrapper(rt, plog.New().WithName("http"), func() bool { return plog.Enabled(plog.LevelTrace) })
}

func userAgentWrapper(rt http.RoundTripper, userAgent string) http.RoundTripper {
	return roundtripper.WrapFunc(rt, func(req *http.Request) (*http.Response, error) {
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
		return rt.RoundTrip(req)
	})
}
