// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package phttp

import (
	"net/http"
	"net/url"

	"go.kretalogin.dev/internal/httputil/roundtripper"
	"go.kretalogin.dev/internal/plog"
)

func safeDebugWrapper(rt http.RoundTripper, log plog.Logger, shouldLog func() bool) http.RoundTripper {
	return roundtripper.WrapFunc(rt, func(req *http.Request) (*http.Response, error) {
		// note: do not make this entire wrapper conditional on shouldLog() - the output is allowed to change at runtime
		if !shouldLog() {
			return rt.RoundTrip(req)
		}

		// the login form and token requests carry passwords and codes, so only log what is known to be safe
		cleanedReq := cleanReq(req)
		log.Trace("request",
			"method", cleanedReq.Method,
			"url", cleanedReq.URL.String(),
			"header", cleanedReq.Header,
		)

		resp, err := rt.RoundTrip(req)
		if err != nil {
			log.TraceErr("request failed", err, "method", cleanedReq.Method, "url", cleanedReq.URL.String())
			return resp, err
		}

		cleanedResp := cleanResp(resp)
		log.Trace("response",
			"method", cleanedReq.Method,
			"url", cleanedReq.URL.String(),
			"status", cleanedResp.Status,
			"header", cleanedResp.Header,
		)
		return resp, err
	})
}

func cleanReq(req *http.Request) *http.Request {
	// only pass back things we know to be safe to log
	return &http.Request{
		Method: req.Method,
		URL:    cleanURL(req.URL),
		Header: cleanHeader(req.Header),
	}
}

func cleanResp(resp *http.Response) *http.Response {
	if resp == nil {
		return nil
	}

	// only pass back things we know to be safe to log
	return &http.Response{
		Status: resp.Status,
		Header: cleanHeader(resp.Header),
	}
}

func cleanURL(u *url.URL) *url.URL {
	var user *url.Userinfo
	if len(u.User.Username()) > 0 {
		user = url.User("masked_username")
	}

	var opaque string
	if len(u.Opaque) > 0 {
		opaque = "masked_opaque_data"
	}

	var fragment string
	if len(u.Fragment) > 0 || len(u.RawFragment) > 0 {
		fragment = "masked_fragment"
	}

	return &url.URL{
		Scheme:     u.Scheme,
		Opaque:     opaque,
		User:       user,
		Host:       u.Host,
		Path:       u.Path,
		RawPath:    u.RawPath,
		ForceQuery: u.ForceQuery,
		RawQuery:   cleanQuery(u.Query()),
		Fragment:   fragment,
	}
}

func cleanQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	out := url.Values(cleanHeader(http.Header(query))) // cast so we can re-use logic
	return out.Encode()
}

func cleanHeader(header http.Header) http.Header {
	if len(header) == 0 {
		return nil
	}

	mask := []string{"masked_value"}
	out := make(http.Header, len(header))
	for key := range header {
		out[key] = mask // only copy the keys
	}

	return out
}
