// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"go.kretalogin.dev/pkg/oidcclient/pkce"
)

const (
	antiforgeryCookieName = "antiforgery"
	sessionCookieName     = "idsrv.session"
)

//nolint:gochecknoglobals
var loginPageTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>e-KRÉTA</title></head>
<body>
<form method="post" action="/account/login">
{{ if not .OmitReturnURL }}<input type="hidden" id="ReturnUrl" name="ReturnUrl" value="{{ .ReturnURL }}">{{ end }}
<input type="text" name="UserName">
<input type="password" name="Password">
<input type="text" name="InstituteCode">
{{ if not .OmitToken }}<input name="__RequestVerificationToken" type="hidden" value="{{ .Token }}">{{ end }}
</form>
</body>
</html>
`))

// fakeIDP mimics the parts of the e-KRÉTA identity provider that the login flow talks to.
// Each knob changes one aspect of its behavior, and everything it receives is recorded.
type fakeIDP struct {
	t      *testing.T
	server *httptest.Server

	// Passwords maps usernames to their passwords.
	passwords map[string]string

	// Knobs.
	omitReturnURL     bool
	omitToken         bool
	returnURLOverride string
	authorizeStatus   int
	callbackError     url.Values
	callbackState     func(requested string) string
	callbackCode      string
	callbackOnIssuer  bool
	tokenStatus       int
	tokenContentType  string
	tokenBody         func(username string) string
	blockEndpoint     string

	mu                 sync.Mutex
	antiforgeryCounter int
	codes              map[string]issuedCode
	authorizeQueries   []url.Values
	loginForms         []url.Values
	tokenForms         []url.Values
	tokenUserAgents    []string
	tokenCookies       []string
	sessionUserAgents  []string
}

type issuedCode struct {
	username      string
	codeChallenge string
}

func newFakeIDP(t *testing.T, configure ...func(*fakeIDP)) *fakeIDP {
	t.Helper()

	f := &fakeIDP{
		t:         t,
		passwords: map[string]string{"72345678901": "correct-horse"},
		codes:     map[string]issuedCode{},
		tokenBody: func(username string) string {
			return fmt.Sprintf(`{"access_token":"access-%s","token_type":"Bearer","expires_in":1800,"refresh_token":"refresh-%s","scope":"openid offline_access"}`, username, username)
		},
	}
	for _, c := range configure {
		c(f)
	}

	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/authorize", f.authorize)
	mux.HandleFunc("/connect/authorize/callback", f.authorizeCallback)
	mux.HandleFunc("/account/login", f.login)
	mux.HandleFunc("/connect/token", f.token)
	mux.HandleFunc("/signed-in", f.signedIn)
	f.server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.blockEndpoint != "" && r.URL.Path == f.blockEndpoint {
			// The server only notices that the client went away once the body has been consumed.
			_, _ = io.Copy(io.Discard, r.Body)
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	// Cleanups run last-in-first-out, so blocked handlers are released before Close waits on them.
	t.Cleanup(func() { close(release) })
	return f
}

// options returns the options which point a login at this fake.
func (f *fakeIDP) options() []Option {
	return []Option{WithClient(f.server.Client()), withIssuer(f.server.URL)}
}

func (f *fakeIDP) recordSessionUserAgent(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionUserAgents = append(f.sessionUserAgents, r.UserAgent())
}

func (f *fakeIDP) authorize(w http.ResponseWriter, r *http.Request) {
	f.recordSessionUserAgent(r)
	f.mu.Lock()
	f.authorizeQueries = append(f.authorizeQueries, r.URL.Query())
	f.mu.Unlock()

	if f.authorizeStatus != 0 {
		http.Error(w, "authorize broke", f.authorizeStatus)
		return
	}
	returnURL := "/connect/authorize/callback?" + r.URL.RawQuery
	http.Redirect(w, r, "/account/login?"+url.Values{"ReturnUrl": {returnURL}}.Encode(), http.StatusFound)
}

func (f *fakeIDP) login(w http.ResponseWriter, r *http.Request) {
	f.recordSessionUserAgent(r)
	switch r.Method {
	case http.MethodGet:
		f.mu.Lock()
		f.antiforgeryCounter++
		token := fmt.Sprintf("xsrf-%d", f.antiforgeryCounter)
		f.mu.Unlock()

		returnURL := r.URL.Query().Get("ReturnUrl")
		if f.returnURLOverride != "" {
			returnURL = f.returnURLOverride
		}
		http.SetCookie(w, &http.Cookie{Name: antiforgeryCookieName, Value: token, Path: "/", Secure: true, HttpOnly: true})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := loginPageTemplate.Execute(w, map[string]any{
			"ReturnURL":     returnURL,
			"Token":         token,
			"OmitReturnURL": f.omitReturnURL,
			"OmitToken":     f.omitToken,
		})
		assert.NoError(f.t, err)

	case http.MethodPost:
		assert.NoError(f.t, r.ParseForm())
		f.mu.Lock()
		f.loginForms = append(f.loginForms, r.PostForm)
		f.mu.Unlock()

		cookie, err := r.Cookie(antiforgeryCookieName)
		if err != nil || cookie.Value != r.PostForm.Get("__RequestVerificationToken") {
			http.Error(w, "bad antiforgery token", http.StatusBadRequest)
			return
		}

		username := r.PostForm.Get("UserName")
		if want, ok := f.passwords[username]; !ok || want != r.PostForm.Get("Password") || r.PostForm.Get("InstituteCode") == "" {
			// Like the real thing, a failed login renders the login page again.
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><body>Hibás felhasználónév vagy jelszó</body></html>"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: username, Path: "/", Secure: true, HttpOnly: true})
		http.Redirect(w, r, r.PostForm.Get("ReturnUrl"), http.StatusFound)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *fakeIDP) authorizeCallback(w http.ResponseWriter, r *http.Request) {
	f.recordSessionUserAgent(r)
	query := r.URL.Query()

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		// Not logged in, so back to the login page.
		http.Redirect(w, r, "/account/login?"+url.Values{"ReturnUrl": {r.URL.RequestURI()}}.Encode(), http.StatusFound)
		return
	}

	redirect, err := url.Parse(query.Get("redirect_uri"))
	if !assert.NoError(f.t, err) {
		return
	}
	params := url.Values{}
	if f.callbackError != nil {
		params = f.callbackError
	} else {
		f.mu.Lock()
		code := fmt.Sprintf("code-%d-%s", len(f.codes), cookie.Value)
		if f.callbackCode != "" {
			code = f.callbackCode
		}
		f.codes[code] = issuedCode{username: cookie.Value, codeChallenge: query.Get("code_challenge")}
		f.mu.Unlock()

		params.Set("code", code)
		params.Set("scope", query.Get("scope"))
		state := query.Get("state")
		if f.callbackState != nil {
			state = f.callbackState(state)
		}
		if state != "" {
			params.Set("state", state)
		}
	}
	if f.callbackOnIssuer {
		// Finish on a page of the identity provider itself instead of the app's redirect URI.
		redirect = &url.URL{Path: "/signed-in"}
	}
	redirect.RawQuery = params.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (f *fakeIDP) signedIn(w http.ResponseWriter, r *http.Request) {
	f.recordSessionUserAgent(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body>Sikeres bejelentkezés</body></html>"))
}

func (f *fakeIDP) token(w http.ResponseWriter, r *http.Request) {
	if !assert.Equal(f.t, http.MethodPost, r.Method) {
		return
	}
	assert.Equal(f.t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
	assert.NoError(f.t, r.ParseForm())

	f.mu.Lock()
	f.tokenForms = append(f.tokenForms, r.PostForm)
	f.tokenUserAgents = append(f.tokenUserAgents, r.UserAgent())
	f.tokenCookies = append(f.tokenCookies, r.Header.Get("Cookie"))
	issued, knownCode := f.codes[r.PostForm.Get("code")]
	f.mu.Unlock()

	if f.tokenStatus != 0 && f.tokenStatus != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	username := ""
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if !knownCode || pkce.S256(r.PostForm.Get("code_verifier")) != issued.codeChallenge {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code or verifier mismatch"}`))
			return
		}
		username = issued.username
	case "refresh_token":
		username = strings.TrimPrefix(r.PostForm.Get("refresh_token"), "refresh-")
	}

	contentType := "application/json; charset=UTF-8"
	if f.tokenContentType != "" {
		contentType = f.tokenContentType
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write([]byte(f.tokenBody(username)))
}

func (f *fakeIDP) lastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokenForms) == 0 {
		return nil
	}
	return f.tokenForms[len(f.tokenForms)-1]
}

func (f *fakeIDP) counts() (authorize, login, token int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.authorizeQueries), len(f.loginForms), len(f.tokenForms)
}

// withIssuer points the flow at a different identity provider.
func withIssuer(issuer string) Option {
	return func(h *handlerState) error {
		h.issuer = issuer
		return nil
	}
}
