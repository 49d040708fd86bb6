// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package oidcclient implements a headless login against the e-KRÉTA identity provider.
//
// The identity provider has no API for password logins, so Login drives its HTML login
// form the same way the mobile app's embedded browser does, and then redeems the
// authorization code with PKCE.
package oidcclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	"go.kretalogin.dev/internal/formfield"
	"go.kretalogin.dev/internal/net/phttp"
	"go.kretalogin.dev/pkg/oidcclient/nonce"
	"go.kretalogin.dev/pkg/oidcclient/oidctypes"
	"go.kretalogin.dev/pkg/oidcclient/pkce"
	"go.kretalogin.dev/pkg/oidcclient/state"
)

const (
	// Issuer is the e-KRÉTA identity provider.
	Issuer = "https://idp.e-kreta.hu"

	// ClientID is the OAuth client registered for the student mobile app.
	ClientID = "kreta-ellenorzo-student-mobile-android"

	// RedirectURI is the redirect URI registered for ClientID. It is never contacted.
	RedirectURI = "https://mobil.e-kreta.hu/ellenorzo-student/prod/oauthredirect"

	// Scope is the space separated list of scopes requested by the mobile app.
	Scope = "openid email offline_access kreta-ellenorzo-webapi.public kreta-eugyintezes-webapi.public " +
		"kreta-fileservice-webapi.public kreta-mobile-global-webapi.public kreta-dkt-webapi.public kreta-ier-webapi.public"

	// BrowserUserAgent is presented on every request of the browser-like login session.
	BrowserUserAgent = "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/124.0.0.0 Mobile Safari/537.36"

	// TokenUserAgent is presented to the token endpoint, which expects the mobile app.
	TokenUserAgent = "hu.ekreta.student/5.8.0+2025082301/SM-S9280/9/28"

	authorizePath = "/connect/authorize"
	loginPath     = "/account/login"
	tokenPath     = "/connect/token"

	// httpRequestTimeout is the timeout for each individual request of the login flow.
	httpRequestTimeout = 60 * time.Second

	// overallTimeout is the overall time that a login is allowed to take.
	overallTimeout = 5 * time.Minute

	// maxRedirects bounds redirect chains within the identity provider.
	maxRedirects = 10

	// maxResponseBytes bounds how much of any response body is read.
	maxResponseBytes = 10 << 20

	returnURLField         = "ReturnUrl"
	verificationTokenField = "__RequestVerificationToken"
)

//nolint:gochecknoglobals
var loginFormRules = []formfield.Rule{
	{Tag: "input", AttrKey: "id", AttrVal: returnURLField, Field: returnURLField},
	{Tag: "input", AttrKey: "name", AttrVal: verificationTokenField, Field: verificationTokenField},
}

type handlerState struct {
	// Basic parameters.
	ctx        context.Context
	logger     Logger
	issuer     string
	httpClient *http.Client

	// Generated parameters of a login flow.
	oauth2Config *oauth2.Config
	state        state.State
	nonce        nonce.Nonce
	pkce         pkce.Code

	// External calls for things.
	generateState func() (state.State, error)
	generatePKCE  func() (pkce.Code, error)
	generateNonce func() (nonce.Nonce, error)
}

// Option is an optional configuration for Login() and Refresh().
type Option func(*handlerState) error

// Logger is the narrow logging interface used during a login. It is satisfied by plog.Logger.
type Logger interface {
	Error(msg string, err error, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
}

type emptyLogger struct{}

var _ Logger = (*emptyLogger)(nil)

func (e emptyLogger) Error(_ string, _ error, _ ...any) {
	// NOOP
}

func (e emptyLogger) Info(_ string, _ ...any) {
	// NOOP
}

// WithLoginLogger specifies a Logger to use.
// If not specified this will default to a no-op logger.
func WithLoginLogger(logger Logger) Option {
	return func(h *handlerState) error {
		if logger == nil {
			return errors.New("WithLoginLogger: logger must not be nil")
		}
		h.logger = logger
		return nil
	}
}

// WithClient sets the HTTP client whose transport is used for the requests to the identity provider.
// The client is copied: its cookie jar, redirect policy and timeout are replaced for each login attempt.
func WithClient(httpClient *http.Client) Option {
	return func(h *handlerState) error {
		if httpClient == nil {
			return errors.New("WithClient: client must not be nil")
		}
		h.httpClient = httpClient
		return nil
	}
}

func newHandlerState(ctx context.Context, opts []Option) (*handlerState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	h := &handlerState{
		ctx:        ctx,
		logger:     &emptyLogger{},
		issuer:     Issuer,
		httpClient: phttp.Default(nil),

		// Default implementations of external dependencies (to be mocked in tests).
		generateState: state.Generate,
		generateNonce: nonce.Generate,
		generatePKCE:  pkce.Generate,
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if err := validateURLUsesHTTPS(h.issuer, "issuer"); err != nil {
		return nil, err
	}
	h.issuer = strings.TrimSuffix(h.issuer, "/")
	return h, nil
}

// Login performs the e-KRÉTA authorization code login with PKCE for one student and returns the
// token endpoint's response. Every call uses its own cookie session, PKCE code, state and nonce,
// so concurrent calls for different students do not interact.
func Login(ctx context.Context, creds oidctypes.Credentials, opts ...Option) (*oidctypes.TokenResponse, error) {
	h, err := newHandlerState(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	// Always set a long, but non-infinite timeout for this operation.
	ctx, cancel := context.WithTimeout(h.ctx, overallTimeout)
	defer cancel()
	h.ctx = ctx

	// Initialize login parameters.
	h.state, err = h.generateState()
	if err != nil {
		return nil, err
	}
	h.nonce, err = h.generateNonce()
	if err != nil {
		return nil, err
	}
	h.pkce, err = h.generatePKCE()
	if err != nil {
		return nil, err
	}

	h.oauth2Config = &oauth2.Config{
		ClientID: ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   h.issuer + authorizePath,
			TokenURL:  h.issuer + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: RedirectURI,
		Scopes:      strings.Fields(Scope),
	}

	session, err := h.newSession()
	if err != nil {
		return nil, err
	}

	h.logger.Info("kretalogin: starting login", "issuer", h.issuer, "instituteCode", creds.InstituteCode)

	form, err := h.fetchLoginForm(session)
	if err != nil {
		return nil, err
	}

	if err := h.submitCredentials(session, form, creds); err != nil {
		return nil, err
	}

	authCode, err := h.followReturnURL(session, form[returnURLField])
	if err != nil {
		return nil, err
	}

	token, err := h.redeemAuthCode(authCode)
	if err != nil {
		return nil, err
	}

	h.logger.Info("kretalogin: login succeeded", "instituteCode", creds.InstituteCode)
	return token, nil
}

// newSession returns a client that behaves like a browser for one login attempt.
func (h *handlerState) newSession() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("could not create cookie jar: %w", err)
	}
	session := phttp.WithUserAgent(h.httpClient, BrowserUserAgent)
	session.Jar = jar
	session.Timeout = httpRequestTimeout
	session.CheckRedirect = stopAtRedirectURI
	return session, nil
}

// stopAtRedirectURI follows redirects within the identity provider, but never contacts the redirect URI.
// Instead, the response which pointed at the redirect URI is returned to the caller.
func stopAtRedirectURI(req *http.Request, via []*http.Request) error {
	if isRedirectURI(req.URL) {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

func isRedirectURI(u *url.URL) bool {
	redirect, err := url.Parse(RedirectURI)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, redirect.Scheme) &&
		strings.EqualFold(u.Host, redirect.Host) &&
		u.Path == redirect.Path
}

// fetchLoginForm sends the authorize request and scrapes the hidden fields of the resulting login page.
func (h *handlerState) fetchLoginForm(session *http.Client) (formfield.Values, error) {
	authorizeURL := h.oauth2Config.AuthCodeURL(h.state.String(),
		oauth2.SetAuthURLParam("prompt", "login"),
		h.nonce.Param(),
		h.pkce.Challenge(),
		h.pkce.Method(),
	)

	h.logger.Info("kretalogin: performing authorization request")
	ctx, cancel := context.WithTimeout(h.ctx, httpRequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not build authorize request: %w", err)
	}
	resp, err := session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: authorize request failed: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, "authorize"); err != nil {
		return nil, err
	}

	form, err := formfield.Extract(io.LimitReader(resp.Body, maxResponseBytes), loginFormRules)
	if err != nil {
		if errors.Is(err, formfield.ErrMissingField) {
			return nil, fmt.Errorf("%w: %w", ErrMissingFormField, err)
		}
		return nil, fmt.Errorf("%w: could not read login page: %w", ErrNetwork, err)
	}
	return form, nil
}

// submitCredentials posts the login form. The response's redirects are not followed: the
// session cookie it sets is all that is needed, and followReturnURL continues from there.
func (h *handlerState) submitCredentials(session *http.Client, form formfield.Values, creds oidctypes.Credentials) error {
	reqBody := strings.NewReader(url.Values{
		returnURLField:         []string{form[returnURLField]},
		verificationTokenField: []string{form[verificationTokenField]},
		"UserName":             []string{creds.Username},
		"Password":             []string{creds.Password},
		"InstituteCode":        []string{creds.InstituteCode},
		"loginType":            []string{"InstituteLogin"},
		"ClientId":             []string{""},
		"IsTemporaryLogin":     []string{"False"},
	}.Encode())

	h.logger.Info("kretalogin: submitting credentials")
	ctx, cancel := context.WithTimeout(h.ctx, httpRequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.issuer+loginPath, reqBody)
	if err != nil {
		return fmt.Errorf("could not build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	noRedirects := *session
	noRedirects.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := noRedirects.Do(req)
	if err != nil {
		return fmt.Errorf("%w: login request failed: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	return checkStatus(resp, "login")
}

// followReturnURL resumes the authorization on the now logged-in session and returns the authorization code.
func (h *handlerState) followReturnURL(session *http.Client, returnURL string) (string, error) {
	// The ReturnUrl is a path on the issuer. Anything else could send the session somewhere else.
	if !strings.HasPrefix(returnURL, "/") || strings.HasPrefix(returnURL, "//") {
		return "", fmt.Errorf("%w: login page returned %s %q which is not a path", ErrUnexpectedResponse, returnURLField, returnURL)
	}

	h.logger.Info("kretalogin: following authorization redirects")
	ctx, cancel := context.WithTimeout(h.ctx, httpRequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.issuer+returnURL, nil)
	if err != nil {
		return "", fmt.Errorf("could not build redirect request: %w", err)
	}
	resp, err := session.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: redirect request failed: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if err := checkStatus(resp, "redirect"); err != nil {
		return "", err
	}

	// When redirect following stopped at the redirect URI, the code is on the Location of the last response.
	// Otherwise the server answered without redirecting and the code, if any, is on the final request URL.
	final := resp.Request.URL
	if location, err := resp.Location(); err == nil {
		final = location
	}
	query := final.Query()

	authCode := query.Get("code")
	if authCode == "" {
		// Check for error response parameters. See https://openid.net/specs/openid-connect-core-1_0.html#AuthError.
		if errorCode := query.Get("error"); errorCode != "" {
			if description := query.Get("error_description"); description != "" {
				return "", fmt.Errorf("%w: login failed with code %q: %s", ErrAuthenticationFailed, errorCode, description)
			}
			return "", fmt.Errorf("%w: login failed with code %q", ErrAuthenticationFailed, errorCode)
		}
		return "", fmt.Errorf("%w: no authorization code was issued, check the username, password and institute code", ErrAuthenticationFailed)
	}

	// Validate OAuth2 state and fail if it's incorrect (to block CSRF).
	if err := h.state.Validate(query.Get("state")); err != nil {
		return "", fmt.Errorf("missing or invalid state parameter in authorization response: %w", err)
	}

	return authCode, nil
}

func checkStatus(resp *http.Response, step string) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s request returned HTTP %s", ErrUnexpectedResponse, step, resp.Status)
	}
	return nil
}

func validateURLUsesHTTPS(uri string, uriName string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", uriName, err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an https URL, but had scheme %q instead", uriName, parsed.Scheme)
	}
	return nil
}
