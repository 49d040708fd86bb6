// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"go.kretalogin.dev/internal/net/phttp"
	"go.kretalogin.dev/pkg/oidcclient/oidctypes"
)

//nolint:gochecknoglobals
var idTokenSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// redeemAuthCode exchanges the authorization code and the PKCE verifier for tokens.
func (h *handlerState) redeemAuthCode(authCode string) (*oidctypes.TokenResponse, error) {
	h.logger.Info("kretalogin: redeeming authorization code")
	token, err := h.tokenRequest(url.Values{
		"code":          []string{authCode},
		"grant_type":    []string{"authorization_code"},
		"redirect_uri":  []string{RedirectURI},
		"code_verifier": []string{h.pkce.String()},
		"client_id":     []string{ClientID},
	})
	if err != nil {
		return nil, err
	}

	// Tokens returned from the token endpoint are not verified, since they came straight from the issuer
	// over TLS. The nonce still binds an ID token to this login attempt.
	if token.IDToken != "" {
		if err := h.validateIDTokenNonce(token.IDToken); err != nil {
			return nil, err
		}
	}
	return token, nil
}

func (h *handlerState) validateIDTokenNonce(rawIDToken string) error {
	parsed, err := jwt.ParseSigned(rawIDToken, idTokenSignatureAlgorithms)
	if err != nil {
		return fmt.Errorf("%w: could not parse id_token: %w", ErrUnexpectedResponse, err)
	}
	var claims struct {
		Nonce string `json:"nonce"`
	}
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return fmt.Errorf("%w: could not decode id_token claims: %w", ErrUnexpectedResponse, err)
	}
	if err := h.nonce.Validate(claims.Nonce); err != nil {
		return fmt.Errorf("id_token failed nonce validation: %w", err)
	}
	return nil
}

// tokenRequest posts params to the token endpoint as the mobile app and returns the decoded response.
func (h *handlerState) tokenRequest(params url.Values) (*oidctypes.TokenResponse, error) {
	ctx, cancel := context.WithTimeout(h.ctx, httpRequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.issuer+tokenPath, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("could not build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	// The token endpoint gets a plain client: no cookies from the login session, no redirects.
	client := phttp.WithUserAgent(h.httpClient, TokenUserAgent)
	client.Jar = nil
	client.Timeout = httpRequestTimeout
	client.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token request failed: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: could not read token response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.logger.Info("kretalogin: token endpoint rejected the request", "status", resp.StatusCode)
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Expect "application/json" when the content type is given at all.
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode content-type header: %w", ErrUnexpectedResponse, err)
		}
		if mediaType != "application/json" {
			return nil, fmt.Errorf("%w: unexpected token response content type %q", ErrUnexpectedResponse, mediaType)
		}
	}

	token, err := oidctypes.ParseTokenResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response did not include an access_token", ErrUnexpectedResponse)
	}
	return token, nil
}
