// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"context"
	"errors"
	"net/url"

	"go.kretalogin.dev/pkg/oidcclient/oidctypes"
)

// Refresh trades a refresh token issued by Login for a new set of tokens.
// Nothing is stored: the caller owns both the old and the new refresh token.
func Refresh(ctx context.Context, instituteCode, refreshToken string, opts ...Option) (*oidctypes.TokenResponse, error) {
	h, err := newHandlerState(ctx, opts)
	if err != nil {
		return nil, err
	}
	if instituteCode == "" {
		return nil, errors.New("institute code must not be empty")
	}
	if refreshToken == "" {
		return nil, errors.New("refresh token must not be empty")
	}

	ctx, cancel := context.WithTimeout(h.ctx, overallTimeout)
	defer cancel()
	h.ctx = ctx

	h.logger.Info("kretalogin: refreshing tokens", "instituteCode", instituteCode)
	return h.tokenRequest(url.Values{
		"institute_code": []string{instituteCode},
		"refresh_token":  []string{refreshToken},
		"grant_type":     []string{"refresh_token"},
		"client_id":      []string{ClientID},
	})
}
