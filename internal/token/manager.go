// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package token acquires and caches OAuth2 access tokens via the
// refresh-token grant, and detects from the granted scope whether the
// Graph API is usable for the account.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/outboxlabs/mailcheck/internal/models"
	"github.com/outboxlabs/mailcheck/internal/proxy"
)

// graphMailScope is the permission marker whose presence in the granted
// scope string indicates the account can read mail via the Graph API.
// The provider returns scopes as a loosely formatted space-separated
// string, so detection is a plain substring test.
const graphMailScope = "Mail.Read"

// Cache is the token cache contract the manager depends on.
type Cache interface {
	GetValidToken(ctx context.Context, accountID int64) (string, error)
	CacheToken(ctx context.Context, accountID int64, token string, expiresIn int64) error
}

// Store is the subset of account persistence the manager needs.
type Store interface {
	UpdateAccessToken(ctx context.Context, id int64, accessToken string) error
	UpdateAPIMode(ctx context.Context, id int64, mode models.APIMode) error
}

// RefreshResult carries a freshly granted token and its detected capability.
type RefreshResult struct {
	AccessToken   string
	ExpiresIn     int64
	SupportsGraph bool
}

// tokenResponse mirrors the provider's token endpoint JSON.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Manager obtains access tokens, caching them per account.
type Manager struct {
	cache    Cache
	store    Store
	tokenURL string
	scope    string
	timeout  time.Duration
}

// NewManager creates a token manager against the given token endpoint.
func NewManager(cache Cache, store Store, tokenURL, scope string, timeout time.Duration) *Manager {
	return &Manager{
		cache:    cache,
		store:    store,
		tokenURL: tokenURL,
		scope:    scope,
		timeout:  timeout,
	}
}

// Acquire returns an access token for the account together with the
// protocol mode to use. On a cache hit the account's configured mode is
// returned untouched; on a miss the token is refreshed, cached, persisted,
// and the mode is re-detected from the granted scope. The returned mode is
// never auto on the refresh path.
func (m *Manager) Acquire(ctx context.Context, account *models.Account, pxy proxy.Config) (string, models.APIMode, error) {
	cached, err := m.cache.GetValidToken(ctx, account.ID)
	if err != nil {
		return "", "", err
	}
	if cached != "" {
		return cached, account.APIMode, nil
	}

	result, err := m.Refresh(ctx, account.ClientID, account.RefreshToken, pxy)
	if err != nil {
		return "", "", err
	}

	if err := m.cache.CacheToken(ctx, account.ID, result.AccessToken, result.ExpiresIn); err != nil {
		return "", "", err
	}
	if err := m.store.UpdateAccessToken(ctx, account.ID, result.AccessToken); err != nil {
		return "", "", fmt.Errorf("persist access token: %w", err)
	}

	mode := models.ModeIMAP
	if result.SupportsGraph {
		mode = models.ModeGraph
	}
	slog.Info("token refreshed, protocol mode detected",
		"account_id", account.ID,
		"mode", mode,
		"expires_in", result.ExpiresIn,
	)
	if err := m.store.UpdateAPIMode(ctx, account.ID, mode); err != nil {
		return "", "", fmt.Errorf("persist api mode: %w", err)
	}

	return result.AccessToken, mode, nil
}

// Refresh performs the OAuth2 refresh-token grant, requesting the Graph
// default scope so the granted scope reveals the account's capability.
// A provider-level error is fatal for the check; there is no retry.
func (m *Manager) Refresh(ctx context.Context, clientID, refreshToken string, pxy proxy.Config) (*RefreshResult, error) {
	client, err := proxy.BuildHTTPClient(pxy, m.timeout)
	if err != nil {
		return nil, fmt.Errorf("build token client: %w", err)
	}

	form := url.Values{
		"client_id":     {clientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"scope":         {m.scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	if tr.AccessToken == "" {
		code := tr.Error
		if code == "" {
			code = "unknown_error"
		}
		return nil, fmt.Errorf("refresh token rejected: %s - %s", code, tr.ErrorDescription)
	}

	expiresIn := tr.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	return &RefreshResult{
		AccessToken:   tr.AccessToken,
		ExpiresIn:     expiresIn,
		SupportsGraph: SupportsGraph(tr.Scope),
	}, nil
}

// SupportsGraph reports whether a granted scope string carries the Graph
// read-mail permission. Kept as a named predicate so the matching rule can
// be hardened without touching the callers.
func SupportsGraph(scope string) bool {
	return strings.Contains(scope, graphMailScope)
}
