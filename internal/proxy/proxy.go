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

// Package proxy builds per-account HTTP clients that route through an
// optional HTTP or SOCKS5 proxy. Accounts without proxy settings get a
// direct client.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// Config describes an account's proxy settings. The zero value means a
// direct connection.
type Config struct {
	Type string
	URL  string
}

// FromAccount builds a proxy config from the account's stored fields.
func FromAccount(proxyType, proxyURL string) Config {
	return Config{
		Type: strings.ToLower(strings.TrimSpace(proxyType)),
		URL:  strings.TrimSpace(proxyURL),
	}
}

// Direct reports whether no proxy is configured.
func (c Config) Direct() bool {
	return c.Type == "" || c.Type == "none" || c.URL == ""
}

// BuildHTTPClient constructs an HTTP client honouring the proxy config,
// with an overall request timeout.
func BuildHTTPClient(cfg Config, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{}

	if !cfg.Direct() {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}

		switch cfg.Type {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5":
			var auth *xproxy.Auth
			if u.User != nil {
				password, _ := u.User.Password()
				auth = &xproxy.Auth{User: u.User.Username(), Password: password}
			}
			dialer, err := xproxy.SOCKS5("tcp", u.Host, auth, xproxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("build SOCKS5 dialer: %w", err)
			}
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			}
		default:
			return nil, fmt.Errorf("unsupported proxy type %q", cfg.Type)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
