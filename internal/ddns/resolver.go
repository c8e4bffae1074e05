/*
 * Resolver - public IPv6 detection.
 *
 * Copyright 2023 Marco Confalonieri.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package ddns

import (
	"context"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultIPv6EchoURL answers with the caller's address in plain text.
	DefaultIPv6EchoURL = "https://api6.ipify.org"
	// IPv6Timeout is the total timeout of the echo request.
	IPv6Timeout = 10 * time.Second
)

// IPv6Resolver asks an echo service for the public IPv6 address.
type IPv6Resolver struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
}

// NewIPv6Resolver creates a resolver for the given echo URL. A nil client
// selects http.DefaultClient.
func NewIPv6Resolver(url string, httpClient *http.Client) *IPv6Resolver {
	if url == "" {
		url = DefaultIPv6EchoURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IPv6Resolver{httpClient: httpClient, url: url, timeout: IPv6Timeout}
}

// Resolve returns the public IPv6 address. Every failure is logged and
// reported as false.
func (r *IPv6Resolver) Resolve(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger := log.WithField("url", r.url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		logger.WithError(err).Warn("Failed to detect IPv6 address; skipping IPv6 update")
		return "", false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Warn("Failed to detect IPv6 address; skipping IPv6 update")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.WithField("httpStatus", resp.StatusCode).Warn("Failed to detect IPv6 address; skipping IPv6 update")
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		logger.WithError(err).Warn("Failed to detect IPv6 address; skipping IPv6 update")
		return "", false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil || !addr.Is6() || addr.Is4In6() {
		logger.Warn("IPv6 echo service did not return an IPv6 address; skipping IPv6 update")
		return "", false
	}
	return addr.String(), true
}
