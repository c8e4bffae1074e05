/*
 * Client - Porkbun API v3 client.
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
package porkbun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultAPIEndpointURL is the IPv4-only endpoint, so that ping reports
	// the caller's public IPv4 address.
	DefaultAPIEndpointURL = "https://api-ipv4.porkbun.com/api/json/v3"
	// DefaultRequestTimeout is the total timeout of every API request.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultTTL is the minimum TTL accepted by the registrar.
	DefaultTTL = 600

	statusSuccess = "SUCCESS"
	statusError   = "ERROR"

	// domainsPageSize is the number of domains returned by listAll per call.
	domainsPageSize = 1000
	// maxDomainPages bounds the listAll scan.
	maxDomainPages = 50
	// maxResponseSize caps the body read from the API.
	maxResponseSize = 8 << 20
)

// Client is the Porkbun API v3 client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for the requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTimeout sets the total timeout of every request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient creates a new client for the given key pair.
func NewClient(apiKey, secretKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultAPIEndpointURL,
		apiKey:     apiKey,
		secretKey:  secretKey,
		timeout:    DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request posts the authenticated payload to the endpoint and classifies the
// response. Transport errors are returned as they are.
func (c *Client) request(ctx context.Context, endpoint string, extra map[string]string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := map[string]string{
		"apikey":       c.apiKey,
		"secretapikey": c.secretKey,
	}
	for k, v := range extra {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	reqURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.WithField("endpoint", endpoint).Debug("Porkbun API request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data := &response{}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(data)
	log.WithFields(log.Fields{
		"endpoint":   endpoint,
		"httpStatus": resp.StatusCode,
		"status":     data.Status,
	}).Debug("Porkbun API response")

	if err := classify(resp.StatusCode, data, decodeErr); err != nil {
		return nil, err
	}
	return data, nil
}

// classify turns a response into an *AuthError, an *APIError or nil.
func classify(code int, data *response, decodeErr error) error {
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		msg := data.Message
		if msg == "" {
			msg = http.StatusText(code)
		}
		return &AuthError{StatusCode: code, Message: msg}
	}
	if decodeErr != nil {
		if code < 200 || code > 299 {
			return &APIError{StatusCode: code, Message: http.StatusText(code)}
		}
		return &APIError{StatusCode: code, Message: fmt.Sprintf("invalid response: %v", decodeErr)}
	}
	if data.Status == statusError {
		msg := data.Message
		if msg == "" {
			msg = "Unknown API error"
		}
		if isInvalidCredentials(msg) {
			return &AuthError{StatusCode: code, Message: msg}
		}
		return &APIError{StatusCode: code, Message: msg}
	}
	if code < 200 || code > 299 {
		msg := data.Message
		if msg == "" {
			msg = http.StatusText(code)
		}
		return &APIError{StatusCode: code, Message: msg}
	}
	if data.Status != statusSuccess {
		msg := data.Message
		if msg == "" {
			msg = fmt.Sprintf("Unexpected status: %s", data.Status)
		}
		return &APIError{StatusCode: code, Message: msg}
	}
	return nil
}

// recordPath builds "<prefix>/<domain>/<type>[/<subdomain>]".
func recordPath(prefix, domain, recordType, subdomain string) string {
	p := prefix + "/" + url.PathEscape(domain) + "/" + url.PathEscape(recordType)
	if subdomain != "" {
		p += "/" + url.PathEscape(subdomain)
	}
	return p
}

// Ping validates the credentials and returns the caller's public IP address.
func (c *Client) Ping(ctx context.Context) (string, error) {
	data, err := c.request(ctx, "ping", nil)
	if err != nil {
		return "", err
	}
	if data.YourIP == "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: "ping response did not contain an address"}
	}
	return data.YourIP, nil
}

// GetRecords returns the records matching domain, type and subdomain. An
// empty subdomain selects the apex. No matching record is not an error.
func (c *Client) GetRecords(ctx context.Context, domain, recordType, subdomain string) ([]Record, error) {
	data, err := c.request(ctx, recordPath("dns/retrieveByNameType", domain, recordType, subdomain), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isNoRecords(apiErr.Message) {
			return []Record{}, nil
		}
		return nil, err
	}
	records := make([]Record, 0, len(data.Records))
	for _, r := range data.Records {
		records = append(records, r.toRecord())
	}
	return records, nil
}

// CreateRecord creates a record and returns its id.
func (c *Client) CreateRecord(ctx context.Context, domain, recordType, content, subdomain string, ttl int) (string, error) {
	extra := map[string]string{
		"type":    recordType,
		"content": content,
		"ttl":     strconv.Itoa(ttl),
	}
	if subdomain != "" {
		extra["name"] = subdomain
	}
	data, err := c.request(ctx, "dns/create/"+url.PathEscape(domain), extra)
	if err != nil {
		return "", err
	}
	return string(data.ID), nil
}

// EditRecordByNameType sets the content of every record matching domain, type
// and subdomain.
func (c *Client) EditRecordByNameType(ctx context.Context, domain, recordType, content, subdomain string, ttl int) error {
	extra := map[string]string{
		"content": content,
		"ttl":     strconv.Itoa(ttl),
	}
	_, err := c.request(ctx, recordPath("dns/editByNameType", domain, recordType, subdomain), extra)
	return err
}

// GetDomainInfo scans the account's domains and returns the entry for domain,
// or nil if the account does not hold it. A listing that does not advance, or
// that exceeds maxDomainPages, is reported as an *APIError.
func (c *Client) GetDomainInfo(ctx context.Context, domain string) (*DomainInfo, error) {
	start := 0
	first := ""
	for page := 0; page < maxDomainPages; page++ {
		data, err := c.request(ctx, "domain/listAll", map[string]string{"start": strconv.Itoa(start)})
		if err != nil {
			return nil, err
		}
		if len(data.Domains) > 0 {
			if page > 0 && strings.EqualFold(data.Domains[0].Domain, first) {
				return nil, &APIError{StatusCode: http.StatusOK, Message: "domain list pagination did not advance"}
			}
			first = data.Domains[0].Domain
		}
		for _, d := range data.Domains {
			if strings.EqualFold(d.Domain, domain) {
				return d.toDomainInfo(), nil
			}
		}
		if len(data.Domains) < domainsPageSize {
			return nil, nil
		}
		start += len(data.Domains)
	}
	return nil, &APIError{StatusCode: http.StatusOK, Message: fmt.Sprintf("domain list exceeds %d pages", maxDomainPages)}
}
