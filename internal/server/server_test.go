/*
 * Server - unit tests.
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
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/coordinator"
	"porkbun-ddns/internal/ddns"
	"porkbun-ddns/internal/notify"
	"porkbun-ddns/internal/porkbun"
)

var testTime = time.Date(2026, 8, 15, 14, 30, 45, 0, time.UTC)

// mockEngine returns a fixed result.
type mockEngine struct {
	cfg    config.DomainConfig
	result *ddns.CycleResult
	err    error
}

func (m *mockEngine) Domain() string              { return m.cfg.Domain }
func (m *mockEngine) Config() config.DomainConfig { return m.cfg }
func (m *mockEngine) Snapshot() *ddns.CycleResult { return m.result.Clone() }

func (m *mockEngine) Refresh(context.Context) (*ddns.CycleResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result.Clone(), nil
}

// mockDomains is a static DomainSource.
type mockDomains struct {
	order        []string
	coordinators map[string]*coordinator.Coordinator
	refreshed    []string
}

func (m *mockDomains) Statuses() []coordinator.Status {
	statuses := []coordinator.Status{}
	for _, d := range m.order {
		statuses = append(statuses, m.coordinators[d].Status())
	}
	return statuses
}

func (m *mockDomains) Lookup(domain string) (*coordinator.Coordinator, bool) {
	c, ok := m.coordinators[domain]
	return c, ok
}

func (m *mockDomains) RequestRefresh(domain string) bool {
	c, ok := m.coordinators[domain]
	if !ok {
		return false
	}
	m.refreshed = append(m.refreshed, domain)
	c.RequestRefresh()
	return true
}

// mockIssues is a static IssueSource.
type mockIssues struct {
	issues []notify.Issue
}

func (m *mockIssues) Active() []notify.Issue {
	return m.issues
}

func (m *mockIssues) ActiveFor(domain string) []notify.Issue {
	out := []notify.Issue{}
	for _, i := range m.issues {
		if i.Domain == domain {
			out = append(out, i)
		}
	}
	return out
}

func testResult() *ddns.CycleResult {
	r := ddns.NewCycleResult()
	r.PublicIPv4 = "1.2.3.4"
	r.PublicIPv6 = "2001:db8::1"
	r.LastUpdated = testTime
	r.Records[ddns.NewRecordKey("", ddns.RecordTypeA)] = &ddns.RecordState{
		CurrentIP: "1.2.3.4", OK: true, LastUpdated: testTime, LastChanged: testTime,
	}
	r.Records[ddns.NewRecordKey("www", ddns.RecordTypeA)] = &ddns.RecordState{
		OK: false, Error: "Bad Gateway",
	}
	r.DomainInfo = &porkbun.DomainInfo{
		Domain:       "example.com",
		Status:       "ACTIVE",
		ExpireDate:   "2027-01-02 03:04:05",
		WhoisPrivacy: true,
	}
	return r
}

func testEngine(domain string, result *ddns.CycleResult, err error) *mockEngine {
	return &mockEngine{
		cfg: config.DomainConfig{
			Domain:         domain,
			Subdomains:     []string{"www"},
			IPv4:           true,
			UpdateInterval: 5 * time.Minute,
			TTL:            600,
			Credentials:    config.Credentials{APIKey: "pk1_secretvalue", SecretKey: "sk1_secretvalue"},
		},
		result: result,
		err:    err,
	}
}

func testServer(t *testing.T) (*Server, *mockDomains) {
	t.Helper()
	c1 := coordinator.New(testEngine("example.com", testResult(), nil), 5*time.Minute)
	c1.RefreshNow(context.Background())
	c2 := coordinator.New(testEngine("example.org", ddns.NewCycleResult(), errors.New("unreachable")), 5*time.Minute)
	domains := &mockDomains{
		order: []string{"example.com", "example.org"},
		coordinators: map[string]*coordinator.Coordinator{
			"example.com": c1,
			"example.org": c2,
		},
	}
	issues := &mockIssues{issues: []notify.Issue{
		{ID: notify.APIAccessIssueID("example.org"), Domain: "example.org", Severity: notify.SeverityError, Title: "API access"},
	}}
	status := &Status{}
	status.SetHealth(true)
	status.SetReady(true)
	return NewServer(status, domains, issues, prometheus.NewRegistry()), domains
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, path, nil)
	s.Router().ServeHTTP(w, r)
	return w
}

func Test_Server_statusChecks(t *testing.T) {
	type testCase struct {
		name     string
		healthy  bool
		ready    bool
		path     string
		expected int
	}

	run := func(t *testing.T, tc testCase) {
		s, _ := testServer(t)
		s.status.SetHealth(tc.healthy)
		s.status.SetReady(tc.ready)

		w := serve(s, http.MethodGet, tc.path)

		assert.Equal(t, tc.expected, w.Code)
		assert.Equal(t, http.StatusText(tc.expected), w.Body.String())
	}

	testCases := []testCase{
		{name: "root ready", healthy: false, ready: true, path: "/", expected: http.StatusOK},
		{name: "ready", healthy: true, ready: true, path: "/ready", expected: http.StatusOK},
		{name: "not ready", healthy: true, ready: false, path: "/ready", expected: http.StatusServiceUnavailable},
		{name: "healthy", healthy: true, ready: false, path: "/health", expected: http.StatusOK},
		{name: "not healthy", healthy: false, ready: true, path: "/health", expected: http.StatusServiceUnavailable},
		{name: "healthz", healthy: true, ready: true, path: "/healthz", expected: http.StatusOK},
		{name: "healthz not ready", healthy: true, ready: false, path: "/healthz", expected: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func Test_Server_metrics(t *testing.T) {
	s, _ := testServer(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total"})
	s.registry.MustRegister(counter)
	counter.Inc()

	w := serve(s, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_counter_total 1")
}

func Test_Server_listDomains(t *testing.T) {
	s, _ := testServer(t)

	w := serve(s, http.MethodGet, "/api/domains")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var views []DomainView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "example.com", views[0].Domain)
	assert.Equal(t, "example.org", views[1].Domain)
	assert.Nil(t, views[1].Problem)
	assert.Equal(t, "idle", views[1].State)
	assert.Len(t, views[1].Issues, 1)
}

func Test_Server_listIssues(t *testing.T) {
	type testCase struct {
		name     string
		issues   IssueSource
		expected []string
	}

	run := func(t *testing.T, tc testCase) {
		s, _ := testServer(t)
		s.issues = tc.issues

		w := serve(s, http.MethodGet, "/api/issues")

		require.Equal(t, http.StatusOK, w.Code)
		var issues []notify.Issue
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
		ids := []string{}
		for _, i := range issues {
			ids = append(ids, i.ID)
		}
		assert.Equal(t, tc.expected, ids)
	}

	testCases := []testCase{
		{
			name: "active issues",
			issues: &mockIssues{issues: []notify.Issue{
				{ID: notify.APIAccessIssueID("example.com"), Domain: "example.com"},
				{ID: notify.APIAccessIssueID("example.org"), Domain: "example.org"},
			}},
			expected: []string{"api_access_example.com", "api_access_example.org"},
		},
		{
			name:     "no issue source",
			expected: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func Test_Server_getDomain(t *testing.T) {
	s, _ := testServer(t)

	w := serve(s, http.MethodGet, "/api/domains/Example.COM.")

	require.Equal(t, http.StatusOK, w.Code)
	var v DomainView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "example.com", v.Domain)
	assert.Equal(t, "1.2.3.4", v.PublicIPv4)
	assert.Equal(t, "1/2 OK", v.Summary)
	require.NotNil(t, v.Problem)
	assert.True(t, *v.Problem)
	assert.Equal(t, []string{"www_A"}, v.FailedRecords)
	assert.Equal(t, []string{"example.com", "www.example.com"}, v.ManagedRecords)
	assert.Equal(t, "ok", v.State)
	assert.Equal(t, "ACTIVE", v.DomainStatus)
	require.NotNil(t, v.Expiry)
	assert.Equal(t, time.Date(2027, 1, 2, 3, 4, 5, 0, time.UTC), v.Expiry.UTC())
	require.NotNil(t, v.NextUpdate)
	assert.Equal(t, testTime.Add(5*time.Minute), v.NextUpdate.UTC())
	assert.Empty(t, v.Issues)
}

func Test_Server_unknownDomain(t *testing.T) {
	type testCase struct {
		name   string
		method string
		path   string
	}

	run := func(t *testing.T, tc testCase) {
		s, _ := testServer(t)

		w := serve(s, tc.method, tc.path)

		assert.Equal(t, http.StatusNotFound, w.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body.Error, "unknown.net")
	}

	testCases := []testCase{
		{name: "view", method: http.MethodGet, path: "/api/domains/unknown.net"},
		{name: "refresh", method: http.MethodPost, path: "/api/domains/unknown.net/refresh"},
		{name: "diagnostics", method: http.MethodGet, path: "/api/domains/unknown.net/diagnostics"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func Test_Server_refreshDomain(t *testing.T) {
	s, domains := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := domains.coordinators["example.org"]
	done := make(chan struct{})

	w := serve(s, http.MethodPost, "/api/domains/Example.ORG./refresh")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"example.org"}, domains.refreshed)

	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	assert.Eventually(t, func() bool {
		return c.Status().State == coordinator.StateRetrying
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func Test_Server_getDiagnostics(t *testing.T) {
	s, _ := testServer(t)

	w := serve(s, http.MethodGet, "/api/domains/example.com/diagnostics")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "secretvalue")
	assert.Equal(t, 2, strings.Count(body, fmt.Sprintf("%q", redacted)))
	var d DiagnosticsView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, redacted, d.Config.APIKey)
	assert.Equal(t, redacted, d.Config.SecretKey)
	assert.Equal(t, 300, d.Config.UpdateInterval)
	assert.Equal(t, []string{"www"}, d.Config.Subdomains)
	require.NotNil(t, d.Data)
	assert.Equal(t, "1.2.3.4", d.Data.Records[ddns.NewRecordKey("", ddns.RecordTypeA)].CurrentIP)
}

func Test_Server_Start(t *testing.T) {
	s, _ := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	startedChan := make(chan struct{}, 1)
	errChan := make(chan error, 1)
	options := ServerOptions{Host: "127.0.0.1", Port: 32128, ReadTimeout: 1000, WriteTimeout: 1000, ShutdownTimeout: 1000}

	go func() {
		errChan <- s.Start(ctx, startedChan, options)
	}()
	<-startedChan

	resp, err := http.Get("http://127.0.0.1:32128/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-errChan)
}
