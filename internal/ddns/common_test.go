/*
 * Common - common test routines.
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
	"testing"
	"time"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/notify"
	"porkbun-ddns/internal/porkbun"
)

// testTime is the time returned by the engine clock.
var testTime = time.Date(2026, 8, 15, 14, 30, 45, 0, time.UTC)

const (
	testDomain = "example.com"
	testIPv4   = "1.2.3.4"
	testIPv6   = "2001:db8::1"
)

// pingResponse simulates the response to a ping.
type pingResponse struct {
	ip  string
	err error
}

// recordsResponse simulates a response that returns a list of records.
type recordsResponse struct {
	records []porkbun.Record
	err     error
}

// domainInfoResponse simulates the response to a domain info lookup.
type domainInfoResponse struct {
	info *porkbun.DomainInfo
	err  error
}

// writeCall is a create or edit request received by the mock.
type writeCall struct {
	recordType string
	content    string
	subdomain  string
	ttl        int
}

// mockClientState keeps track of which methods were called.
type mockClientState struct {
	PingCalled          bool
	GetRecordsCalled    bool
	CreateRecordCalled  bool
	EditRecordCalled    bool
	GetDomainInfoCalled bool
	lookups             []string
	created             []writeCall
	edited              []writeCall
}

// mockClient represents the mock client used to simulate calls to the API.
type mockClient struct {
	ping          pingResponse
	getRecords    map[string]recordsResponse
	createErr     error
	editErr       error
	getDomainInfo domainInfoResponse
	// persist makes successful writes visible to the following lookups.
	persist bool
	// cancel, when set, is called on the first lookup.
	cancel context.CancelFunc
	state   mockClientState
}

// GetState returns the internal state
func (m *mockClient) GetState() mockClientState {
	return m.state
}

// writes returns the number of create and edit calls.
func (m *mockClient) writes() int {
	return len(m.state.created) + len(m.state.edited)
}

// Ping simulates a ping.
func (m *mockClient) Ping(ctx context.Context) (string, error) {
	m.state.PingCalled = true
	return m.ping.ip, m.ping.err
}

// GetRecords simulates a lookup; unknown keys return no records.
func (m *mockClient) GetRecords(ctx context.Context, domain, recordType, subdomain string) ([]porkbun.Record, error) {
	m.state.GetRecordsCalled = true
	if m.cancel != nil {
		m.cancel()
		return nil, ctx.Err()
	}
	key := NewRecordKey(subdomain, RecordType(recordType)).String()
	m.state.lookups = append(m.state.lookups, key)
	r := m.getRecords[key]
	if r.err != nil {
		return nil, r.err
	}
	if r.records == nil {
		return []porkbun.Record{}, nil
	}
	return r.records, nil
}

// CreateRecord simulates the creation of a record.
func (m *mockClient) CreateRecord(ctx context.Context, domain, recordType, content, subdomain string, ttl int) (string, error) {
	m.state.CreateRecordCalled = true
	m.state.created = append(m.state.created, writeCall{recordType, content, subdomain, ttl})
	if m.createErr != nil {
		return "", m.createErr
	}
	m.store(recordType, content, subdomain)
	return "id_" + subdomain + "_" + recordType, nil
}

// EditRecordByNameType simulates the update of a record.
func (m *mockClient) EditRecordByNameType(ctx context.Context, domain, recordType, content, subdomain string, ttl int) error {
	m.state.EditRecordCalled = true
	m.state.edited = append(m.state.edited, writeCall{recordType, content, subdomain, ttl})
	if m.editErr != nil {
		return m.editErr
	}
	m.store(recordType, content, subdomain)
	return nil
}

// GetDomainInfo simulates the domain info lookup.
func (m *mockClient) GetDomainInfo(ctx context.Context, domain string) (*porkbun.DomainInfo, error) {
	m.state.GetDomainInfoCalled = true
	return m.getDomainInfo.info, m.getDomainInfo.err
}

func (m *mockClient) store(recordType, content, subdomain string) {
	if !m.persist {
		return
	}
	if m.getRecords == nil {
		m.getRecords = map[string]recordsResponse{}
	}
	key := NewRecordKey(subdomain, RecordType(recordType)).String()
	m.getRecords[key] = recordsResponse{records: []porkbun.Record{existing(recordType, content)}}
}

// existing builds a record returned by a lookup.
func existing(recordType, content string) porkbun.Record {
	return porkbun.Record{ID: "1", Name: testDomain, Type: recordType, Content: content, TTL: "600"}
}

// mockResolver simulates the IPv6 resolver.
type mockResolver struct {
	ip     string
	ok     bool
	called bool
}

func (r *mockResolver) Resolve(ctx context.Context) (string, bool) {
	r.called = true
	return r.ip, r.ok
}

// mockNotifier records the advisory transitions.
type mockNotifier struct {
	raised  []notify.Issue
	cleared []string
}

func (n *mockNotifier) Raise(ctx context.Context, issue notify.Issue) {
	n.raised = append(n.raised, issue)
}

func (n *mockNotifier) Clear(ctx context.Context, id string) {
	n.cleared = append(n.cleared, id)
}

// mockStore is an in-memory StateStore.
type mockStore struct {
	records map[RecordKey]RecordState
	loadErr error
	saves   int
}

func (s *mockStore) Load(ctx context.Context, domain string) (map[RecordKey]RecordState, error) {
	return s.records, s.loadErr
}

func (s *mockStore) Save(ctx context.Context, domain string, records map[RecordKey]RecordState) error {
	s.saves++
	s.records = records
	return nil
}

// testConfig returns a domain configuration.
func testConfig(ipv4, ipv6 bool, subdomains ...string) config.DomainConfig {
	return config.DomainConfig{
		Domain:         testDomain,
		Subdomains:     subdomains,
		IPv4:           ipv4,
		IPv6:           ipv6,
		UpdateInterval: config.DefaultUpdateInterval,
		TTL:            600,
		Credentials:    config.Credentials{APIKey: "pk1", SecretKey: "sk1"},
	}
}

// newTestEngine creates an engine with a fixed clock.
func newTestEngine(cfg config.DomainConfig, client *mockClient, opts ...Option) *Engine {
	opts = append([]Option{
		WithClock(func() time.Time { return testTime }),
		WithResolver(&mockResolver{ip: testIPv6, ok: true}),
	}, opts...)
	return NewEngine(context.Background(), cfg, client, opts...)
}

// checkError checks if an error is thrown when expected.
func checkError(t *testing.T, err error, errExp bool) {
	isErr := (err != nil)
	if (isErr && !errExp) || (!isErr && errExp) {
		t.Fail()
	}
}
