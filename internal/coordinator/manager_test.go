/*
 * Manager - unit tests.
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
package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/notify"
)

// mockFactory builds mock engines and keeps them by domain.
type mockFactory struct {
	mu      sync.Mutex
	engines map[string]*mockEngine
	err     error
	// failFor makes the build of the listed domains fail.
	failFor map[string]bool
	// delay is the cycle duration of the built engines.
	delay time.Duration
	// busy is the highest number of cycles seen running while building.
	busy int
}

func (f *mockFactory) build(_ context.Context, cfg config.DomainConfig) (Refresher, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[cfg.Domain] {
		return nil, errors.New("bad config")
	}
	if f.engines == nil {
		f.engines = map[string]*mockEngine{}
	}
	active := 0
	for _, e := range f.engines {
		e.mu.Lock()
		active += e.active
		e.mu.Unlock()
	}
	if active > f.busy {
		f.busy = active
	}
	e := newMockEngine(cfg.Domain)
	e.delay = f.delay
	f.engines[cfg.Domain] = e
	return e, nil
}

func (f *mockFactory) engine(domain string) *mockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[domain]
}

func domainConfigs(domains ...string) []config.DomainConfig {
	out := make([]config.DomainConfig, 0, len(domains))
	for _, d := range domains {
		out = append(out, config.DomainConfig{Domain: d, IPv4: true, UpdateInterval: time.Hour})
	}
	return out
}

func Test_Manager_lifecycle(t *testing.T) {
	f := &mockFactory{}
	m := NewManager(f.build)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx, domainConfigs("example.com", "example.org")))
	assert.Equal(t, []string{"example.com", "example.org"}, m.Domains())
	assert.Eventually(t, func() bool {
		for _, s := range m.Statuses() {
			if s.State != StateOK {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)

	c, ok := m.Lookup("example.org")
	require.True(t, ok)
	assert.Equal(t, "example.org", c.Domain())
	_, ok = m.Lookup("unknown.net")
	assert.False(t, ok)

	assert.True(t, m.RequestRefresh("example.com"))
	assert.False(t, m.RequestRefresh("unknown.net"))
	assert.Eventually(t, func() bool { return f.engine("example.com").callCount() == 2 }, time.Second, 10*time.Millisecond)

	m.Stop()
	assert.Empty(t, m.Domains())
	assert.Empty(t, m.Statuses())
}

func Test_Manager_Reload(t *testing.T) {
	f := &mockFactory{}
	m := NewManager(f.build)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx, domainConfigs("example.com")))

	require.NoError(t, m.Reload(domainConfigs("example.org", "example.net")))

	assert.Equal(t, []string{"example.org", "example.net"}, m.Domains())
	_, ok := m.Lookup("example.com")
	assert.False(t, ok)
	m.Stop()
}

func Test_Manager_Reload_factoryError(t *testing.T) {
	type testCase struct {
		name     string
		failFor  map[string]bool
		expected struct {
			domains []string
			err     bool
		}
	}

	run := func(t *testing.T, tc testCase) {
		f := &mockFactory{}
		m := NewManager(f.build)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, m.Start(ctx, domainConfigs("example.com")))
		first := f.engine("example.com")
		f.failFor = tc.failFor
		exp := tc.expected

		err := m.Reload(domainConfigs("example.org"))

		assert.Equal(t, exp.err, err != nil)
		assert.Equal(t, exp.domains, m.Domains())
		if len(exp.domains) > 0 {
			c, ok := m.Lookup(exp.domains[0])
			require.True(t, ok)
			assert.Eventually(t, func() bool { return c.Status().State == StateOK }, time.Second, 10*time.Millisecond)
			assert.NotSame(t, first, f.engine("example.com"))
		}
		m.Stop()
	}

	testCases := []testCase{
		{
			name:    "new domain rejected",
			failFor: map[string]bool{"example.org": true},
			expected: struct {
				domains []string
				err     bool
			}{
				domains: []string{"example.com"},
				err:     true,
			},
		},
		{
			name:    "previous domain rejected too",
			failFor: map[string]bool{"example.org": true, "example.com": true},
			expected: struct {
				domains []string
				err     bool
			}{
				domains: []string{},
				err:     true,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func Test_Manager_Reload_stopsBeforeBuilding(t *testing.T) {
	f := &mockFactory{delay: 100 * time.Millisecond}
	m := NewManager(f.build)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx, domainConfigs("example.com")))
	old := f.engine("example.com")
	require.Eventually(t, func() bool { return old.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Reload(domainConfigs("example.com")))

	assert.Equal(t, 0, f.busy)
	assert.NotSame(t, old, f.engine("example.com"))
	assert.Equal(t, []string{"example.com"}, m.Domains())
	m.Stop()
}

// mockNotifier records the cleared issues.
type mockNotifier struct {
	mu      sync.Mutex
	cleared []string
}

func (n *mockNotifier) Raise(context.Context, notify.Issue) {}

func (n *mockNotifier) Clear(_ context.Context, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cleared = append(n.cleared, id)
}

func Test_Manager_Reload_clearsDroppedDomains(t *testing.T) {
	type testCase struct {
		name     string
		reload   []string
		failFor  map[string]bool
		expected []string
	}

	run := func(t *testing.T, tc testCase) {
		f := &mockFactory{}
		n := &mockNotifier{}
		m := NewManager(f.build, WithIssueNotifier(n))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, m.Start(ctx, domainConfigs("example.com", "example.org")))
		f.failFor = tc.failFor

		_ = m.Reload(domainConfigs(tc.reload...))

		assert.Equal(t, tc.expected, n.cleared)
		m.Stop()
	}

	testCases := []testCase{
		{
			name:     "one domain dropped",
			reload:   []string{"example.org", "example.net"},
			expected: []string{"api_access_example.com"},
		},
		{
			name:   "same domains",
			reload: []string{"example.org", "example.com"},
		},
		{
			name:    "failed reload keeps the issues",
			reload:  []string{"example.net"},
			failFor: map[string]bool{"example.net": true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func Test_Manager_Reload_notStarted(t *testing.T) {
	f := &mockFactory{}
	m := NewManager(f.build)

	assert.Error(t, m.Reload(domainConfigs("example.com")))
}

func Test_Manager_Start_factoryError(t *testing.T) {
	f := &mockFactory{err: errors.New("bad config")}
	m := NewManager(f.build)

	assert.Error(t, m.Start(context.Background(), domainConfigs("example.com")))
	assert.Empty(t, m.Domains())
}
