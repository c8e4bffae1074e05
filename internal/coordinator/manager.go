/*
 * Manager - coordinator lifecycle.
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
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/notify"
)

// EngineFactory builds the engine of a domain.
type EngineFactory func(ctx context.Context, cfg config.DomainConfig) (Refresher, error)

// running is a started coordinator.
type running struct {
	coordinator *Coordinator
	cancel      context.CancelFunc
	done        chan struct{}
}

// Manager owns one coordinator per configured domain.
type Manager struct {
	factory  EngineFactory
	notifier notify.Notifier

	reloadMu sync.Mutex

	mu      sync.RWMutex
	parent  context.Context
	configs []config.DomainConfig
	order   []string
	running map[string]*running
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIssueNotifier sets the notifier whose domain issues are cleared when a
// reload drops the domain.
func WithIssueNotifier(n notify.Notifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

// NewManager creates a manager using factory to build the engines.
func NewManager(factory EngineFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		factory: factory,
		running: map[string]*running{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start builds and starts a coordinator for every domain. The coordinators
// stop when ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context, domains []config.DomainConfig) error {
	coordinators, err := m.build(ctx, domains)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parent = ctx
	m.launch(coordinators, domains)
	return nil
}

// Reload stops every coordinator, waits for their cycles to end and starts
// the ones built from the new configuration. When the new configuration
// cannot be built the previous domains are started again and the error is
// returned. Issues of the domains no longer managed are cleared.
func (m *Manager) Reload(domains []config.DomainConfig) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	m.mu.RLock()
	parent := m.parent
	previous := m.configs
	m.mu.RUnlock()
	if parent == nil {
		return fmt.Errorf("manager not started")
	}

	m.Stop()
	coordinators, err := m.build(parent, domains)
	if err != nil {
		restored, rerr := m.build(parent, previous)
		if rerr != nil {
			return fmt.Errorf("%w; restoring the previous domains: %w", err, rerr)
		}
		m.mu.Lock()
		m.launch(restored, previous)
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	m.launch(coordinators, domains)
	m.mu.Unlock()

	m.clearDropped(parent, previous, domains)
	log.Infof("Configuration reloaded, managing %d domain(s)", len(coordinators))
	return nil
}

// Stop stops every coordinator and waits for their cycles to end.
func (m *Manager) Stop() {
	m.mu.Lock()
	stopping := m.running
	m.running = map[string]*running{}
	m.order = nil
	m.configs = nil
	m.mu.Unlock()

	for _, r := range stopping {
		r.cancel()
	}
	for _, r := range stopping {
		<-r.done
	}
}

// Domains returns the managed domains in configuration order.
func (m *Manager) Domains() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.order...)
}

// Lookup returns the coordinator of a domain.
func (m *Manager) Lookup(domain string) (*Coordinator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.running[domain]
	if !ok {
		return nil, false
	}
	return r.coordinator, true
}

// Statuses returns the status of every domain in configuration order.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]Status, 0, len(m.order))
	for _, d := range m.order {
		statuses = append(statuses, m.running[d].coordinator.Status())
	}
	return statuses
}

// RequestRefresh asks for a cycle of a domain. It returns false when the
// domain is not managed.
func (m *Manager) RequestRefresh(domain string) bool {
	c, ok := m.Lookup(domain)
	if !ok {
		return false
	}
	c.RequestRefresh()
	return true
}

// build creates the coordinators without starting them.
func (m *Manager) build(ctx context.Context, domains []config.DomainConfig) ([]*Coordinator, error) {
	coordinators := make([]*Coordinator, 0, len(domains))
	for _, d := range domains {
		engine, err := m.factory(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("creating engine for %s: %w", d.Domain, err)
		}
		coordinators = append(coordinators, New(engine, d.UpdateInterval))
	}
	return coordinators, nil
}

// launch starts the coordinators built from configs. m.mu must be held.
func (m *Manager) launch(coordinators []*Coordinator, configs []config.DomainConfig) {
	m.configs = configs
	for _, c := range coordinators {
		ctx, cancel := context.WithCancel(m.parent)
		r := &running{coordinator: c, cancel: cancel, done: make(chan struct{})}
		m.running[c.Domain()] = r
		m.order = append(m.order, c.Domain())
		go func(c *Coordinator) {
			defer close(r.done)
			c.Run(ctx)
		}(c)
	}
}

// clearDropped clears the issues of the domains in previous that are not in
// current.
func (m *Manager) clearDropped(ctx context.Context, previous, current []config.DomainConfig) {
	if m.notifier == nil {
		return
	}
	kept := make(map[string]struct{}, len(current))
	for _, d := range current {
		kept[d.Domain] = struct{}{}
	}
	for _, d := range previous {
		if _, ok := kept[d.Domain]; ok {
			continue
		}
		log.WithField("domain", d.Domain).Info("Domain no longer managed")
		m.notifier.Clear(ctx, notify.APIAccessIssueID(d.Domain))
	}
}
