/*
 * Coordinator - periodic update cycles of a domain.
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
	"time"

	log "github.com/sirupsen/logrus"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/ddns"
)

// State of a coordinator.
type State string

const (
	// StateIdle means that no cycle has completed yet.
	StateIdle State = "idle"
	// StateOK means that the last cycle completed.
	StateOK State = "ok"
	// StateRetrying means that the last cycle failed and will be retried.
	StateRetrying State = "retrying"
	// StateNeedsReauth means that the credentials were rejected. Automatic
	// cycles are suspended until a manual refresh or a reload.
	StateNeedsReauth State = "needs_reauth"
)

// Refresher runs the update cycles of one domain.
type Refresher interface {
	Domain() string
	Config() config.DomainConfig
	Refresh(ctx context.Context) (*ddns.CycleResult, error)
	Snapshot() *ddns.CycleResult
}

// Status is the state published by a coordinator.
type Status struct {
	Domain      string
	State       State
	LastError   string
	LastAttempt time.Time
	NextUpdate  time.Time
	Result      *ddns.CycleResult
}

// Coordinator invokes the engine of a domain on a timer and on request. At
// most one cycle runs at a time.
type Coordinator struct {
	engine   Refresher
	interval time.Duration
	trigger  chan struct{}
	now      func() time.Time

	cycleMu sync.Mutex

	mu     sync.RWMutex
	status Status
}

// New creates the coordinator of an engine.
func New(engine Refresher, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = config.DefaultUpdateInterval
	}
	return &Coordinator{
		engine:   engine,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		now:      time.Now,
		status: Status{
			Domain: engine.Domain(),
			State:  StateIdle,
			Result: engine.Snapshot(),
		},
	}
}

// Domain returns the managed domain.
func (c *Coordinator) Domain() string {
	return c.engine.Domain()
}

// Config returns the configuration of the engine.
func (c *Coordinator) Config() config.DomainConfig {
	return c.engine.Config()
}

// Status returns a copy of the published state.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.status
	if s.Result != nil {
		s.Result = s.Result.Clone()
	}
	return s
}

// RequestRefresh asks for a cycle as soon as possible. Requests made while a
// cycle is pending are coalesced.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run runs a cycle immediately and then on every tick until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	logger := log.WithField("domain", c.Domain())
	logger.Infof("Starting updates every %s", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.RefreshNow(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping updates")
			return
		case <-ticker.C:
			if c.Status().State == StateNeedsReauth {
				logger.Warn("Skipping update: the API credentials need to be fixed")
				continue
			}
			c.RefreshNow(ctx)
		case <-c.trigger:
			c.RefreshNow(ctx)
			ticker.Reset(c.interval)
		}
	}
}

// RefreshNow runs a cycle and returns the resulting status.
func (c *Coordinator) RefreshNow(ctx context.Context) Status {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	start := c.now()
	result, err := c.engine.Refresh(ctx)

	c.mu.Lock()
	c.status.LastAttempt = start
	switch {
	case err == nil:
		c.status.State = StateOK
		c.status.LastError = ""
		c.status.Result = result
	case errors.Is(err, ddns.ErrAuthFailed):
		c.status.State = StateNeedsReauth
		c.status.LastError = err.Error()
		c.status.Result = c.engine.Snapshot()
	default:
		c.status.State = StateRetrying
		c.status.LastError = err.Error()
		c.status.Result = c.engine.Snapshot()
	}
	c.status.NextUpdate = time.Time{}
	if c.status.State != StateNeedsReauth {
		last := start
		if result != nil && !result.LastUpdated.IsZero() {
			last = result.LastUpdated
		}
		c.status.NextUpdate = last.Add(c.interval)
	}
	c.mu.Unlock()

	if err != nil {
		log.WithField("domain", c.Domain()).WithError(err).Warn("Update cycle failed")
	}
	return c.Status()
}
