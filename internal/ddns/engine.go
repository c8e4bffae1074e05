/*
 * Engine - DNS record reconciliation.
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
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/metrics"
	"porkbun-ddns/internal/notify"
	"porkbun-ddns/internal/porkbun"
)

var (
	// ErrAuthFailed means that the registrar rejected the credentials. It is
	// not retried automatically.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrUpdateFailed means that the registrar could not be used for the
	// domain. The next cycle may succeed.
	ErrUpdateFailed = errors.New("update failed")
)

// Engine reconciles the records of one domain.
type Engine struct {
	cfg      config.DomainConfig
	client   Registrar
	resolver AddressResolver
	notifier notify.Notifier
	store    StateStore
	dryRun   bool
	now      func() time.Time

	// mu guards state against concurrent readers; cycles are not reentrant.
	mu    sync.RWMutex
	state *CycleResult
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver sets the IPv6 resolver.
func WithResolver(r AddressResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithNotifier sets the destination of the advisory issues.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithStore sets the record state store.
func WithStore(s StateStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithDryRun disables the writes to the registrar.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates the engine of a domain. Persisted record states are
// loaded and the ones the configuration no longer enables are dropped.
func NewEngine(ctx context.Context, cfg config.DomainConfig, client Registrar, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		client: client,
		now:    time.Now,
		state:  NewCycleResult(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.resolver == nil {
		e.resolver = NewIPv6Resolver(DefaultIPv6EchoURL, nil)
	}
	if e.cfg.TTL <= 0 {
		e.cfg.TTL = porkbun.DefaultTTL
	}
	e.restore(ctx)
	return e
}

// restore loads the persisted states, keeping only the enabled keys.
func (e *Engine) restore(ctx context.Context) {
	if e.store == nil {
		return
	}
	logger := log.WithField("domain", e.cfg.Domain)
	persisted, err := e.store.Load(ctx, e.cfg.Domain)
	if err != nil {
		logger.WithError(err).Warn("Failed to load the record states, starting empty")
		return
	}
	enabled := map[RecordKey]struct{}{}
	for _, k := range Targets(e.cfg) {
		enabled[k] = struct{}{}
	}
	m := metrics.GetOpenMetricsInstance()
	for k, s := range persisted {
		if _, ok := enabled[k]; !ok {
			logger.WithField("record", k.String()).Info("Dropping the state of a record no longer managed")
			m.DeleteRecord(e.cfg.Domain, k.String())
			continue
		}
		state := s
		e.state.Records[k] = &state
	}
}

// Domain returns the managed domain.
func (e *Engine) Domain() string {
	return e.cfg.Domain
}

// Config returns the configuration of the engine.
func (e *Engine) Config() config.DomainConfig {
	return e.cfg
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() *CycleResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Refresh runs one reconciliation cycle and returns a copy of the resulting
// state. The returned error wraps ErrAuthFailed or ErrUpdateFailed together
// with its cause, or is the context error when ctx is done during the cycle;
// in that case the state is left untouched. Refresh must not be called
// concurrently.
func (e *Engine) Refresh(ctx context.Context) (*CycleResult, error) {
	logger := log.WithFields(log.Fields{
		"domain": e.cfg.Domain,
		"cycle":  uuid.NewString(),
	})
	logger.Debug("Starting update cycle")

	// The cycle works on a copy that is published at the end.
	data := e.Snapshot()
	now := e.now()

	if e.cfg.IPv4 {
		ip, err := ping(ctx, e.client)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Update cycle interrupted")
				return nil, ctx.Err()
			}
			if porkbun.IsAuthError(err) {
				logger.WithError(err).Error("Porkbun rejected the API credentials")
				return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
			}
			logger.WithError(err).Error("Porkbun API is not reachable")
			for _, s := range data.Records {
				s.fail(err)
			}
			e.raiseAPIAccessIssue(ctx, err)
			e.publish(data)
			return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
		}
		data.PublicIPv4 = ""
		if addr, perr := netip.ParseAddr(ip); perr == nil && addr.Unmap().Is4() {
			data.PublicIPv4 = addr.Unmap().String()
		} else {
			logger.WithField("address", ip).Warn("Porkbun did not report an IPv4 address; skipping IPv4 update")
		}
		logger.Debugf("Current public IPv4: %s", data.PublicIPv4)
	}

	if e.cfg.IPv6 {
		data.PublicIPv6, _ = e.resolver.Resolve(ctx)
		logger.Debugf("Current public IPv6: %s", data.PublicIPv6)
	}

	for _, key := range Targets(e.cfg) {
		if ctx.Err() != nil {
			break
		}
		target := data.PublicIPv4
		if key.Type == RecordTypeAAAA {
			target = data.PublicIPv6
		}
		if target == "" {
			continue
		}
		e.reconcile(ctx, logger, data, key, target, now)
	}

	if info, ok := e.lookupDomainInfo(ctx, logger); ok {
		data.DomainInfo = info
	}

	// An interrupted cycle is discarded.
	if err := ctx.Err(); err != nil {
		logger.Info("Update cycle interrupted")
		return nil, err
	}

	data.LastUpdated = now
	if e.notifier != nil {
		e.notifier.Clear(ctx, notify.APIAccessIssueID(e.cfg.Domain))
	}
	if e.store != nil {
		if err := e.store.Save(ctx, e.cfg.Domain, data.recordValues()); err != nil {
			logger.WithError(err).Warn("Failed to save the record states")
		}
	}
	e.publish(data)
	logger.WithFields(log.Fields{
		"ok":      data.OKCount(),
		"records": data.RecordCount(),
	}).Info("Update cycle completed")
	return data.Clone(), nil
}

// reconcile brings one record to the target address. Failures are recorded
// in the record state.
func (e *Engine) reconcile(ctx context.Context, logger *log.Entry, data *CycleResult, key RecordKey, target string, now time.Time) {
	state, ok := data.Records[key]
	if !ok {
		state = &RecordState{}
		data.Records[key] = state
	}
	m := metrics.GetOpenMetricsInstance()
	rlog := logger.WithFields(log.Fields{
		"record": key.FQDN(e.cfg.Domain),
		"type":   key.Type,
	})

	existing, err := fetchRecords(ctx, e.client, e.cfg.Domain, key)
	if err != nil {
		rlog.WithError(err).Warn("Failed to read record")
		state.fail(err)
		m.IncRecordsFailedTotal(e.cfg.Domain)
		return
	}
	current := ""
	if len(existing) > 0 {
		current = existing[0].Content
	}

	switch {
	case current != "" && sameAddress(current, target):
		rlog.Debugf("Record already correct (%s)", target)
		state.succeed(current, now)
		return
	case e.dryRun:
		if current != "" {
			rlog.Infof("Dry run: would update record %s -> %s", current, target)
		} else {
			rlog.Infof("Dry run: would create record %s", target)
		}
		state.succeed(current, now)
		return
	case current != "":
		rlog.Infof("Updating record: %s -> %s", current, target)
		err = editRecord(ctx, e.client, e.cfg.Domain, key, target, e.cfg.TTL)
		if err == nil {
			m.IncRecordsUpdatedTotal(e.cfg.Domain)
		}
	default:
		rlog.Infof("Creating record: %s", target)
		_, err = createRecord(ctx, e.client, e.cfg.Domain, key, target, e.cfg.TTL)
		if err == nil {
			m.IncRecordsCreatedTotal(e.cfg.Domain)
		}
	}
	if err != nil {
		rlog.WithError(err).Warn("Failed to write record")
		state.fail(err)
		m.IncRecordsFailedTotal(e.cfg.Domain)
		return
	}
	state.succeed(target, now)
}

// lookupDomainInfo fetches the registration data. It returns false when the
// lookup failed and the previous value must be kept.
func (e *Engine) lookupDomainInfo(ctx context.Context, logger *log.Entry) (*porkbun.DomainInfo, bool) {
	info, err := fetchDomainInfo(ctx, e.client, e.cfg.Domain)
	if err != nil {
		logger.WithError(err).Debug("Failed to fetch domain info")
		return nil, false
	}
	if info == nil {
		logger.Debug("Domain not found in the account's domain list")
	}
	return info, true
}

// raiseAPIAccessIssue raises the advisory issue of the domain.
func (e *Engine) raiseAPIAccessIssue(ctx context.Context, err error) {
	if e.notifier == nil {
		return
	}
	e.notifier.Raise(ctx, notify.Issue{
		ID:       notify.APIAccessIssueID(e.cfg.Domain),
		Domain:   e.cfg.Domain,
		Severity: notify.SeverityError,
		Title:    "Porkbun API access failed for " + e.cfg.Domain,
		Message: fmt.Sprintf("The Porkbun API could not be used for %s: %v. "+
			"Check that API access is enabled for the domain.", e.cfg.Domain, err),
	})
}

// publish stores the state and updates the metrics.
func (e *Engine) publish(data *CycleResult) {
	e.mu.Lock()
	e.state = data
	e.mu.Unlock()

	m := metrics.GetOpenMetricsInstance()
	for k, s := range data.Records {
		m.SetRecordOK(e.cfg.Domain, k.String(), s.OK)
	}
	if !data.LastUpdated.IsZero() {
		m.SetLastUpdate(e.cfg.Domain, data.LastUpdated)
	}
	expiry := time.Time{}
	if data.DomainInfo != nil {
		expiry, _ = data.DomainInfo.Expiry()
	}
	m.SetDomainExpiry(e.cfg.Domain, expiry)
}
