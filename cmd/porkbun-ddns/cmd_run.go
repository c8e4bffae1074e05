/*
 * Run - the update daemon.
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
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/coordinator"
	"porkbun-ddns/internal/metrics"
	"porkbun-ddns/internal/server"
	"porkbun-ddns/internal/store"
)

var (
	// notify subscribes the daemon to the SIGHUP, SIGINT and SIGTERM signals.
	notify = func(sig chan os.Signal) {
		signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	}
)

// domainReloader replaces the managed domains.
type domainReloader interface {
	Reload(domains []config.DomainConfig) error
}

// healthStatus is the interface used by loop.
type healthStatus interface {
	SetHealth(bool)
	SetReady(bool)
}

// loop handles the signals until SIGINT or SIGTERM is received. SIGHUP calls
// reload.
func loop(status healthStatus, reload func() error) {
	sig := make(chan os.Signal, 1)
	notify(sig)
	for s := range sig {
		if s == syscall.SIGHUP {
			log.Info("Signal SIGHUP received. Reloading the configuration.")
			if err := reload(); err != nil {
				log.Errorf("Reload failed, keeping the current configuration: %v", err)
			}
			continue
		}
		log.Infof("Signal %s received. Shutting down.", s.String())
		status.SetHealth(false)
		status.SetReady(false)
		return
	}
}

func (a *app) newCmdRun() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the update daemon (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDaemon(cmd.Context())
		},
	}
}

// runDaemon serves the HTTP socket and runs a coordinator per domain until a
// termination signal is received.
func (a *app) runDaemon(ctx context.Context) error {
	options, err := server.NewServerOptions()
	if err != nil {
		return err
	}
	domains, err := a.cfg.Domains()
	if err != nil {
		return err
	}
	st, err := store.Open(a.cfg.StateDBURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warnf("Closing the state store: %v", err)
		}
	}()
	issues, err := newIssueRegistry(a.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := coordinator.NewManager(newEngineFactory(a.cfg, issues, st), coordinator.WithIssueNotifier(issues))
	status := &server.Status{}
	srv := server.NewServer(status, manager, issues, metrics.GetOpenMetricsInstance().GetRegistry())

	log.Infof("Starting HTTP server on %s", options.GetAddress())
	startedChan := make(chan struct{}, 1)
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx, startedChan, *options)
	}()
	select {
	case <-startedChan:
	case err := <-errChan:
		return err
	}
	status.SetHealth(true)

	if err := manager.Start(ctx, domains); err != nil {
		return err
	}
	status.SetReady(true)
	log.WithField("domains", manager.Domains()).Infof("Managing %d domain(s)", len(domains))

	loop(status, func() error {
		return a.reload(manager)
	})

	manager.Stop()
	cancel()
	return <-errChan
}

// reload reads the configuration again and hands the resulting domains to r.
// Settings other than the domains and their credentials keep the values read
// at start.
func (a *app) reload(r domainReloader) error {
	cfg, err := a.loadConfiguration()
	if err != nil {
		return err
	}
	domains, err := cfg.Domains()
	if err != nil {
		return err
	}
	return r.Reload(domains)
}
