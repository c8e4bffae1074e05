/*
 * Wiring - construction of the runtime components.
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
	"fmt"

	log "github.com/sirupsen/logrus"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/coordinator"
	"porkbun-ddns/internal/ddns"
	advisory "porkbun-ddns/internal/notify"
	"porkbun-ddns/internal/porkbun"
)

// newClient creates the registrar client for a key pair.
func newClient(cfg *config.Configuration, creds config.Credentials) *porkbun.Client {
	return porkbun.NewClient(
		creds.APIKey, creds.SecretKey,
		porkbun.WithBaseURL(cfg.APIEndpointURL),
		porkbun.WithTimeout(cfg.RequestTimeout),
	)
}

// newIssueRegistry creates the advisory registry with the log sink and, when
// configured, the Telegram sink.
func newIssueRegistry(cfg *config.Configuration) (*advisory.Registry, error) {
	sinks := []advisory.Sink{advisory.LogSink{}}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := advisory.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	return advisory.NewRegistry(sinks...), nil
}

// newEngineFactory returns the factory used by the coordinators manager.
func newEngineFactory(cfg *config.Configuration, notifier advisory.Notifier, store ddns.StateStore) coordinator.EngineFactory {
	resolver := ddns.NewIPv6Resolver(cfg.IPv6EchoURL, nil)
	return func(ctx context.Context, dc config.DomainConfig) (coordinator.Refresher, error) {
		if !dc.Credentials.IsComplete() {
			return nil, fmt.Errorf("missing API credentials for %s", dc.Domain)
		}
		if cfg.DryRun {
			log.WithField("domain", dc.Domain).Warn("Dry run: no record will be written")
		}
		return ddns.NewEngine(ctx, dc, newClient(cfg, dc.Credentials),
			ddns.WithResolver(resolver),
			ddns.WithNotifier(notifier),
			ddns.WithStore(store),
			ddns.WithDryRun(cfg.DryRun),
		), nil
	}
}
