/*
 * Once - a single update cycle.
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
	"encoding/json"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"porkbun-ddns/internal/coordinator"
	"porkbun-ddns/internal/server"
	"porkbun-ddns/internal/store"
)

// errCycleFailed is returned when a domain did not complete its cycle.
var errCycleFailed = errors.New("update failed")

func (a *app) newCmdOnce() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run one update cycle per domain and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.once(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// once runs a cycle for every domain and writes the views. It fails when a
// cycle fails or a record could not be reconciled.
func (a *app) once(ctx context.Context, w io.Writer) error {
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

	factory := newEngineFactory(a.cfg, issues, st)
	views := make([]server.DomainView, 0, len(domains))
	failed := 0
	for _, d := range domains {
		engine, err := factory(ctx, d)
		if err != nil {
			return err
		}
		s := coordinator.New(engine, d.UpdateInterval).RefreshNow(ctx)
		if s.State != coordinator.StateOK || len(s.Result.FailedRecords()) > 0 {
			failed++
		}
		views = append(views, server.NewDomainView(s, issues.ActiveFor(d.Domain)))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(views); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d domain(s)", errCycleFailed, failed, len(domains))
	}
	return nil
}
