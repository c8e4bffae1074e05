/*
 * Server - health checks, metrics and domain API.
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
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"porkbun-ddns/internal/coordinator"
	"porkbun-ddns/internal/notify"
)

// DomainSource gives access to the coordinators of the managed domains.
type DomainSource interface {
	Statuses() []coordinator.Status
	Lookup(domain string) (*coordinator.Coordinator, bool)
	RequestRefresh(domain string) bool
}

// IssueSource returns the active issues.
type IssueSource interface {
	Active() []notify.Issue
	ActiveFor(domain string) []notify.Issue
}

// Server serves the liveness and readiness checks, the metrics and the
// domain API on a single socket.
type Server struct {
	status   *Status
	domains  DomainSource
	issues   IssueSource
	registry *prometheus.Registry
}

// errorResponse is the body of an error.
type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a server. issues may be nil.
func NewServer(status *Status, domains DomainSource, issues IssueSource, registry *prometheus.Registry) *Server {
	return &Server{
		status:   status,
		domains:  domains,
		issues:   issues,
		registry: registry,
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLog)

	r.Get("/", statusCheck("readiness", s.status.IsReady))
	r.Get("/ready", statusCheck("readiness", s.status.IsReady))
	r.Get("/health", statusCheck("liveness", s.status.IsHealthy))
	r.Get("/healthz", statusCheck("healthz", func() bool {
		return s.status.IsHealthy() && s.status.IsReady()
	}))
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/api/issues", s.listIssues)

	r.Route("/api/domains", func(r chi.Router) {
		r.Get("/", s.listDomains)
		r.Route("/{domain}", func(r chi.Router) {
			r.Get("/", s.getDomain)
			r.Post("/refresh", s.refreshDomain)
			r.Get("/diagnostics", s.getDiagnostics)
		})
	})
	return r
}

// Start listens on the configured address and serves until ctx is done.
// startedChan, when not nil, receives a value once the socket is listening.
func (s *Server) Start(ctx context.Context, startedChan chan struct{}, options ServerOptions) error {
	address := options.GetAddress()
	srv := &http.Server{
		Addr:         address,
		Handler:      s.Router(),
		ReadTimeout:  options.GetReadTimeout(),
		WriteTimeout: options.GetWriteTimeout(),
	}

	l, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	if startedChan != nil {
		startedChan <- struct{}{}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), options.GetShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Error shutting down the server: %v", err)
		}
	}()

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) listDomains(w http.ResponseWriter, _ *http.Request) {
	statuses := s.domains.Statuses()
	views := make([]DomainView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, NewDomainView(st, s.activeIssues(st.Domain)))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) listIssues(w http.ResponseWriter, _ *http.Request) {
	issues := []notify.Issue{}
	if s.issues != nil {
		issues = append(issues, s.issues.Active()...)
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) getDomain(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewDomainView(c.Status(), s.activeIssues(c.Domain())))
}

func (s *Server) refreshDomain(w http.ResponseWriter, r *http.Request) {
	domain := domainParam(r)
	if !s.domains.RequestRefresh(domain) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "domain not managed: " + domain})
		return
	}
	log.WithField("domain", domain).Info("Manual refresh requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"domain": domain, "status": "refresh requested"})
}

func (s *Server) getDiagnostics(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewDiagnosticsView(c.Config(), c.Status(), s.activeIssues(c.Domain())))
}

// lookup finds the coordinator of the domain in the path, answering 404 when
// it is not managed.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	domain := domainParam(r)
	c, ok := s.domains.Lookup(domain)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "domain not managed: " + domain})
		return nil, false
	}
	return c, true
}

// domainParam returns the normalised domain of the path.
func domainParam(r *http.Request) string {
	return strings.TrimSuffix(strings.ToLower(chi.URLParam(r, "domain")), ".")
}

func (s *Server) activeIssues(domain string) []notify.Issue {
	if s.issues == nil {
		return nil
	}
	return s.issues.ActiveFor(domain)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Could not write the response: %s", err.Error())
	}
}

// requestLog logs every request at debug level.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Debug("Serving request")
		next.ServeHTTP(w, r)
	})
}
