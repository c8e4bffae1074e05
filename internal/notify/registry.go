/*
 * Registry - advisory issues.
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
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Severity of an issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is a persistent condition that needs the user's attention.
type Issue struct {
	ID       string    `json:"id"`
	Domain   string    `json:"domain"`
	Severity Severity  `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Raised   time.Time `json:"raised"`
}

// APIAccessIssueID is the id of the issue raised when the registrar API
// cannot be used for a domain.
func APIAccessIssueID(domain string) string {
	return "api_access_" + domain
}

// Notifier raises and clears issues.
type Notifier interface {
	Raise(ctx context.Context, issue Issue)
	Clear(ctx context.Context, id string)
}

// Sink receives the transitions of the issues.
type Sink interface {
	Raised(ctx context.Context, issue Issue) error
	Cleared(ctx context.Context, issue Issue) error
}

// Registry keeps the active issues and forwards every transition to the sinks.
type Registry struct {
	mu     sync.Mutex
	active map[string]Issue
	sinks  []Sink
	now    func() time.Time
}

// NewRegistry creates a registry delivering to the given sinks.
func NewRegistry(sinks ...Sink) *Registry {
	return &Registry{
		active: map[string]Issue{},
		sinks:  sinks,
		now:    time.Now,
	}
}

// Raise activates an issue. An issue that is already active only gets its
// message refreshed and is not delivered again.
func (r *Registry) Raise(ctx context.Context, issue Issue) {
	r.mu.Lock()
	if current, ok := r.active[issue.ID]; ok {
		current.Message = issue.Message
		r.active[issue.ID] = current
		r.mu.Unlock()
		return
	}
	if issue.Raised.IsZero() {
		issue.Raised = r.now()
	}
	r.active[issue.ID] = issue
	r.mu.Unlock()

	for _, s := range r.sinks {
		if err := s.Raised(ctx, issue); err != nil {
			log.WithError(err).WithField("issue", issue.ID).Warn("Failed to deliver issue notification")
		}
	}
}

// Clear deactivates an issue. Clearing an inactive issue does nothing.
func (r *Registry) Clear(ctx context.Context, id string) {
	r.mu.Lock()
	issue, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.active, id)
	r.mu.Unlock()

	for _, s := range r.sinks {
		if err := s.Cleared(ctx, issue); err != nil {
			log.WithError(err).WithField("issue", id).Warn("Failed to deliver issue notification")
		}
	}
}

// Active returns the active issues sorted by id.
func (r *Registry) Active() []Issue {
	return r.filter(func(Issue) bool { return true })
}

// ActiveFor returns the active issues of a domain.
func (r *Registry) ActiveFor(domain string) []Issue {
	return r.filter(func(i Issue) bool { return i.Domain == domain })
}

func (r *Registry) filter(keep func(Issue) bool) []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	issues := []Issue{}
	for _, i := range r.active {
		if keep(i) {
			issues = append(issues, i)
		}
	}
	sort.Slice(issues, func(a, b int) bool { return issues[a].ID < issues[b].ID })
	return issues
}
