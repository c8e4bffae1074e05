/*
 * Status - liveness and readiness of the daemon.
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
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
)

// flag is a mutex-protected boolean.
type flag struct {
	m sync.Mutex
	v bool
}

func (f *flag) set(v bool) {
	f.m.Lock()
	f.v = v
	f.m.Unlock()
}

func (f *flag) get() bool {
	f.m.Lock()
	defer f.m.Unlock()
	return f.v
}

// Status holds the health and readiness flags. The daemon is healthy once the HTTP socket is
// listening and ready once the domain coordinators are running.
type Status struct {
	healthy flag
	ready   flag
}

// SetHealth sets the health flag.
func (s *Status) SetHealth(v bool) {
	s.healthy.set(v)
}

// SetReady sets the readiness flag.
func (s *Status) SetReady(v bool) {
	s.ready.set(v)
}

// IsHealthy returns the health flag.
func (s *Status) IsHealthy() bool {
	return s.healthy.get()
}

// IsReady returns the readiness flag.
func (s *Status) IsReady() bool {
	return s.ready.get()
}

// statusCheck answers 200/OK when check passes and 503/Service Unavailable
// otherwise.
func statusCheck(name string, check func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		code := http.StatusOK
		if !check() {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		if _, err := w.Write([]byte(http.StatusText(code))); err != nil {
			log.Warnf("Could not answer to a %s check: %s", name, err.Error())
		}
	}
}
