/*
 * Memory - in-memory record state store.
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
package store

import (
	"context"
	"sync"

	"porkbun-ddns/internal/ddns"
)

// MemoryStore is a thread-safe in-memory store. The states survive a
// configuration reload but not a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	domains map[string]map[ddns.RecordKey]ddns.RecordState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{domains: map[string]map[ddns.RecordKey]ddns.RecordState{}}
}

// Load implements ddns.StateStore.
func (s *MemoryStore) Load(_ context.Context, domain string) (map[ddns.RecordKey]ddns.RecordState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyStates(s.domains[domain]), nil
}

// Save implements ddns.StateStore.
func (s *MemoryStore) Save(_ context.Context, domain string, records map[ddns.RecordKey]ddns.RecordState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[domain] = copyStates(records)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func copyStates(in map[ddns.RecordKey]ddns.RecordState) map[ddns.RecordKey]ddns.RecordState {
	out := make(map[ddns.RecordKey]ddns.RecordState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
