/*
 * Store - record state persistence.
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
	"porkbun-ddns/internal/ddns"
)

// Store keeps the latest record states of every domain.
type Store interface {
	ddns.StateStore
	Close() error
}

// Open returns the store for a database URL. An empty URL selects the
// in-memory store.
func Open(dbURL string) (Store, error) {
	if dbURL == "" {
		return NewMemoryStore(), nil
	}
	return OpenRDB(dbURL)
}
