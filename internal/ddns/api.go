/*
 * API - registrar abstraction.
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

	"porkbun-ddns/internal/porkbun"
)

// Registrar is an abstraction of the Porkbun API client.
type Registrar interface {
	// Ping validates the credentials and returns the caller's public IPv4.
	Ping(ctx context.Context) (string, error)
	// GetRecords returns the records for domain, type and subdomain. An empty
	// subdomain selects the apex.
	GetRecords(ctx context.Context, domain, recordType, subdomain string) ([]porkbun.Record, error)
	// CreateRecord creates a record and returns its id.
	CreateRecord(ctx context.Context, domain, recordType, content, subdomain string, ttl int) (string, error)
	// EditRecordByNameType edits the records matching domain, type and
	// subdomain.
	EditRecordByNameType(ctx context.Context, domain, recordType, content, subdomain string, ttl int) error
	// GetDomainInfo returns the registration data of the domain or nil.
	GetDomainInfo(ctx context.Context, domain string) (*porkbun.DomainInfo, error)
}

// AddressResolver returns a public address, or false when none is available.
type AddressResolver interface {
	Resolve(ctx context.Context) (string, bool)
}

// StateStore persists the latest record states of a domain.
type StateStore interface {
	Load(ctx context.Context, domain string) (map[RecordKey]RecordState, error)
	Save(ctx context.Context, domain string, records map[RecordKey]RecordState) error
}
