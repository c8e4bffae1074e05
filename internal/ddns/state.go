/*
 * State - per cycle results.
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
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/porkbun"
)

// RecordType is the type of a managed record.
type RecordType string

const (
	RecordTypeA    RecordType = "A"
	RecordTypeAAAA RecordType = "AAAA"
)

// RootSubdomain identifies the apex in a RecordKey.
const RootSubdomain = "@"

// RecordKey identifies a managed record.
type RecordKey struct {
	Subdomain string
	Type      RecordType
}

// NewRecordKey builds the key for a subdomain; the empty subdomain is the
// apex.
func NewRecordKey(subdomain string, recordType RecordType) RecordKey {
	if subdomain == "" {
		subdomain = RootSubdomain
	}
	return RecordKey{Subdomain: subdomain, Type: recordType}
}

// ParseRecordKey parses the "<subdomain>_<type>" form.
func ParseRecordKey(s string) (RecordKey, error) {
	idx := strings.LastIndex(s, "_")
	if idx <= 0 || idx == len(s)-1 {
		return RecordKey{}, fmt.Errorf("invalid record key %q", s)
	}
	t := RecordType(s[idx+1:])
	if t != RecordTypeA && t != RecordTypeAAAA {
		return RecordKey{}, fmt.Errorf("invalid record type in key %q", s)
	}
	return RecordKey{Subdomain: s[:idx], Type: t}, nil
}

// String returns "<subdomain or @>_<type>".
func (k RecordKey) String() string {
	return k.Subdomain + "_" + string(k.Type)
}

// MarshalText implements encoding.TextMarshaler.
func (k RecordKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RecordKey) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsRoot reports whether the key refers to the apex.
func (k RecordKey) IsRoot() bool {
	return k.Subdomain == RootSubdomain
}

// APISubdomain returns the subdomain as the registrar expects it.
func (k RecordKey) APISubdomain() string {
	if k.IsRoot() {
		return ""
	}
	return k.Subdomain
}

// FQDN returns the full name of the record.
func (k RecordKey) FQDN(domain string) string {
	if k.IsRoot() {
		return domain
	}
	return k.Subdomain + "." + domain
}

// Targets returns the keys enabled by the configuration: the apex first, then
// the subdomains in order, A before AAAA.
func Targets(cfg config.DomainConfig) []RecordKey {
	subdomains := append([]string{""}, cfg.Subdomains...)
	keys := make([]RecordKey, 0, 2*len(subdomains))
	for _, s := range subdomains {
		if cfg.IPv4 {
			keys = append(keys, NewRecordKey(s, RecordTypeA))
		}
		if cfg.IPv6 {
			keys = append(keys, NewRecordKey(s, RecordTypeAAAA))
		}
	}
	return keys
}

// RecordState is the outcome of the latest reconciliation of a record.
type RecordState struct {
	CurrentIP   string    `json:"current_ip"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error"`
	LastUpdated time.Time `json:"last_updated"`
	LastChanged time.Time `json:"last_changed"`
}

// succeed marks the record as confirmed with the given content.
func (s *RecordState) succeed(ip string, now time.Time) {
	if ip != "" && !sameAddress(ip, s.CurrentIP) {
		s.LastChanged = now
	}
	s.CurrentIP = ip
	s.OK = true
	s.Error = ""
	s.LastUpdated = now
}

// fail marks the record as failed. The current address is kept.
func (s *RecordState) fail(err error) {
	s.OK = false
	s.Error = err.Error()
	if s.Error == "" {
		s.Error = "unknown error"
	}
}

// sameAddress compares two addresses by value, falling back to the text.
func sameAddress(a, b string) bool {
	pa, errA := netip.ParseAddr(strings.TrimSpace(a))
	pb, errB := netip.ParseAddr(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return a == b
	}
	return pa == pb
}

// CycleResult is the state of a domain after a cycle.
type CycleResult struct {
	PublicIPv4  string                     `json:"public_ipv4"`
	PublicIPv6  string                     `json:"public_ipv6"`
	Records     map[RecordKey]*RecordState `json:"records"`
	LastUpdated time.Time                  `json:"last_updated"`
	DomainInfo  *porkbun.DomainInfo        `json:"domain_info"`
}

// NewCycleResult returns an empty result.
func NewCycleResult() *CycleResult {
	return &CycleResult{Records: map[RecordKey]*RecordState{}}
}

// RecordCount returns the number of tracked records.
func (r *CycleResult) RecordCount() int {
	return len(r.Records)
}

// OKCount returns the number of records whose last reconciliation succeeded.
func (r *CycleResult) OKCount() int {
	n := 0
	for _, s := range r.Records {
		if s.OK {
			n++
		}
	}
	return n
}

// AllOK is true when at least one record is tracked and all of them are ok.
func (r *CycleResult) AllOK() bool {
	count := r.RecordCount()
	return count > 0 && r.OKCount() == count
}

// FailedRecords returns the keys of the failed records, sorted.
func (r *CycleResult) FailedRecords() []RecordKey {
	failed := []RecordKey{}
	for k, s := range r.Records {
		if !s.OK {
			failed = append(failed, k)
		}
	}
	sortKeys(failed)
	return failed
}

// Keys returns the tracked keys, sorted.
func (r *CycleResult) Keys() []RecordKey {
	keys := make([]RecordKey, 0, len(r.Records))
	for k := range r.Records {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Clone returns a deep copy.
func (r *CycleResult) Clone() *CycleResult {
	c := &CycleResult{
		PublicIPv4:  r.PublicIPv4,
		PublicIPv6:  r.PublicIPv6,
		Records:     make(map[RecordKey]*RecordState, len(r.Records)),
		LastUpdated: r.LastUpdated,
	}
	for k, s := range r.Records {
		state := *s
		c.Records[k] = &state
	}
	if r.DomainInfo != nil {
		info := *r.DomainInfo
		c.DomainInfo = &info
	}
	return c
}

// recordValues copies the record states for persistence.
func (r *CycleResult) recordValues() map[RecordKey]RecordState {
	values := make(map[RecordKey]RecordState, len(r.Records))
	for k, s := range r.Records {
		values[k] = *s
	}
	return values
}

func sortKeys(keys []RecordKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
