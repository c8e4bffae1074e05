/*
 * Model - Porkbun API data types.
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
package porkbun

import (
	"encoding/json"
	"strings"
	"time"
)

// ExpireDateLayout is the layout used by the registrar for expiry dates.
const ExpireDateLayout = "2006-01-02 15:04:05"

// Record represents a DNS record.
type Record struct {
	ID      string
	Name    string
	Type    string
	Content string
	TTL     string
	Prio    string
	Notes   string
}

// DomainInfo contains the registration details of a domain.
type DomainInfo struct {
	Domain       string `json:"domain"`
	Status       string `json:"status"`
	ExpireDate   string `json:"expire_date"`
	WhoisPrivacy bool   `json:"whois_privacy"`
	AutoRenew    bool   `json:"auto_renew"`
}

// Expiry returns the expiry date as a UTC time. The second return value is
// false when the date is missing or malformed.
func (d DomainInfo) Expiry() (time.Time, bool) {
	if d.ExpireDate == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(ExpireDateLayout, d.ExpireDate, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// flexString accepts JSON strings, numbers and booleans. The registrar is not
// consistent about quoting ids and ttls.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(raw)
	return nil
}

// flexBool decodes the "0"/"1" encoding used for boolean-like fields.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "1", "true", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// recordPayload is a record as found on the wire.
type recordPayload struct {
	ID      flexString `json:"id"`
	Name    string     `json:"name"`
	Type    string     `json:"type"`
	Content string     `json:"content"`
	TTL     flexString `json:"ttl"`
	Prio    flexString `json:"prio"`
	Notes   string     `json:"notes"`
}

func (r recordPayload) toRecord() Record {
	return Record{
		ID:      string(r.ID),
		Name:    r.Name,
		Type:    r.Type,
		Content: r.Content,
		TTL:     string(r.TTL),
		Prio:    string(r.Prio),
		Notes:   r.Notes,
	}
}

// domainPayload is an entry of the domain portfolio.
type domainPayload struct {
	Domain       string   `json:"domain"`
	Status       string   `json:"status"`
	ExpireDate   string   `json:"expireDate"`
	WhoisPrivacy flexBool `json:"whoisPrivacy"`
	AutoRenew    flexBool `json:"autoRenew"`
}

func (d domainPayload) toDomainInfo() *DomainInfo {
	status := d.Status
	if status == "" {
		status = "UNKNOWN"
	}
	return &DomainInfo{
		Domain:       d.Domain,
		Status:       status,
		ExpireDate:   d.ExpireDate,
		WhoisPrivacy: bool(d.WhoisPrivacy),
		AutoRenew:    bool(d.AutoRenew),
	}
}

// response is the envelope shared by every endpoint.
type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	YourIP  string          `json:"yourIp"`
	ID      flexString      `json:"id"`
	Records []recordPayload `json:"records"`
	Domains []domainPayload `json:"domains"`
}
