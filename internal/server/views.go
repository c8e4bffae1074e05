/*
 * Views - read-only projections of the domain state.
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
	"fmt"
	"time"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/coordinator"
	"porkbun-ddns/internal/ddns"
	"porkbun-ddns/internal/notify"
)

// redacted replaces secrets in the diagnostics.
const redacted = "**REDACTED**"

// RecordView is the state of a managed record.
type RecordView struct {
	Key         string     `json:"key"`
	FQDN        string     `json:"fqdn"`
	Type        string     `json:"type"`
	CurrentIP   string     `json:"current_ip,omitempty"`
	OK          bool       `json:"ok"`
	Error       string     `json:"error,omitempty"`
	LastUpdated *time.Time `json:"last_updated"`
	LastChanged *time.Time `json:"last_changed"`
}

// DomainView is the state of a domain as shown to users.
type DomainView struct {
	Domain         string         `json:"domain"`
	PublicIPv4     string         `json:"public_ipv4,omitempty"`
	PublicIPv6     string         `json:"public_ipv6,omitempty"`
	ManagedRecords []string       `json:"managed_records"`
	Problem        *bool          `json:"problem"`
	Summary        string         `json:"summary"`
	FailedRecords  []string       `json:"failed_records"`
	Records        []RecordView   `json:"records"`
	LastUpdate     *time.Time     `json:"last_update"`
	NextUpdate     *time.Time     `json:"next_update"`
	DomainStatus   string         `json:"domain_status,omitempty"`
	Expiry         *time.Time     `json:"expiry"`
	WhoisPrivacy   *bool          `json:"whois_privacy"`
	AutoRenew      *bool          `json:"auto_renew"`
	State          string         `json:"state"`
	LastError      string         `json:"last_error,omitempty"`
	Issues         []notify.Issue `json:"issues"`
}

// ConfigView is the configuration of a domain with the credentials redacted.
type ConfigView struct {
	Domain         string   `json:"domain"`
	Subdomains     []string `json:"subdomains"`
	IPv4           bool     `json:"ipv4"`
	IPv6           bool     `json:"ipv6"`
	UpdateInterval int      `json:"update_interval"`
	TTL            int      `json:"ttl"`
	APIKey         string   `json:"api_key"`
	SecretKey      string   `json:"secret_key"`
}

// DiagnosticsView is the dump served for troubleshooting.
type DiagnosticsView struct {
	Config ConfigView        `json:"config"`
	View   DomainView        `json:"view"`
	Data   *ddns.CycleResult `json:"data"`
}

// NewDomainView projects the status of a coordinator.
func NewDomainView(s coordinator.Status, issues []notify.Issue) DomainView {
	result := s.Result
	if result == nil {
		result = ddns.NewCycleResult()
	}
	v := DomainView{
		Domain:         s.Domain,
		PublicIPv4:     result.PublicIPv4,
		PublicIPv6:     result.PublicIPv6,
		ManagedRecords: []string{},
		FailedRecords:  []string{},
		Records:        []RecordView{},
		Summary:        fmt.Sprintf("%d/%d OK", result.OKCount(), result.RecordCount()),
		LastUpdate:     optionalTime(result.LastUpdated),
		NextUpdate:     optionalTime(s.NextUpdate),
		State:          string(s.State),
		LastError:      s.LastError,
		Issues:         issues,
	}
	if v.Issues == nil {
		v.Issues = []notify.Issue{}
	}
	if result.RecordCount() > 0 {
		problem := !result.AllOK()
		v.Problem = &problem
	}
	for _, k := range result.Keys() {
		r := result.Records[k]
		fqdn := k.FQDN(s.Domain)
		v.ManagedRecords = append(v.ManagedRecords, fqdn)
		v.Records = append(v.Records, RecordView{
			Key:         k.String(),
			FQDN:        fqdn,
			Type:        string(k.Type),
			CurrentIP:   r.CurrentIP,
			OK:          r.OK,
			Error:       r.Error,
			LastUpdated: optionalTime(r.LastUpdated),
			LastChanged: optionalTime(r.LastChanged),
		})
	}
	for _, k := range result.FailedRecords() {
		v.FailedRecords = append(v.FailedRecords, k.String())
	}
	if info := result.DomainInfo; info != nil {
		v.DomainStatus = info.Status
		if expiry, ok := info.Expiry(); ok {
			v.Expiry = &expiry
		}
		privacy, renew := info.WhoisPrivacy, info.AutoRenew
		v.WhoisPrivacy = &privacy
		v.AutoRenew = &renew
	}
	return v
}

// NewConfigView returns the configuration with the credentials redacted.
func NewConfigView(c config.DomainConfig) ConfigView {
	subs := c.Subdomains
	if subs == nil {
		subs = []string{}
	}
	return ConfigView{
		Domain:         c.Domain,
		Subdomains:     subs,
		IPv4:           c.IPv4,
		IPv6:           c.IPv6,
		UpdateInterval: int(c.UpdateInterval / time.Second),
		TTL:            c.TTL,
		APIKey:         redact(c.Credentials.APIKey),
		SecretKey:      redact(c.Credentials.SecretKey),
	}
}

// NewDiagnosticsView builds the diagnostics dump of a domain.
func NewDiagnosticsView(c config.DomainConfig, s coordinator.Status, issues []notify.Issue) DiagnosticsView {
	data := s.Result
	if data == nil {
		data = ddns.NewCycleResult()
	}
	return DiagnosticsView{
		Config: NewConfigView(c),
		View:   NewDomainView(s, issues),
		Data:   data,
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
