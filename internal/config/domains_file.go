/*
 * Domains file - YAML list of managed domains.
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
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// subdomainList accepts either a YAML sequence or a comma separated string.
type subdomainList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *subdomainList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = ParseSubdomains(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	default:
		return fmt.Errorf("line %d: subdomains must be a list or a comma separated string", node.Line)
	}
}

type domainEntry struct {
	Domain         string        `yaml:"domain"`
	Subdomains     subdomainList `yaml:"subdomains"`
	IPv4           *bool         `yaml:"ipv4"`
	IPv6           bool          `yaml:"ipv6"`
	UpdateInterval int           `yaml:"update_interval"`
	TTL            int           `yaml:"ttl"`
	APIKey         string        `yaml:"api_key"`
	SecretKey      string        `yaml:"secret_key"`
}

type domainsFile struct {
	Domains []domainEntry `yaml:"domains"`
}

// ParseDomainsFile decodes the YAML domains file. Entries without keys use
// the given defaults. A domain listed twice is an error.
func ParseDomainsFile(data []byte, defaults Credentials, defaultTTL int) ([]DomainConfig, error) {
	file := domainsFile{}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing domains file: %w", err)
	}
	if len(file.Domains) == 0 {
		return nil, ErrNoDomains
	}

	result := make([]DomainConfig, 0, len(file.Domains))
	seen := map[string]struct{}{}
	for i, e := range file.Domains {
		dc := DomainConfig{
			Domain:         e.Domain,
			Subdomains:     e.Subdomains,
			IPv4:           e.IPv4 == nil || *e.IPv4,
			IPv6:           e.IPv6,
			UpdateInterval: time.Duration(e.UpdateInterval) * time.Second,
			TTL:            e.TTL,
			Credentials:    Credentials{APIKey: e.APIKey, SecretKey: e.SecretKey},
		}
		if dc.TTL == 0 {
			dc.TTL = defaultTTL
		}
		if dc.Credentials.APIKey == "" {
			dc.Credentials.APIKey = defaults.APIKey
		}
		if dc.Credentials.SecretKey == "" {
			dc.Credentials.SecretKey = defaults.SecretKey
		}
		if err := dc.Normalize(); err != nil {
			return nil, fmt.Errorf("domains file entry %d: %w", i+1, err)
		}
		if _, ok := seen[dc.Domain]; ok {
			return nil, fmt.Errorf("domains file entry %d: domain %s is listed twice", i+1, dc.Domain)
		}
		seen[dc.Domain] = struct{}{}
		result = append(result, dc)
	}
	return result, nil
}
