/*
 * Names - domain and subdomain normalisation.
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
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// NormalizeDomain trims, lowercases and converts the domain to its ASCII form,
// then checks that it is a registrable name with at least two labels.
func NormalizeDomain(raw string) (string, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if name == "" {
		return "", fmt.Errorf("empty domain name")
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("invalid domain name %q: %w", raw, err)
	}
	if _, ok := dns.IsDomainName(ascii); !ok || dns.CountLabel(ascii) < 2 {
		return "", fmt.Errorf("invalid domain name %q", raw)
	}
	return ascii, nil
}

// ParseSubdomains splits a comma separated list and normalises it.
func ParseSubdomains(raw string) []string {
	return NormalizeSubdomains(strings.Split(raw, ","))
}

// NormalizeSubdomains trims and lowercases the entries, dropping the empty ones
// and the duplicates. The order is preserved.
func NormalizeSubdomains(list []string) []string {
	result := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	return result
}

// validateSubdomain rejects the root sentinel and names that are not valid
// DNS labels.
func validateSubdomain(s string) error {
	if s == "@" {
		return fmt.Errorf("subdomain %q is reserved for the root record", s)
	}
	if _, ok := dns.IsDomainName(s); !ok {
		return fmt.Errorf("invalid subdomain %q", s)
	}
	return nil
}
