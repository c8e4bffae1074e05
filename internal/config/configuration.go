/*
 * Configuration - daemon configuration.
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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultUpdateInterval is the poll interval when none is configured.
	DefaultUpdateInterval = 300 * time.Second
	// MinUpdateInterval is the shortest accepted poll interval.
	MinUpdateInterval = 60 * time.Second
	// DefaultTTL is the TTL used for record writes.
	DefaultTTL = 600
)

// ErrNoDomains is returned when neither PORKBUN_DOMAIN nor DOMAINS_FILE is
// set.
var ErrNoDomains = errors.New("no domain configured: set PORKBUN_DOMAIN or DOMAINS_FILE")

// Configuration contains the daemon configuration read from the environment.
type Configuration struct {
	// Porkbun API key, used by every domain without its own
	APIKey string `env:"PORKBUN_API_KEY"`
	// Porkbun secret API key, used by every domain without its own
	SecretKey string `env:"PORKBUN_SECRET_KEY"`
	// API endpoint; the IPv4-only host makes ping report the public IPv4
	APIEndpointURL string `env:"PORKBUN_API_ENDPOINT_URL" envDefault:"https://api-ipv4.porkbun.com/api/json/v3"`
	// Total timeout of each API request
	RequestTimeout time.Duration `env:"PORKBUN_REQUEST_TIMEOUT" envDefault:"30s"`
	// Service that echoes the caller's IPv6 address
	IPv6EchoURL string `env:"IPV6_ECHO_URL" envDefault:"https://api6.ipify.org"`

	// Single domain mode
	Domain         string `env:"PORKBUN_DOMAIN"`
	Subdomains     string `env:"PORKBUN_SUBDOMAINS"`
	IPv4           bool   `env:"PORKBUN_IPV4" envDefault:"true"`
	IPv6           bool   `env:"PORKBUN_IPV6" envDefault:"false"`
	UpdateInterval int    `env:"PORKBUN_UPDATE_INTERVAL" envDefault:"300"`
	TTL            int    `env:"PORKBUN_TTL" envDefault:"600"`

	// YAML file listing several domains; overrides single domain mode
	DomainsFile string `env:"DOMAINS_FILE"`

	// If true, do not execute writes on the API
	DryRun bool `env:"DRY_RUN" envDefault:"false"`
	// Enable debugging logs
	Debug     bool   `env:"PORKBUN_DEBUG" envDefault:"false"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Record state database, e.g. "sqlite:/var/lib/porkbun-ddns/state.db"
	StateDBURL string `env:"STATE_DB_URL"`

	// Telegram advisory notifications
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`
}

// Credentials is the registrar key pair.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// IsComplete reports whether both keys are set.
func (c Credentials) IsComplete() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

// DomainConfig is the configuration of one managed domain.
type DomainConfig struct {
	Domain         string
	Subdomains     []string
	IPv4           bool
	IPv6           bool
	UpdateInterval time.Duration
	TTL            int
	Credentials    Credentials
}

// DefaultEnvFile is the dotenv file read when none is given.
const DefaultEnvFile = ".env"

// NewConfigurationFrom reads the configuration from the environment and the
// optional dotenv file at path; an empty path reads the environment only. Variables set in the environment take
// precedence over the file. The file is read on every call and never copied
// into the process environment, so a later call sees its current content.
func NewConfigurationFrom(path string) (*Configuration, error) {
	vars := map[string]string{}
	if path != "" {
		fileVars, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	cfg := &Configuration{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Credentials returns the global key pair.
func (c *Configuration) Credentials() Credentials {
	return Credentials{APIKey: c.APIKey, SecretKey: c.SecretKey}
}

// Domains returns the normalised configuration of every managed domain.
func (c *Configuration) Domains() ([]DomainConfig, error) {
	if c.DomainsFile != "" {
		data, err := os.ReadFile(c.DomainsFile)
		if err != nil {
			return nil, fmt.Errorf("reading domains file: %w", err)
		}
		return ParseDomainsFile(data, c.Credentials(), c.TTL)
	}
	if strings.TrimSpace(c.Domain) == "" {
		return nil, ErrNoDomains
	}
	dc := DomainConfig{
		Domain:         c.Domain,
		Subdomains:     ParseSubdomains(c.Subdomains),
		IPv4:           c.IPv4,
		IPv6:           c.IPv6,
		UpdateInterval: time.Duration(c.UpdateInterval) * time.Second,
		TTL:            c.TTL,
		Credentials:    c.Credentials(),
	}
	if err := dc.Normalize(); err != nil {
		return nil, err
	}
	return []DomainConfig{dc}, nil
}

// Normalize cleans the domain and subdomains, applies defaults and validates
// the result.
func (d *DomainConfig) Normalize() error {
	domain, err := NormalizeDomain(d.Domain)
	if err != nil {
		return err
	}
	d.Domain = domain

	d.Subdomains = NormalizeSubdomains(d.Subdomains)
	for _, s := range d.Subdomains {
		if err := validateSubdomain(s); err != nil {
			return fmt.Errorf("domain %s: %w", d.Domain, err)
		}
	}

	if d.UpdateInterval == 0 {
		d.UpdateInterval = DefaultUpdateInterval
	}
	if d.UpdateInterval < MinUpdateInterval {
		return fmt.Errorf("domain %s: update interval %s is below the minimum of %s",
			d.Domain, d.UpdateInterval, MinUpdateInterval)
	}
	if d.TTL <= 0 {
		d.TTL = DefaultTTL
	}
	if !d.Credentials.IsComplete() {
		return fmt.Errorf("domain %s: missing API key or secret key", d.Domain)
	}
	if !d.IPv4 && !d.IPv6 {
		log.WithField("domain", d.Domain).Warn("Both IPv4 and IPv6 are disabled, no record will be managed")
	}
	return nil
}
