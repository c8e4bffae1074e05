/*
 * Check - validation of the credentials and domains.
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
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"porkbun-ddns/internal/config"
	"porkbun-ddns/internal/porkbun"
)

// errCheckFailed is returned when at least one domain failed the check.
var errCheckFailed = errors.New("check failed")

var (
	// isTerminal reports whether the secret key can be prompted for.
	isTerminal = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd()))
	}
	// readSecret reads the secret key without echo.
	readSecret = func() (string, error) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		return string(b), err
	}
)

func (a *app) newCmdCheck() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the API credentials and the configured domains",
		Long: "check pings the API with the configured keys and verifies that every\n" +
			"configured domain is reachable with them. No record is written.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := promptSecret(cmd.ErrOrStderr(), a.cfg); err != nil {
				return err
			}
			domains, err := a.cfg.Domains()
			if err != nil {
				return err
			}
			return a.check(cmd.Context(), cmd.OutOrStdout(), domains)
		},
	}
}

// promptSecret asks for the secret key when only the API key is configured
// and stdin is a terminal.
func promptSecret(w io.Writer, cfg *config.Configuration) error {
	if cfg.APIKey == "" || cfg.SecretKey != "" || !isTerminal() {
		return nil
	}
	fmt.Fprint(w, "Enter Porkbun secret API key: ")
	secret, err := readSecret()
	fmt.Fprintln(w)
	if err != nil {
		return fmt.Errorf("reading the secret key: %w", err)
	}
	cfg.SecretKey = strings.TrimSpace(secret)
	return nil
}

// check validates every domain and prints one line per domain.
func (a *app) check(ctx context.Context, w io.Writer, domains []config.DomainConfig) error {
	failed := false
	for _, d := range domains {
		msg, err := checkDomain(ctx, newClient(a.cfg, d.Credentials), d.Domain)
		if err != nil {
			failed = true
			fmt.Fprintf(w, "%s: FAILED: %s (%v)\n", d.Domain, msg, err)
			continue
		}
		fmt.Fprintf(w, "%s: OK (%s)\n", d.Domain, msg)
	}
	if failed {
		return errCheckFailed
	}
	return nil
}

// checkDomain pings the API and reads the apex A records of the domain.
func checkDomain(ctx context.Context, client *porkbun.Client, domain string) (string, error) {
	ip, err := client.Ping(ctx)
	if err != nil {
		return describeFailure(err, "invalid API credentials"), err
	}
	if _, err := client.GetRecords(ctx, domain, "A", ""); err != nil {
		return describeFailure(err, "domain not found or not API-enabled"), err
	}
	return "public IPv4 " + ip, nil
}

// describeFailure names the failure of a registrar call; authMsg is used for
// rejected credentials.
func describeFailure(err error, authMsg string) string {
	switch {
	case porkbun.IsAuthError(err):
		return authMsg
	case porkbun.IsAPIError(err):
		return "registrar error"
	default:
		return "cannot connect"
	}
}
