/*
 * Porkbun DDNS - dynamic DNS for domains registered at Porkbun.
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
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"porkbun-ddns/internal/config"
)

// app carries the configuration loaded before every command and the flags
// that override it.
type app struct {
	cfg *config.Configuration

	envFile     string
	dryRun      bool
	domainsFile string
}

// loadConfiguration reads the configuration and applies the flag overrides.
func (a *app) loadConfiguration() (*config.Configuration, error) {
	cfg, err := config.NewConfigurationFrom(a.envFile)
	if err != nil {
		return nil, err
	}
	if a.dryRun {
		cfg.DryRun = true
	}
	if a.domainsFile != "" {
		cfg.DomainsFile = a.domainsFile
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "porkbun-ddns",
		Short: "Keep Porkbun A/AAAA records pointed at this host",
		Long: "porkbun-ddns keeps the A and AAAA records of domains registered at Porkbun\n" +
			"pointed at the public addresses of the host it runs on.\n\n" +
			"The configuration is read from the environment and from an optional dotenv file.",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDaemon(cmd.Context())
		},
	}

	cmd.PersistentFlags().BoolVar(&a.dryRun, "dry-run", false, "Log the record writes instead of executing them (env DRY_RUN)")
	cmd.PersistentFlags().StringVar(&a.domainsFile, "domains-file", "", "YAML file listing the managed domains (env DOMAINS_FILE)")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "Optional dotenv file, read again on SIGHUP")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := a.loadConfiguration()
		if err != nil {
			return err
		}
		if err := config.ConfigureLogging(cfg); err != nil {
			return err
		}
		a.cfg = cfg
		return nil
	}

	cmd.AddCommand(a.newCmdRun())
	cmd.AddCommand(a.newCmdCheck())
	cmd.AddCommand(a.newCmdOnce())
	cmd.AddCommand(newCmdVersion())
	return cmd
}

func main() {
	root := newRootCmd()
	root.SetContext(context.Background())
	if err := root.Execute(); err != nil {
		log.Errorf("Failed: %s", err)
		os.Exit(1)
	}
}
