/*
 * Options - HTTP socket options.
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

	"github.com/caarlos0/env/v8"
)

// ServerOptions contains the environment variables that influence the HTTP
// socket.
type ServerOptions struct {
	// Listen host
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	// Listen port
	Port uint16 `env:"SERVER_PORT" envDefault:"8080"`
	// Read timeout in milliseconds
	ReadTimeout int `env:"READ_TIMEOUT" envDefault:"60000"`
	// Write timeout in milliseconds
	WriteTimeout int `env:"WRITE_TIMEOUT" envDefault:"60000"`
	// Graceful shutdown timeout in milliseconds
	ShutdownTimeout int `env:"SHUTDOWN_TIMEOUT" envDefault:"10000"`
}

// NewServerOptions reads the options from the environment.
func NewServerOptions() (*ServerOptions, error) {
	o := &ServerOptions{}
	if err := env.Parse(o); err != nil {
		return nil, fmt.Errorf("reading server options: %w", err)
	}
	return o, nil
}

// GetAddress returns the listen address as "host:port".
func (o ServerOptions) GetAddress() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// GetReadTimeout returns the read timeout.
func (o ServerOptions) GetReadTimeout() time.Duration {
	return time.Duration(o.ReadTimeout) * time.Millisecond
}

// GetWriteTimeout returns the write timeout.
func (o ServerOptions) GetWriteTimeout() time.Duration {
	return time.Duration(o.WriteTimeout) * time.Millisecond
}

// GetShutdownTimeout returns the time granted to in-flight requests on
// shutdown.
func (o ServerOptions) GetShutdownTimeout() time.Duration {
	return time.Duration(o.ShutdownTimeout) * time.Millisecond
}
