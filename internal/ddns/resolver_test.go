/*
 * Resolver - unit tests.
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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_IPv6Resolver_Resolve(t *testing.T) {
	type testCase struct {
		name     string
		code     int
		body     string
		expected struct {
			ip string
			ok bool
		}
	}

	run := func(t *testing.T, tc testCase) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			w.WriteHeader(tc.code)
			_, _ = w.Write([]byte(tc.body))
		}))
		defer srv.Close()

		ip, ok := NewIPv6Resolver(srv.URL, srv.Client()).Resolve(context.Background())
		assert.Equal(t, tc.expected.ip, ip)
		assert.Equal(t, tc.expected.ok, ok)
	}

	testCases := []testCase{
		{
			name: "address with newline",
			code: http.StatusOK,
			body: "2001:DB8:0::1\n",
			expected: struct {
				ip string
				ok bool
			}{
				ip: "2001:db8::1",
				ok: true,
			},
		},
		{
			name: "server error",
			code: http.StatusServiceUnavailable,
			body: "2001:db8::1",
		},
		{
			name: "ipv4 answer",
			code: http.StatusOK,
			body: "1.2.3.4",
		},
		{
			name: "garbage",
			code: http.StatusOK,
			body: "<html>hello</html>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func Test_IPv6Resolver_Resolve_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	ip, ok := NewIPv6Resolver(srv.URL, nil).Resolve(context.Background())

	assert.Equal(t, "", ip)
	assert.False(t, ok)
}

func Test_IPv6Resolver_Resolve_timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	r := NewIPv6Resolver(srv.URL, srv.Client())
	r.timeout = 50 * time.Millisecond

	_, ok := r.Resolve(context.Background())

	assert.False(t, ok)
}

func Test_NewIPv6Resolver_defaults(t *testing.T) {
	r := NewIPv6Resolver("", nil)

	assert.Equal(t, DefaultIPv6EchoURL, r.url)
	assert.Equal(t, http.DefaultClient, r.httpClient)
	assert.Equal(t, IPv6Timeout, r.timeout)
}
