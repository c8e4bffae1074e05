/*
 * Errors - Porkbun API errors.
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
	"errors"
	"strings"
)

// APIError is returned when the registrar is reachable but rejects a request
// for any reason other than invalid credentials.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// AuthError is returned when the registrar rejects the API credentials.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// IsAuthError reports whether err is, or wraps, an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsAPIError reports whether err is, or wraps, an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// isInvalidCredentials inspects the message of an error payload. The
// registrar reports bad keys through the same "ERROR" status as any other
// failure, so the text is the only signal available.
func isInvalidCredentials(message string) bool {
	return strings.Contains(strings.ToLower(message), "invalid")
}

// isNoRecords checks if the message means that a record lookup matched
// nothing.
func isNoRecords(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "no records") || strings.Contains(m, "could not find")
}
