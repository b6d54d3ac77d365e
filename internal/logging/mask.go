// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package logging provides the structured logger and utilities for secure logging
// and error presentation. It includes functions for masking sensitive information in
// log messages and formatting auth errors for user-friendly display while protecting
// credentials and tokens.
package logging

import (
	"regexp"
)

var (
	rePassword = regexp.MustCompile(`(?i)(password=)([^\s;&]+)`)
	reToken    = regexp.MustCompile(`(?i)(token=|bearer\s+)([A-Za-z0-9._~+/=-]+)`)
	reJSONKey  = regexp.MustCompile(`(?i)("(?:password|passwordConfirm|token|refreshToken|refreshedToken|accessToken|access_token|refresh_token)"\s*:\s*")([^"]*)(")`)
	reJWT      = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`)
)

// Mask replaces sensitive values in the input string with "***".
// Query-style pairs, bearer headers, JSON token/password fields and bare JWTs are covered.
func Mask(s string) string {
	out := s
	out = rePassword.ReplaceAllString(out, "$1***")
	out = reToken.ReplaceAllString(out, "$1***")
	out = reJSONKey.ReplaceAllString(out, "$1***$3")
	out = reJWT.ReplaceAllString(out, "***")
	return out
}
