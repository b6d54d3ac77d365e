// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wayfare/cli/internal/auth"
)

// fallbackTTL applies when neither the response nor the token carries an expiry.
const fallbackTTL = 2 * time.Hour

// parseBearerToken extracts token from a value like "Bearer <token>" case-insensitively.
func parseBearerToken(value string) string {
	v := strings.TrimSpace(value)
	if len(v) < 7 || !strings.EqualFold(v[:6], "bearer") {
		return ""
	}
	return strings.TrimSpace(v[6:])
}

// extractAccessToken tries the field names used by the supported backends.
func extractAccessToken(raw map[string]any) string {
	for _, k := range []string{"token", "refreshedToken", "accessToken", "access_token"} {
		if v, ok := raw[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// extractRefreshToken returns "" when the backend did not issue or rotate one.
func extractRefreshToken(raw map[string]any) string {
	for _, k := range []string{"refreshToken", "refresh_token"} {
		if v, ok := raw[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// extractExp reads an epoch-seconds "exp" that may be a number or a numeric string.
func extractExp(raw map[string]any) int64 {
	switch v := raw["exp"].(type) {
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil {
			return n
		}
	}
	return 0
}

// tokenExpiry reads the exp claim without verifying the signature. Verification is
// the server's job; the client only needs the expiry for scheduling refreshes.
func tokenExpiry(token string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}

// session builds the Session of an auth response: exp field, then the token's
// exp claim, then now+2h.
func (h *HTTP) session(raw map[string]any, header http.Header) (auth.Session, bool) {
	access := extractAccessToken(raw)
	if access == "" {
		access = parseBearerToken(header.Get("Authorization"))
	}
	if access == "" {
		return auth.Session{}, false
	}
	exp := extractExp(raw)
	if exp == 0 {
		exp = tokenExpiry(access)
	}
	if exp == 0 {
		exp = h.now().Add(fallbackTTL).Unix()
	}
	return auth.Session{AccessToken: access, RefreshToken: extractRefreshToken(raw), ExpiresAt: exp}, true
}

// Refresh calls the refresh endpoint with the refresh token as bearer. The returned
// Session.RefreshToken is empty when the backend did not rotate it, and User.ID is
// empty when no user was returned.
func (h *HTTP) Refresh(ctx context.Context, refreshToken string) (*auth.AuthData, error) {
	resp, err := h.call(ctx, request{
		op:     "Refresh",
		method: http.MethodPost,
		path:   h.endpoints.Refresh,
		bearer: refreshToken,
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, tokenError(resp)
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, invalidResponse("refresh", "malformed JSON", err)
	}
	sess, ok := h.session(raw, resp.header)
	if !ok {
		return nil, invalidResponse("refresh", "missing token", nil)
	}

	out := &auth.AuthData{Session: sess}
	if u, present, err := decodeUser(raw["user"]); err != nil {
		return nil, invalidResponse("refresh", err.Error(), err)
	} else if present {
		out.User = u
	}
	return out, nil
}
