// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
)

// wireUser is the user document as the backend sends it.
type wireUser struct {
	ID            any    `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Role          string `json:"role"`
	Tier          string `json:"tier"`
	EmailVerified *bool  `json:"emailVerified"`
	Verified      *bool  `json:"_verified"`
}

func (w wireUser) id() string {
	switch v := w.ID.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

// toUser validates the document: id and email are required, an absent role means
// client, an unknown role is rejected and an unknown tier is dropped.
func (w wireUser) toUser() (auth.User, error) {
	u := auth.User{
		ID:        w.id(),
		Email:     strings.TrimSpace(w.Email),
		FirstName: w.FirstName,
		LastName:  w.LastName,
		Tier:      auth.ParseTier(w.Tier),
	}
	if u.ID == "" {
		return auth.User{}, errors.New("user without id")
	}
	if u.Email == "" {
		return auth.User{}, errors.New("user without email")
	}
	switch {
	case strings.TrimSpace(w.Role) == "":
		u.Role = auth.RoleClient
	default:
		r, ok := auth.ParseRole(w.Role)
		if !ok {
			return auth.User{}, fmt.Errorf("unknown role %q", w.Role)
		}
		u.Role = r
	}
	switch {
	case w.EmailVerified != nil:
		u.EmailVerified = *w.EmailVerified
	case w.Verified != nil:
		u.EmailVerified = *w.Verified
	}
	return u, nil
}

// decodeUser converts a decoded JSON value into a User. present is false for a
// missing or null user.
func decodeUser(v any) (u auth.User, present bool, err error) {
	if v == nil {
		return auth.User{}, false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return auth.User{}, true, err
	}
	var w wireUser
	if err := json.Unmarshal(b, &w); err != nil {
		return auth.User{}, true, err
	}
	u, err = w.toUser()
	return u, true, err
}

// GetCurrentUser calls the me endpoint. A null user means the token is no longer accepted.
func (h *HTTP) GetCurrentUser(ctx context.Context, accessToken string) (*auth.User, error) {
	resp, err := h.call(ctx, request{
		op:     "GetCurrentUser",
		method: http.MethodGet,
		path:   h.endpoints.Me,
		bearer: accessToken,
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, tokenError(resp)
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, invalidResponse("me", "malformed JSON", err)
	}
	u, present, err := decodeUser(raw["user"])
	if err != nil {
		return nil, invalidResponse("me", err.Error(), err)
	}
	if !present {
		return nil, autherrors.New(autherrors.TokenInvalid, "Your session has expired. Please sign in again.").WithStatus(resp.status)
	}
	return &u, nil
}
