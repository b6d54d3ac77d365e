package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerBody struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
}

// Login posts credentials and returns the session. The user and token are required.
func (h *HTTP) Login(ctx context.Context, c auth.Credentials) (*auth.AuthData, error) {
	email := strings.TrimSpace(c.Email)
	if email == "" || c.Password == "" {
		return nil, autherrors.New(autherrors.InvalidCredentials, "Email and password are required.")
	}
	resp, err := h.call(ctx, request{
		op:     "Login",
		method: http.MethodPost,
		path:   h.endpoints.Login,
		body:   loginBody{Email: email, Password: c.Password},
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, loginError(resp)
	}
	return h.authData("login", resp)
}

func (h *HTTP) authData(op string, resp *response) (*auth.AuthData, error) {
	var raw map[string]any
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, invalidResponse(op, "malformed JSON", err)
	}
	u, present, err := decodeUser(raw["user"])
	if err != nil {
		return nil, invalidResponse(op, err.Error(), err)
	}
	if !present {
		return nil, invalidResponse(op, "missing user", nil)
	}
	sess, ok := h.session(raw, resp.header)
	if !ok {
		return nil, invalidResponse(op, "missing token", nil)
	}
	return &auth.AuthData{User: u, Session: sess}, nil
}

// Register creates the account. Backends that sign the user in right away return a
// token and user; otherwise only the created document and a message come back and
// the result carries no session. An empty PasswordConfirm is sent as the password.
func (h *HTTP) Register(ctx context.Context, r auth.Registration) (*auth.Enrollment, error) {
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return nil, autherrors.New(autherrors.BadRequest, "Email is required.")
	}
	confirm := r.PasswordConfirm
	if confirm == "" {
		confirm = r.Password
	}
	if confirm != r.Password {
		return nil, autherrors.New(autherrors.BadRequest, "Passwords do not match.")
	}
	resp, err := h.call(ctx, request{
		op:     "Register",
		method: http.MethodPost,
		path:   h.endpoints.Register,
		body: registerBody{
			Email:           email,
			Password:        r.Password,
			PasswordConfirm: confirm,
			FirstName:       strings.TrimSpace(r.FirstName),
			LastName:        strings.TrimSpace(r.LastName),
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, registerError(resp)
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, invalidResponse("register", "malformed JSON", err)
	}
	msg, _ := raw["message"].(string)
	out := &auth.Enrollment{Message: strings.TrimSpace(msg)}

	if extractAccessToken(raw) == "" {
		if _, _, err := decodeUser(raw["doc"]); err != nil {
			return nil, invalidResponse("register", err.Error(), err)
		}
		return out, nil
	}
	d, err := h.authData("register", resp)
	if err != nil {
		return nil, err
	}
	out.Auth = d
	return out, nil
}

// Logout invalidates the session on the server.
func (h *HTTP) Logout(ctx context.Context, accessToken string) error {
	resp, err := h.call(ctx, request{
		op:     "Logout",
		method: http.MethodPost,
		path:   h.endpoints.Logout,
		bearer: accessToken,
	})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return tokenError(resp)
	}
	return nil
}
