package backend

import (
	"encoding/json"
	"net/http"
	"strings"

	autherrors "wayfare/cli/internal/errors"
)

// errorBody covers {"errors":[{"message","data":{"errors":[...]}}]} and {"message"} bodies.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Errors  []struct {
		Message string `json:"message"`
		Data    struct {
			Errors []struct {
				Message string `json:"message"`
				Path    string `json:"path"`
			} `json:"errors"`
		} `json:"data"`
	} `json:"errors"`
}

// serverMessage extracts the displayable message and every nested field message.
func serverMessage(body []byte) (msg string, all string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", strings.ToLower(string(body))
	}
	var parts []string
	for _, e := range eb.Errors {
		parts = append(parts, e.Message)
		for _, fe := range e.Data.Errors {
			// Field messages are more specific than the validation summary.
			if msg == "" && fe.Message != "" {
				msg = fe.Message
			}
			parts = append(parts, fe.Path, fe.Message)
		}
		if msg == "" {
			msg = e.Message
		}
	}
	if msg == "" {
		msg = eb.Message
	}
	if msg == "" {
		msg = eb.Error
	}
	parts = append(parts, eb.Message, eb.Error)
	return strings.TrimSpace(msg), strings.ToLower(strings.Join(parts, " "))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func orDefault(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}

// serverFailure maps statuses shared by every operation; nil means op-specific mapping applies.
func serverFailure(resp *response) *autherrors.E {
	if resp.status >= 500 {
		return autherrors.New(autherrors.ServerError, "The server is having trouble. Please try again later.").WithStatus(resp.status)
	}
	return nil
}

func loginError(resp *response) *autherrors.E {
	if e := serverFailure(resp); e != nil {
		return e
	}
	msg, all := serverMessage(resp.body)
	var e *autherrors.E
	switch {
	case containsAny(all, "locked", "too many"):
		e = autherrors.New(autherrors.AccountLocked, orDefault(msg, "This account is temporarily locked. Try again later."))
	case containsAny(all, "verify", "verified", "verification"):
		e = autherrors.New(autherrors.EmailNotVerified, "Please verify your email before signing in.")
	case containsAny(all, "not allowed", "domain"):
		e = autherrors.New(autherrors.EmailNotAllowed, orDefault(msg, "This email address is not allowed."))
	case resp.status == http.StatusBadRequest || resp.status == http.StatusUnauthorized:
		e = autherrors.New(autherrors.InvalidCredentials, "Invalid email or password.")
	case resp.status == http.StatusForbidden:
		e = autherrors.New(autherrors.EmailNotVerified, "Please verify your email before signing in.")
	default:
		e = autherrors.New(autherrors.BadRequest, orDefault(msg, "Sign-in request was rejected."))
	}
	return e.WithStatus(resp.status)
}

func registerError(resp *response) *autherrors.E {
	if e := serverFailure(resp); e != nil {
		return e
	}
	msg, all := serverMessage(resp.body)
	var e *autherrors.E
	switch {
	case resp.status == http.StatusConflict || containsAny(all, "already", "unique", "taken", "registered"):
		e = autherrors.New(autherrors.EmailTaken, "An account with this email already exists.")
	case containsAny(all, "not allowed", "domain"):
		e = autherrors.New(autherrors.EmailNotAllowed, orDefault(msg, "This email address is not allowed."))
	case containsAny(all, "passwordconfirm", "do not match"):
		e = autherrors.New(autherrors.BadRequest, orDefault(msg, "Passwords do not match."))
	case containsAny(all, "password"):
		e = autherrors.New(autherrors.WeakPassword, orDefault(msg, "Password does not meet the requirements."))
	default:
		e = autherrors.New(autherrors.BadRequest, orDefault(msg, "Registration was rejected."))
	}
	return e.WithStatus(resp.status)
}

// tokenError maps failures of calls authorized by a token (refresh, me, logout).
func tokenError(resp *response) *autherrors.E {
	if e := serverFailure(resp); e != nil {
		return e
	}
	msg, _ := serverMessage(resp.body)
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
		return autherrors.New(autherrors.TokenInvalid, "Your session has expired. Please sign in again.").WithStatus(resp.status)
	}
	return autherrors.New(autherrors.BadRequest, orDefault(msg, "The request was rejected.")).WithStatus(resp.status)
}

func invalidResponse(op, detail string, err error) *autherrors.E {
	return autherrors.Wrap(autherrors.InvalidResponse, "Unexpected response from the server ("+op+": "+detail+").", err)
}
