package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	users := e.Group("/users")
	users.POST("/login", s.login, s.track(EndpointLogin))
	users.POST("", s.register, s.track(EndpointRegister))
	users.POST("/logout", s.logout, s.track(EndpointLogout))
	users.POST("/refresh-token", s.refreshToken, s.track(EndpointRefresh))
	users.GET("/me", s.me, s.track(EndpointMe))
	return e
}

// track counts the call and applies the next queued failure, if any.
func (s *Server) track(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s.mu.Lock()
			s.calls[endpoint]++
			s.lastAuth[endpoint] = c.Request().Header.Get("Authorization")
			var f *Failure
			if q := s.failures[endpoint]; len(q) > 0 {
				f = &q[0]
				s.failures[endpoint] = q[1:]
			}
			s.mu.Unlock()

			if f == nil {
				return next(c)
			}
			if f.Delay > 0 {
				select {
				case <-time.After(f.Delay):
				case <-c.Request().Context().Done():
					return nil
				}
			}
			if f.Drop {
				conn, _, err := c.Response().Hijack()
				if err != nil {
					return err
				}
				_ = conn.Close()
				return nil
			}
			if f.Status != 0 {
				return c.Blob(f.Status, echo.MIMEApplicationJSON, []byte(f.Body))
			}
			return next(c)
		}
	}
}

func errorsBody(msg string) echo.Map {
	return echo.Map{"errors": []echo.Map{{"message": msg}}}
}

func validationBody(path, msg string) echo.Map {
	return echo.Map{"errors": []echo.Map{{
		"name":    "ValidationError",
		"message": "The following field is invalid: " + path,
		"data":    echo.Map{"errors": []echo.Map{{"path": path, "message": msg}}},
	}}}
}

type credentialsReq struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
}

func (s *Server) authPayload(a *Account, message string) (echo.Map, error) {
	access, refresh, exp, err := s.issue(a)
	if err != nil {
		return nil, err
	}
	body := echo.Map{
		"message":      message,
		"user":         a.doc(),
		"token":        access,
		"refreshToken": refresh,
	}
	if !s.omitExp {
		body["exp"] = exp.Unix()
	}
	return body, nil
}

func (s *Server) login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorsBody("Invalid request body."))
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.domainAllowed(email) {
		return c.JSON(http.StatusForbidden, errorsBody("Sign-in with this email domain is not allowed."))
	}
	a, ok := s.accounts[email]
	if !ok || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, errorsBody("The email or password provided is incorrect."))
	}
	if a.Locked {
		return c.JSON(http.StatusUnauthorized, errorsBody("This user is locked due to having too many failed login attempts."))
	}
	if s.requireVerification && !a.Verified {
		return c.JSON(http.StatusForbidden, errorsBody("Please verify your email before logging in."))
	}
	body, err := s.authPayload(a, "Auth Passed")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorsBody("Invalid request body."))
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return c.JSON(http.StatusBadRequest, validationBody("email", "A valid email address is required."))
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, validationBody("password", "Password must be at least 8 characters."))
	}
	if req.PasswordConfirm != req.Password {
		return c.JSON(http.StatusBadRequest, validationBody("passwordConfirm", "Passwords do not match."))
	}

	s.mu.Lock()
	_, exists := s.accounts[email]
	allowed := s.domainAllowed(email)
	s.mu.Unlock()
	if !allowed {
		return c.JSON(http.StatusForbidden, errorsBody("Registration with this email domain is not allowed."))
	}
	if exists {
		return c.JSON(http.StatusBadRequest, validationBody("email", "A user with the given email is already registered."))
	}

	acc := s.AddUser(email, req.Password, func(a *Account) {
		a.FirstName = req.FirstName
		a.LastName = req.LastName
		a.Verified = !s.requireVerification
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[acc.Email]
	if s.tokenOnRegister && a.Verified {
		body, err := s.authPayload(a, "User successfully created.")
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, body)
	}
	msg := "User successfully created."
	if s.requireVerification {
		msg = "User successfully created. Please check your email to verify your account."
	}
	return c.JSON(http.StatusCreated, echo.Map{"doc": a.doc(), "message": msg})
}

func (s *Server) logout(c echo.Context) error {
	token := bearer(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verify(token); !ok {
		return c.JSON(http.StatusUnauthorized, errorsBody("No User"))
	}
	s.revoked[token] = true
	return c.JSON(http.StatusOK, echo.Map{"message": "Logout successful."})
}

func (s *Server) refreshToken(c echo.Context) error {
	raw := bearer(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashRefresh(raw)
	entry, ok := s.refresh[key]
	if !ok || !s.now().Before(entry.exp) {
		delete(s.refresh, key)
		return c.JSON(http.StatusUnauthorized, errorsBody("You are not allowed to perform this action."))
	}
	a, ok := s.byID(entry.userID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorsBody("You are not allowed to perform this action."))
	}

	access, next, exp, err := s.issue(a)
	if err != nil {
		return err
	}
	body := echo.Map{
		"message":        "Token refresh successful",
		"refreshedToken": access,
		"user":           a.doc(),
	}
	if !s.omitExp {
		body["exp"] = exp.Unix()
	}
	if s.rotateRefresh {
		delete(s.refresh, key)
		body["refreshToken"] = next
	} else {
		delete(s.refresh, hashRefresh(next))
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) me(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.verify(bearer(c))
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"user": nil, "message": "Account"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": a.doc(), "collection": "users"})
}
