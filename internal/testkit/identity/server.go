// Package identity is an in-process fake of the identity backend for tests. It
// speaks the same JSON contract as the real user collection endpoints, hashes
// passwords with bcrypt, signs HS256 access tokens and keeps opaque refresh
// tokens, and lets a test count calls and inject failures per endpoint.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// Endpoint names used by Calls and Fail.
const (
	EndpointLogin    = "login"
	EndpointRegister = "register"
	EndpointLogout   = "logout"
	EndpointRefresh  = "refresh"
	EndpointMe       = "me"
)

// Account is a user known to the server.
type Account struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Tier      string
	Verified  bool
	Locked    bool

	passwordHash []byte
}

// Failure is an injected misbehavior for the next call of an endpoint.
type Failure struct {
	// Status and Body are written instead of the normal response when Status is set.
	Status int
	Body   string
	// Delay is slept before anything else happens.
	Delay time.Duration
	// Drop closes the connection without a response.
	Drop bool
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the access token lifetime. Default one hour.
func WithTokenTTL(d time.Duration) Option { return func(s *Server) { s.tokenTTL = d } }

// WithRefreshTTL sets the refresh token lifetime. Default thirty days.
func WithRefreshTTL(d time.Duration) Option { return func(s *Server) { s.refreshTTL = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithVerification requires a verified email before login and withholds tokens on register.
func WithVerification() Option { return func(s *Server) { s.requireVerification = true } }

// WithTokenOnRegister signs new users in directly when verification is off.
func WithTokenOnRegister() Option { return func(s *Server) { s.tokenOnRegister = true } }

// WithRefreshRotation issues a new refresh token on every refresh.
func WithRefreshRotation() Option { return func(s *Server) { s.rotateRefresh = true } }

// WithAllowedDomains restricts registration and login to the given email domains.
func WithAllowedDomains(domains ...string) Option {
	return func(s *Server) { s.allowedDomains = domains }
}

// WithoutExp omits the exp field so clients must fall back to the token's claim.
func WithoutExp() Option { return func(s *Server) { s.omitExp = true } }

type refreshEntry struct {
	userID string
	exp    time.Time
}

// Server is the fake backend.
type Server struct {
	echo   *echo.Echo
	srv    *httptest.Server
	secret []byte
	now    func() time.Time

	tokenTTL            time.Duration
	refreshTTL          time.Duration
	requireVerification bool
	tokenOnRegister     bool
	rotateRefresh       bool
	omitExp             bool
	allowedDomains      []string

	mu       sync.Mutex
	accounts map[string]*Account // by email
	refresh  map[string]refreshEntry
	revoked  map[string]bool
	calls    map[string]int
	failures map[string][]Failure
	lastAuth map[string]string
}

// New builds a server without starting it. Use Handler or Start.
func New(opts ...Option) *Server {
	s := &Server{
		secret:     []byte(uuid.NewString()),
		now:        time.Now,
		tokenTTL:   time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
		accounts:   map[string]*Account{},
		refresh:    map[string]refreshEntry{},
		revoked:    map[string]bool{},
		calls:      map[string]int{},
		failures:   map[string][]Failure{},
		lastAuth:   map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.echo = s.routes()
	return s
}

// Start builds and starts a server that is closed when t finishes.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := New(opts...)
	s.srv = httptest.NewServer(s.echo)
	t.Cleanup(s.Close)
	return s
}

// URL is the base URL of a started server.
func (s *Server) URL() string { return s.srv.URL }

// Client returns an *http.Client for a started server.
func (s *Server) Client() *http.Client { return s.srv.Client() }

// Handler exposes the routes for callers that host the server themselves.
func (s *Server) Handler() http.Handler { return s.echo }

// Close stops a started server.
func (s *Server) Close() {
	if s.srv != nil {
		s.srv.CloseClientConnections()
		s.srv.Close()
	}
}

// AddUser registers an account with a bcrypt-hashed password.
func (s *Server) AddUser(email, password string, mutate ...func(*Account)) Account {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	a := &Account{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Role:         "client",
		Verified:     true,
		passwordHash: hash,
	}
	for _, m := range mutate {
		m(a)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Email] = a
	return *a
}

// Update changes a stored account.
func (s *Server) Update(email string, mutate func(*Account)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[strings.ToLower(email)]; ok {
		mutate(a)
	}
}

// Fail queues failures for the next calls of endpoint, consumed in order.
func (s *Server) Fail(endpoint string, f ...Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = append(s.failures[endpoint], f...)
}

// Calls reports how many requests reached endpoint, failed ones included.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// LastAuthorization returns the Authorization header of the last call to endpoint.
func (s *Server) LastAuthorization(endpoint string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth[endpoint]
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = map[string]refreshEntry{}
}

// Account returns a copy of the stored account.
func (s *Server) Account(email string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

func hashRefresh(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// issue signs an access token and stores a new refresh token. Callers hold mu.
func (s *Server) issue(a *Account) (access string, refresh string, exp time.Time, err error) {
	now := s.now()
	exp = now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub":   a.ID,
		"email": a.Email,
		"role":  a.Role,
		"exp":   exp.Unix(),
		"iat":   now.Unix(),
		"jti":   uuid.NewString(),
	}
	access, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh = uuid.NewString()
	s.refresh[hashRefresh(refresh)] = refreshEntry{userID: a.ID, exp: now.Add(s.refreshTTL)}
	return access, refresh, exp, nil
}

// verify parses an access token and returns its account. Callers hold mu.
func (s *Server) verify(token string) (*Account, bool) {
	if token == "" || s.revoked[token] {
		return nil, false
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, false
	}
	sub, _ := claims.GetSubject()
	return s.byID(sub)
}

func (s *Server) byID(id string) (*Account, bool) {
	for _, a := range s.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

func (s *Server) domainAllowed(email string) bool {
	if len(s.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, d := range s.allowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

func (a *Account) doc() echo.Map {
	m := echo.Map{
		"id":            a.ID,
		"email":         a.Email,
		"role":          a.Role,
		"_verified":     a.Verified,
		"emailVerified": a.Verified,
	}
	if a.FirstName != "" {
		m["firstName"] = a.FirstName
	}
	if a.LastName != "" {
		m["lastName"] = a.LastName
	}
	if a.Tier != "" {
		m["tier"] = a.Tier
	}
	return m
}

func bearer(c echo.Context) string {
	v := strings.TrimSpace(c.Request().Header.Get("Authorization"))
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}
