// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package biometric implements local step-up authentication in front of session
// operations. A Gate probes a Device once, prompts it on demand and keeps the
// user's opt-in in the token store so it survives sign-out.
package biometric

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	autherrors "wayfare/cli/internal/errors"
	"wayfare/cli/internal/logging"
	"wayfare/cli/internal/tokenstore"
)

// Type is a kind of local authenticator.
type Type string

const (
	TypeFingerprint Type = "fingerprint"
	TypeFace        Type = "facial_recognition"
	TypeIris        Type = "iris"
	// TypePresence is a plain confirmation by whoever sits at the terminal.
	TypePresence Type = "presence"
)

// Code classifies a failed prompt so callers can branch without matching text.
type Code string

const (
	CodeNotAvailable Code = "NOT_AVAILABLE"
	CodeNotEnrolled  Code = "NOT_ENROLLED"
	CodeUserCancel   Code = "USER_CANCEL"
	CodeUserFallback Code = "USER_FALLBACK"
	CodeSystemCancel Code = "SYSTEM_CANCEL"
	CodeUnknown      Code = "UNKNOWN"
	// CodeNotEnabled is only produced by AuthenticateForLogin.
	CodeNotEnabled Code = "NOT_ENABLED"
)

// Sentinel errors a Device returns from Authenticate.
var (
	ErrNotAvailable = errors.New("biometric: no authenticator available")
	ErrNotEnrolled  = errors.New("biometric: nothing enrolled")
	ErrUserCancel   = errors.New("biometric: cancelled by user")
	ErrUserFallback = errors.New("biometric: user chose fallback")
	ErrSystemCancel = errors.New("biometric: cancelled by system")
)

// Prompt is what a Device shows.
type Prompt struct {
	Message               string
	CancelLabel           string
	FallbackLabel         string
	DisableDeviceFallback bool
}

// Device is the platform authenticator.
type Device interface {
	HasHardware(ctx context.Context) (bool, error)
	IsEnrolled(ctx context.Context) (bool, error)
	SupportedTypes(ctx context.Context) ([]Type, error)
	Authenticate(ctx context.Context, p Prompt) (bool, error)
}

// PreferenceStore persists the opt-in. *tokenstore.Store implements it.
type PreferenceStore interface {
	GetBiometricPreferences(ctx context.Context) (tokenstore.BiometricPreference, error)
	SetBiometricPreferences(ctx context.Context, p tokenstore.BiometricPreference) error
	ClearBiometricPreferences(ctx context.Context)
}

var _ PreferenceStore = (*tokenstore.Store)(nil)

// Capabilities is the result of probing the device.
type Capabilities struct {
	HasHardware    bool
	IsEnrolled     bool
	SupportedTypes []Type
}

// Options customize a prompt. Empty labels use the defaults.
type Options struct {
	PromptMessage         string
	PromptSubtitle        string
	CancelLabel           string
	FallbackLabel         string
	DisableDeviceFallback bool
}

const (
	defaultMessage  = "Confirm your identity"
	defaultCancel   = "Cancel"
	defaultFallback = "Use password"
)

// Result is the outcome of a prompt. Err and Code are set only on failure.
type Result struct {
	Success bool
	Err     error
	Code    Code
}

// Error carries the failure code inside a BiometricError.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of a biometric failure, or "" for other errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var messages = map[Code]string{
	CodeNotAvailable: "Biometric authentication is not available on this device.",
	CodeNotEnrolled:  "No biometrics are enrolled on this device.",
	CodeUserCancel:   "Authentication was cancelled.",
	CodeUserFallback: "Authentication was skipped. Sign in with your password.",
	CodeSystemCancel: "Authentication was interrupted.",
	CodeUnknown:      "Biometric authentication failed.",
	CodeNotEnabled:   "Biometric sign-in is not enabled.",
}

func failure(code Code, cause error) Result {
	return Result{
		Code: code,
		Err:  autherrors.Wrap(autherrors.BiometricError, messages[code], &Error{Code: code, Err: cause}),
	}
}

// Option customizes a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// Gate is the step-up layer.
type Gate struct {
	dev   Device
	prefs PreferenceStore
	log   *slog.Logger

	capsMu sync.Mutex
	caps   *Capabilities

	// promptMu keeps one prompt on screen at a time.
	promptMu sync.Mutex
}

// NewGate builds a Gate over dev and prefs.
func NewGate(dev Device, prefs PreferenceStore, opts ...Option) *Gate {
	g := &Gate{dev: dev, prefs: prefs, log: logging.Discard()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Capabilities probes the device once and caches the answer. A failed probe is
// reported as no hardware and is not cached.
func (g *Gate) Capabilities(ctx context.Context) Capabilities {
	g.capsMu.Lock()
	defer g.capsMu.Unlock()
	if g.caps != nil {
		return *g.caps
	}

	hw, err := g.dev.HasHardware(ctx)
	if err != nil {
		g.log.Debug("biometric hardware probe failed", "error", err)
		return Capabilities{}
	}
	c := Capabilities{HasHardware: hw}
	if hw {
		if c.IsEnrolled, err = g.dev.IsEnrolled(ctx); err != nil {
			g.log.Debug("biometric enrollment probe failed", "error", err)
			return Capabilities{HasHardware: true}
		}
		if c.SupportedTypes, err = g.dev.SupportedTypes(ctx); err != nil {
			g.log.Debug("biometric type probe failed", "error", err)
			c.SupportedTypes = nil
		}
	}
	g.caps = &c
	return c
}

// ResetCapabilities forgets the cached probe, e.g. after the user enrolls.
func (g *Gate) ResetCapabilities() {
	g.capsMu.Lock()
	g.caps = nil
	g.capsMu.Unlock()
}

// IsAvailable reports hardware present and enrolled.
func (g *Gate) IsAvailable(ctx context.Context) bool {
	c := g.Capabilities(ctx)
	return c.HasHardware && c.IsEnrolled
}

// Authenticate shows one prompt.
func (g *Gate) Authenticate(ctx context.Context, opts Options) Result {
	c := g.Capabilities(ctx)
	switch {
	case !c.HasHardware:
		return failure(CodeNotAvailable, nil)
	case !c.IsEnrolled:
		return failure(CodeNotEnrolled, nil)
	}

	g.promptMu.Lock()
	defer g.promptMu.Unlock()
	if err := ctx.Err(); err != nil {
		return failure(CodeSystemCancel, err)
	}

	ok, err := g.dev.Authenticate(ctx, opts.prompt())
	if err != nil {
		code := classify(err)
		g.log.Debug("biometric prompt failed", "code", code, "error", err)
		return failure(code, err)
	}
	if !ok {
		return failure(CodeUnknown, nil)
	}
	return Result{Success: true}
}

func (o Options) prompt() Prompt {
	msg := strings.TrimSpace(o.PromptMessage)
	if msg == "" {
		msg = defaultMessage
	}
	if sub := strings.TrimSpace(o.PromptSubtitle); sub != "" {
		msg += "\n" + sub
	}
	p := Prompt{
		Message:               msg,
		CancelLabel:           o.CancelLabel,
		FallbackLabel:         o.FallbackLabel,
		DisableDeviceFallback: o.DisableDeviceFallback,
	}
	if p.CancelLabel == "" {
		p.CancelLabel = defaultCancel
	}
	if p.FallbackLabel == "" && !p.DisableDeviceFallback {
		p.FallbackLabel = defaultFallback
	}
	return p
}

func classify(err error) Code {
	switch {
	case errors.Is(err, ErrUserCancel):
		return CodeUserCancel
	case errors.Is(err, ErrUserFallback):
		return CodeUserFallback
	case errors.Is(err, ErrSystemCancel), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeSystemCancel
	case errors.Is(err, ErrNotEnrolled):
		return CodeNotEnrolled
	case errors.Is(err, ErrNotAvailable):
		return CodeNotAvailable
	}
	return CodeUnknown
}

// EnableBiometricLogin turns step-up on after the user passes one prompt. The
// prompt labels are stored for later logins.
func (g *Gate) EnableBiometricLogin(ctx context.Context, opts Options) error {
	res := g.Authenticate(ctx, opts)
	if !res.Success {
		return res.Err
	}
	p := tokenstore.BiometricPreference{
		Enabled:        true,
		PromptTitle:    opts.PromptMessage,
		PromptSubtitle: opts.PromptSubtitle,
		FallbackLabel:  opts.FallbackLabel,
	}
	if err := g.prefs.SetBiometricPreferences(ctx, p); err != nil {
		return err
	}
	g.log.Info("biometric sign-in enabled")
	return nil
}

// DisableBiometricLogin removes the opt-in.
func (g *Gate) DisableBiometricLogin(ctx context.Context) {
	g.prefs.ClearBiometricPreferences(ctx)
	g.log.Info("biometric sign-in disabled")
}

// IsBiometricLoginEnabled reports the stored opt-in. Unreadable preferences count as off.
func (g *Gate) IsBiometricLoginEnabled(ctx context.Context) bool {
	p, err := g.prefs.GetBiometricPreferences(ctx)
	if err != nil {
		g.log.Warn("could not read biometric preference", "error", err)
		return false
	}
	return p.Enabled
}

// AuthenticateForLogin prompts with the stored labels, or fails with NOT_ENABLED
// when the user never opted in.
func (g *Gate) AuthenticateForLogin(ctx context.Context) Result {
	p, err := g.prefs.GetBiometricPreferences(ctx)
	if err != nil {
		return Result{Code: CodeUnknown, Err: err}
	}
	if !p.Enabled {
		return failure(CodeNotEnabled, nil)
	}
	return g.Authenticate(ctx, Options{
		PromptMessage:  p.PromptTitle,
		PromptSubtitle: p.PromptSubtitle,
		FallbackLabel:  p.FallbackLabel,
	})
}

// Guard runs fn behind a step-up prompt when the user opted in, and directly
// otherwise.
func (g *Gate) Guard(ctx context.Context, fn func(context.Context) error) error {
	if g.IsBiometricLoginEnabled(ctx) {
		if res := g.AuthenticateForLogin(ctx); !res.Success {
			return res.Err
		}
	}
	return fn(ctx)
}
