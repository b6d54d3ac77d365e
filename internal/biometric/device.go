package biometric

import (
	"context"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"wayfare/cli/internal/terminal"
)

// Unavailable is the device of a machine without an authenticator.
type Unavailable struct{}

func (Unavailable) HasHardware(context.Context) (bool, error)     { return false, nil }
func (Unavailable) IsEnrolled(context.Context) (bool, error)      { return false, nil }
func (Unavailable) SupportedTypes(context.Context) ([]Type, error) { return nil, nil }
func (Unavailable) Authenticate(context.Context, Prompt) (bool, error) {
	return false, ErrNotAvailable
}

// Terminal confirms presence through an interactive prompt on the controlling
// terminal. It has no hardware when stdin is not a terminal.
type Terminal struct {
	// Confirm replaces the pterm prompt in tests.
	Confirm func(p Prompt) (bool, error)
}

func (t *Terminal) HasHardware(context.Context) (bool, error) {
	return t.Confirm != nil || terminal.Interactive(), nil
}

func (t *Terminal) IsEnrolled(ctx context.Context) (bool, error) { return t.HasHardware(ctx) }

func (t *Terminal) SupportedTypes(context.Context) ([]Type, error) {
	return []Type{TypePresence}, nil
}

// Authenticate asks the user to confirm. Declining is reported as the fallback when
// one is offered and as a cancel otherwise.
func (t *Terminal) Authenticate(ctx context.Context, p Prompt) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, ErrSystemCancel
	}
	confirm := t.Confirm
	if confirm == nil {
		confirm = ptermConfirm
	}
	ok, err := confirm(p)
	if err != nil {
		return false, err
	}
	if ctx.Err() != nil {
		return false, ErrSystemCancel
	}
	if !ok {
		if p.FallbackLabel != "" && !p.DisableDeviceFallback {
			return false, ErrUserFallback
		}
		return false, ErrUserCancel
	}
	return true, nil
}

func ptermConfirm(p Prompt) (bool, error) {
	lines := strings.Split(p.Message, "\n")
	for _, l := range lines[1:] {
		pterm.Info.Println(l)
	}
	reject := p.CancelLabel
	if p.FallbackLabel != "" && !p.DisableDeviceFallback {
		reject = p.FallbackLabel
	}
	ok, err := pterm.DefaultInteractiveConfirm.
		WithDefaultValue(false).
		WithConfirmText("Yes").
		WithRejectText(reject).
		Show(lines[0])
	if err != nil {
		return false, ErrSystemCancel
	}
	return ok, nil
}

// Scripted is a Device that replays queued answers.
type Scripted struct {
	Hardware bool
	Enrolled bool
	Types    []Type
	// ProbeErr is returned by HasHardware.
	ProbeErr error

	mu      sync.Mutex
	answers []error
	prompts []Prompt
	probes  int
}

// Queue appends answers for the next prompts; nil means success.
func (s *Scripted) Queue(answers ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answers...)
}

// Prompts returns the prompts shown so far.
func (s *Scripted) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.prompts...)
}

// Probes counts HasHardware calls.
func (s *Scripted) Probes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes
}

func (s *Scripted) HasHardware(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	return s.Hardware, s.ProbeErr
}

func (s *Scripted) IsEnrolled(context.Context) (bool, error) { return s.Enrolled, nil }

func (s *Scripted) SupportedTypes(context.Context) ([]Type, error) { return s.Types, nil }

// Authenticate pops the next answer. An empty queue cancels.
func (s *Scripted) Authenticate(_ context.Context, p Prompt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	if len(s.answers) == 0 {
		return false, ErrUserCancel
	}
	err := s.answers[0]
	s.answers = s.answers[1:]
	return err == nil, err
}
