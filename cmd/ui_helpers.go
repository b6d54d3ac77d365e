package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"wayfare/cli/internal/auth"
	"wayfare/cli/internal/terminal"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// startInlineSpinner animates frames followed by text on one line of w until the
// returned stop function is called. The line is cleared on stop.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	cursor.Hide()
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
		cursor.Show()
	}
}

// withSpinner runs fn behind a spinner when attached to a terminal.
func withSpinner[T any](text string, fn func() (T, error)) (T, error) {
	if !terminal.Interactive() {
		return fn()
	}
	stop := startInlineSpinner(os.Stdout, text, spinnerFrames, 120*time.Millisecond)
	defer stop()
	return fn()
}

// promptText asks for a line of input; def is returned for an empty answer.
func promptText(label, def string) (string, error) {
	p := pterm.DefaultInteractiveTextInput
	if def != "" {
		p = *p.WithDefaultValue(def)
	}
	v, err := p.Show(label)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// promptSecret asks for masked input and erases the prompt line afterwards.
func promptSecret(label string) (string, error) {
	v, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show(label)
	if err != nil {
		return "", err
	}
	terminal.ClearPreviousLines(os.Stdout, len(label)+2+len(v))
	return v, nil
}

func printNotLoggedIn() {
	pterm.Println("🔒 You're not logged in yet!")
	pterm.Println("   Run 'wayfare login' to get started.")
}

func printUser(u auth.User, sess *auth.Session) {
	tier := string(u.Tier)
	if tier == "" {
		tier = "none"
	}
	rows := [][]string{
		{"Name", u.DisplayName()},
		{"Email", u.Email},
		{"Role", string(u.Role)},
		{"Tier", tier},
		{"Verified", fmt.Sprintf("%t", u.EmailVerified)},
	}
	if sess != nil {
		rows = append(rows, []string{"Session expires", sess.ExpiresTime().Local().Format(time.RFC1123)})
	}
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(pterm.NewStyle(pterm.FgLightCyan).Sprintf("%-16s", r[0]))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Account")).
		Println(strings.TrimRight(b.String(), "\n"))
}
