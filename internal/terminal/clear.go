// Package terminal wraps the few terminal queries the CLI needs: whether a user is
// attached, how wide the screen is, and erasing a prompt once it was answered.
package terminal

import (
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/term"
)

const fallbackWidth = 80

// Interactive reports whether both stdin and stdout are terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the stdout width, or 80 when it cannot be read.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallbackWidth
}

// LinesFor returns how many rows textLength characters occupy at width, plus the
// empty row left by the Enter that submitted the prompt.
func LinesFor(textLength, width int) int {
	if width <= 0 {
		width = fallbackWidth
	}
	n := int(math.Ceil(float64(textLength) / float64(width)))
	if n < 1 {
		n = 1
	}
	return n + 1
}

// ClearPreviousLines erases an answered prompt of textLength characters
// (prompt plus input) from w. Nothing is written when stdout is not a terminal.
func ClearPreviousLines(w io.Writer, textLength int) {
	if !Interactive() {
		return
	}
	n := LinesFor(textLength, Width())
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}
