package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrCancelled is returned (wrapped) when script execution was aborted by
// cancelling the engine's context. It is the shutdown path, not a fault.
var ErrCancelled = errors.New("engine: execution cancelled")

// Fault is an uncaught error raised by script code.
type Fault struct {
	Class   string
	Message string
	File    string
	Line    int
	Err     error
}

func (f *Fault) Error() string {
	if f.File == "" {
		return fmt.Sprintf("%s: %s", f.Class, f.Message)
	}
	return fmt.Sprintf("%s:%d: %s: %s", f.File, f.Line, f.Class, f.Message)
}

func (f *Fault) Unwrap() error { return f.Err }

// maxReportSize bounds the text shown for a fault.
const maxReportSize = 512

// Report formats the fault for a message box.
func (f *Fault) Report() string {
	return Truncate(fmt.Sprintf("Script '%s' line %d: %s occurred.\n\n%s",
		f.File, f.Line, f.Class, f.Message), maxReportSize)
}

// Truncate shortens s to at most n-1 bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) < n {
		return s
	}
	end := n - 1
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %v", ErrCancelled, cause)
}

// wherePattern matches the "unit:line: message" prefix interpreters put on
// runtime errors.
var wherePattern = regexp.MustCompile(`(?s)^(.*?):(\d+):\s?(.*)$`)

// splitWhere parses "unit:line: message" into its parts. When s carries no
// location the whole string is the message.
func splitWhere(s string) (file string, line int, msg string) {
	m := wherePattern.FindStringSubmatch(s)
	if m == nil {
		return "", 0, s
	}
	line, _ = strconv.Atoi(m[2])
	return m[1], line, strings.TrimSpace(m[3])
}

// offsetSource pads source so reported line numbers start at line.
func offsetSource(source string, line int) string {
	if line <= 1 {
		return source
	}
	return strings.Repeat("\n", line-1) + source
}
