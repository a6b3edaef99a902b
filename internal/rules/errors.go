package rules

import (
	"fmt"
	"strings"
)

// FormatError reports a malformed header or rule line: bad header fields,
// unknown modifier or target kind, wrong field count, or an empty source.
type FormatError struct {
	Source string // human-readable label of the rule source
	Line   int    // 1-based line number; 0 when the error is not tied to a line
	Text   string // raw line text
	Msg    string
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Source, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s: %q", e.Source, e.Line, e.Msg, e.Text)
}

// PermissionError reports a rule whose modifier is not legal for its kind,
// e.g. "extendable field".
type PermissionError struct {
	Source   string
	Line     int
	Text     string
	Kind     Kind
	Modifier Modifier
}

func (e *PermissionError) Error() string {
	allowed := make([]string, 0, len(e.Kind.Allowed()))
	for _, m := range e.Kind.Allowed() {
		allowed = append(allowed, m.String())
	}
	return fmt.Sprintf("%s:%d: modifier %q is not allowed for %s rules (allowed: %s): %q",
		e.Source, e.Line, e.Modifier, e.Kind, strings.Join(allowed, ", "), e.Text)
}
