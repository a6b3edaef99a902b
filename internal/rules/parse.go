package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Header literals of the only supported rule-file format.
const (
	FormatTag = "accessWidener"
	Version   = "v2"
	Namespace = "named"
)

// Parse reads one rule source. source labels diagnostics (usually a path).
//
// The first non-empty line is the header. A source with no content at all
// after the header line is rejected; a header followed only by blank or
// comment lines yields an empty, non-nil rule list. Parsing stops at the
// first error and no rules are returned in that case.
func Parse(r io.Reader, source string) ([]Rule, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	// Locate the header: first non-empty line.
	hdr := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			hdr = i
			break
		}
	}
	if hdr < 0 {
		return nil, &FormatError{Source: source, Msg: "rule source is empty"}
	}
	if err := checkHeader(source, hdr+1, lines[hdr]); err != nil {
		return nil, err
	}
	body := lines[hdr+1:]
	if len(body) == 0 {
		return nil, &FormatError{Source: source, Msg: "rule source has a header but no content after it"}
	}

	out := make([]Rule, 0, len(body))
	for i, raw := range body {
		lineNo := hdr + 2 + i
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseLine(source, lineNo, line)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// ParseFile parses the rule file at path, using the path as source label.
func ParseFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// readLines splits r into lines the way a line reader does: "\n", "\r\n"
// and a final unterminated line all end a line, and a trailing newline does
// not produce an extra empty line.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for s.Scan() {
		lines = append(lines, strings.TrimSuffix(s.Text(), "\r"))
	}
	return lines, s.Err()
}

func checkHeader(source string, lineNo int, raw string) error {
	f := strings.Fields(raw)
	bad := func(msg string) error {
		return &FormatError{Source: source, Line: lineNo, Text: raw, Msg: msg}
	}
	if len(f) < 3 {
		return bad(fmt.Sprintf("invalid header, expected %q", FormatTag+" "+Version+" "+Namespace))
	}
	if f[0] != FormatTag {
		return bad(fmt.Sprintf("invalid header format tag %q, expected %q", f[0], FormatTag))
	}
	if f[1] != Version {
		return bad(fmt.Sprintf("unsupported version %q, expected %q", f[1], Version))
	}
	if f[2] != Namespace {
		return bad(fmt.Sprintf("unsupported namespace %q, expected %q", f[2], Namespace))
	}
	return nil
}

func parseLine(source string, lineNo int, line string) (Rule, error) {
	f := strings.Fields(line)
	bad := func(format string, args ...any) error {
		return &FormatError{Source: source, Line: lineNo, Text: line, Msg: fmt.Sprintf(format, args...)}
	}
	if len(f) < 2 {
		return Rule{}, bad("malformed rule, expected <modifier> <class|method|field> ...")
	}
	kind, ok := ParseKind(f[1])
	if !ok {
		return Rule{}, bad("unknown target kind %q, expected class, method or field", f[1])
	}
	if len(f) != kind.Fields() {
		return Rule{}, bad("malformed %s rule, expected %d fields but got %d", kind, kind.Fields(), len(f))
	}
	mod, ok := ParseModifier(f[0])
	if !ok {
		return Rule{}, bad("invalid modifier %q, expected accessible, extendable or mutable", f[0])
	}

	rule := Rule{Kind: kind, Modifier: mod, Class: f[2]}
	if kind != KindClass {
		rule.Name, rule.Descriptor = f[3], f[4]
	}
	if !kind.Allows(mod) {
		return Rule{}, &PermissionError{Source: source, Line: lineNo, Text: line, Kind: kind, Modifier: mod}
	}
	return rule, nil
}
