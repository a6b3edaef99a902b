// Package validate performs lightweight lint checks on a resolved rule set and
// an interface map. Rule parsing accepts any name and descriptor text; these
// checks catch the usual typos (dotted names, malformed descriptors) before
// they silently match nothing.
//
// Goals:
//   - No external dependencies (stdlib only)
//   - Aggregate multiple issues into a single error for better UX
//   - Deterministic output: classes and members are visited in sorted order
package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"class-widener/internal/resolve"
	"class-widener/internal/rules"
)

// Set checks the class names, member names and descriptors of a resolved set.
// The function returns nil if everything looks fine, or a single aggregated
// error describing all the issues found.
func Set(set resolve.Set) error {
	var errs errlist
	for _, name := range set.Classes() {
		cr := set[name]
		if msg := internalNameProblem(name); msg != "" {
			errs.add("class %q: %s", name, msg)
		}
		for _, k := range sortedKeys(cr.Methods) {
			prefix := fmt.Sprintf("method %s.%s%s", name, k.Name, k.Descriptor)
			if k.Name == "<clinit>" {
				errs.add("%s: static initializers cannot be widened", prefix)
			}
			if msg := memberNameProblem(k.Name, true); msg != "" {
				errs.add("%s: %s", prefix, msg)
			}
			if msg := methodDescriptorProblem(k.Descriptor); msg != "" {
				errs.add("%s: %s", prefix, msg)
			}
		}
		for _, k := range sortedKeys(cr.Fields) {
			prefix := fmt.Sprintf("field %s.%s:%s", name, k.Name, k.Descriptor)
			if msg := memberNameProblem(k.Name, false); msg != "" {
				errs.add("%s: %s", prefix, msg)
			}
			if rest, msg := fieldType(k.Descriptor); msg != "" {
				errs.add("%s: %s", prefix, msg)
			} else if rest != "" {
				errs.add("%s: trailing %q after field type", prefix, rest)
			}
		}
	}
	return errs.err()
}

// Interfaces checks an internal-name interface map: names must be in internal
// form and a class cannot implement itself.
func Interfaces(m map[string][]string) error {
	var errs errlist
	targets := make([]string, 0, len(m))
	for t := range m {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		if msg := internalNameProblem(t); msg != "" {
			errs.add("injection target %q: %s", t, msg)
		}
		for _, i := range m[t] {
			if i == t {
				errs.add("injection target %q: class cannot implement itself", t)
				continue
			}
			if msg := internalNameProblem(i); msg != "" {
				errs.add("injection %q into %q: %s", i, t, msg)
			}
		}
	}
	return errs.err()
}

// --- helpers -----------------------------------------------------------------

func sortedKeys(m map[resolve.MemberKey]rules.Modifier) []resolve.MemberKey {
	out := make([]resolve.MemberKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Descriptor < out[j].Descriptor
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func internalNameProblem(name string) string {
	switch {
	case name == "":
		return "name must be non-empty"
	case strings.Contains(name, "."):
		return "use '/' as the package separator, not '.'"
	case strings.ContainsAny(name, ";[<>"):
		return "name contains a character that is illegal in class names"
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" {
			return "name has an empty package segment"
		}
	}
	return ""
}

func memberNameProblem(name string, method bool) string {
	if name == "" {
		return "name must be non-empty"
	}
	if method && (name == "<init>" || name == "<clinit>") {
		return ""
	}
	if strings.ContainsAny(name, ".;[/<>") {
		return "name contains a character that is illegal in member names"
	}
	return ""
}

func methodDescriptorProblem(desc string) string {
	if !strings.HasPrefix(desc, "(") {
		return "method descriptor must start with '('"
	}
	rest := desc[1:]
	for !strings.HasPrefix(rest, ")") {
		if rest == "" {
			return "method descriptor has no ')'"
		}
		r, msg := fieldType(rest)
		if msg != "" {
			return "parameter: " + msg
		}
		rest = r
	}
	rest = rest[1:]
	if rest == "V" {
		return ""
	}
	r, msg := fieldType(rest)
	if msg != "" {
		return "return type: " + msg
	}
	if r != "" {
		return fmt.Sprintf("trailing %q after return type", r)
	}
	return ""
}

// fieldType consumes one field type from the front of d and returns the
// remainder.
func fieldType(d string) (string, string) {
	dims := 0
	for strings.HasPrefix(d, "[") {
		d = d[1:]
		dims++
	}
	if dims > 255 {
		return "", "array type has more than 255 dimensions"
	}
	if d == "" {
		return "", "missing type"
	}
	switch d[0] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return d[1:], ""
	case 'L':
		end := strings.IndexByte(d, ';')
		if end < 0 {
			return "", "class type is missing ';'"
		}
		if msg := internalNameProblem(d[1:end]); msg != "" {
			return "", "class type: " + msg
		}
		return d[end+1:], ""
	}
	return "", fmt.Sprintf("unknown type %q", d[0])
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	// Join with newline for readability.
	return errors.New(strings.Join(e.msgs, "\n"))
}
