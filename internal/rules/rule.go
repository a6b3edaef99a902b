// Package rules defines the access-widener rule model and the parser for the
// versioned rule-file text format.
//
// A rule file looks like:
//
//	accessWidener v2 named
//	# comment
//	accessible class a/b/Target
//	extendable method a/b/Target run ()V
//	mutable field a/b/Target counter I
//
// Each rule names a modifier (accessible, extendable, mutable), a target kind
// (class, method, field) and the target itself. Which modifiers are legal
// depends on the kind; see Kind.Allowed.
package rules

import (
	"strconv"
	"strings"
)

// Modifier is a requested visibility/finality change.
type Modifier uint8

const (
	// None is the zero value: no change requested.
	None Modifier = iota
	Accessible
	Extendable
	Mutable
)

var modifierNames = [...]string{
	None:       "none",
	Accessible: "accessible",
	Extendable: "extendable",
	Mutable:    "mutable",
}

func (m Modifier) String() string {
	if int(m) < len(modifierNames) {
		return modifierNames[m]
	}
	return "modifier(" + strconv.Itoa(int(m)) + ")"
}

// ParseModifier resolves a modifier id as written in rule files.
func ParseModifier(s string) (Modifier, bool) {
	for m, name := range modifierNames {
		if Modifier(m) != None && name == s {
			return Modifier(m), true
		}
	}
	return None, false
}

// Kind is the target kind of a rule.
type Kind uint8

const (
	KindClass Kind = iota
	KindMethod
	KindField
)

// kindTable holds the per-kind constants: the keyword used in rule files,
// the exact number of whitespace-separated fields a rule line has, and the
// modifiers the kind accepts.
var kindTable = [...]struct {
	name    string
	fields  int
	allowed []Modifier
}{
	KindClass:  {name: "class", fields: 3, allowed: []Modifier{Accessible, Extendable}},
	KindMethod: {name: "method", fields: 5, allowed: []Modifier{Accessible, Extendable}},
	KindField:  {name: "field", fields: 5, allowed: []Modifier{Accessible, Mutable}},
}

func (k Kind) String() string {
	if int(k) < len(kindTable) {
		return kindTable[k].name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind resolves a target-kind keyword.
func ParseKind(s string) (Kind, bool) {
	for k, row := range kindTable {
		if row.name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Fields is the exact field count of a rule line of this kind.
func (k Kind) Fields() int { return kindTable[k].fields }

// Allowed returns the modifiers legal for this kind. The slice is shared;
// callers must not modify it.
func (k Kind) Allowed() []Modifier { return kindTable[k].allowed }

// Allows reports whether m is legal for this kind.
func (k Kind) Allows(m Modifier) bool {
	for _, a := range kindTable[k].allowed {
		if a == m {
			return true
		}
	}
	return false
}

// Rule is one parsed rule line. Name and Descriptor are empty for class
// rules. Class uses '/'-separated internal names; descriptors are opaque.
type Rule struct {
	Kind       Kind
	Modifier   Modifier
	Class      string
	Name       string
	Descriptor string
}

// ClassRule builds a class-level rule.
func ClassRule(m Modifier, class string) Rule {
	return Rule{Kind: KindClass, Modifier: m, Class: class}
}

// MethodRule builds a method rule.
func MethodRule(m Modifier, class, name, desc string) Rule {
	return Rule{Kind: KindMethod, Modifier: m, Class: class, Name: name, Descriptor: desc}
}

// FieldRule builds a field rule.
func FieldRule(m Modifier, class, name, desc string) Rule {
	return Rule{Kind: KindField, Modifier: m, Class: class, Name: name, Descriptor: desc}
}

// String renders the canonical rule line (single spaces, no comment).
func (r Rule) String() string {
	parts := []string{r.Modifier.String(), r.Kind.String(), r.Class}
	if r.Kind != KindClass {
		parts = append(parts, r.Name, r.Descriptor)
	}
	return strings.Join(parts, " ")
}
