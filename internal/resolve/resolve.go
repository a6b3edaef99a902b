// Package resolve folds raw rules from any number of sources into one
// conflict-resolved rule set per class.
//
// Every update is a monotonic maximum, so the result does not depend on the
// order in which sources or rules are folded:
//
//	class:  none < accessible < extendable
//	method: none < accessible < extendable
//	field:  none < accessible < mutable
//
// The class-level modifier used for rewriting is derived only after all raw
// rules are folded in (see DeriveClassAccess).
package resolve

import (
	"sort"

	"class-widener/internal/rules"
)

// MemberKey identifies a field or method within a class.
type MemberKey struct {
	Name       string
	Descriptor string
}

// ClassRules is the resolved state of one class.
type ClassRules struct {
	// Access is the effective class-level modifier, including the
	// propagation from members. rules.None means "leave flags alone".
	Access rules.Modifier
	// Explicit is the strongest modifier named by class rules alone.
	Explicit rules.Modifier
	Fields   map[MemberKey]rules.Modifier
	Methods  map[MemberKey]rules.Modifier
}

// Empty reports whether nothing is requested for the class.
func (c *ClassRules) Empty() bool {
	return c == nil || (c.Access == rules.None && len(c.Fields) == 0 && len(c.Methods) == 0)
}

// Field returns the resolved modifier for a field, or rules.None.
func (c *ClassRules) Field(name, desc string) rules.Modifier {
	if c == nil {
		return rules.None
	}
	return c.Fields[MemberKey{name, desc}]
}

// Method returns the resolved modifier for a method, or rules.None.
func (c *ClassRules) Method(name, desc string) rules.Modifier {
	if c == nil {
		return rules.None
	}
	return c.Methods[MemberKey{name, desc}]
}

// Set maps internal class names to their resolved rules.
type Set map[string]*ClassRules

// Resolve folds rules in the given order and then derives every class-level
// modifier. The returned set must be treated as read-only.
func Resolve(rs []rules.Rule) Set {
	set := make(Set)
	for _, r := range rs {
		set.fold(r)
	}
	for _, c := range set {
		c.Access = DeriveClassAccess(c.Explicit, c.Fields, c.Methods)
	}
	return set
}

// FromSources resolves the concatenation of several rule lists.
func FromSources(sources ...[]rules.Rule) Set {
	n := 0
	for _, s := range sources {
		n += len(s)
	}
	all := make([]rules.Rule, 0, n)
	for _, s := range sources {
		all = append(all, s...)
	}
	return Resolve(all)
}

func (s Set) fold(r rules.Rule) {
	c := s[r.Class]
	if c == nil {
		c = &ClassRules{
			Fields:  make(map[MemberKey]rules.Modifier),
			Methods: make(map[MemberKey]rules.Modifier),
		}
		s[r.Class] = c
	}
	switch r.Kind {
	case rules.KindClass:
		c.Explicit = raise(c.Explicit, r.Modifier, rules.Extendable)
	case rules.KindField:
		k := MemberKey{r.Name, r.Descriptor}
		c.Fields[k] = raise(c.Fields[k], r.Modifier, rules.Mutable)
	case rules.KindMethod:
		k := MemberKey{r.Name, r.Descriptor}
		c.Methods[k] = raise(c.Methods[k], r.Modifier, rules.Extendable)
	}
}

// raise applies next on top of cur where sticky is the top of the target's
// lattice: once reached it is never replaced.
func raise(cur, next, sticky rules.Modifier) rules.Modifier {
	if cur == sticky || next == rules.None {
		return cur
	}
	return next
}

// DeriveClassAccess computes the effective class-level modifier from the
// explicit class modifier and the fully folded member maps. A widened member
// requires its class to be at least as visible; an extendable method
// requires an extendable class.
func DeriveClassAccess(explicit rules.Modifier, fields, methods map[MemberKey]rules.Modifier) rules.Modifier {
	access := explicit
	for _, m := range fields {
		if m == rules.Accessible || m == rules.Mutable {
			access = raise(access, rules.Accessible, rules.Extendable)
		}
	}
	for _, m := range methods {
		switch m {
		case rules.Accessible:
			access = raise(access, rules.Accessible, rules.Extendable)
		case rules.Extendable:
			access = rules.Extendable
		}
	}
	return access
}

// Classes returns the class names of the set in sorted order.
func (s Set) Classes() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Rules renders the resolved state as canonical rules: per class (sorted),
// the effective class rule followed by sorted field and method rules.
func (s Set) Rules() []rules.Rule {
	var out []rules.Rule
	for _, name := range s.Classes() {
		c := s[name]
		if c.Access != rules.None {
			out = append(out, rules.ClassRule(c.Access, name))
		}
		for _, k := range sortedKeys(c.Methods) {
			out = append(out, rules.MethodRule(c.Methods[k], name, k.Name, k.Descriptor))
		}
		for _, k := range sortedKeys(c.Fields) {
			out = append(out, rules.FieldRule(c.Fields[k], name, k.Name, k.Descriptor))
		}
	}
	return out
}

func sortedKeys(m map[MemberKey]rules.Modifier) []MemberKey {
	keys := make([]MemberKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name == keys[j].Name {
			return keys[i].Descriptor < keys[j].Descriptor
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}
