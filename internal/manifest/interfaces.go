package manifest

import (
	"sort"

	"class-widener/internal/sortutil"
)

// InterfaceMap maps an internal target class name to the sorted, distinct
// internal names of the interfaces injected into it.
type InterfaceMap map[string][]string

// BuildInterfaceMap merges the injections of every manifest. Names are
// converted to internal form. The result does not depend on manifest order.
func BuildInterfaceMap(ms []Loaded) InterfaceMap {
	acc := make(map[string][]string)
	for _, l := range ms {
		for target, ifaces := range l.Manifest.InjectedInterfaces {
			key := InternalName(target)
			for _, i := range ifaces {
				acc[key] = append(acc[key], InternalName(i))
			}
		}
	}
	out := make(InterfaceMap, len(acc))
	for k, v := range acc {
		if u := sortutil.SortedUnique(v); len(u) > 0 {
			out[k] = u
		}
	}
	return out
}

// Targets returns the target class names in sorted order.
func (m InterfaceMap) Targets() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
