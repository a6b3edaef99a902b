package classfile

import (
	"encoding/binary"
	"sort"

	"class-widener/internal/resolve"
	"class-widener/internal/rules"
)

// Mutate applies the resolved rules of the class in data, looked up by its
// own name in set, and appends the given interfaces, returning the rewritten
// class bytes. set may be nil and ifaces may be empty. The interface list of
// the result is always the sorted, de-duplicated union of the declared and
// requested interfaces. Every InnerClasses record naming a class with a
// class modifier in set is widened the same way as that class.
//
// Mutate does not modify data and keeps no state between calls.
func Mutate(data []byte, ifaces []string, set resolve.Set) ([]byte, error) {
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := c.apply(ifaces, set); err != nil {
		return nil, err
	}
	return c.Bytes()
}

func (c *Class) apply(ifaces []string, set resolve.Set) error {
	name, err := c.Name()
	if err != nil {
		return err
	}
	cr := set[name]
	if cr != nil && cr.Access != rules.None {
		c.Access = classAccess(c.Access, cr.Access)
	}
	if err := c.widenInnerClasses(set); err != nil {
		return err
	}
	if err := c.mergeInterfaces(ifaces); err != nil {
		return err
	}
	if cr == nil {
		return nil
	}

	isInterface := c.Access&AccInterface != 0
	if len(cr.Fields) > 0 {
		for i := range c.Fields {
			f := &c.Fields[i]
			name, desc, err := c.memberKey(f)
			if err != nil {
				return err
			}
			f.Access = fieldAccess(f.Access, cr.Field(name, desc), isInterface)
		}
	}
	if len(cr.Methods) > 0 {
		for i := range c.Methods {
			m := &c.Methods[i]
			name, desc, err := c.memberKey(m)
			if err != nil {
				return err
			}
			m.Access = methodAccess(m.Access, cr.Method(name, desc), isInterface)
		}
	}
	return nil
}

func (c *Class) memberKey(m *Member) (string, string, error) {
	name, err := c.Pool.Utf8(m.Name)
	if err != nil {
		return "", "", err
	}
	desc, err := c.Pool.Utf8(m.Descriptor)
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}

func classAccess(access uint16, mod rules.Modifier) uint16 {
	switch mod {
	case rules.Accessible:
		return makePublic(access)
	case rules.Extendable:
		return removeFinal(makePublic(access))
	}
	return access
}

func fieldAccess(access uint16, mod rules.Modifier, inInterface bool) uint16 {
	switch mod {
	case rules.Accessible:
		return makePublic(access)
	case rules.Mutable:
		// Interface fields must stay final.
		if inInterface {
			return makePublic(access)
		}
		return removeFinal(makePublic(access))
	}
	return access
}

func methodAccess(access uint16, mod rules.Modifier, inInterface bool) uint16 {
	switch mod {
	case rules.Accessible:
		return makePublic(access)
	case rules.Extendable:
		access = removeFinal(access)
		// protected is not legal on interface methods, and protected static
		// gains nothing over public.
		if inInterface || access&AccStatic != 0 {
			return makePublic(access)
		}
		return makeProtected(access)
	}
	return access
}

// mergeInterfaces rewrites the interface list as the sorted union of the
// declared interfaces and extra.
func (c *Class) mergeInterfaces(extra []string) error {
	names, err := c.InterfaceNames()
	if err != nil {
		return err
	}
	index := make(map[string]uint16, len(names)+len(extra))
	for i, n := range names {
		if _, dup := index[n]; !dup {
			index[n] = c.Interfaces[i]
		}
	}
	for _, n := range extra {
		if _, ok := index[n]; ok {
			continue
		}
		idx, err := c.Pool.AddClass(n)
		if err != nil {
			return err
		}
		index[n] = idx
	}

	sorted := make([]string, 0, len(index))
	for n := range index {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	c.Interfaces = c.Interfaces[:0:0]
	for _, n := range sorted {
		c.Interfaces = append(c.Interfaces, index[n])
	}
	return nil
}

// widenInnerClasses applies the class modifier of every class named by an
// InnerClasses record, this class's own record included. The JVM and
// compilers consult those records for nested classes, so they must agree
// with the nested class's own access flags.
func (c *Class) widenInnerClasses(set resolve.Set) error {
	if len(set) == 0 {
		return nil
	}
	attr := c.attribute(c.Attributes, "InnerClasses")
	if attr == nil {
		return nil
	}
	info := attr.Info
	if len(info) < 2 {
		return structural(-1, "InnerClasses attribute too short")
	}
	n := int(binary.BigEndian.Uint16(info))
	if len(info) != 2+8*n {
		return structural(-1, "InnerClasses attribute length %d does not match %d entries", len(info), n)
	}

	var out []byte
	for i := 0; i < n; i++ {
		inner := binary.BigEndian.Uint16(info[2+8*i:])
		name, err := c.Pool.ClassName(inner)
		if err != nil {
			return structural(-1, "InnerClasses entry %d: %v", i, err)
		}
		cr := set[name]
		if cr == nil || cr.Access == rules.None {
			continue
		}
		if out == nil {
			// Attribute bodies alias the input bytes; copy before writing.
			out = append([]byte(nil), info...)
		}
		off := 2 + 8*i + 6
		access := binary.BigEndian.Uint16(out[off:])
		binary.BigEndian.PutUint16(out[off:], classAccess(access, cr.Access))
	}
	if out != nil {
		attr.Info = out
	}
	return nil
}
