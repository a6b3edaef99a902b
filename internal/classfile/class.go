package classfile

import "encoding/binary"

const magic = 0xCAFEBABE

// Attribute is an attribute_info with its body kept verbatim.
type Attribute struct {
	Name uint16
	Info []byte
}

// Member is a field_info or method_info.
type Member struct {
	Access     uint16
	Name       uint16
	Descriptor uint16
	Attributes []Attribute
}

// Class is a parsed class file.
type Class struct {
	Minor, Major uint16
	Pool         *Pool
	Access       uint16
	This, Super  uint16
	Interfaces   []uint16
	Fields       []Member
	Methods      []Member
	Attributes   []Attribute
}

// reader is a bounds-checked big-endian cursor. The first failure is kept
// in err and every later read returns zero values.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || len(r.b)-r.off < n {
		r.err = structural(r.off, "truncated %s: need %d bytes, have %d", what, n, len(r.b)-r.off)
		return false
	}
	return true
}

func (r *reader) u1(what string) byte {
	if !r.need(1, what) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u2(what string) uint16 {
	if !r.need(2, what) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4(what string) uint32 {
	if !r.need(4, what) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int, what string) []byte {
	if !r.need(n, what) {
		return nil
	}
	v := r.b[r.off : r.off+n : r.off+n]
	r.off += n
	return v
}

// Parse decodes class bytes. Constant payloads and attribute bodies alias
// data, so data must not be modified while the Class is in use.
func Parse(data []byte) (*Class, error) {
	r := &reader{b: data}
	if m := r.u4("magic"); r.err == nil && m != magic {
		return nil, structural(0, "bad magic 0x%08X", m)
	}
	c := &Class{}
	c.Minor = r.u2("minor_version")
	c.Major = r.u2("major_version")

	pool, err := parsePool(r)
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	c.Access = r.u2("access_flags")
	c.This = r.u2("this_class")
	c.Super = r.u2("super_class")
	n := int(r.u2("interfaces_count"))
	if r.need(2*n, "interfaces") {
		c.Interfaces = make([]uint16, n)
		for i := range c.Interfaces {
			c.Interfaces[i] = r.u2("interface")
		}
	}
	c.Fields = parseMembers(r, "field")
	c.Methods = parseMembers(r, "method")
	c.Attributes = parseAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, structural(r.off, "%d trailing bytes after class structure", len(data)-r.off)
	}
	if _, err := c.Pool.ClassName(c.This); err != nil {
		return nil, err
	}
	return c, nil
}

func parsePool(r *reader) (*Pool, error) {
	count := int(r.u2("constant_pool_count"))
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		return nil, structural(r.off-2, "constant_pool_count is 0")
	}
	p := &Pool{entries: make([]constant, 1, count)}
	for len(p.entries) < count {
		start := r.off
		tag := r.u1("constant tag")
		size := payloadSize(tag)
		switch {
		case r.err != nil:
			return nil, r.err
		case size == 0:
			return nil, structural(start, "unknown constant pool tag %d at index %d", tag, len(p.entries))
		case size < 0:
			l := r.u2("utf8 length")
			if r.err != nil {
				return nil, r.err
			}
			r.off -= 2
			size = 2 + int(l)
		}
		data := r.bytes(size, "constant")
		if r.err != nil {
			return nil, r.err
		}
		p.entries = append(p.entries, constant{tag: tag, data: data})
		if tag == tagLong || tag == tagDouble {
			if len(p.entries) >= count {
				return nil, structural(start, "8-byte constant at last pool index %d", len(p.entries)-1)
			}
			p.entries = append(p.entries, constant{})
		}
	}
	return p, nil
}

func parseMembers(r *reader, what string) []Member {
	n := int(r.u2(what + "s_count"))
	if r.err != nil {
		return nil
	}
	out := make([]Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := Member{
			Access:     r.u2(what + " access_flags"),
			Name:       r.u2(what + " name_index"),
			Descriptor: r.u2(what + " descriptor_index"),
		}
		m.Attributes = parseAttributes(r)
		out = append(out, m)
	}
	return out
}

func parseAttributes(r *reader) []Attribute {
	n := int(r.u2("attributes_count"))
	if r.err != nil {
		return nil
	}
	out := make([]Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		name := r.u2("attribute_name_index")
		l := r.u4("attribute_length")
		out = append(out, Attribute{Name: name, Info: r.bytes(int(l), "attribute")})
	}
	return out
}

// Bytes encodes the class.
func (c *Class) Bytes() ([]byte, error) {
	if c.Pool.Len() > maxPoolCount {
		return nil, structural(-1, "constant pool has %d entries", c.Pool.Len())
	}
	if len(c.Interfaces) > 0xFFFF || len(c.Fields) > 0xFFFF || len(c.Methods) > 0xFFFF {
		return nil, structural(-1, "too many interfaces, fields or methods")
	}
	b := make([]byte, 0, 1024)
	b = binary.BigEndian.AppendUint32(b, magic)
	b = binary.BigEndian.AppendUint16(b, c.Minor)
	b = binary.BigEndian.AppendUint16(b, c.Major)
	b = binary.BigEndian.AppendUint16(b, uint16(c.Pool.Len()))
	for _, e := range c.Pool.entries[1:] {
		if e.tag == 0 {
			continue
		}
		b = append(b, e.tag)
		b = append(b, e.data...)
	}
	b = binary.BigEndian.AppendUint16(b, c.Access)
	b = binary.BigEndian.AppendUint16(b, c.This)
	b = binary.BigEndian.AppendUint16(b, c.Super)
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		b = binary.BigEndian.AppendUint16(b, i)
	}
	for _, ms := range [][]Member{c.Fields, c.Methods} {
		b = binary.BigEndian.AppendUint16(b, uint16(len(ms)))
		for _, m := range ms {
			b = binary.BigEndian.AppendUint16(b, m.Access)
			b = binary.BigEndian.AppendUint16(b, m.Name)
			b = binary.BigEndian.AppendUint16(b, m.Descriptor)
			b = appendAttributes(b, m.Attributes)
		}
	}
	return appendAttributes(b, c.Attributes), nil
}

func appendAttributes(b []byte, attrs []Attribute) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(attrs)))
	for _, a := range attrs {
		b = binary.BigEndian.AppendUint16(b, a.Name)
		b = binary.BigEndian.AppendUint32(b, uint32(len(a.Info)))
		b = append(b, a.Info...)
	}
	return b
}

// Name returns the internal name of the class.
func (c *Class) Name() (string, error) { return c.Pool.ClassName(c.This) }

// InterfaceNames returns the internal names of the declared interfaces in
// declaration order.
func (c *Class) InterfaceNames() ([]string, error) {
	out := make([]string, 0, len(c.Interfaces))
	for _, i := range c.Interfaces {
		n, err := c.Pool.ClassName(i)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// attribute returns the first attribute named name, or nil.
func (c *Class) attribute(attrs []Attribute, name string) *Attribute {
	for i := range attrs {
		if n, err := c.Pool.Utf8(attrs[i].Name); err == nil && n == name {
			return &attrs[i]
		}
	}
	return nil
}
