package classfile

// New returns a minimal class with an empty body: the given name, access
// flags and super class (empty for none), class file version 52.0 (Java 8).
// Members and interfaces can be added with AddField, AddMethod and
// AddInterface before calling Bytes.
func New(name, super string, access uint16) (*Class, error) {
	c := &Class{Major: 52, Pool: &Pool{entries: make([]constant, 1, 16)}, Access: access}
	var err error
	if c.This, err = c.Pool.AddClass(name); err != nil {
		return nil, err
	}
	if super != "" {
		if c.Super, err = c.Pool.AddClass(super); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddInterface appends an interface to the declared list without sorting.
func (c *Class) AddInterface(name string) error {
	idx, err := c.Pool.AddClass(name)
	if err != nil {
		return err
	}
	c.Interfaces = append(c.Interfaces, idx)
	return nil
}

// AddField appends a field without attributes.
func (c *Class) AddField(access uint16, name, desc string) error {
	m, err := c.member(access, name, desc)
	if err != nil {
		return err
	}
	c.Fields = append(c.Fields, m)
	return nil
}

// AddMethod appends a method. attrs are raw attribute bodies keyed by
// attribute name (e.g. "Code"), written in the order given.
func (c *Class) AddMethod(access uint16, name, desc string, attrs ...NamedAttribute) error {
	m, err := c.member(access, name, desc)
	if err != nil {
		return err
	}
	for _, a := range attrs {
		idx, err := c.Pool.AddUtf8(a.Name)
		if err != nil {
			return err
		}
		m.Attributes = append(m.Attributes, Attribute{Name: idx, Info: a.Info})
	}
	c.Methods = append(c.Methods, m)
	return nil
}

// AddAttribute appends a class-level attribute.
func (c *Class) AddAttribute(a NamedAttribute) error {
	idx, err := c.Pool.AddUtf8(a.Name)
	if err != nil {
		return err
	}
	c.Attributes = append(c.Attributes, Attribute{Name: idx, Info: a.Info})
	return nil
}

// NamedAttribute is an attribute body paired with its name.
type NamedAttribute struct {
	Name string
	Info []byte
}

func (c *Class) member(access uint16, name, desc string) (Member, error) {
	n, err := c.Pool.AddUtf8(name)
	if err != nil {
		return Member{}, err
	}
	d, err := c.Pool.AddUtf8(desc)
	if err != nil {
		return Member{}, err
	}
	return Member{Access: access, Name: n, Descriptor: d}, nil
}
