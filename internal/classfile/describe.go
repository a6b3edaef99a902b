package classfile

import (
	"fmt"
	"strings"
)

// Describe renders a stable, line-oriented summary of the parts of a class
// that access widening can change: class flags, interfaces, nested class
// records and member flags. Two summaries diff cleanly line by line.
func Describe(data []byte) (string, error) {
	c, err := Parse(data)
	if err != nil {
		return "", err
	}
	return c.Describe()
}

// Describe renders the summary of an already parsed class.
func (c *Class) Describe() (string, error) {
	name, err := c.Name()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "class %s\n", name)
	fmt.Fprintf(&b, "  version %d.%d\n", c.Major, c.Minor)
	fmt.Fprintf(&b, "  flags %s\n", flagString(c.Access, classFlagNames))
	if c.Super != 0 {
		super, err := c.Pool.ClassName(c.Super)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "  extends %s\n", super)
	}
	ifaces, err := c.InterfaceNames()
	if err != nil {
		return "", err
	}
	for _, i := range ifaces {
		fmt.Fprintf(&b, "  implements %s\n", i)
	}
	if attr := c.attribute(c.Attributes, "InnerClasses"); attr != nil && len(attr.Info) >= 2 {
		n := int(be16(attr.Info))
		for i := 0; i < n && 2+8*i+8 <= len(attr.Info); i++ {
			rec := attr.Info[2+8*i:]
			inner, err := c.Pool.ClassName(be16(rec))
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "  inner %s : %s\n", inner, flagString(be16(rec[6:]), classFlagNames))
		}
	}
	for i := range c.Fields {
		n, d, err := c.memberKey(&c.Fields[i])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "  field %s %s : %s\n", n, d, flagString(c.Fields[i].Access, fieldFlagNames))
	}
	for i := range c.Methods {
		n, d, err := c.memberKey(&c.Methods[i])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "  method %s %s : %s\n", n, d, flagString(c.Methods[i].Access, methodFlagNames))
	}
	return b.String(), nil
}
