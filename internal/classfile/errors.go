package classfile

import "fmt"

// StructuralError reports class bytes that cannot be parsed or rewritten.
type StructuralError struct {
	Offset int // byte offset into the class file, -1 when not positional
	Msg    string
}

func (e *StructuralError) Error() string {
	if e.Offset < 0 {
		return "class file: " + e.Msg
	}
	return fmt.Sprintf("class file: offset %d: %s", e.Offset, e.Msg)
}

func structural(off int, format string, args ...any) error {
	return &StructuralError{Offset: off, Msg: fmt.Sprintf(format, args...)}
}
