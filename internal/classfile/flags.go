// Package classfile reads, edits and writes compiled JVM class files.
//
// Only the structure around the constant pool is modelled: access flags,
// this/super class, the interface list, fields, methods and attributes.
// Attribute bodies (Code, StackMapTable, ...) are carried as opaque bytes and
// written back verbatim. Edits never remove or renumber constant-pool
// entries; new entries are appended, so every index stored inside an
// attribute body stays valid.
package classfile

import "strings"

// Access flag bits (JVMS §4.1, §4.5, §4.6).
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSuper        uint16 = 0x0020 // class
	AccSynchronized uint16 = 0x0020 // method
	AccVolatile     uint16 = 0x0040 // field
	AccBridge       uint16 = 0x0040 // method
	AccTransient    uint16 = 0x0080 // field
	AccVarargs      uint16 = 0x0080 // method
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
	AccModule       uint16 = 0x8000
)

const visibilityMask = AccPublic | AccPrivate | AccProtected

type flagName struct {
	bit  uint16
	name string
}

var (
	classFlagNames = []flagName{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"}, {AccSuper, "super"},
		{AccInterface, "interface"}, {AccAbstract, "abstract"}, {AccSynthetic, "synthetic"},
		{AccAnnotation, "annotation"}, {AccEnum, "enum"}, {AccModule, "module"},
	}
	fieldFlagNames = []flagName{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"}, {AccVolatile, "volatile"},
		{AccTransient, "transient"}, {AccSynthetic, "synthetic"}, {AccEnum, "enum"},
	}
	methodFlagNames = []flagName{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"}, {AccSynchronized, "synchronized"},
		{AccBridge, "bridge"}, {AccVarargs, "varargs"}, {AccNative, "native"},
		{AccAbstract, "abstract"}, {AccStrict, "strict"}, {AccSynthetic, "synthetic"},
	}
)

func flagString(access uint16, names []flagName) string {
	var parts []string
	for _, f := range names {
		if access&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "package"
	}
	return strings.Join(parts, " ")
}

// makePublic drops private/protected and sets public.
func makePublic(access uint16) uint16 {
	return access&^visibilityMask | AccPublic
}

// makeProtected promotes private or package access to protected. Public
// access is kept as is.
func makeProtected(access uint16) uint16 {
	if access&AccPublic != 0 {
		return access
	}
	return access&^AccPrivate | AccProtected
}

func removeFinal(access uint16) uint16 {
	return access &^ AccFinal
}
