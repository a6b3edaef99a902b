package classfile

// Constant-pool tags (JVMS §4.4).
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// maxPoolCount is the largest constant_pool_count a class file can carry.
const maxPoolCount = 0xFFFF

// constant is one pool slot. data is the payload after the tag byte, kept
// verbatim. The unusable slot following a long or double has tag 0.
type constant struct {
	tag  byte
	data []byte
}

// Pool is a class file's constant pool. Slot 0 is never used.
type Pool struct {
	entries []constant
}

// payloadSize returns the fixed payload length of tag, or -1 for Utf8
// (length-prefixed) and 0 for unknown tags.
func payloadSize(tag byte) int {
	switch tag {
	case tagUtf8:
		return -1
	case tagClass, tagString, tagMethodType, tagModule, tagPackage:
		return 2
	case tagMethodHandle:
		return 3
	case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
		tagNameAndType, tagDynamic, tagInvokeDynamic:
		return 4
	case tagLong, tagDouble:
		return 8
	}
	return 0
}

// Len is constant_pool_count: the number of slots including slot 0.
func (p *Pool) Len() int { return len(p.entries) }

func (p *Pool) get(i uint16, tag byte) (constant, error) {
	if i == 0 || int(i) >= len(p.entries) {
		return constant{}, structural(-1, "constant pool index %d out of range [1,%d)", i, len(p.entries))
	}
	c := p.entries[i]
	if c.tag != tag {
		return constant{}, structural(-1, "constant pool entry %d has tag %d, expected %d", i, c.tag, tag)
	}
	return c, nil
}

// Utf8 returns the string stored at index i.
func (p *Pool) Utf8(i uint16) (string, error) {
	c, err := p.get(i, tagUtf8)
	if err != nil {
		return "", err
	}
	s, err := decodeMUTF8(c.data[2:])
	if err != nil {
		return "", structural(-1, "constant pool entry %d: %v", i, err)
	}
	return s, nil
}

// ClassName returns the internal name referenced by the Class entry at i.
func (p *Pool) ClassName(i uint16) (string, error) {
	c, err := p.get(i, tagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(be16(c.data))
}

// AddUtf8 returns the index of a Utf8 entry holding s, appending one when
// none exists.
func (p *Pool) AddUtf8(s string) (uint16, error) {
	enc := encodeMUTF8(s)
	if len(enc) > 0xFFFF {
		return 0, structural(-1, "string of %d bytes does not fit a constant pool entry", len(enc))
	}
	for i, c := range p.entries {
		if c.tag == tagUtf8 && string(c.data[2:]) == string(enc) {
			return uint16(i), nil
		}
	}
	data := make([]byte, 2+len(enc))
	put16(data, uint16(len(enc)))
	copy(data[2:], enc)
	return p.add(constant{tag: tagUtf8, data: data})
}

// AddClass returns the index of a Class entry naming the internal name,
// appending entries when needed.
func (p *Pool) AddClass(name string) (uint16, error) {
	nameIdx, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	for i, c := range p.entries {
		if c.tag == tagClass && be16(c.data) == nameIdx {
			return uint16(i), nil
		}
	}
	data := make([]byte, 2)
	put16(data, nameIdx)
	return p.add(constant{tag: tagClass, data: data})
}

func (p *Pool) add(c constant) (uint16, error) {
	if len(p.entries)+1 > maxPoolCount {
		return 0, structural(-1, "constant pool is full (%d entries)", len(p.entries))
	}
	idx := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	return idx, nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

func put16(b []byte, v uint16) { b[0], b[1] = byte(v>>8), byte(v) }
