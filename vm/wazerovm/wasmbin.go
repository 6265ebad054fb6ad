// Package wazerovm runs contract wasm on the wazero runtime. Modules pass
// a static gatekeeper check, get rewritten with fuel accounting and memory
// normalization, and are then compiled and instantiated.
package wazerovm

import (
	"encoding/binary"
	"fmt"
)

const (
	secCustom    = 0
	secType      = 1
	secImport    = 2
	secFunction  = 3
	secTable     = 4
	secMemory    = 5
	secGlobal    = 6
	secExport    = 7
	secStart     = 8
	secElement   = 9
	secCode      = 10
	secData      = 11
	secDataCount = 12
)

const (
	importKindFunc   = 0x00
	importKindTable  = 0x01
	importKindMemory = 0x02
	importKindGlobal = 0x03
)

// Export kinds share the import numbering.
const (
	exportKindFunc   = 0x00
	exportKindTable  = 0x01
	exportKindMemory = 0x02
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

type rawSection struct {
	id   byte
	body []byte
}

type rawModule struct {
	sections []rawSection
}

func parseRawModule(wasm []byte) (*rawModule, error) {
	if len(wasm) < len(wasmMagic) {
		return nil, fmt.Errorf("module too short")
	}
	for i, b := range wasmMagic {
		if wasm[i] != b {
			return nil, fmt.Errorf("bad magic or version")
		}
	}
	m := &rawModule{}
	r := newReader(wasm[len(wasmMagic):])
	for r.remaining() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if id > secDataCount {
			return nil, fmt.Errorf("unknown section id %d", id)
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		body, err := r.readBytes(int(size))
		if err != nil {
			return nil, err
		}
		m.sections = append(m.sections, rawSection{id: id, body: body})
	}
	return m, nil
}

func (m *rawModule) section(id byte) []byte {
	for _, s := range m.sections {
		if s.id == id {
			return s.body
		}
	}
	return nil
}

func (m *rawModule) replaceSection(id byte, body []byte) {
	for i, s := range m.sections {
		if s.id == id {
			m.sections[i].body = body
			return
		}
	}
	// Insert in section-id order; custom sections are not targets here.
	idx := len(m.sections)
	for i, s := range m.sections {
		if s.id != secCustom && s.id > id {
			idx = i
			break
		}
	}
	m.sections = append(m.sections, rawSection{})
	copy(m.sections[idx+1:], m.sections[idx:])
	m.sections[idx] = rawSection{id: id, body: body}
}

// encode serializes the module, dropping custom sections whose contents
// would be stale after rewriting.
func (m *rawModule) encode() []byte {
	out := append([]byte(nil), wasmMagic...)
	for _, s := range m.sections {
		if s.id == secCustom {
			continue
		}
		out = append(out, s.id)
		out = appendU32(out, uint32(len(s.body)))
		out = append(out, s.body...)
	}
	return out
}

type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("unexpected end of section")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("unexpected end of section")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readU32() (uint32, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 || v > 0xFFFFFFFF {
		return 0, fmt.Errorf("bad u32 leb128")
	}
	r.pos += n
	return uint32(v), nil
}

func (r *reader) readU64() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("bad u64 leb128")
	}
	r.pos += n
	return v, nil
}

// skipS reads past a signed LEB128 of at most max bytes.
func (r *reader) skipS(max int) error {
	for i := 0; i < max; i++ {
		b, err := r.readByte()
		if err != nil {
			return err
		}
		if b&0x80 == 0 {
			return nil
		}
	}
	return fmt.Errorf("bad signed leb128")
}

func (r *reader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func appendU32(out []byte, v uint32) []byte {
	return binary.AppendUvarint(out, uint64(v))
}

// appendS64 writes a signed LEB128, the encoding used by const operands.
func appendS64(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func appendName(out []byte, name string) []byte {
	out = appendU32(out, uint32(len(name)))
	return append(out, name...)
}
