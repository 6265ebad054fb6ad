package wazerovm

import "fmt"

// opKey identifies an instruction: the opcode byte for single-byte
// opcodes, or prefix<<24|subopcode for prefixed ones.
type opKey uint32

func plainOp(b byte) opKey { return opKey(b) }

func prefixedOp(prefix byte, sub uint32) opKey {
	return opKey(prefix)<<24 | opKey(sub)
}

func (k opKey) prefix() byte { return byte(k >> 24) }

const (
	opUnreachable        = 0x00
	opNop                = 0x01
	opBlock              = 0x02
	opLoop               = 0x03
	opIf                 = 0x04
	opElse               = 0x05
	opEnd                = 0x0B
	opBr                 = 0x0C
	opBrIf               = 0x0D
	opBrTable            = 0x0E
	opReturn             = 0x0F
	opCall               = 0x10
	opCallIndirect       = 0x11
	opReturnCall         = 0x12
	opReturnCallIndirect = 0x13
	opCallRef            = 0x14
	opReturnCallRef      = 0x15
	opTryTable           = 0x1F
	opRefFunc            = 0xD2
)

// instrInfo is one decoded instruction: its byte span plus the location
// of a function-index immediate when the opcode carries one.
type instrInfo struct {
	op         opKey
	start      int
	end        int
	funcIdxOff int // -1 when the instruction has no function index
	funcIdx    uint32
}

// decodeInstr reads one instruction from r, which must be positioned at
// an opcode byte. Unknown opcodes are a deterministic error.
func decodeInstr(r *reader) (instrInfo, error) {
	info := instrInfo{start: r.pos, funcIdxOff: -1}
	b, err := r.readByte()
	if err != nil {
		return info, err
	}
	switch {
	case b == 0xFC || b == 0xFD || b == 0xFE || b == 0xFB:
		sub, err := r.readU32()
		if err != nil {
			return info, err
		}
		info.op = prefixedOp(b, sub)
		if err := skipPrefixedImmediates(r, b, sub); err != nil {
			return info, err
		}
	default:
		info.op = plainOp(b)
		if err := skipPlainImmediates(r, b, &info); err != nil {
			return info, err
		}
	}
	info.end = r.pos
	return info, nil
}

func skipPlainImmediates(r *reader, b byte, info *instrInfo) error {
	switch b {
	case opUnreachable, opNop, opElse, opEnd, opReturn,
		0x1A, 0x1B, // drop, select
		0xD1, 0xD3, 0xD4: // ref.is_null, ref.eq, ref.as_non_null
		return nil
	case opBlock, opLoop, opIf:
		return r.skipS(5) // blocktype
	case opBr, opBrIf, 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26,
		0x07, 0x08, 0x09, 0x18, // catch, throw, rethrow, delegate
		0xD5, 0xD6, // br_on_null, br_on_non_null
		opCallRef, opReturnCallRef,
		0x3F, 0x40: // memory.size, memory.grow
		_, err := r.readU32()
		return err
	case 0x06: // try
		return r.skipS(5)
	case 0x19: // catch_all
		return nil
	case opTryTable:
		if err := r.skipS(5); err != nil {
			return err
		}
		n, err := r.readU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			kind, err := r.readByte()
			if err != nil {
				return err
			}
			if kind <= 0x01 {
				if _, err := r.readU32(); err != nil {
					return err
				}
			}
			if _, err := r.readU32(); err != nil {
				return err
			}
		}
		return nil
	case opBrTable:
		n, err := r.readU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ {
			if _, err := r.readU32(); err != nil {
				return err
			}
		}
		return nil
	case opCall, opReturnCall, opRefFunc:
		info.funcIdxOff = r.pos
		idx, err := r.readU32()
		if err != nil {
			return err
		}
		info.funcIdx = idx
		return nil
	case opCallIndirect, opReturnCallIndirect:
		if _, err := r.readU32(); err != nil {
			return err
		}
		_, err := r.readU32()
		return err
	case 0x1C: // select with value types
		n, err := r.readU32()
		if err != nil {
			return err
		}
		_, err = r.readBytes(int(n))
		return err
	case 0x41: // i32.const
		return r.skipS(5)
	case 0x42: // i64.const
		return r.skipS(10)
	case 0x43: // f32.const
		_, err := r.readBytes(4)
		return err
	case 0x44: // f64.const
		_, err := r.readBytes(8)
		return err
	case 0xD0: // ref.null heaptype
		return r.skipS(5)
	}
	if b >= 0x28 && b <= 0x3E { // memarg loads and stores
		if _, err := r.readU32(); err != nil {
			return err
		}
		_, err := r.readU32()
		return err
	}
	if b >= 0x45 && b <= 0xC4 { // numeric ops and sign extension
		return nil
	}
	return fmt.Errorf("unknown opcode 0x%02x", b)
}

func skipPrefixedImmediates(r *reader, prefix byte, sub uint32) error {
	switch prefix {
	case 0xFC:
		switch sub {
		case 0, 1, 2, 3, 4, 5, 6, 7: // saturating truncations
			return nil
		case 8, 10, 12, 14: // memory.init, memory.copy, table.init, table.copy
			if _, err := r.readU32(); err != nil {
				return err
			}
			_, err := r.readU32()
			return err
		case 9, 11, 13, 15, 16, 17: // data.drop, memory.fill, elem.drop, table.grow/size/fill
			_, err := r.readU32()
			return err
		default:
			return fmt.Errorf("unknown 0xFC opcode %d", sub)
		}
	case 0xFD:
		switch {
		case sub <= 0x0B: // v128 loads and store
			if _, err := r.readU32(); err != nil {
				return err
			}
			_, err := r.readU32()
			return err
		case sub == 0x0C || sub == 0x0D: // v128.const, i8x16.shuffle
			_, err := r.readBytes(16)
			return err
		case sub >= 0x15 && sub <= 0x22: // extract/replace lane
			_, err := r.readByte()
			return err
		case sub >= 0x54 && sub <= 0x5B: // load/store lane
			if _, err := r.readU32(); err != nil {
				return err
			}
			if _, err := r.readU32(); err != nil {
				return err
			}
			_, err := r.readByte()
			return err
		case sub == 0x5C || sub == 0x5D: // load zero
			if _, err := r.readU32(); err != nil {
				return err
			}
			_, err := r.readU32()
			return err
		default:
			return nil
		}
	case 0xFE:
		if sub == 0x03 { // atomic.fence
			_, err := r.readByte()
			return err
		}
		if _, err := r.readU32(); err != nil {
			return err
		}
		_, err := r.readU32()
		return err
	case 0xFB:
		// GC instruction immediates are not decoded; the proposal gate
		// rejects these before the immediates would be needed.
		return fmt.Errorf("gc instruction encoding is not supported")
	}
	return fmt.Errorf("unknown prefix 0x%02x", prefix)
}

// decodeExpr decodes instructions until the End that closes the expression.
func decodeExpr(r *reader) ([]instrInfo, error) {
	var out []instrInfo
	depth := 0
	for {
		info, err := decodeInstr(r)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
		switch info.op {
		case opBlock, opLoop, opIf, 0x06, opTryTable:
			depth++
		case opEnd:
			if depth == 0 {
				return out, nil
			}
			depth--
		}
	}
}
