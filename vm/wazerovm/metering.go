package wazerovm

import (
	"fmt"
)

// Calibrated against native benchmarks for roughly 1000 token units of
// computation within a 16s ceiling.
const meterMultiplier = 16

// Fixed correction for the non-linear overhead the injected charges add
// to real world compute heavy code.
const meterScalingFactor = 2

const (
	hostModuleName          = "env"
	gasFunctionName         = "gas_charge"
	allocExportName         = "__casper_alloc"
	memoryExportName        = "memory"
	indirectTableExportName = "__indirect_function_table"

	// Smallest memory granted to modules that import theirs.
	minMemoryPages = 17
)

// opCycles maps each opcode to its benchmarked cycle count. Opcodes from
// proposals the gatekeeper never admits carry no entry.
var opCycles = map[opKey]uint64{
	opUnreachable: 1,
	opNop:         1,
	opBlock:       1,
	opLoop:        1,
	opIf:          1,
	opElse:        1,
	opEnd:         1,
	0x0C:          12, // br
	0x0D:          14, // br_if
	opBrTable:     34,
	opReturn:      1,
	opCall:        17,
	opCallIndirect: 23,
	opReturnCall:         1,
	opReturnCallIndirect: 1,
	0x1A: 1,  // drop
	0x1B: 14, // select
	0x20: 1,  // local.get
	0x21: 1,  // local.set
	0x22: 1,  // local.tee
	0x23: 5,  // global.get
	0x24: 1,  // global.set
	0x25: 29, // table.get

	0x28: 2, 0x29: 2, 0x2A: 2, 0x2B: 2, // i32/i64/f32/f64.load
	0x2C: 2, 0x2D: 2, 0x2E: 2, 0x2F: 2, // i32 partial loads
	0x30: 2, 0x31: 2, 0x32: 2, 0x33: 2, 0x34: 2, 0x35: 2, // i64 partial loads
	0x36: 1, 0x37: 1, 0x38: 1, 0x39: 1, // stores
	0x3A: 1, 0x3B: 1, 0x3C: 1, 0x3D: 1, 0x3E: 1, // partial stores
	0x3F: 31, // memory.size
	0x40: 67, // memory.grow

	0x41: 1, 0x42: 1, 0x43: 1, 0x44: 1, // consts

	0x45: 1, // i32.eqz
	0x46: 1, 0x47: 1, 0x48: 1, 0x49: 2, 0x4A: 1, 0x4B: 2,
	0x4C: 2, 0x4D: 1, 0x4E: 1, 0x4F: 1, // i32 comparisons
	0x50: 2, // i64.eqz
	0x51: 1, 0x52: 2, 0x53: 1, 0x54: 1, 0x55: 1, 0x56: 2,
	0x57: 1, 0x58: 1, 0x59: 2, 0x5A: 1, // i64 comparisons
	0x5B: 2, 0x5C: 2, 0x5D: 2, 0x5E: 2, 0x5F: 2, 0x60: 2, // f32 comparisons
	0x61: 2, 0x62: 2, 0x63: 2, 0x64: 2, 0x65: 2, 0x66: 2, // f64 comparisons

	0x67: 1, 0x68: 1, 0x69: 1, // i32 clz/ctz/popcnt
	0x6A: 1, 0x6B: 1, 0x6C: 1, // i32 add/sub/mul
	0x6D: 18, 0x6E: 18, 0x6F: 19, 0x70: 19, // i32 div/rem
	0x71: 1, 0x72: 1, 0x73: 1, 0x74: 1, 0x75: 1, 0x76: 1, 0x77: 1, 0x78: 1,
	0x79: 1, 0x7A: 1, 0x7B: 1, // i64 clz/ctz/popcnt
	0x7C: 1, 0x7D: 1, 0x7E: 1, // i64 add/sub/mul
	0x7F: 19, 0x80: 18, 0x81: 18, 0x82: 18, // i64 div/rem
	0x83: 1, 0x84: 1, 0x85: 1, 0x86: 1, 0x87: 1, 0x88: 1, 0x89: 1, 0x8A: 1,

	0x8B: 1, 0x8C: 1, // f32 abs/neg
	0x8D: 4, 0x8E: 4, 0x8F: 3, 0x90: 3, 0x91: 4, // f32 ceil..sqrt
	0x92: 3, 0x93: 4, 0x94: 3, 0x95: 5, // f32 add/sub/mul/div
	0x96: 24, 0x97: 21, 0x98: 2, // f32 min/max/copysign
	0x99: 2, 0x9A: 1, // f64 abs/neg
	0x9B: 4, 0x9C: 4, 0x9D: 4, 0x9E: 4, 0x9F: 8, // f64 ceil..sqrt
	0xA0: 4, 0xA1: 4, 0xA2: 4, 0xA3: 4, // f64 add/sub/mul/div
	0xA4: 24, 0xA5: 23, 0xA6: 4, // f64 min/max/copysign

	0xA7: 1, // i32.wrap_i64
	0xA8: 19, 0xA9: 17, 0xAA: 19, 0xAB: 18, // i32 truncations
	0xAC: 1, 0xAD: 1, // i64.extend_i32
	0xAE: 19, 0xAF: 21, 0xB0: 19, 0xB1: 23, // i64 truncations
	0xB2: 2, 0xB3: 2, 0xB4: 2, 0xB5: 14, // f32 conversions
	0xB6: 1, // f32.demote_f64
	0xB7: 2, 0xB8: 2, 0xB9: 2, 0xBA: 13, // f64 conversions
	0xBB: 2, // f64.promote_f32
	0xBC: 1, 0xBD: 1, 0xBE: 1, 0xBF: 1, // reinterpretations

	0xC0: 1, 0xC1: 1, 0xC2: 1, 0xC3: 1, 0xC4: 1, // sign extensions

	opRefFunc: 29,
}

var prefixedCycles = map[opKey]uint64{
	prefixedOp(0xFC, 0): 18, // i32.trunc_sat_f32_s
	prefixedOp(0xFC, 1): 19,
	prefixedOp(0xFC, 2): 19,
	prefixedOp(0xFC, 3): 18,
	prefixedOp(0xFC, 4): 19,
	prefixedOp(0xFC, 5): 20,
	prefixedOp(0xFC, 6): 19,
	prefixedOp(0xFC, 7): 22,
	prefixedOp(0xFC, 10): 31, // memory.copy
	prefixedOp(0xFC, 16): 25, // table.size
}

// instructionCost converts benchmark cycles to gas charged per opcode.
func instructionCost(op opKey) (uint64, error) {
	c, ok := opCycles[op]
	if !ok {
		c, ok = prefixedCycles[op]
	}
	if !ok {
		return 0, fmt.Errorf("no cycle cost defined for opcode 0x%08x", uint32(op))
	}
	return c * meterMultiplier / meterScalingFactor, nil
}

// endsRun reports whether op terminates a straight-line accounting run.
// Gas for a run is charged immediately before its terminating operator
// so the balance is settled before control can leave the run.
func endsRun(op opKey) bool {
	switch op {
	case opLoop, opElse, opEnd, 0x0C, 0x0D, opBrTable, opReturn,
		opCall, opCallIndirect, opReturnCall, opReturnCallIndirect,
		opUnreachable:
		return true
	}
	return false
}

// instrumentResult describes the rewritten module.
type instrumentResult struct {
	wasm       []byte
	gasFuncIdx uint32
	hasAlloc   bool
	hasMemory  bool
}

type importedMemory struct {
	min    uint32
	max    uint32
	hasMax bool
	shared bool
}

type limits struct {
	flags byte
	min   uint32
	max   uint32
}

func readLimits(r *reader) (limits, error) {
	var l limits
	var err error
	if l.flags, err = r.readByte(); err != nil {
		return l, err
	}
	if l.min, err = r.readU32(); err != nil {
		return l, err
	}
	if l.flags&0x01 != 0 {
		if l.max, err = r.readU32(); err != nil {
			return l, err
		}
	}
	return l, nil
}

// instrument rewrites a module so that every instruction charges gas and
// the host can allocate inside guest memory. The gas import lands at the
// end of the import section, which leaves existing function imports at
// their indices and shifts every defined function up by one. The alloc
// trampoline lands at the end of the function index space, which shifts
// nothing.
func instrument(wasm []byte) (*instrumentResult, error) {
	m, err := parseRawModule(wasm)
	if err != nil {
		return nil, err
	}

	imports, err := rewriteImports(m)
	if err != nil {
		return nil, err
	}
	gasFuncIdx := imports.funcImports

	if imports.memory != nil {
		if err := defineMemory(m, imports.memory); err != nil {
			return nil, err
		}
	}
	hasMemory := imports.memory != nil || sectionCount(m, secMemory) > 0

	_, cbTypeIdx, trampTypeIdx, err := appendMeterTypes(m)
	if err != nil {
		return nil, err
	}

	tableIdx, hasTable, err := resolveAllocTable(m, imports.tableImports)
	if err != nil {
		return nil, err
	}

	var trampIdx uint32
	hasAlloc := false
	if hasTable {
		definedFuncs, err := appendTrampoline(m, trampTypeIdx, cbTypeIdx, tableIdx)
		if err != nil {
			return nil, err
		}
		// After the gas import shift the trampoline sits past every
		// existing function.
		trampIdx = gasFuncIdx + 1 + definedFuncs
		hasAlloc = true
	}

	if err := patchFunctionIndices(m, gasFuncIdx); err != nil {
		return nil, err
	}
	if err := rewriteExports(m, gasFuncIdx, trampIdx, hasAlloc, hasMemory); err != nil {
		return nil, err
	}
	if err := meterCode(m, gasFuncIdx, hasAlloc); err != nil {
		return nil, err
	}

	return &instrumentResult{
		wasm:       m.encode(),
		gasFuncIdx: gasFuncIdx,
		hasAlloc:   hasAlloc,
		hasMemory:  hasMemory,
	}, nil
}

func sectionCount(m *rawModule, id byte) uint32 {
	body := m.section(id)
	if body == nil {
		return 0
	}
	r := newReader(body)
	n, err := r.readU32()
	if err != nil {
		return 0
	}
	return n
}

type importScan struct {
	funcImports  uint32
	tableImports uint32
	memory       *importedMemory
}

// rewriteImports strips an imported env memory, appends the gas charge
// import, and reports the original function import count.
func rewriteImports(m *rawModule) (*importScan, error) {
	scan := &importScan{}
	gasTypeIdx := sectionCount(m, secType) // appended first by appendMeterTypes

	out := []byte{}
	count := uint32(0)

	if body := m.section(secImport); body != nil {
		r := newReader(body)
		n, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("import section: %w", err)
		}
		for i := uint32(0); i < n; i++ {
			entryStart := r.pos
			mod, err := r.readName()
			if err != nil {
				return nil, err
			}
			name, err := r.readName()
			if err != nil {
				return nil, err
			}
			kind, err := r.readByte()
			if err != nil {
				return nil, err
			}
			switch kind {
			case importKindFunc:
				if _, err := r.readU32(); err != nil {
					return nil, err
				}
				scan.funcImports++
			case importKindTable:
				if _, err := r.readByte(); err != nil {
					return nil, err
				}
				if _, err := readLimits(r); err != nil {
					return nil, err
				}
				scan.tableImports++
			case importKindMemory:
				l, err := readLimits(r)
				if err != nil {
					return nil, err
				}
				if mod == hostModuleName && scan.memory == nil {
					scan.memory = &importedMemory{
						min:    l.min,
						max:    l.max,
						hasMax: l.flags&0x01 != 0,
						shared: l.flags&0x02 != 0,
					}
					continue // dropped, becomes a defined memory
				}
			case importKindGlobal:
				if _, err := r.readByte(); err != nil {
					return nil, err
				}
				if _, err := r.readByte(); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("import %s.%s: unsupported kind 0x%02x", mod, name, kind)
			}
			out = append(out, body[entryStart:r.pos]...)
			count++
		}
	}

	out = appendName(out, hostModuleName)
	out = appendName(out, gasFunctionName)
	out = append(out, importKindFunc)
	out = appendU32(out, gasTypeIdx)
	count++

	full := appendU32(nil, count)
	full = append(full, out...)
	m.replaceSection(secImport, full)
	return scan, nil
}

// defineMemory turns a dropped env memory import into a defined memory at
// index zero with at least the minimum page floor.
func defineMemory(m *rawModule, mem *importedMemory) error {
	if sectionCount(m, secMemory) > 0 {
		return fmt.Errorf("module both imports and defines a memory")
	}
	min := mem.min
	if min < minMemoryPages {
		min = minMemoryPages
	}
	body := appendU32(nil, 1)
	switch {
	case mem.shared:
		return fmt.Errorf("shared memory is not supported")
	case mem.hasMax:
		body = append(body, 0x01)
		body = appendU32(body, min)
		body = appendU32(body, mem.max)
	default:
		body = append(body, 0x00)
		body = appendU32(body, min)
	}
	m.replaceSection(secMemory, body)
	return nil
}

// appendMeterTypes adds the gas charge, alloc callback and trampoline
// function types to the end of the type section.
func appendMeterTypes(m *rawModule) (gasIdx, cbIdx, trampIdx uint32, err error) {
	old := m.section(secType)
	count := uint32(0)
	var entries []byte
	if old != nil {
		r := newReader(old)
		if count, err = r.readU32(); err != nil {
			return 0, 0, 0, fmt.Errorf("type section: %w", err)
		}
		// Section bodies alias the module buffer, so detach before
		// appending.
		entries = append([]byte(nil), old[r.pos:]...)
	}
	gasIdx = count
	cbIdx = count + 1
	trampIdx = count + 2

	entries = append(entries, 0x60, 0x01, 0x7E, 0x00)             // (i64) -> ()
	entries = append(entries, 0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F) // (i32,i32) -> i32
	entries = append(entries, 0x60, 0x03, 0x7F, 0x7F, 0x7F, 0x01, 0x7F)

	body := appendU32(nil, count+3)
	body = append(body, entries...)
	m.replaceSection(secType, body)
	return gasIdx, cbIdx, trampIdx, nil
}

// resolveAllocTable picks the table the alloc trampoline indexes into.
// A table exported under the conventional name wins; otherwise the first
// table in the index space is assumed to be the function table.
func resolveAllocTable(m *rawModule, tableImports uint32) (uint32, bool, error) {
	if body := m.section(secExport); body != nil {
		r := newReader(body)
		n, err := r.readU32()
		if err != nil {
			return 0, false, fmt.Errorf("export section: %w", err)
		}
		for i := uint32(0); i < n; i++ {
			name, err := r.readName()
			if err != nil {
				return 0, false, err
			}
			kind, err := r.readByte()
			if err != nil {
				return 0, false, err
			}
			idx, err := r.readU32()
			if err != nil {
				return 0, false, err
			}
			if kind == exportKindTable && name == indirectTableExportName {
				return idx, true, nil
			}
		}
	}
	if tableImports > 0 || sectionCount(m, secTable) > 0 {
		return 0, true, nil
	}
	return 0, false, nil
}

// appendTrampoline adds a defined function that forwards (fn, size, ctx)
// to table[fn](size, ctx). Returns the defined function count before the
// append.
func appendTrampoline(m *rawModule, trampTypeIdx, cbTypeIdx, tableIdx uint32) (uint32, error) {
	funcBody := m.section(secFunction)
	count := uint32(0)
	var entries []byte
	if funcBody != nil {
		r := newReader(funcBody)
		var err error
		if count, err = r.readU32(); err != nil {
			return 0, fmt.Errorf("function section: %w", err)
		}
		entries = append([]byte(nil), funcBody[r.pos:]...)
	}
	entries = appendU32(entries, trampTypeIdx)
	newFunc := appendU32(nil, count+1)
	newFunc = append(newFunc, entries...)
	m.replaceSection(secFunction, newFunc)

	var expr []byte
	expr = append(expr, 0x00)       // no locals
	expr = append(expr, 0x20, 0x01) // local.get size
	expr = append(expr, 0x20, 0x02) // local.get ctx
	expr = append(expr, 0x20, 0x00) // local.get fn
	expr = append(expr, opCallIndirect)
	expr = appendU32(expr, cbTypeIdx)
	expr = appendU32(expr, tableIdx)
	expr = append(expr, opEnd)

	codeBody := m.section(secCode)
	codeCount := uint32(0)
	var codeEntries []byte
	if codeBody != nil {
		r := newReader(codeBody)
		var err error
		if codeCount, err = r.readU32(); err != nil {
			return 0, fmt.Errorf("code section: %w", err)
		}
		codeEntries = append([]byte(nil), codeBody[r.pos:]...)
	}
	codeEntries = appendU32(codeEntries, uint32(len(expr)))
	codeEntries = append(codeEntries, expr...)
	newCode := appendU32(nil, codeCount+1)
	newCode = append(newCode, codeEntries...)
	m.replaceSection(secCode, newCode)

	return count, nil
}

func shiftIdx(idx, gasFuncIdx uint32) uint32 {
	if idx >= gasFuncIdx {
		return idx + 1
	}
	return idx
}

// patchExpr re-encodes a constant expression, shifting any ref.func
// operand past the gas import.
func patchExpr(r *reader, gasFuncIdx uint32, out []byte) ([]byte, error) {
	instrs, err := decodeExpr(r)
	if err != nil {
		return nil, err
	}
	for _, in := range instrs {
		if in.funcIdxOff >= 0 {
			out = append(out, r.buf[in.start:in.funcIdxOff]...)
			out = appendU32(out, shiftIdx(in.funcIdx, gasFuncIdx))
		} else {
			out = append(out, r.buf[in.start:in.end]...)
		}
	}
	return out, nil
}

// patchFunctionIndices fixes the start, element and global sections for
// the one-slot shift the gas import introduced.
func patchFunctionIndices(m *rawModule, gasFuncIdx uint32) error {
	if body := m.section(secStart); body != nil {
		r := newReader(body)
		idx, err := r.readU32()
		if err != nil {
			return fmt.Errorf("start section: %w", err)
		}
		m.replaceSection(secStart, appendU32(nil, shiftIdx(idx, gasFuncIdx)))
	}

	if body := m.section(secGlobal); body != nil {
		r := newReader(body)
		n, err := r.readU32()
		if err != nil {
			return fmt.Errorf("global section: %w", err)
		}
		out := appendU32(nil, n)
		for i := uint32(0); i < n; i++ {
			vt, err := r.readByte()
			if err != nil {
				return err
			}
			mut, err := r.readByte()
			if err != nil {
				return err
			}
			out = append(out, vt, mut)
			if out, err = patchExpr(r, gasFuncIdx, out); err != nil {
				return fmt.Errorf("global %d: %w", i, err)
			}
		}
		m.replaceSection(secGlobal, out)
	}

	if body := m.section(secElement); body != nil {
		out, err := patchElements(body, gasFuncIdx)
		if err != nil {
			return err
		}
		m.replaceSection(secElement, out)
	}
	return nil
}

func patchElements(body []byte, gasFuncIdx uint32) ([]byte, error) {
	r := newReader(body)
	n, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("element section: %w", err)
	}
	out := appendU32(nil, n)
	for i := uint32(0); i < n; i++ {
		flags, err := r.readU32()
		if err != nil {
			return nil, err
		}
		if flags > 7 {
			return nil, fmt.Errorf("element segment %d: unsupported flags %d", i, flags)
		}
		out = appendU32(out, flags)

		if flags&0x02 != 0 && flags&0x01 == 0 { // explicit table index
			idx, err := r.readU32()
			if err != nil {
				return nil, err
			}
			out = appendU32(out, idx)
		}
		if flags&0x01 == 0 { // active: offset expression
			if out, err = patchExpr(r, gasFuncIdx, out); err != nil {
				return nil, fmt.Errorf("element segment %d offset: %w", i, err)
			}
		}
		if flags != 0 && flags != 4 { // elemkind or reftype byte
			b, err := r.readByte()
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		cnt, err := r.readU32()
		if err != nil {
			return nil, err
		}
		out = appendU32(out, cnt)
		if flags&0x04 != 0 { // expression entries
			for j := uint32(0); j < cnt; j++ {
				if out, err = patchExpr(r, gasFuncIdx, out); err != nil {
					return nil, fmt.Errorf("element segment %d entry %d: %w", i, j, err)
				}
			}
		} else { // function index entries
			for j := uint32(0); j < cnt; j++ {
				idx, err := r.readU32()
				if err != nil {
					return nil, err
				}
				out = appendU32(out, shiftIdx(idx, gasFuncIdx))
			}
		}
	}
	return out, nil
}

// rewriteExports shifts function export indices and adds the alloc and
// memory exports guests do not provide themselves.
func rewriteExports(m *rawModule, gasFuncIdx, trampIdx uint32, hasAlloc, hasMemory bool) error {
	count := uint32(0)
	var out []byte
	memoryExported := false

	if body := m.section(secExport); body != nil {
		r := newReader(body)
		n, err := r.readU32()
		if err != nil {
			return fmt.Errorf("export section: %w", err)
		}
		for i := uint32(0); i < n; i++ {
			name, err := r.readName()
			if err != nil {
				return err
			}
			kind, err := r.readByte()
			if err != nil {
				return err
			}
			idx, err := r.readU32()
			if err != nil {
				return err
			}
			if kind == exportKindFunc {
				idx = shiftIdx(idx, gasFuncIdx)
			}
			if kind == exportKindMemory && name == memoryExportName {
				memoryExported = true
			}
			out = appendName(out, name)
			out = append(out, kind)
			out = appendU32(out, idx)
			count++
		}
	}

	if hasAlloc {
		out = appendName(out, allocExportName)
		out = append(out, exportKindFunc)
		out = appendU32(out, trampIdx)
		count++
	}
	if hasMemory && !memoryExported {
		out = appendName(out, memoryExportName)
		out = append(out, exportKindMemory)
		out = appendU32(out, 0)
		count++
	}

	full := appendU32(nil, count)
	full = append(full, out...)
	m.replaceSection(secExport, full)
	return nil
}

// meterCode rebuilds every function body with gas charges injected ahead
// of each operator that can transfer control, covering the straight-line
// run behind it. Call operands are shifted past the gas import in the
// same pass.
func meterCode(m *rawModule, gasFuncIdx uint32, hasTrampoline bool) error {
	body := m.section(secCode)
	if body == nil {
		return nil
	}
	r := newReader(body)
	n, err := r.readU32()
	if err != nil {
		return fmt.Errorf("code section: %w", err)
	}
	out := appendU32(nil, n)
	for i := uint32(0); i < n; i++ {
		size, err := r.readU32()
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		raw, err := r.readBytes(int(size))
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		if hasTrampoline && i == n-1 {
			// The trampoline was appended by us; forwarding to the
			// guest allocator is charged by the callee's own meter.
			out = appendU32(out, size)
			out = append(out, raw...)
			continue
		}
		rebuilt, err := meterBody(raw, gasFuncIdx)
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		out = appendU32(out, uint32(len(rebuilt)))
		out = append(out, rebuilt...)
	}
	m.replaceSection(secCode, out)
	return nil
}

func meterBody(raw []byte, gasFuncIdx uint32) ([]byte, error) {
	br := newReader(raw)
	localsStart := br.pos
	if err := skipLocals(br); err != nil {
		return nil, err
	}
	out := append([]byte{}, raw[localsStart:br.pos]...)

	instrs, err := decodeExpr(br)
	if err != nil {
		return nil, err
	}

	pending := uint64(0)
	for _, in := range instrs {
		cost, err := instructionCost(in.op)
		if err != nil {
			return nil, err
		}
		pending += cost
		if endsRun(in.op) && pending > 0 {
			out = append(out, 0x42) // i64.const
			out = appendS64(out, int64(pending))
			out = append(out, opCall)
			out = appendU32(out, gasFuncIdx)
			pending = 0
		}
		if in.funcIdxOff >= 0 {
			out = append(out, raw[in.start:in.funcIdxOff]...)
			out = appendU32(out, shiftIdx(in.funcIdx, gasFuncIdx))
		} else {
			out = append(out, raw[in.start:in.end]...)
		}
	}
	return out, nil
}
