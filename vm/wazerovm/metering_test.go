package wazerovm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exportEntry struct {
	name string
	kind byte
	idx  uint32
}

func readExports(t *testing.T, m *rawModule) []exportEntry {
	t.Helper()
	body := m.section(secExport)
	if body == nil {
		return nil
	}
	r := newReader(body)
	n, err := r.readU32()
	require.NoError(t, err)
	out := make([]exportEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.readName()
		require.NoError(t, err)
		kind, err := r.readByte()
		require.NoError(t, err)
		idx, err := r.readU32()
		require.NoError(t, err)
		out = append(out, exportEntry{name: name, kind: kind, idx: idx})
	}
	return out
}

func findExport(entries []exportEntry, name string) (exportEntry, bool) {
	for _, e := range entries {
		if e.name == name {
			return e, true
		}
	}
	return exportEntry{}, false
}

func TestInstructionCost(t *testing.T) {
	cases := []struct {
		name string
		op   opKey
		want uint64
	}{
		{"i32.add", 0x6A, 8},
		{"i64.div_s", 0x7F, 152},
		{"br_table", opBrTable, 272},
		{"memory.grow", 0x40, 536},
		{"call", opCall, 136},
		{"memory.copy", prefixedOp(0xFC, 10), 248},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := instructionCost(tc.op)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInstructionCostUnknownOpcode(t *testing.T) {
	_, err := instructionCost(prefixedOp(0xFD, 0x00))
	assert.Error(t, err)
}

func TestInstrumentAppendsGasImport(t *testing.T) {
	res, err := instrument(moduleWithBody(t, []byte{0x41, 0x01, 0x1A}))
	require.NoError(t, err)

	m, err := parseRawModule(res.wasm)
	require.NoError(t, err)

	body := m.section(secImport)
	require.NotNil(t, body)
	r := newReader(body)
	n, err := r.readU32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)

	mod, err := r.readName()
	require.NoError(t, err)
	name, err := r.readName()
	require.NoError(t, err)
	kind, err := r.readByte()
	require.NoError(t, err)
	typeIdx, err := r.readU32()
	require.NoError(t, err)

	assert.Equal(t, hostModuleName, mod)
	assert.Equal(t, gasFunctionName, name)
	assert.Equal(t, byte(importKindFunc), kind)
	// The charge type is the first of the three appended entries.
	assert.Equal(t, uint32(1), typeIdx)

	assert.Equal(t, uint32(0), res.gasFuncIdx)
	assert.False(t, res.hasAlloc)
	assert.False(t, res.hasMemory)
	assert.Equal(t, uint32(4), sectionCount(m, secType))
}

func TestInstrumentMetersStraightLineRun(t *testing.T) {
	// i32.const 1; drop; implicit end. Each costs 8, settled in one
	// charge in front of the terminating end.
	res, err := instrument(moduleWithBody(t, []byte{0x41, 0x01, 0x1A}))
	require.NoError(t, err)

	m, err := parseRawModule(res.wasm)
	require.NoError(t, err)
	codeBody := m.section(secCode)
	require.NotNil(t, codeBody)
	r := newReader(codeBody)
	n, err := r.readU32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)
	size, err := r.readU32()
	require.NoError(t, err)
	fn, err := r.readBytes(int(size))
	require.NoError(t, err)

	want := []byte{
		0x00,             // no locals
		0x41, 0x01, 0x1A, // original straight-line run
		0x42, 0x18, // i64.const 24
		opCall, 0x00, // gas charge
		opEnd,
	}
	assert.Equal(t, want, fn)
}

func TestInstrumentChargesBeforeEveryRunBoundary(t *testing.T) {
	// nop; call 0; nop; implicit end. The call ends the first run, so
	// two separate charges land in the body and the call operand is
	// shifted past the gas import.
	res, err := instrument(moduleWithBody(t, []byte{0x01, opCall, 0x00, 0x01}))
	require.NoError(t, err)

	m, err := parseRawModule(res.wasm)
	require.NoError(t, err)
	r := newReader(m.section(secCode))
	_, err = r.readU32()
	require.NoError(t, err)
	size, err := r.readU32()
	require.NoError(t, err)
	fn, err := r.readBytes(int(size))
	require.NoError(t, err)

	want := []byte{
		0x00,
		0x01,             // nop
		0x42, 0x90, 0x01, // i64.const 144 (nop 8 + call 136)
		opCall, 0x00, // gas charge
		opCall, 0x01, // original call, shifted
		0x01,       // nop
		0x42, 0x10, // i64.const 16 (nop 8 + end 8)
		opCall, 0x00, // gas charge
		opEnd,
	}
	assert.Equal(t, want, fn)
}

// moduleWithSections builds a one-function module with extra sections
// spliced in at their canonical positions.
func moduleWithSections(t *testing.T, extra ...[]byte) []byte {
	t.Helper()

	secs := [][]byte{}

	typeSec := appendU32(nil, 1)
	typeSec = append(typeSec, 0x60, 0x00, 0x00)
	secs = append(secs, section(secType, typeSec))

	funcSec := appendU32(nil, 1)
	funcSec = appendU32(funcSec, 0)
	secs = append(secs, section(secFunction, funcSec))

	secs = append(secs, extra...)

	codeSec := appendU32(nil, 1)
	codeSec = appendU32(codeSec, 3)
	codeSec = append(codeSec, 0x00, 0x01, opEnd)
	secs = append(secs, section(secCode, codeSec))

	sortSections(secs)

	wasm := append([]byte(nil), wasmMagic...)
	for _, s := range secs {
		wasm = append(wasm, s...)
	}
	return wasm
}

func sortSections(secs [][]byte) {
	for i := 1; i < len(secs); i++ {
		for j := i; j > 0 && secs[j][0] < secs[j-1][0]; j-- {
			secs[j], secs[j-1] = secs[j-1], secs[j]
		}
	}
}

func TestInstrumentShiftsFunctionExports(t *testing.T) {
	var exp []byte
	exp = appendU32(exp, 1)
	exp = appendName(exp, "call")
	exp = append(exp, exportKindFunc)
	exp = appendU32(exp, 0)

	res, err := instrument(moduleWithSections(t, section(secExport, exp)))
	require.NoError(t, err)
	m, err := parseRawModule(res.wasm)
	require.NoError(t, err)

	entries := readExports(t, m)
	e, ok := findExport(entries, "call")
	require.True(t, ok)
	assert.Equal(t, byte(exportKindFunc), e.kind)
	assert.Equal(t, uint32(1), e.idx)
}

func TestInstrumentDefinesImportedMemory(t *testing.T) {
	wasm := append([]byte(nil), wasmMagic...)

	typeSec := appendU32(nil, 1)
	typeSec = append(typeSec, 0x60, 0x00, 0x00)
	wasm = append(wasm, section(secType, typeSec)...)

	var imp []byte
	imp = appendU32(imp, 1)
	imp = appendName(imp, hostModuleName)
	imp = appendName(imp, memoryExportName)
	imp = append(imp, importKindMemory, 0x00)
	imp = appendU32(imp, 1)
	wasm = append(wasm, section(secImport, imp)...)

	funcSec := appendU32(nil, 1)
	funcSec = appendU32(funcSec, 0)
	wasm = append(wasm, section(secFunction, funcSec)...)

	codeSec := appendU32(nil, 1)
	codeSec = appendU32(codeSec, 2)
	codeSec = append(codeSec, 0x00, opEnd)
	wasm = append(wasm, section(secCode, codeSec)...)

	res, err := instrument(wasm)
	require.NoError(t, err)
	assert.True(t, res.hasMemory)

	m, err := parseRawModule(res.wasm)
	require.NoError(t, err)

	memBody := m.section(secMemory)
	require.NotNil(t, memBody)
	r := newReader(memBody)
	n, err := r.readU32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)
	flags, err := r.readByte()
	require.NoError(t, err)
	min, err := r.readU32()
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), flags)
	assert.Equal(t, uint32(minMemoryPages), min)

	// The import is dropped, only the gas charge remains.
	ir := newReader(m.section(secImport))
	in, err := ir.readU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), in)

	e, ok := findExport(readExports(t, m), memoryExportName)
	require.True(t, ok)
	assert.Equal(t, byte(exportKindMemory), e.kind)
	assert.Equal(t, uint32(0), e.idx)
}

func TestInstrumentAddsAllocTrampoline(t *testing.T) {
	var tbl []byte
	tbl = appendU32(tbl, 1)
	tbl = append(tbl, 0x70, 0x00) // funcref, no max
	tbl = appendU32(tbl, 4)

	res, err := instrument(moduleWithSections(t, section(secTable, tbl)))
	require.NoError(t, err)
	assert.True(t, res.hasAlloc)

	m, err := parseRawModule(res.wasm)
	require.NoError(t, err)

	// One original function plus the trampoline.
	r := newReader(m.section(secFunction))
	n, err := r.readU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	// Trampoline sits after the gas import and the shifted original.
	e, ok := findExport(readExports(t, m), allocExportName)
	require.True(t, ok)
	assert.Equal(t, byte(exportKindFunc), e.kind)
	assert.Equal(t, uint32(2), e.idx)
}

func TestInstrumentNoTableNoAlloc(t *testing.T) {
	res, err := instrument(moduleWithBody(t, []byte{0x01}))
	require.NoError(t, err)
	assert.False(t, res.hasAlloc)

	m, err := parseRawModule(res.wasm)
	require.NoError(t, err)
	_, ok := findExport(readExports(t, m), allocExportName)
	assert.False(t, ok)
}
