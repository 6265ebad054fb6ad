package wazerovm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func section(id byte, data []byte) []byte {
	out := []byte{id}
	out = appendU32(out, uint32(len(data)))
	return append(out, data...)
}

// moduleWithBody builds a minimal one-function module around the given
// instruction bytes. The body's End is appended automatically.
func moduleWithBody(t *testing.T, instrs []byte) []byte {
	t.Helper()

	wasm := append([]byte(nil), wasmMagic...)

	typeSec := appendU32(nil, 1)
	typeSec = append(typeSec, 0x60, 0x00, 0x00)
	wasm = append(wasm, section(secType, typeSec)...)

	funcSec := appendU32(nil, 1)
	funcSec = appendU32(funcSec, 0)
	wasm = append(wasm, section(secFunction, funcSec)...)

	body := []byte{0x00} // no locals
	body = append(body, instrs...)
	body = append(body, opEnd)
	codeSec := appendU32(nil, 1)
	codeSec = appendU32(codeSec, uint32(len(body)))
	codeSec = append(codeSec, body...)
	wasm = append(wasm, section(secCode, codeSec)...)

	return wasm
}

func validate(t *testing.T, config GatekeeperConfig, instrs []byte) error {
	t.Helper()
	m, err := parseRawModule(moduleWithBody(t, instrs))
	require.NoError(t, err)
	return config.Validate(m)
}

func TestGatekeeperDefaultAllowsMVP(t *testing.T) {
	config := DefaultGatekeeperConfig()
	// i32.const 1; i32.const 2; i32.add; drop
	err := validate(t, config, []byte{0x41, 0x01, 0x41, 0x02, 0x6A, 0x1A})
	assert.NoError(t, err)
}

func TestGatekeeperDefaultAllowsSignExtension(t *testing.T) {
	config := DefaultGatekeeperConfig()
	// i32.const 0; i32.extend8_s; drop
	err := validate(t, config, []byte{0x41, 0x00, 0xC0, 0x1A})
	assert.NoError(t, err)
}

func TestGatekeeperRejectsBulkMemory(t *testing.T) {
	config := DefaultGatekeeperConfig()
	// memory.copy 0 0
	err := validate(t, config, []byte{0xFC, 0x0A, 0x00, 0x00})
	require.Error(t, err)
	assert.Equal(t, "Wasm `bulk_memory` extension is not allowed", err.Error())

	var extErr *ExtensionNotAllowedError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, ProposalBulkMemory, extErr.Proposal)
}

func TestGatekeeperRejectsFloatingPoint(t *testing.T) {
	config := DefaultGatekeeperConfig()
	// f32.const 0; drop
	err := validate(t, config, []byte{0x43, 0x00, 0x00, 0x00, 0x00, 0x1A})
	require.Error(t, err)
	assert.Equal(t, "Floating point opcodes are not allowed", err.Error())
	assert.True(t, errors.Is(err, ErrFloatingPoint))
}

func TestGatekeeperAllowsFloatsWhenConfigured(t *testing.T) {
	config := DefaultGatekeeperConfig()
	config.AllowFloatingPoints = true
	// f32.const 0; f32.const 0; f32.add; drop
	err := validate(t, config, []byte{
		0x43, 0x00, 0x00, 0x00, 0x00,
		0x43, 0x00, 0x00, 0x00, 0x00,
		0x92, 0x1A,
	})
	assert.NoError(t, err)
}

func TestGatekeeperProposalGatePrecedesFloatGate(t *testing.T) {
	// f32x4.add is both a simd opcode and a floating point opcode. With
	// simd disabled the extension error must win, even with floats also
	// disabled.
	config := DefaultGatekeeperConfig()
	err := validate(t, config, []byte{0xFD, 0xE4, 0x01})
	require.Error(t, err)
	assert.Equal(t, "Wasm `simd` extension is not allowed", err.Error())
}

func TestGatekeeperEnabledSIMDStillRejectsFloatLanes(t *testing.T) {
	config := DefaultGatekeeperConfig()
	config.SIMD = true
	err := validate(t, config, []byte{0xFD, 0xE4, 0x01})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFloatingPoint))

	// An integer simd opcode passes once the proposal is on.
	// i8x16.add has no immediates.
	err = validate(t, config, []byte{0xFD, 0xAE, 0x01})
	assert.NoError(t, err)
}

func TestGatekeeperRejectsThreads(t *testing.T) {
	config := DefaultGatekeeperConfig()
	// memory.atomic.notify with memarg
	err := validate(t, config, []byte{0xFE, 0x00, 0x02, 0x00})
	require.Error(t, err)
	assert.Equal(t, "Wasm `threads` extension is not allowed", err.Error())
}

func TestGatekeeperRejectsTailCall(t *testing.T) {
	config := DefaultGatekeeperConfig()
	err := validate(t, config, []byte{opReturnCall, 0x00})
	require.Error(t, err)
	assert.Equal(t, "Wasm `tail_call` extension is not allowed", err.Error())
}

func TestValidateModuleRejectsGarbage(t *testing.T) {
	err := ValidateModule([]byte{0x00, 0x01, 0x02}, DefaultGatekeeperConfig())
	assert.Error(t, err)
}
