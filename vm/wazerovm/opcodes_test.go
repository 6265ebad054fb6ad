package wazerovm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalOf(t *testing.T) {
	cases := []struct {
		name string
		op   opKey
		want Proposal
	}{
		{"i32.add", 0x6A, ProposalMVP},
		{"f64.sqrt", 0x9F, ProposalMVP},
		{"i64.extend32_s", 0xC4, ProposalSignExtension},
		{"i32.trunc_sat_f32_s", prefixedOp(0xFC, 0), ProposalSaturatingFloatToInt},
		{"memory.copy", prefixedOp(0xFC, 10), ProposalBulkMemory},
		{"table.fill", prefixedOp(0xFC, 17), ProposalReferenceTypes},
		{"memory.discard", prefixedOp(0xFC, 18), ProposalMemoryControl},
		{"i64.add128", prefixedOp(0xFC, 19), ProposalWideArithmetic},
		{"i8x16.add", prefixedOp(0xFD, 0xAE), ProposalSIMD},
		{"relaxed_madd", prefixedOp(0xFD, 0x105), ProposalRelaxedSIMD},
		{"atomic.notify", prefixedOp(0xFE, 0x00), ProposalThreads},
		{"struct.new", prefixedOp(0xFB, 0x00), ProposalGC},
		{"return_call", opReturnCall, ProposalTailCall},
		{"call_ref", opCallRef, ProposalFunctionReferences},
		{"select_t", 0x1C, ProposalReferenceTypes},
		{"ref.func", opRefFunc, ProposalReferenceTypes},
		{"ref.eq", 0xD3, ProposalGC},
		{"try", 0x06, ProposalLegacyExceptions},
		{"throw", 0x08, ProposalExceptions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := proposalOf(tc.op)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProposalOfUnclassified(t *testing.T) {
	_, err := proposalOf(0xFF)
	assert.Error(t, err)

	_, err = proposalOf(prefixedOp(0xFC, 400))
	assert.Error(t, err)
}

func TestIsFloatingPoint(t *testing.T) {
	fp := []opKey{
		0x2A,                      // f32.load
		0x39,                      // f64.store
		0x43,                      // f32.const
		0x5B,                      // f32.eq
		0x92,                      // f32.add
		0xA2,                      // f64.mul
		0xB5,                      // f32.convert_i64_u
		prefixedOp(0xFC, 3),       // i32.trunc_sat_f64_s
		prefixedOp(0xFD, 0x13),    // f32x4.splat
		prefixedOp(0xFD, 0x41),    // f32x4.eq
		prefixedOp(0xFD, 0xE4),    // f32x4.add
		prefixedOp(0xFD, 0x105),   // f32x4.relaxed_madd
	}
	for _, op := range fp {
		assert.True(t, isFloatingPoint(op), "opcode 0x%08x", uint32(op))
	}

	notFP := []opKey{
		0x28,                    // i32.load
		0x41,                    // i32.const
		0x6A,                    // i32.add
		0xC0,                    // i32.extend8_s
		prefixedOp(0xFC, 10),    // memory.copy
		prefixedOp(0xFD, 0xAE),  // i8x16.add
		prefixedOp(0xFD, 0xE2),  // reserved simd slot
		prefixedOp(0xFD, 0x100), // i8x16.relaxed_swizzle
		prefixedOp(0xFE, 0x00),  // atomic.notify
	}
	for _, op := range notFP {
		assert.False(t, isFloatingPoint(op), "opcode 0x%08x", uint32(op))
	}
}
