package wazerovm

import "fmt"

// Proposal names a WASM feature proposal. Every opcode maps to exactly
// one proposal.
type Proposal string

const (
	ProposalMVP                     Proposal = "mvp"
	ProposalSignExtension           Proposal = "sign_extension"
	ProposalSaturatingFloatToInt    Proposal = "saturating_float_to_int"
	ProposalBulkMemory              Proposal = "bulk_memory"
	ProposalReferenceTypes          Proposal = "reference_types"
	ProposalSIMD                    Proposal = "simd"
	ProposalRelaxedSIMD             Proposal = "relaxed_simd"
	ProposalThreads                 Proposal = "threads"
	ProposalSharedEverythingThreads Proposal = "shared_everything_threads"
	ProposalTailCall                Proposal = "tail_call"
	ProposalFunctionReferences      Proposal = "function_references"
	ProposalGC                      Proposal = "gc"
	ProposalExceptions              Proposal = "exceptions"
	ProposalLegacyExceptions        Proposal = "legacy_exceptions"
	ProposalMemoryControl           Proposal = "memory_control"
	ProposalWideArithmetic          Proposal = "wide_arithmetic"
	ProposalStackSwitching          Proposal = "stack_switching"
)

// proposalOf classifies an opcode into its feature proposal.
func proposalOf(op opKey) (Proposal, error) {
	switch op.prefix() {
	case 0xFC:
		sub := uint32(op) & 0xFFFFFF
		switch {
		case sub <= 7:
			return ProposalSaturatingFloatToInt, nil
		case sub <= 14: // memory.init .. table.copy
			return ProposalBulkMemory, nil
		case sub <= 17: // table.grow, table.size, table.fill
			return ProposalReferenceTypes, nil
		case sub == 18: // memory.discard
			return ProposalMemoryControl, nil
		case sub <= 22: // 128-bit arithmetic
			return ProposalWideArithmetic, nil
		}
		return "", fmt.Errorf("unclassified 0xFC opcode %d", sub)
	case 0xFD:
		sub := uint32(op) & 0xFFFFFF
		if sub >= 0x100 {
			return ProposalRelaxedSIMD, nil
		}
		return ProposalSIMD, nil
	case 0xFE:
		return ProposalThreads, nil
	case 0xFB:
		return ProposalGC, nil
	}
	b := byte(op)
	switch b {
	case 0x06, 0x07, 0x09, 0x18, 0x19: // try, catch, rethrow, delegate, catch_all
		return ProposalLegacyExceptions, nil
	case 0x08, 0x0A, opTryTable: // throw, throw_ref, try_table
		return ProposalExceptions, nil
	case opReturnCall, opReturnCallIndirect:
		return ProposalTailCall, nil
	case opCallRef, opReturnCallRef, 0xD4, 0xD5, 0xD6:
		return ProposalFunctionReferences, nil
	case 0x1C: // select with value types
		return ProposalReferenceTypes, nil
	case 0x25, 0x26, 0xD0, 0xD1, opRefFunc: // table.get/set, ref.null/is_null/func
		return ProposalReferenceTypes, nil
	case 0xD3: // ref.eq
		return ProposalGC, nil
	}
	if b >= 0xC0 && b <= 0xC4 {
		return ProposalSignExtension, nil
	}
	if b <= 0xBF {
		return ProposalMVP, nil
	}
	return "", fmt.Errorf("unclassified opcode 0x%02x", b)
}

// isFloatingPoint reports whether the opcode operates on floats. Floating
// point is gated separately from proposal membership because FPU behavior
// differences across hardware are a consensus hazard.
func isFloatingPoint(op opKey) bool {
	switch op.prefix() {
	case 0xFD:
		sub := uint32(op) & 0xFFFFFF
		switch sub {
		case 0x13, 0x14, // f32x4/f64x2 splat
			0x1F, 0x20, 0x21, 0x22, // f32x4/f64x2 extract/replace lane
			0x5E, 0x5F, // demote/promote
			0x74, 0x75, 0x7A, 0x94: // f64x2 ceil/floor/trunc/nearest
			return true
		}
		switch {
		case sub >= 0x41 && sub <= 0x4C: // f32x4/f64x2 comparisons
			return true
		case sub >= 0x67 && sub <= 0x6A: // f32x4 ceil/floor/trunc/nearest
			return true
		case sub >= 0xE0 && sub <= 0xFF: // f32x4/f64x2 arithmetic, conversions
			return sub != 0xE2 // reserved slot
		case sub >= 0x100: // relaxed simd float ops
			switch sub {
			case 0x101, 0x102, 0x103, 0x104, // relaxed truncations
				0x105, 0x106, 0x107, 0x108, // relaxed madd/nmadd
				0x10D, 0x10E, 0x10F, 0x110: // relaxed min/max
				return true
			}
			return false
		}
		return false
	case 0xFC:
		sub := uint32(op) & 0xFFFFFF
		return sub <= 7 // saturating float-to-int truncations
	case 0xFE, 0xFB:
		return false
	}
	b := byte(op)
	switch {
	case b == 0x2A || b == 0x2B: // f32.load, f64.load
		return true
	case b == 0x38 || b == 0x39: // f32.store, f64.store
		return true
	case b == 0x43 || b == 0x44: // f32.const, f64.const
		return true
	case b >= 0x5B && b <= 0x66: // f32/f64 comparisons
		return true
	case b >= 0x8B && b <= 0xA6: // f32/f64 arithmetic
		return true
	case b >= 0xA8 && b <= 0xAF: // i32/i64 truncations from float
		return b != 0xAC && b != 0xAD // i64.extend_i32_s/u are integer ops
	case b >= 0xB0 && b <= 0xBF: // conversions, promote/demote, reinterpret
		return true
	}
	return false
}
