package wazerovm

import (
	"errors"
	"fmt"
)

// ErrFloatingPoint is produced when a module uses float opcodes and the
// config does not allow them.
var ErrFloatingPoint = errors.New("Floating point opcodes are not allowed")

// ExtensionNotAllowedError reports an opcode from a proposal the config
// does not enable.
type ExtensionNotAllowedError struct {
	Proposal Proposal
}

func (e *ExtensionNotAllowedError) Error() string {
	return fmt.Sprintf("Wasm `%s` extension is not allowed", e.Proposal)
}

// GatekeeperConfig selects which feature proposals a module may use.
// The zero value rejects everything, including plain MVP code.
type GatekeeperConfig struct {
	MVP                     bool
	SignExtension           bool
	SaturatingFloatToInt    bool
	BulkMemory              bool
	ReferenceTypes          bool
	SIMD                    bool
	RelaxedSIMD             bool
	Threads                 bool
	SharedEverythingThreads bool
	TailCall                bool
	FunctionReferences      bool
	GC                      bool
	Exceptions              bool
	LegacyExceptions        bool
	MemoryControl           bool
	WideArithmetic          bool
	StackSwitching          bool

	AllowFloatingPoints bool
}

// DefaultGatekeeperConfig permits the baseline instruction set plus sign
// extension operators, with floats disallowed. Determinism across nodes
// depends on this staying narrow.
func DefaultGatekeeperConfig() GatekeeperConfig {
	return GatekeeperConfig{
		MVP:           true,
		SignExtension: true,
	}
}

func (c *GatekeeperConfig) allows(p Proposal) bool {
	switch p {
	case ProposalMVP:
		return c.MVP
	case ProposalSignExtension:
		return c.SignExtension
	case ProposalSaturatingFloatToInt:
		return c.SaturatingFloatToInt
	case ProposalBulkMemory:
		return c.BulkMemory
	case ProposalReferenceTypes:
		return c.ReferenceTypes
	case ProposalSIMD:
		return c.SIMD
	case ProposalRelaxedSIMD:
		return c.RelaxedSIMD
	case ProposalThreads:
		return c.Threads
	case ProposalSharedEverythingThreads:
		return c.SharedEverythingThreads
	case ProposalTailCall:
		return c.TailCall
	case ProposalFunctionReferences:
		return c.FunctionReferences
	case ProposalGC:
		return c.GC
	case ProposalExceptions:
		return c.Exceptions
	case ProposalLegacyExceptions:
		return c.LegacyExceptions
	case ProposalMemoryControl:
		return c.MemoryControl
	case ProposalWideArithmetic:
		return c.WideArithmetic
	case ProposalStackSwitching:
		return c.StackSwitching
	}
	return false
}

// checkOp gates a single opcode. The proposal check runs first so a float
// opcode from a disabled proposal reports the extension, not the float.
func (c *GatekeeperConfig) checkOp(op opKey) error {
	p, err := proposalOf(op)
	if err != nil {
		return err
	}
	if !c.allows(p) {
		return &ExtensionNotAllowedError{Proposal: p}
	}
	if !c.AllowFloatingPoints && isFloatingPoint(op) {
		return ErrFloatingPoint
	}
	return nil
}

// Validate walks every function body in the module and rejects the first
// opcode outside the configured feature set. It inspects the original,
// uninstrumented binary.
func (c *GatekeeperConfig) Validate(m *rawModule) error {
	code := m.section(secCode)
	if code == nil {
		return nil
	}
	r := newReader(code)
	count, err := r.readU32()
	if err != nil {
		return fmt.Errorf("code section: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.readU32()
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		body, err := r.readBytes(int(size))
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		br := newReader(body)
		if err := skipLocals(br); err != nil {
			return fmt.Errorf("function body %d locals: %w", i, err)
		}
		for br.remaining() > 0 {
			info, err := decodeInstr(br)
			if err != nil {
				return fmt.Errorf("function body %d: %w", i, err)
			}
			if err := c.checkOp(info.op); err != nil {
				return err
			}
		}
	}
	return nil
}

// skipLocals advances past the local declarations at the head of a
// function body.
func skipLocals(r *reader) error {
	n, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if _, err := r.readU32(); err != nil {
			return err
		}
		if _, err := r.readByte(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateModule parses a binary and runs the gatekeeper against it.
func ValidateModule(wasm []byte, config GatekeeperConfig) error {
	m, err := parseRawModule(wasm)
	if err != nil {
		return err
	}
	return config.Validate(m)
}
