// Package decoded holds the in-memory structured representation of one
// concrete x86-64 instruction: prefixes, opcode, ModR/M, SIB, displacement,
// immediates, and VEX/EVEX fields (spec.md §3.4). Values here are plain
// data — no shared ownership, no pointers required by callers (spec.md §9
// "Pointer-typed public APIs -> value types").
package decoded

import (
	"github.com/oisee/x86isa/pkg/isa"
	"github.com/oisee/x86isa/pkg/opcode"
)

// SegmentOverride names an explicit segment-override prefix, or its absence.
type SegmentOverride int

const (
	SegmentNone SegmentOverride = iota
	SegmentCS
	SegmentSS
	SegmentDS
	SegmentES
	SegmentFS
	SegmentGS
)

// segmentOverrideBytes gives the legacy prefix byte for each segment
// (spec.md §4.3 "Segment override bytes").
var segmentOverrideBytes = map[SegmentOverride]byte{
	SegmentCS: 0x2E,
	SegmentSS: 0x36,
	SegmentDS: 0x3E,
	SegmentES: 0x26,
	SegmentFS: 0x64,
	SegmentGS: 0x65,
}

// ByteForSegment returns the legacy prefix byte for a segment override, and
// false for SegmentNone.
func ByteForSegment(s SegmentOverride) (byte, bool) {
	b, ok := segmentOverrideBytes[s]
	return b, ok
}

// SegmentForByte is the inverse of ByteForSegment, used by the parser.
func SegmentForByte(b byte) (SegmentOverride, bool) {
	for seg, sb := range segmentOverrideBytes {
		if sb == b {
			return seg, true
		}
	}
	return SegmentNone, false
}

// LegacyPrefixBlock is the legacy-prefix variant of the decoded prefix
// union: REX bits, the operand-size override flag, and the lock/rep
// selection (which also carries the "mandatory prefix" role for legacy
// SSE-style encodings, per spec.md §3.4).
type LegacyPrefixBlock struct {
	RexW, RexR, RexX, RexB bool
	OperandSizeOverride    bool
	LockRep                isa.LegacyPrefixFamily
}

// VEXPrefixBlock is the VEX-prefix variant of the decoded prefix union.
// R/X/B and the register operand are stored in natural (non-inverted) sense,
// the same sense as the equivalent REX bits; the codec is responsible for
// the one's-complement bit packing the VEX wire format actually uses.
type VEXPrefixBlock struct {
	R, X, B          bool  // extension bits, REX-equivalent sense
	HasRegister      bool  // whether VEX.vvvv carries an operand at all
	Register         uint8 // 4-bit VEX.vvvv register operand, meaningful iff HasRegister
	W                bool
	VectorLength256  bool // false = 128-bit
	MandatoryPrefix  isa.MandatoryPrefix
	Map              isa.OpcodeMap
	HasSuffix        bool
	Suffix           uint8
}

// EVEXPrefixBlock is the EVEX-prefix variant of the decoded prefix union.
// Fields follow the same natural-sense convention as VEXPrefixBlock.
type EVEXPrefixBlock struct {
	R, X, B                bool  // R is the low extension bit; RPrime is EVEX's second R bit
	RPrime                 bool
	HasRegister            bool
	Register               uint8 // 5-bit register operand, meaningful iff HasRegister
	W                      bool
	VectorLengthOrRounding uint8 // 2-bit field: vector length selector, or rounding control when EVEX.b selects static rounding
	BroadcastOrControl     bool  // EVEX.b
	Zeroing                bool  // z bit
	OpmaskRegister         uint8 // 3-bit
	Map                    isa.OpcodeMap
	MandatoryPrefix        isa.MandatoryPrefix
}

// ModRMMode is the 2-bit addressing mode of a ModR/M byte. Values match the
// wire encoding of the mod field directly (00/01/10/11), so the parser can
// assign (modrm>>6)&3 straight into a ModRMMode with no translation.
type ModRMMode int

const (
	ModeIndirect       ModRMMode = 0b00
	ModeIndirectDisp8  ModRMMode = 0b01
	ModeIndirectDisp32 ModRMMode = 0b10
	ModeDirect         ModRMMode = 0b11
)

// ModRM is the decoded ModR/M byte plus the displacement it may imply.
type ModRM struct {
	Mode         ModRMMode
	Reg          uint8 // 3-bit
	RM           uint8 // 3-bit
	Displacement int32 // signed; width at encode time is derived from Mode/RM/SIB
}

// SIB is the decoded SIB byte.
type SIB struct {
	Scale uint8 // 2-bit
	Index uint8 // 3-bit
	Base  uint8 // 3-bit
}

// Instruction is the structured representation of one concrete x86-64
// instruction (spec.md §3.4).
type Instruction struct {
	Segment             SegmentOverride
	AddressSizeOverride bool

	// Exactly one of these three is populated; IsVEX/IsEVEX select which.
	IsVEX, IsEVEX bool
	Legacy        LegacyPrefixBlock
	VEX           VEXPrefixBlock
	EVEX          EVEXPrefixBlock

	Opcode opcode.Opcode

	HasModRM bool
	ModRM    ModRM

	HasSIB bool
	SIB    SIB

	Immediates [][]byte
	CodeOffset []byte
}

// ModRMDemandsSIB reports whether a ModR/M field, as decoded, requires a
// following SIB byte: mode != DIRECT and rm == 4 (spec.md §4.3).
func ModRMDemandsSIB(mode ModRMMode, rm uint8) bool {
	return mode != ModeDirect && rm == 4
}

// NewFromSpec builds the base decoded instruction derived deterministically
// from a specification: inverted bits start set, mandatory legacy prefixes
// materialize, and the ModR/M opcode-extension field is pre-filled
// (spec.md §3.4 "Lifecycle").
func NewFromSpec(spec isa.Spec) Instruction {
	in := Instruction{Opcode: spec.Opcode}

	switch {
	case spec.Prefix.IsVEXEVEX && spec.Prefix.VEXEVEX.Kind == isa.KindEVEX:
		in.IsEVEX = true
		in.EVEX = EVEXPrefixBlock{
			Map:             spec.Prefix.VEXEVEX.Map,
			MandatoryPrefix: spec.Prefix.VEXEVEX.MandatoryPrefix,
		}
	case spec.Prefix.IsVEXEVEX:
		in.IsVEX = true
		in.VEX = VEXPrefixBlock{
			Map:             spec.Prefix.VEXEVEX.Map,
			MandatoryPrefix: spec.Prefix.VEXEVEX.MandatoryPrefix,
			VectorLength256: spec.Prefix.VEXEVEX.VectorLength == isa.VectorLength256,
			HasSuffix:       spec.Prefix.VEXEVEX.HasVEXSuffix,
		}
	default:
		in.Legacy = LegacyPrefixBlock{
			LockRep: spec.Prefix.Legacy.LockRepFamily,
		}
		if spec.Prefix.Legacy.REXW == isa.Required {
			in.Legacy.RexW = true
		}
		if spec.Prefix.Legacy.OperandSizeOR66 == isa.Required {
			in.Legacy.OperandSizeOverride = true
		}
		if spec.Prefix.Legacy.AddressSizeOR67 == isa.Required {
			in.AddressSizeOverride = true
		}
	}

	if spec.ModRMUsage != isa.ModRMNone {
		in.HasModRM = true
		if spec.ModRMUsage == isa.ModRMOpcodeExtension {
			in.ModRM.Reg = uint8(spec.ModRMExtension)
		}
	}

	if len(spec.ImmediateSizes) > 0 {
		in.Immediates = make([][]byte, len(spec.ImmediateSizes))
		for i, sz := range spec.ImmediateSizes {
			in.Immediates[i] = make([]byte, sz)
		}
	}
	if spec.CodeOffsetBytes > 0 {
		in.CodeOffset = make([]byte, spec.CodeOffsetBytes)
	}

	return in
}
