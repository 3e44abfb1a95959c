package isa

import (
	"github.com/oisee/x86isa/pkg/opcode"
	"github.com/oisee/x86isa/pkg/xerr"
)

// OperandInOpcode classifies how (if at all) an operand is packed into the
// low three bits of the opcode byte.
type OperandInOpcode int

const (
	OperandInOpcodeNone OperandInOpcode = iota
	OperandInOpcodeGPR                 // general-purpose register
	OperandInOpcodeFPStack             // x87 stack register
)

// ModRMUsage classifies how the ModR/M byte participates in this spec.
type ModRMUsage int

const (
	ModRMNone ModRMUsage = iota
	ModRMFull
	ModRMOpcodeExtension
)

// TriState is a required/not-permitted/ignored flag, used throughout the
// legacy prefix descriptor.
type TriState int

const (
	Ignored TriState = iota
	Required
	NotPermitted
)

// LegacyPrefixFamily names the mandatory legacy prefix bound to the
// lock/rep flag, when required.
type LegacyPrefixFamily int

const (
	LegacyPrefixNone LegacyPrefixFamily = iota
	LegacyPrefixLock                   // 0xF0
	LegacyPrefixRepne                  // 0xF2
	LegacyPrefixRep                    // 0xF3
)

// LegacyPrefixEncoding is the legacy-prefix variant of PrefixEncoding.
type LegacyPrefixEncoding struct {
	REXW              TriState
	OperandSizeOR66   TriState
	AddressSizeOR67   TriState
	LockRep           TriState
	LockRepFamily     LegacyPrefixFamily // meaningful only when LockRep == Required
}

// VEXEVEXKind distinguishes the two modern prefix forms.
type VEXEVEXKind int

const (
	KindVEX VEXEVEXKind = iota
	KindEVEX
)

// VectorLength enumerates the vector-length requirement of a VEX/EVEX spec.
type VectorLength int

const (
	VectorLength128 VectorLength = iota
	VectorLength256
	VectorLength512 // EVEX only
	VectorLengthZero
	VectorLengthIgnored
)

// MandatoryPrefix is the VEX/EVEX mandatory-prefix byte, if any.
type MandatoryPrefix int

const (
	MandatoryPrefixNone MandatoryPrefix = iota
	MandatoryPrefix66
	MandatoryPrefixF3
	MandatoryPrefixF2
)

// OpcodeMap is the VEX/EVEX opcode map selector.
type OpcodeMap int

const (
	OpcodeMapUndefined OpcodeMap = iota
	OpcodeMap0F
	OpcodeMap0F38
	OpcodeMap0F3A
)

// WSpec is the VEX/EVEX W-bit requirement.
type WSpec int

const (
	WZero WSpec = iota
	WOne
	WIgnored
)

// VEXOperandUsage classifies how (if at all) the VEX.vvvv / EVEX register
// field carries an operand.
type VEXOperandUsage int

const (
	VEXOperandNone VEXOperandUsage = iota
	VEXOperandDestination
	VEXOperandFirstSource
	VEXOperandSecondSource // "DDS" role: operand encoded in VEX.v; see DESIGN.md Open Question
)

// EVEXBInterpretation enumerates what EVEX.b may mean for a given spec.
type EVEXBInterpretation int

const (
	EVEXBBroadcast32 EVEXBInterpretation = iota
	EVEXBBroadcast64
	EVEXBStaticRounding
	EVEXBSuppressAllExceptions
)

// OpmaskUsage classifies whether/how an opmask register may be used.
type OpmaskUsage int

const (
	OpmaskNone OpmaskUsage = iota
	OpmaskOptional
	OpmaskRequired
)

// MaskingOperation distinguishes merging-only from merging-and-zeroing.
type MaskingOperation int

const (
	MaskingMergingOnly MaskingOperation = iota
	MaskingMergingOrZeroing
)

// VEXEVEXEncoding is the VEX/EVEX variant of PrefixEncoding.
type VEXEVEXEncoding struct {
	Kind             VEXEVEXKind
	VectorLength     VectorLength
	MandatoryPrefix  MandatoryPrefix
	Map              OpcodeMap
	W                WSpec
	VEXOperandUsage  VEXOperandUsage
	HasVEXSuffix     bool // optional VEX 4-bit immediate suffix
	EVEXBInterps     []EVEXBInterpretation
	OpmaskUsage      OpmaskUsage
	MaskingOperation MaskingOperation
}

// PrefixEncoding is the tagged sum type of spec.md §3.3: exactly one of a
// legacy or a VEX/EVEX descriptor, never both (spec.md §9 "Tagged prefix
// blocks" — encoder and parser pattern-match exhaustively on the tag).
type PrefixEncoding struct {
	IsVEXEVEX bool
	Legacy    LegacyPrefixEncoding
	VEXEVEX   VEXEVEXEncoding
}

// Spec is one ISA database entry: the static shape of an instruction's
// encoding, independent of any concrete operand values.
type Spec struct {
	RawSpec         string // the textual encoding-specification string, e.g. "87 /r"
	Mnemonic        string
	Opcode          opcode.Opcode
	OperandInOpcode OperandInOpcode
	ModRMUsage      ModRMUsage
	ModRMExtension  int // 0..7, meaningful only when ModRMUsage == ModRMOpcodeExtension
	Prefix          PrefixEncoding
	ImmediateSizes  []int // each 1, 2, 4, or 8
	CodeOffsetBytes int   // 0, 1, 2, or 4
}

// Validate checks the invariants of spec.md §3.3.
func (s Spec) Validate() error {
	if s.OperandInOpcode != OperandInOpcodeNone && s.Opcode.Byte()&0x07 != 0 {
		return xerr.New(xerr.InvalidArgument,
			"spec %q: operand_in_opcode set but low three opcode bits are nonzero", s.RawSpec)
	}
	if s.ModRMUsage == ModRMOpcodeExtension && (s.ModRMExtension < 0 || s.ModRMExtension > 7) {
		return xerr.New(xerr.InvalidArgument,
			"spec %q: modrm opcode-extension %d out of range 0..7", s.RawSpec, s.ModRMExtension)
	}
	for _, sz := range s.ImmediateSizes {
		switch sz {
		case 1, 2, 4, 8:
		default:
			return xerr.New(xerr.InvalidArgument, "spec %q: invalid immediate size %d", s.RawSpec, sz)
		}
	}
	switch s.CodeOffsetBytes {
	case 0, 1, 2, 4:
	default:
		return xerr.New(xerr.InvalidArgument, "spec %q: invalid code offset size %d", s.RawSpec, s.CodeOffsetBytes)
	}
	if s.Prefix.IsVEXEVEX {
		if s.Prefix.VEXEVEX.VectorLength == VectorLength512 && s.Prefix.VEXEVEX.Kind != KindEVEX {
			return xerr.New(xerr.InvalidArgument, "spec %q: 512-bit vector length requires EVEX", s.RawSpec)
		}
	}
	return nil
}

// NewSpec constructs and validates a Spec.
func NewSpec(s Spec) (Spec, error) {
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}
