package isa

import "github.com/oisee/x86isa/pkg/opcode"

// BuiltinSpecs returns the seed set of instruction specifications used by
// this repository's own tests and by the CLI's default database — the six
// scenarios of spec.md §8, which exercise every PrefixEncoding variant.
// A full vendor-manual-derived database is outside this repo's scope
// (spec.md §1); callers needing one construct their own []Spec and call
// NewDatabase directly.
func BuiltinSpecs() []Spec {
	return []Spec{
		{
			RawSpec:  "NP 90",
			Mnemonic: "NOP",
			Opcode:   opcode.Opcode(0x90),
		},
		{
			RawSpec:  "0F 06",
			Mnemonic: "CLTS",
			Opcode:   opcode.Opcode(0x0F06),
		},
		{
			RawSpec:    "87 /r",
			Mnemonic:   "XCHG",
			Opcode:     opcode.Opcode(0x87),
			ModRMUsage: ModRMFull,
		},
		{
			RawSpec:  "VEX.DDS.LIG.66.0F38.W0 9F /r",
			Mnemonic: "VFNMSUB132SS",
			Opcode:   opcode.Opcode(0x9F),
			ModRMUsage: ModRMFull,
			Prefix: PrefixEncoding{
				IsVEXEVEX: true,
				VEXEVEX: VEXEVEXEncoding{
					Kind:            KindVEX,
					VectorLength:    VectorLengthIgnored,
					MandatoryPrefix: MandatoryPrefix66,
					Map:             OpcodeMap0F38,
					W:               WZero,
					VEXOperandUsage: VEXOperandSecondSource,
				},
			},
		},
		{
			RawSpec:    "EVEX.128.F3.0F.W0 E6 /r",
			Mnemonic:   "VCVTDQ2PD",
			Opcode:     opcode.Opcode(0xE6),
			ModRMUsage: ModRMFull,
			Prefix: PrefixEncoding{
				IsVEXEVEX: true,
				VEXEVEX: VEXEVEXEncoding{
					Kind:             KindEVEX,
					VectorLength:     VectorLength128,
					MandatoryPrefix:  MandatoryPrefixF3,
					Map:              OpcodeMap0F,
					W:                WZero,
					VEXOperandUsage:  VEXOperandNone,
					OpmaskUsage:      OpmaskOptional,
					MaskingOperation: MaskingMergingOrZeroing,
				},
			},
		},
	}
}
