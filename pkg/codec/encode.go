// Package codec implements the bidirectional, bit-exact translation between
// raw instruction bytes and decoded.Instruction values (spec.md §4.3-4.4).
// It is the one place in this module that knows the literal wire layout of
// legacy prefixes, VEX, and EVEX; every other package works in terms of
// isa.Spec and decoded.Instruction.
package codec

import (
	"github.com/oisee/x86isa/pkg/decoded"
	"github.com/oisee/x86isa/pkg/isa"
	"github.com/oisee/x86isa/pkg/xerr"
)

// mandatoryPrefixPP maps a mandatory-prefix spec to the 2-bit VEX/EVEX "pp"
// field.
func mandatoryPrefixPP(m isa.MandatoryPrefix) uint8 {
	switch m {
	case isa.MandatoryPrefix66:
		return 0b01
	case isa.MandatoryPrefixF3:
		return 0b10
	case isa.MandatoryPrefixF2:
		return 0b11
	default:
		return 0b00
	}
}

// opcodeMapBits maps an opcode-map spec to the VEX 5-bit "mmmmm" field
// (3-byte VEX form) or the EVEX 2-bit "mm" field, depending on width.
func opcodeMapBits(m isa.OpcodeMap) uint8 {
	switch m {
	case isa.OpcodeMap0F:
		return 0b00001
	case isa.OpcodeMap0F38:
		return 0b00010
	case isa.OpcodeMap0F3A:
		return 0b00011
	default:
		return 0
	}
}

// Encode validates in against spec and renders it as a byte-exact
// instruction encoding (spec.md §4.3).
func Encode(spec isa.Spec, in decoded.Instruction) ([]byte, error) {
	if err := validateForEncode(spec, in); err != nil {
		return nil, err
	}

	var out []byte

	if b, ok := decoded.ByteForSegment(in.Segment); ok {
		out = append(out, b)
	}
	if in.AddressSizeOverride {
		out = append(out, 0x67)
	}

	switch {
	case in.IsEVEX:
		out = append(out, encodeEVEXPrefix(in.EVEX)...)
	case in.IsVEX:
		out = append(out, encodeVEXPrefix(in.VEX)...)
	default:
		if in.Legacy.OperandSizeOverride {
			out = append(out, 0x66)
		}
		switch in.Legacy.LockRep {
		case isa.LegacyPrefixLock:
			out = append(out, 0xF0)
		case isa.LegacyPrefixRepne:
			out = append(out, 0xF2)
		case isa.LegacyPrefixRep:
			out = append(out, 0xF3)
		}
		if rex, present := encodeREX(in.Legacy); present {
			out = append(out, rex)
		}
	}

	out = append(out, in.Opcode.Bytes()...)

	if in.HasModRM {
		out = append(out, encodeModRM(in.ModRM))
	}
	if in.HasSIB {
		out = append(out, encodeSIB(in.SIB))
	}
	if in.HasModRM {
		out = append(out, encodeDisplacement(in.ModRM, in.HasSIB, in.SIB)...)
	}
	for _, imm := range in.Immediates {
		out = append(out, imm...)
	}
	out = append(out, in.CodeOffset...)
	if in.IsVEX && in.VEX.HasSuffix {
		out = append(out, in.VEX.Suffix)
	}

	return out, nil
}

func encodeREX(l decoded.LegacyPrefixBlock) (byte, bool) {
	if !l.RexW && !l.RexR && !l.RexX && !l.RexB {
		return 0, false
	}
	rex := byte(0x40)
	if l.RexW {
		rex |= 0x08
	}
	if l.RexR {
		rex |= 0x04
	}
	if l.RexX {
		rex |= 0x02
	}
	if l.RexB {
		rex |= 0x01
	}
	return rex, true
}

// use2ByteVEX reports whether v can be expressed with the compact 2-byte
// VEX escape (0xC5): only possible when X and B are clear, the opcode map
// is 0F, and W is not set (spec.md §4.3 "2-byte vs 3-byte VEX selection").
func use2ByteVEX(v decoded.VEXPrefixBlock) bool {
	return !v.X && !v.B && !v.W && v.Map == isa.OpcodeMap0F
}

// vexWireVVVV returns the ones-complement VEX.vvvv wire value. A register
// operand of 0 (Go's zero value, matching HasRegister == false) naturally
// produces the wire field's "no operand" pattern of all ones, so no special
// case is needed for the unused state.
func vexWireVVVV(register uint8) uint8 {
	return (^register) & 0x0F
}

func encodeVEXPrefix(v decoded.VEXPrefixBlock) []byte {
	pp := mandatoryPrefixPP(v.MandatoryPrefix)
	l := uint8(0)
	if v.VectorLength256 {
		l = 1
	}
	invVVVV := vexWireVVVV(v.Register)

	if use2ByteVEX(v) {
		invR := uint8(0)
		if !v.R {
			invR = 1
		}
		b2 := invR<<7 | invVVVV<<3 | l<<2 | pp
		return []byte{0xC5, b2}
	}

	invR, invX, invB := uint8(1), uint8(1), uint8(1)
	if v.R {
		invR = 0
	}
	if v.X {
		invX = 0
	}
	if v.B {
		invB = 0
	}
	b2 := invR<<7 | invX<<6 | invB<<5 | opcodeMapBits(v.Map)
	w := uint8(0)
	if v.W {
		w = 1
	}
	b3 := w<<7 | invVVVV<<3 | l<<2 | pp
	return []byte{0xC4, b2, b3}
}

func encodeEVEXPrefix(e decoded.EVEXPrefixBlock) []byte {
	invR, invX, invB, invRPrime := uint8(1), uint8(1), uint8(1), uint8(1)
	if e.R {
		invR = 0
	}
	if e.X {
		invX = 0
	}
	if e.B {
		invB = 0
	}
	if e.RPrime {
		invRPrime = 0
	}
	mm := opcodeMapBits(e.Map) & 0x03
	p0 := invR<<7 | invX<<6 | invB<<5 | invRPrime<<4 | mm

	w := uint8(0)
	if e.W {
		w = 1
	}
	// register's zero value (HasRegister == false) naturally inverts to the
	// wire format's all-ones "no operand" pattern, same as VEX.
	invVVVV := (^e.Register) & 0x0F
	invVPrime := (^(e.Register >> 4)) & 0x01
	pp := mandatoryPrefixPP(e.MandatoryPrefix)
	p1 := w<<7 | invVVVV<<3 | 1<<2 | pp

	z := uint8(0)
	if e.Zeroing {
		z = 1
	}
	b := uint8(0)
	if e.BroadcastOrControl {
		b = 1
	}
	p2 := z<<7 | (e.VectorLengthOrRounding&0x03)<<5 | b<<4 | invVPrime<<3 | (e.OpmaskRegister & 0x07)

	return []byte{0x62, p0, p1, p2}
}

func encodeModRM(m decoded.ModRM) byte {
	return byte(m.Mode&0x03)<<6 | byte(m.Reg&0x07)<<3 | byte(m.RM&0x07)
}

func encodeSIB(s decoded.SIB) byte {
	return byte(s.Scale&0x03)<<6 | byte(s.Index&0x07)<<3 | byte(s.Base&0x07)
}

// encodeDisplacement renders the displacement implied by a decoded ModR/M
// (plus whether a SIB byte is present), per the width rules of spec.md §4.3:
// disp8 is one signed byte; disp32, RIP-relative (mode=INDIRECT, rm=101,
// no SIB), and SIB-absolute (mode=INDIRECT, rm=100, SIB.base=101) are all
// four signed bytes, little-endian.
func encodeDisplacement(m decoded.ModRM, hasSIB bool, sib decoded.SIB) []byte {
	switch m.Mode {
	case decoded.ModeIndirectDisp8:
		return []byte{byte(int8(m.Displacement))}
	case decoded.ModeIndirectDisp32:
		return le32(m.Displacement)
	case decoded.ModeIndirect:
		if !hasSIB && m.RM == 5 {
			return le32(m.Displacement) // RIP-relative
		}
		if hasSIB && sib.Base == 5 {
			return le32(m.Displacement) // SIB with no base: disp32 only
		}
		return nil
	default:
		return nil
	}
}

func le32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

// validateForEncode checks the cross-cutting invariants of spec.md §4.3
// before any bytes are emitted: prefix-kind agreement between spec and
// instruction, REX.W and lock/rep legality, ModR/M presence and opcode
// extension, SIB presence, immediate/code-offset sizing, and VEX suffix
// presence. It does not check the operand-size or address-size override,
// the opcode, or any VEX/EVEX field (vector length, W, mandatory prefix,
// map, register operand, EVEX.b, opmask, zeroing) against the spec.
func validateForEncode(spec isa.Spec, in decoded.Instruction) error {
	if in.IsVEX && in.IsEVEX {
		return xerr.New(xerr.InvalidArgument, "codec: instruction marked both VEX and EVEX")
	}
	if spec.Prefix.IsVEXEVEX != (in.IsVEX || in.IsEVEX) {
		return xerr.New(xerr.InvalidArgument, "codec: spec/instruction disagree on VEX/EVEX use")
	}
	if spec.Prefix.IsVEXEVEX {
		wantEVEX := spec.Prefix.VEXEVEX.Kind == isa.KindEVEX
		if wantEVEX != in.IsEVEX {
			return xerr.New(xerr.InvalidArgument, "codec: spec requires %v, instruction has the other VEX/EVEX kind", spec.Prefix.VEXEVEX.Kind)
		}
	} else {
		if spec.Prefix.Legacy.REXW == isa.Required && !in.Legacy.RexW {
			return xerr.New(xerr.InvalidArgument, "codec: spec requires REX.W")
		}
		if spec.Prefix.Legacy.REXW == isa.NotPermitted && in.Legacy.RexW {
			return xerr.New(xerr.InvalidArgument, "codec: spec forbids REX.W")
		}
		if spec.Prefix.Legacy.LockRep == isa.Required && in.Legacy.LockRep != spec.Prefix.Legacy.LockRepFamily {
			return xerr.New(xerr.InvalidArgument, "codec: spec requires lock/rep family %v", spec.Prefix.Legacy.LockRepFamily)
		}
		if spec.Prefix.Legacy.LockRep == isa.NotPermitted && in.Legacy.LockRep != isa.LegacyPrefixNone {
			return xerr.New(xerr.InvalidArgument, "codec: spec forbids a lock/rep prefix")
		}
	}

	switch spec.ModRMUsage {
	case isa.ModRMNone:
		if in.HasModRM {
			return xerr.New(xerr.InvalidArgument, "codec: spec forbids a ModR/M byte")
		}
	case isa.ModRMFull, isa.ModRMOpcodeExtension:
		if !in.HasModRM {
			return xerr.New(xerr.InvalidArgument, "codec: spec requires a ModR/M byte")
		}
		if spec.ModRMUsage == isa.ModRMOpcodeExtension && int(in.ModRM.Reg) != spec.ModRMExtension {
			return xerr.New(xerr.InvalidArgument, "codec: ModR/M.reg = %d, spec requires opcode-extension %d", in.ModRM.Reg, spec.ModRMExtension)
		}
	}

	if in.HasSIB && !decoded.ModRMDemandsSIB(in.ModRM.Mode, in.ModRM.RM) {
		return xerr.New(xerr.InvalidArgument, "codec: SIB byte present but ModR/M does not call for one")
	}
	if !in.HasSIB && in.HasModRM && decoded.ModRMDemandsSIB(in.ModRM.Mode, in.ModRM.RM) {
		return xerr.New(xerr.InvalidArgument, "codec: ModR/M calls for a SIB byte but none is present")
	}

	if len(in.Immediates) != len(spec.ImmediateSizes) {
		return xerr.New(xerr.InvalidArgument, "codec: %d immediates present, spec requires %d", len(in.Immediates), len(spec.ImmediateSizes))
	}
	for i, want := range spec.ImmediateSizes {
		if len(in.Immediates[i]) != want {
			return xerr.New(xerr.InvalidArgument, "codec: immediate %d is %d bytes, spec requires %d", i, len(in.Immediates[i]), want)
		}
	}
	if len(in.CodeOffset) != spec.CodeOffsetBytes {
		return xerr.New(xerr.InvalidArgument, "codec: code offset is %d bytes, spec requires %d", len(in.CodeOffset), spec.CodeOffsetBytes)
	}
	if in.IsVEX && in.VEX.HasSuffix != spec.Prefix.VEXEVEX.HasVEXSuffix {
		return xerr.New(xerr.InvalidArgument, "codec: spec/instruction disagree on VEX suffix presence")
	}

	return nil
}
