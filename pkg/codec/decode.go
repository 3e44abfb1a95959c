package codec

import (
	"github.com/oisee/x86isa/pkg/decoded"
	"github.com/oisee/x86isa/pkg/isa"
	"github.com/oisee/x86isa/pkg/opcode"
	"github.com/oisee/x86isa/pkg/xerr"
)

// Parser walks a byte stream against a Database, producing one decoded
// Instruction (and the Spec it matched) per call to Parse (spec.md §4.4).
// A Parser holds no state between calls; it is safe to reuse or to keep a
// zero value.
type Parser struct {
	DB *isa.Database
}

// Parse decodes one instruction from the front of data, returning the
// decoded instruction, the Spec it matched, and the number of bytes
// consumed. It never looks past the bytes it actually needs.
func (p Parser) Parse(data []byte) (decoded.Instruction, isa.Spec, int, error) {
	if p.DB == nil {
		return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.Internal, "codec: Parser has no Database")
	}

	pos := 0
	in := decoded.Instruction{}

	// Step 1: segment override / address-size override / operand-size
	// override / lock-rep legacy prefix bytes, in any order. Overrides may
	// repeat (the last segment override wins); a second lock/rep prefix is
	// rejected.
	var (
		sawOperandSizeOverride bool
		sawLockRep             isa.LegacyPrefixFamily
	)
legacyPrefixLoop:
	for pos < len(data) {
		b := data[pos]
		if (b == 0xF0 || b == 0xF2 || b == 0xF3) && sawLockRep != isa.LegacyPrefixNone {
			return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: more than one lock/rep prefix")
		}
		switch {
		case b == 0x67:
			in.AddressSizeOverride = true
			pos++
		case b == 0x66:
			sawOperandSizeOverride = true
			pos++
		case b == 0xF0:
			sawLockRep = isa.LegacyPrefixLock
			pos++
		case b == 0xF2:
			sawLockRep = isa.LegacyPrefixRepne
			pos++
		case b == 0xF3:
			sawLockRep = isa.LegacyPrefixRep
			pos++
		default:
			if seg, ok := decoded.SegmentForByte(b); ok {
				in.Segment = seg
				pos++
				continue
			}
			break legacyPrefixLoop
		}
	}

	// Step 2: prefix-kind branch.
	if pos >= len(data) {
		return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated instruction (no opcode byte)")
	}

	switch data[pos] {
	case 0xC5:
		if err := parseVEX2(data, &pos, &in); err != nil {
			return decoded.Instruction{}, isa.Spec{}, 0, err
		}
	case 0xC4:
		if err := parseVEX3(data, &pos, &in); err != nil {
			return decoded.Instruction{}, isa.Spec{}, 0, err
		}
	case 0x62:
		if err := parseEVEX(data, &pos, &in); err != nil {
			return decoded.Instruction{}, isa.Spec{}, 0, err
		}
	default:
		if pos < len(data) && data[pos] >= 0x40 && data[pos] <= 0x4F {
			rex := data[pos]
			in.Legacy.RexW = rex&0x08 != 0
			in.Legacy.RexR = rex&0x04 != 0
			in.Legacy.RexX = rex&0x02 != 0
			in.Legacy.RexB = rex&0x01 != 0
			pos++
		}
		in.Legacy.OperandSizeOverride = sawOperandSizeOverride
		in.Legacy.LockRep = sawLockRep
	}

	// Step 3: opcode accumulation. Legacy encodings walk byte-by-byte,
	// extending the opcode as long as the accumulated value is itself a
	// known prefix of some table entry; VEX/EVEX encodings carry their
	// opcode map in the prefix already, so exactly one opcode byte follows.
	if in.IsVEX || in.IsEVEX {
		if pos >= len(data) {
			return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated opcode")
		}
		in.Opcode = opcode.Opcode(data[pos])
		pos++
	} else {
		var op opcode.Opcode
		for {
			if pos >= len(data) {
				return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated opcode")
			}
			op = op<<8 | opcode.Opcode(data[pos])
			pos++
			if !p.DB.IsLegacyPrefixOpcode(op) {
				break
			}
		}
		in.Opcode = op
	}

	// Step 4: spec lookup, with an opcode-low-3-bits-zeroed fallback for
	// operand-in-opcode encodings.
	spec, err := p.lookupSpec(in)
	if err != nil {
		return decoded.Instruction{}, isa.Spec{}, 0, err
	}

	// Step 5: ModR/M, SIB, displacement.
	if spec.ModRMUsage != isa.ModRMNone {
		if pos >= len(data) {
			return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated ModR/M byte")
		}
		modrm := data[pos]
		pos++
		in.HasModRM = true
		in.ModRM.Mode = decoded.ModRMMode((modrm >> 6) & 0x03)
		in.ModRM.Reg = (modrm >> 3) & 0x07
		in.ModRM.RM = modrm & 0x07

		if decoded.ModRMDemandsSIB(in.ModRM.Mode, in.ModRM.RM) {
			if pos >= len(data) {
				return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated SIB byte")
			}
			sib := data[pos]
			pos++
			in.HasSIB = true
			in.SIB.Scale = (sib >> 6) & 0x03
			in.SIB.Index = (sib >> 3) & 0x07
			in.SIB.Base = sib & 0x07
		}

		dispLen := displacementLength(in.ModRM, in.HasSIB, in.SIB)
		if dispLen > 0 {
			if pos+dispLen > len(data) {
				return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated displacement")
			}
			in.ModRM.Displacement = decodeDisplacement(data[pos:pos+dispLen], dispLen)
			pos += dispLen
		}
	}

	// Step 6: re-lookup. A ModR/M opcode extension can select a different
	// Spec than the provisional one found in step 4.
	if spec.ModRMUsage == isa.ModRMOpcodeExtension {
		spec, err = p.lookupSpecWithExtension(in, int(in.ModRM.Reg))
		if err != nil {
			return decoded.Instruction{}, isa.Spec{}, 0, err
		}
	}

	// Step 7: immediates.
	if len(spec.ImmediateSizes) > 0 {
		in.Immediates = make([][]byte, len(spec.ImmediateSizes))
		for i, sz := range spec.ImmediateSizes {
			if pos+sz > len(data) {
				return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated immediate %d", i)
			}
			in.Immediates[i] = append([]byte(nil), data[pos:pos+sz]...)
			pos += sz
		}
	}

	// Step 8: code offset.
	if spec.CodeOffsetBytes > 0 {
		if pos+spec.CodeOffsetBytes > len(data) {
			return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated code offset")
		}
		in.CodeOffset = append([]byte(nil), data[pos:pos+spec.CodeOffsetBytes]...)
		pos += spec.CodeOffsetBytes
	}

	// Step 9: VEX suffix.
	if in.IsVEX && spec.Prefix.VEXEVEX.HasVEXSuffix {
		if pos >= len(data) {
			return decoded.Instruction{}, isa.Spec{}, 0, xerr.New(xerr.InvalidArgument, "codec: truncated VEX suffix")
		}
		in.VEX.HasSuffix = true
		in.VEX.Suffix = data[pos]
		pos++
	}

	return in, spec, pos, nil
}

// lookupSpec resolves a Spec by the opcode and prefix kind decoded so far,
// falling back to zeroing the low three opcode bits for operand-in-opcode
// encodings (spec.md §4.4 step 4).
func (p Parser) lookupSpec(in decoded.Instruction) (isa.Spec, error) {
	for _, idx := range p.DB.ByOpcode(in.Opcode) {
		s := p.DB.Instruction(idx)
		if specMatchesPrefixKind(s, in) {
			return s, nil
		}
	}
	if !in.IsVEX && !in.IsEVEX {
		masked := in.Opcode.WithLowThreeBits(0)
		for _, idx := range p.DB.ByOpcode(masked) {
			s := p.DB.Instruction(idx)
			if s.OperandInOpcode != isa.OperandInOpcodeNone && specMatchesPrefixKind(s, in) {
				return s, nil
			}
		}
	}
	return isa.Spec{}, xerr.New(xerr.NotFound, "codec: no spec matches opcode %s", in.Opcode)
}

// lookupSpecWithExtension resolves a Spec among those sharing in.Opcode by
// ModR/M opcode-extension value (spec.md §4.4 step 6).
func (p Parser) lookupSpecWithExtension(in decoded.Instruction, ext int) (isa.Spec, error) {
	for _, idx := range p.DB.ByOpcode(in.Opcode) {
		s := p.DB.Instruction(idx)
		if s.ModRMUsage == isa.ModRMOpcodeExtension && s.ModRMExtension == ext && specMatchesPrefixKind(s, in) {
			return s, nil
		}
	}
	return isa.Spec{}, xerr.New(xerr.NotFound, "codec: no spec matches opcode %s with ModR/M extension %d", in.Opcode, ext)
}

// specMatchesPrefixKind is the parser's (re-)selection predicate: does this
// Spec want the same legacy/VEX/EVEX kind the decoded instruction carries.
// validateForEncode makes the same check inline.
func specMatchesPrefixKind(s isa.Spec, in decoded.Instruction) bool {
	if s.Prefix.IsVEXEVEX != (in.IsVEX || in.IsEVEX) {
		return false
	}
	if !s.Prefix.IsVEXEVEX {
		return true
	}
	wantEVEX := s.Prefix.VEXEVEX.Kind == isa.KindEVEX
	return wantEVEX == in.IsEVEX
}

func displacementLength(m decoded.ModRM, hasSIB bool, sib decoded.SIB) int {
	switch m.Mode {
	case decoded.ModeIndirectDisp8:
		return 1
	case decoded.ModeIndirectDisp32:
		return 4
	case decoded.ModeIndirect:
		if !hasSIB && m.RM == 5 {
			return 4
		}
		if hasSIB && sib.Base == 5 {
			return 4
		}
		return 0
	default:
		return 0
	}
}

func decodeDisplacement(b []byte, n int) int32 {
	switch n {
	case 1:
		return int32(int8(b[0]))
	case 4:
		u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return int32(u)
	default:
		return 0
	}
}

func mandatoryPrefixFromPP(pp uint8) isa.MandatoryPrefix {
	switch pp {
	case 0b01:
		return isa.MandatoryPrefix66
	case 0b10:
		return isa.MandatoryPrefixF3
	case 0b11:
		return isa.MandatoryPrefixF2
	default:
		return isa.MandatoryPrefixNone
	}
}

func opcodeMapFromBits(mm uint8) isa.OpcodeMap {
	switch mm {
	case 0b00001:
		return isa.OpcodeMap0F
	case 0b00010:
		return isa.OpcodeMap0F38
	case 0b00011:
		return isa.OpcodeMap0F3A
	default:
		return isa.OpcodeMapUndefined
	}
}

func opcodeMapFromEVEXBits(mm uint8) isa.OpcodeMap {
	switch mm {
	case 0b01:
		return isa.OpcodeMap0F
	case 0b10:
		return isa.OpcodeMap0F38
	case 0b11:
		return isa.OpcodeMap0F3A
	default:
		return isa.OpcodeMapUndefined
	}
}

func parseVEX2(data []byte, pos *int, in *decoded.Instruction) error {
	if *pos+2 > len(data) {
		return xerr.New(xerr.InvalidArgument, "codec: truncated 2-byte VEX prefix")
	}
	b2 := data[*pos+1]
	*pos += 2

	in.IsVEX = true
	in.VEX.R = b2&0x80 == 0
	in.VEX.X = false
	in.VEX.B = false
	in.VEX.W = false
	in.VEX.Map = isa.OpcodeMap0F
	wireVVVV := (b2 >> 3) & 0x0F
	in.VEX.Register = (^wireVVVV) & 0x0F
	in.VEX.HasRegister = in.VEX.Register != 0
	in.VEX.VectorLength256 = b2&0x04 != 0
	in.VEX.MandatoryPrefix = mandatoryPrefixFromPP(b2 & 0x03)
	return nil
}

func parseVEX3(data []byte, pos *int, in *decoded.Instruction) error {
	if *pos+3 > len(data) {
		return xerr.New(xerr.InvalidArgument, "codec: truncated 3-byte VEX prefix")
	}
	b2, b3 := data[*pos+1], data[*pos+2]
	*pos += 3

	in.IsVEX = true
	in.VEX.R = b2&0x80 == 0
	in.VEX.X = b2&0x40 == 0
	in.VEX.B = b2&0x20 == 0
	in.VEX.Map = opcodeMapFromBits(b2 & 0x1F)
	in.VEX.W = b3&0x80 != 0
	wireVVVV := (b3 >> 3) & 0x0F
	in.VEX.Register = (^wireVVVV) & 0x0F
	in.VEX.HasRegister = in.VEX.Register != 0
	in.VEX.VectorLength256 = b3&0x04 != 0
	in.VEX.MandatoryPrefix = mandatoryPrefixFromPP(b3 & 0x03)
	return nil
}

func parseEVEX(data []byte, pos *int, in *decoded.Instruction) error {
	if *pos+4 > len(data) {
		return xerr.New(xerr.InvalidArgument, "codec: truncated EVEX prefix")
	}
	p0, p1, p2 := data[*pos+1], data[*pos+2], data[*pos+3]
	*pos += 4

	in.IsEVEX = true
	in.EVEX.R = p0&0x80 == 0
	in.EVEX.X = p0&0x40 == 0
	in.EVEX.B = p0&0x20 == 0
	in.EVEX.RPrime = p0&0x10 == 0
	in.EVEX.Map = opcodeMapFromEVEXBits(p0 & 0x03)

	in.EVEX.W = p1&0x80 != 0
	wireVVVV := (p1 >> 3) & 0x0F
	in.EVEX.MandatoryPrefix = mandatoryPrefixFromPP(p1 & 0x03)

	in.EVEX.Zeroing = p2&0x80 != 0
	in.EVEX.VectorLengthOrRounding = (p2 >> 5) & 0x03
	in.EVEX.BroadcastOrControl = p2&0x10 != 0
	wireVPrime := (p2 >> 3) & 0x01
	in.EVEX.OpmaskRegister = p2 & 0x07

	vvvv := (^wireVVVV) & 0x0F
	vPrime := (^wireVPrime) & 0x01
	in.EVEX.Register = vvvv | vPrime<<4
	in.EVEX.HasRegister = in.EVEX.Register != 0

	return nil
}
