package decoded

import (
	"github.com/oisee/x86isa/pkg/isa"
	"github.com/oisee/x86isa/pkg/xerr"
)

// OperandRole names which field of a decoded instruction a register or
// memory operand is encoded into (spec.md §4.2).
type OperandRole int

const (
	RoleModRMReg       OperandRole = iota // ModR/M.reg, extended by REX.R / VEX.R / EVEX.R,R'
	RoleModRMRM                           // ModR/M.rm in direct mode, extended by REX.B / VEX.B / EVEX.B
	RoleVEXRegister                       // VEX.vvvv / EVEX register field
	RoleVEXSuffix                         // VEX 8-bit immediate suffix, high nibble selects a register
	RoleOpcodeEmbedded                    // low three bits of the opcode byte, extended by REX.B
)

// SetRegister places reg into the field named by role, returning a new
// Instruction value. It never mutates its receiver (spec.md §9 value-typed
// APIs). An out-of-range index or a role this instruction cannot express
// (e.g. RoleVEXSuffix on a legacy-prefixed instruction) is an invalid
// argument.
func (in Instruction) SetRegister(role OperandRole, reg isa.RegisterIndex) (Instruction, error) {
	if reg < 0 || reg > 31 {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register index %d out of range 0..31", reg)
	}
	low3 := uint8(reg) & 0x07
	ext := uint8(reg) >> 3

	switch role {
	case RoleModRMReg:
		if !in.HasModRM {
			return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetRegister(ModRMReg): instruction has no ModR/M byte")
		}
		in.ModRM.Reg = low3
		switch {
		case in.IsEVEX:
			in.EVEX.R = ext&1 != 0
			in.EVEX.RPrime = ext&2 != 0
		case in.IsVEX:
			if ext > 1 {
				return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d needs EVEX, not VEX, for ModR/M.reg", reg)
			}
			in.VEX.R = ext&1 != 0
		default:
			if ext > 1 {
				return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d needs a REX.R-capable encoding", reg)
			}
			in.Legacy.RexR = ext&1 != 0
		}

	case RoleModRMRM:
		if !in.HasModRM {
			return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetRegister(ModRMRM): instruction has no ModR/M byte")
		}
		in.ModRM.Mode = ModeDirect
		in.ModRM.RM = low3
		switch {
		case in.IsEVEX:
			in.EVEX.B = ext&1 != 0
			if ext > 1 {
				return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d out of range for ModR/M.rm", reg)
			}
		case in.IsVEX:
			if ext > 1 {
				return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d needs EVEX, not VEX, for ModR/M.rm", reg)
			}
			in.VEX.B = ext&1 != 0
		default:
			if ext > 1 {
				return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d needs a REX.B-capable encoding", reg)
			}
			in.Legacy.RexB = ext&1 != 0
		}

	case RoleVEXRegister:
		switch {
		case in.IsEVEX:
			if reg > 31 {
				return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d out of range for EVEX register operand", reg)
			}
			in.EVEX.HasRegister = true
			in.EVEX.Register = uint8(reg)
		case in.IsVEX:
			if reg > 15 {
				return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d out of range for VEX.vvvv", reg)
			}
			in.VEX.HasRegister = true
			in.VEX.Register = uint8(reg)
		default:
			return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetRegister(VEXRegister): instruction is not VEX/EVEX-encoded")
		}

	case RoleVEXSuffix:
		if !in.IsVEX || !in.VEX.HasSuffix {
			return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetRegister(VEXSuffix): instruction has no VEX suffix byte")
		}
		if reg > 15 {
			return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d out of range for VEX suffix", reg)
		}
		in.VEX.Suffix = uint8(reg) << 4

	case RoleOpcodeEmbedded:
		if ext > 1 {
			return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: register %d needs a REX.B-capable encoding", reg)
		}
		in.Opcode = in.Opcode.WithLowThreeBits(low3)
		in.Legacy.RexB = ext&1 != 0

	default:
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: unknown operand role %d", role)
	}

	return in, nil
}

// SetMemoryAbsolute encodes a 32-bit absolute address: ModR/M selects
// indirect addressing with rm=100 (SIB follows), and the SIB byte selects
// "no base, no index" (base=101, index=100) so the displacement alone forms
// the address.
func (in Instruction) SetMemoryAbsolute(disp int32) (Instruction, error) {
	if !in.HasModRM {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetMemoryAbsolute: instruction has no ModR/M byte")
	}
	in.ModRM.Mode = ModeIndirect
	in.ModRM.RM = 4
	in.HasSIB = true
	in.SIB = SIB{Scale: 0, Index: 4, Base: 5}
	in.ModRM.Displacement = disp
	return in, nil
}

// SetMemoryBase encodes [reg]-style addressing directly through ModR/M.rm,
// without a SIB byte. Base registers 4 (needs a SIB to avoid colliding with
// the absolute-addressing escape) and 5 (needs an explicit disp8/32 to avoid
// colliding with RIP-relative addressing) are not representable this way.
func (in Instruction) SetMemoryBase(base isa.RegisterIndex) (Instruction, error) {
	if !in.HasModRM {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetMemoryBase: instruction has no ModR/M byte")
	}
	if base < 0 || base > 15 {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: base register %d out of range", base)
	}
	low3 := uint8(base) & 0x07
	if low3 == 4 || low3 == 5 {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: base register %d cannot be encoded directly through ModR/M.rm, use SetMemoryBaseSIB or SetMemoryBaseDisp", base)
	}
	in.ModRM.Mode = ModeIndirect
	in.ModRM.RM = low3
	ext := uint8(base) >> 3
	if in.IsEVEX {
		in.EVEX.B = ext != 0
	} else if in.IsVEX {
		in.VEX.B = ext != 0
	} else {
		in.Legacy.RexB = ext != 0
	}
	return in, nil
}

// SetMemoryBaseSIB encodes [base+index*scale] addressing via an explicit
// SIB byte. Base registers 5 and 13 (low bits 101) are rejected, since
// mode=INDIRECT with SIB.base=101 means "no base, disp32 only";
// SetMemoryBaseDisp is the entry point for those bases.
func (in Instruction) SetMemoryBaseSIB(base, index isa.RegisterIndex, scale uint8) (Instruction, error) {
	if !in.HasModRM {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetMemoryBaseSIB: instruction has no ModR/M byte")
	}
	if base < 0 || base > 15 || index < 0 || index > 15 {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetMemoryBaseSIB: register index out of range")
	}
	if scale > 3 {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetMemoryBaseSIB: scale field %d out of range 0..3", scale)
	}
	if uint8(base)&0x07 == 5 {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: base register %d needs SetMemoryBaseDisp", base)
	}
	in.ModRM.Mode = ModeIndirect
	in.ModRM.RM = 4
	in.HasSIB = true
	in.SIB = SIB{Scale: scale, Index: uint8(index) & 0x07, Base: uint8(base) & 0x07}

	baseExt := uint8(base) >> 3
	indexExt := uint8(index) >> 3
	if in.IsEVEX {
		in.EVEX.B = baseExt != 0
		in.EVEX.X = indexExt != 0
	} else if in.IsVEX {
		in.VEX.B = baseExt != 0
		in.VEX.X = indexExt != 0
	} else {
		in.Legacy.RexB = baseExt != 0
		in.Legacy.RexX = indexExt != 0
	}
	return in, nil
}

// SetMemoryRIPRelative encodes [RIP+disp32] addressing: mode=INDIRECT,
// rm=101, no SIB, a 32-bit signed displacement from the next instruction's
// first byte.
func (in Instruction) SetMemoryRIPRelative(disp int32) (Instruction, error) {
	if !in.HasModRM {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetMemoryRIPRelative: instruction has no ModR/M byte")
	}
	in.ModRM.Mode = ModeIndirect
	in.ModRM.RM = 5
	in.HasSIB = false
	in.ModRM.Displacement = disp
	return in, nil
}

// SetMemoryBaseDisp encodes [base+disp8] or [base+disp32] addressing
// directly through ModR/M.rm with an explicit displacement, for the base
// registers SetMemoryBase cannot express: 5 (BP/R13, needs disp8/32 to
// avoid the RIP-relative escape) — base 4 still needs a SIB byte and is
// rejected here too.
func (in Instruction) SetMemoryBaseDisp(base isa.RegisterIndex, disp int32) (Instruction, error) {
	if !in.HasModRM {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: SetMemoryBaseDisp: instruction has no ModR/M byte")
	}
	if base < 0 || base > 15 {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: base register %d out of range", base)
	}
	low3 := uint8(base) & 0x07
	if low3 == 4 {
		return Instruction{}, xerr.New(xerr.InvalidArgument, "decoded: base register %d requires a SIB byte, use SetMemoryBaseSIB", base)
	}
	if disp >= -128 && disp <= 127 {
		in.ModRM.Mode = ModeIndirectDisp8
	} else {
		in.ModRM.Mode = ModeIndirectDisp32
	}
	in.ModRM.RM = low3
	in.ModRM.Displacement = disp
	ext := uint8(base) >> 3
	if in.IsEVEX {
		in.EVEX.B = ext != 0
	} else if in.IsVEX {
		in.VEX.B = ext != 0
	} else {
		in.Legacy.RexB = ext != 0
	}
	return in, nil
}
