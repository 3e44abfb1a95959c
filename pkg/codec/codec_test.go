package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oisee/x86isa/pkg/decoded"
	"github.com/oisee/x86isa/pkg/isa"
	"github.com/oisee/x86isa/pkg/xerr"
)

func specByMnemonic(t *testing.T, mnemonic string) isa.Spec {
	t.Helper()
	for _, s := range isa.BuiltinSpecs() {
		if s.Mnemonic == mnemonic {
			return s
		}
	}
	t.Fatalf("no builtin spec named %q", mnemonic)
	return isa.Spec{}
}

func testDB(t *testing.T) *isa.Database {
	t.Helper()
	db, err := isa.NewDatabase(isa.BuiltinSpecs())
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	return db
}

// scenario 1 (spec.md §8): NOP encodes as a single byte, no prefixes.
func TestEncodeNOP(t *testing.T) {
	spec := specByMnemonic(t, "NOP")
	in := decoded.NewFromSpec(spec)

	got, err := Encode(spec, in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x90}
	if !cmp.Equal(got, want) {
		t.Errorf("Encode(NOP) = % X, want % X", got, want)
	}
}

// scenario 2 (spec.md §8): CLTS is the two-byte legacy opcode 0F 06.
func TestEncodeCLTS(t *testing.T) {
	spec := specByMnemonic(t, "CLTS")
	in := decoded.NewFromSpec(spec)

	got, err := Encode(spec, in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x0F, 0x06}
	if !cmp.Equal(got, want) {
		t.Errorf("Encode(CLTS) = % X, want % X", got, want)
	}
}

// scenario 3 (spec.md §8): XCHG EDX, [RSI+RCX*4+0x40] through an explicit
// SIB byte and a one-byte displacement.
func TestEncodeXCHGSIBDisp8(t *testing.T) {
	spec := specByMnemonic(t, "XCHG")
	in := decoded.NewFromSpec(spec)

	in, err := in.SetRegister(decoded.RoleModRMReg, isa.RegisterByName("EDX"))
	if err != nil {
		t.Fatalf("SetRegister: %v", err)
	}
	in, err = in.SetMemoryBaseSIB(isa.RegisterByName("ESI"), isa.RegisterByName("ECX"), 2)
	if err != nil {
		t.Fatalf("SetMemoryBaseSIB: %v", err)
	}
	in.ModRM.Mode = decoded.ModeIndirectDisp8
	in.ModRM.Displacement = 0x40

	got, err := Encode(spec, in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x87, 0x54, 0x8E, 0x40}
	if !cmp.Equal(got, want) {
		t.Errorf("Encode(XCHG SIB disp8) = % X, want % X", got, want)
	}

	roundTripThroughParser(t, spec, got)
}

// scenario 4 (spec.md §8): XCHG EDX, [RIP-0x4E].
func TestEncodeXCHGRIPRelative(t *testing.T) {
	spec := specByMnemonic(t, "XCHG")
	in := decoded.NewFromSpec(spec)

	in, err := in.SetRegister(decoded.RoleModRMReg, isa.RegisterByName("EDX"))
	if err != nil {
		t.Fatalf("SetRegister: %v", err)
	}
	in, err = in.SetMemoryRIPRelative(-78)
	if err != nil {
		t.Fatalf("SetMemoryRIPRelative: %v", err)
	}

	got, err := Encode(spec, in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x87, 0x15, 0xB2, 0xFF, 0xFF, 0xFF}
	if !cmp.Equal(got, want) {
		t.Errorf("Encode(XCHG RIP-relative) = % X, want % X", got, want)
	}

	roundTripThroughParser(t, spec, got)
}

// scenario 5 (spec.md §8): VFNMSUB132SS, a 3-byte-VEX instruction (forced
// by its 0F38 opcode map even though none of its operands need REX.X/B).
func TestEncodeVFNMSUB132SS(t *testing.T) {
	spec := specByMnemonic(t, "VFNMSUB132SS")
	in := decoded.NewFromSpec(spec)
	if !in.IsVEX {
		t.Fatal("expected VEX-encoded base instruction")
	}

	in, err := in.SetRegister(decoded.RoleModRMReg, isa.RegisterByName("XMM3"))
	if err != nil {
		t.Fatalf("SetRegister(reg): %v", err)
	}
	in, err = in.SetRegister(decoded.RoleVEXRegister, isa.RegisterByName("XMM7"))
	if err != nil {
		t.Fatalf("SetRegister(vvvv): %v", err)
	}
	in, err = in.SetRegister(decoded.RoleModRMRM, isa.RegisterByName("XMM4"))
	if err != nil {
		t.Fatalf("SetRegister(rm): %v", err)
	}

	got, err := Encode(spec, in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0xC4, 0xE2, 0x41, 0x9F, 0xDC}
	if !cmp.Equal(got, want) {
		t.Errorf("Encode(VFNMSUB132SS) = % X, want % X", got, want)
	}

	roundTripThroughParser(t, spec, got)
}

// scenario 6 (spec.md §8): VCVTDQ2PD under EVEX with an opmask register and
// zeroing-masking requested.
func TestEncodeVCVTDQ2PDEVEXOpmaskZeroing(t *testing.T) {
	spec := specByMnemonic(t, "VCVTDQ2PD")
	in := decoded.NewFromSpec(spec)
	if !in.IsEVEX {
		t.Fatal("expected EVEX-encoded base instruction")
	}

	in, err := in.SetRegister(decoded.RoleModRMReg, isa.RegisterByName("XMM1"))
	if err != nil {
		t.Fatalf("SetRegister(reg): %v", err)
	}
	in, err = in.SetRegister(decoded.RoleModRMRM, isa.RegisterByName("XMM2"))
	if err != nil {
		t.Fatalf("SetRegister(rm): %v", err)
	}
	in.EVEX.OpmaskRegister = 1
	in.EVEX.Zeroing = true

	got, err := Encode(spec, in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x62, 0xF1, 0x7E, 0x89, 0xE6, 0xCA}
	if !cmp.Equal(got, want) {
		t.Errorf("Encode(VCVTDQ2PD) = % X, want % X", got, want)
	}

	roundTripThroughParser(t, spec, got)
}

func TestEncodeRejectsMismatchedImmediateCount(t *testing.T) {
	spec := specByMnemonic(t, "NOP")
	in := decoded.NewFromSpec(spec)
	in.Immediates = [][]byte{{0x01}}
	_, err := Encode(spec, in)
	if err == nil {
		t.Fatal("expected error for unexpected immediate")
	}
	if kind, ok := xerr.KindOf(err); !ok || kind != xerr.InvalidArgument {
		t.Errorf("error kind = %v, want InvalidArgument", kind)
	}
}

func roundTripThroughParser(t *testing.T, spec isa.Spec, encoded []byte) {
	t.Helper()
	db := testDB(t)
	p := Parser{DB: db}

	parsed, gotSpec, n, err := p.Parse(encoded)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n != len(encoded) {
		t.Errorf("Parse consumed %d bytes, want %d", n, len(encoded))
	}
	if gotSpec.Mnemonic != spec.Mnemonic {
		t.Errorf("Parse matched spec %q, want %q", gotSpec.Mnemonic, spec.Mnemonic)
	}

	reencoded, err := Encode(gotSpec, parsed)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !cmp.Equal(reencoded, encoded) {
		t.Errorf("round trip mismatch: got % X, want % X", reencoded, encoded)
	}
}

