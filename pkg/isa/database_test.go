package isa

import (
	"testing"

	"github.com/oisee/x86isa/pkg/opcode"
)

func TestNewDatabaseIndices(t *testing.T) {
	db, err := NewDatabase(BuiltinSpecs())
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	if db.NumInstructions() != len(BuiltinSpecs()) {
		t.Fatalf("NumInstructions() = %d, want %d", db.NumInstructions(), len(BuiltinSpecs()))
	}

	nop := db.ByMnemonic("NOP")
	if len(nop) != 1 {
		t.Fatalf("ByMnemonic(NOP) = %v, want one match", nop)
	}
	if got := db.Instruction(nop[0]).Opcode; got != opcode.Opcode(0x90) {
		t.Errorf("NOP opcode = %s, want 90", got)
	}

	if got := db.ByRawSpec("87 /r"); len(got) != 1 {
		t.Errorf("ByRawSpec(87 /r) = %v, want one match", got)
	}

	if got := db.ByOpcode(opcode.Opcode(0x0F06)); len(got) != 1 {
		t.Errorf("ByOpcode(0F06) = %v, want one match", got)
	}
}

func TestMissingLookupsAreEmptyNotError(t *testing.T) {
	db, err := NewDatabase(BuiltinSpecs())
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	if got := db.ByMnemonic("DOES_NOT_EXIST"); got != nil {
		t.Errorf("ByMnemonic(miss) = %v, want nil", got)
	}
	if got := db.ByOpcode(opcode.Opcode(0xDEADBEEF)); got != nil {
		t.Errorf("ByOpcode(miss) = %v, want nil", got)
	}
}

func TestLegacyPrefixOpcodes(t *testing.T) {
	db, err := NewDatabase(BuiltinSpecs())
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	// CLTS (0x0F06) is legacy-encoded, so 0x0F is a tracked prefix.
	if !db.IsLegacyPrefixOpcode(opcode.Opcode(0x0F)) {
		t.Errorf("expected 0x0F to be a tracked legacy prefix opcode")
	}
	// NOP (0x90) has no prefix bytes to track.
	if db.IsLegacyPrefixOpcode(opcode.Opcode(0x90)) {
		t.Errorf("did not expect 0x90 to be a tracked legacy prefix opcode")
	}
}

func TestInvalidSpecRejected(t *testing.T) {
	bad := Spec{
		RawSpec:         "bad",
		Opcode:          opcode.Opcode(0x01), // low bits nonzero
		OperandInOpcode: OperandInOpcodeGPR,
	}
	if _, err := NewDatabase([]Spec{bad}); err == nil {
		t.Fatal("expected error for invalid spec, got nil")
	}
}
