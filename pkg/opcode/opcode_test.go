package opcode

import "testing"

func TestStringCanonicalForm(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		want string
	}{
		{"zero", 0, "00"},
		{"nop", 0x90, "90"},
		{"two-byte", 0x0F06, "0F 06"},
		{"three-byte", 0x0F3805, "0F 38 05"},
		{"leading-zero-byte-of-nonzero", 0x000F06, "0F 06"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.op.String(); got != tc.want {
				t.Errorf("Opcode(%#x).String() = %q, want %q", uint32(tc.op), got, tc.want)
			}
		})
	}
}

func TestParseOpcodeRoundTrip(t *testing.T) {
	for _, op := range []Opcode{0, 0x90, 0x0F06, 0x0F3805, 0xC4E241} {
		got, err := ParseOpcode(op.String())
		if err != nil {
			t.Fatalf("ParseOpcode(%q): %v", op.String(), err)
		}
		if got != op {
			t.Errorf("ParseOpcode(%q) = %#x, want %#x", op.String(), uint32(got), uint32(op))
		}
	}
}

func TestParseOpcodeInvalid(t *testing.T) {
	for _, s := range []string{"", "ZZ", "00 00 00 00 00"} {
		if _, err := ParseOpcode(s); err == nil {
			t.Errorf("ParseOpcode(%q): expected error, got nil", s)
		}
	}
}

func TestStringMonotonic(t *testing.T) {
	// Opcodes of equal byte-length sort the same way numerically and
	// lexicographically once rendered as fixed-width hex pairs.
	ops := []Opcode{0x01, 0x02, 0x0A, 0x10, 0xFF}
	for i := 1; i < len(ops); i++ {
		if !(ops[i-1].String() < ops[i].String()) {
			t.Errorf("expected %s < %s", ops[i-1], ops[i])
		}
	}
}

func TestLegacyPrefixes(t *testing.T) {
	tests := []struct {
		op   Opcode
		want []Opcode
	}{
		{0x90, nil},
		{0x0F06, []Opcode{0x0F}},
		{0x0F3805, []Opcode{0x0F38, 0x0F}},
	}
	for _, tc := range tests {
		got := tc.op.LegacyPrefixes()
		if len(got) != len(tc.want) {
			t.Fatalf("LegacyPrefixes(%s) = %v, want %v", tc.op, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("LegacyPrefixes(%s)[%d] = %s, want %s", tc.op, i, got[i], tc.want[i])
			}
		}
	}
}

func TestMarshalTextRoundTrip(t *testing.T) {
	op := Opcode(0x0F3805)
	text, err := op.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got Opcode
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != op {
		t.Errorf("round trip = %s, want %s", got, op)
	}
}
