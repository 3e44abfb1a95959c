package isa

import "strings"

// RegisterIndex is a nominal index type for a resolved register operand
// (0..31), distinct from Index so the two families of index
// can never be confused at compile time (spec.md §9 "strongly typed
// indices").
type RegisterIndex int

// InvalidRegister is returned by RegisterByName when the name does not
// resolve to any known register.
const InvalidRegister RegisterIndex = -1

// registerNames maps every canonical x86-64 register name this package
// knows about to its index. Holes in the control/debug register space
// (there is no CR1, CR5-CR7) are simply absent from the table, which
// makes them resolve to InvalidRegister like any other unknown name.
var registerNames = buildRegisterNames()

// RegisterByName resolves a canonical x86-64 register name (case sensitive,
// matching the conventional uppercase spelling) to its index, or
// InvalidRegister if the name is not recognized.
func RegisterByName(name string) RegisterIndex {
	if idx, ok := registerNames[name]; ok {
		return idx
	}
	return InvalidRegister
}

func buildRegisterNames() map[string]RegisterIndex {
	m := make(map[string]RegisterIndex, 256)

	gp8 := []string{"AL", "CL", "DL", "BL", "SPL", "BPL", "SIL", "DIL",
		"R8B", "R9B", "R10B", "R11B", "R12B", "R13B", "R14B", "R15B"}
	gp8hi := []string{"AH", "CH", "DH", "BH"} // share indices 4-7 with SPL..DIL in REX-less encodings
	gp16 := []string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI",
		"R8W", "R9W", "R10W", "R11W", "R12W", "R13W", "R14W", "R15W"}
	gp32 := []string{"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI",
		"R8D", "R9D", "R10D", "R11D", "R12D", "R13D", "R14D", "R15D"}
	gp64 := []string{"RAX", "RCX", "RDX", "RBX", "RSP", "RBP", "RSI", "RDI",
		"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15"}

	for width, names := range map[string][]string{"8": gp8, "16": gp16, "32": gp32, "64": gp64} {
		_ = width
		for i, n := range names {
			m[n] = RegisterIndex(i)
		}
	}
	for i, n := range gp8hi {
		m[n] = RegisterIndex(i + 4)
	}

	segments := []string{"ES", "CS", "SS", "DS", "FS", "GS"}
	for i, n := range segments {
		m[n] = RegisterIndex(i)
	}

	// Control registers: CR0, CR2-CR4, CR8 are the only architecturally
	// defined ones in this model; CR1 and CR5-CR7, CR9-CR15 are holes.
	for _, i := range []int{0, 2, 3, 4, 8} {
		m["CR"+itoa(i)] = RegisterIndex(i)
	}

	for i := 0; i <= 7; i++ {
		m["DR"+itoa(i)] = RegisterIndex(i)
	}

	for i := 0; i <= 7; i++ {
		m["ST"+itoa(i)] = RegisterIndex(i)
	}

	for _, prefix := range []string{"XMM", "YMM", "ZMM"} {
		for i := 0; i <= 31; i++ {
			m[prefix+itoa(i)] = RegisterIndex(i)
		}
	}

	return m
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [4]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// normalizeRegisterName upper-cases a name for case-insensitive lookups at
// the CLI/assembly-parsing boundary; the core table itself is keyed on the
// canonical uppercase spelling.
func normalizeRegisterName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
