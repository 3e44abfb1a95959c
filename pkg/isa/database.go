package isa

import (
	"github.com/oisee/x86isa/pkg/opcode"
	"github.com/oisee/x86isa/pkg/xerr"
)

// Index is a nominal index into a Database, valid only within the instance
// that produced it (spec.md §4.1; §9 "strongly typed indices").
type Index int

// Database is an immutable, indexed table of instruction specifications.
// It is built once (typically at process startup) and may be shared freely
// across readers without synchronization (spec.md §5).
type Database struct {
	specs []Spec

	byRawSpec  map[string][]Index
	byMnemonic map[string][]Index
	byOpcode   map[opcode.Opcode][]Index

	legacyPrefixOpcodes map[opcode.Opcode]struct{}
}

// NewDatabase validates every spec and builds the indices described in
// spec.md §4.1. A spec that fails validation makes construction fail
// entirely: the database is all-or-nothing, never partially built.
func NewDatabase(specs []Spec) (*Database, error) {
	db := &Database{
		specs:               make([]Spec, len(specs)),
		byRawSpec:           make(map[string][]Index),
		byMnemonic:          make(map[string][]Index),
		byOpcode:            make(map[opcode.Opcode][]Index),
		legacyPrefixOpcodes: make(map[opcode.Opcode]struct{}),
	}
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, xerr.Wrap(xerr.InvalidArgument, err, "database: spec %d", i)
		}
		db.specs[i] = s
		idx := Index(i)
		db.byRawSpec[s.RawSpec] = append(db.byRawSpec[s.RawSpec], idx)
		db.byMnemonic[s.Mnemonic] = append(db.byMnemonic[s.Mnemonic], idx)
		db.byOpcode[s.Opcode] = append(db.byOpcode[s.Opcode], idx)

		if !s.Prefix.IsVEXEVEX {
			for _, prefix := range s.Opcode.LegacyPrefixes() {
				db.legacyPrefixOpcodes[prefix] = struct{}{}
			}
		}
	}
	return db, nil
}

// NumInstructions returns the number of specs in the database.
func (db *Database) NumInstructions() int { return len(db.specs) }

// Instruction returns the spec at index i. i must have been produced by
// this same Database instance.
func (db *Database) Instruction(i Index) Spec { return db.specs[i] }

// All iterates over every (Index, Spec) pair in the database, in insertion
// order.
func (db *Database) All(yield func(Index, Spec) bool) {
	for i, s := range db.specs {
		if !yield(Index(i), s) {
			return
		}
	}
}

// ByRawSpec looks up instructions by their textual encoding-specification
// string. A miss returns nil, never an error (spec.md §4.1).
func (db *Database) ByRawSpec(raw string) []Index {
	return db.byRawSpec[raw]
}

// ByMnemonic looks up instructions by disassembler mnemonic.
func (db *Database) ByMnemonic(mnemonic string) []Index {
	return db.byMnemonic[mnemonic]
}

// ByOpcode looks up instructions by their base Opcode.
func (db *Database) ByOpcode(op opcode.Opcode) []Index {
	return db.byOpcode[op]
}

// IsLegacyPrefixOpcode reports whether op is a proper byte-shifted prefix
// of any legacy-encoded opcode in the table (used by the parser to decide
// whether to keep consuming opcode bytes, spec.md §4.4.3).
func (db *Database) IsLegacyPrefixOpcode(op opcode.Opcode) bool {
	_, ok := db.legacyPrefixOpcodes[op]
	return ok
}
