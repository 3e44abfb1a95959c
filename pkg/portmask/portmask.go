// Package portmask provides the Mask value type: a bitset over execution
// ports 0..63 (x86 microarchitectures realistically use 0..7).
package portmask

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mask is a bitset over port numbers 0..63.
type Mask uint64

// FromPorts builds a Mask from a set of port numbers.
func FromPorts(ports ...int) Mask {
	var m Mask
	for _, p := range ports {
		m |= 1 << uint(p)
	}
	return m
}

// Ports returns the set ports in ascending order.
func (m Mask) Ports() []int {
	var ports []int
	for p := 0; p < 64; p++ {
		if m&(1<<uint(p)) != 0 {
			ports = append(ports, p)
		}
	}
	return ports
}

// Has reports whether port p is a member of m.
func (m Mask) Has(p int) bool {
	return m&(1<<uint(p)) != 0
}

// Popcount returns the number of set ports.
func (m Mask) Popcount() int {
	n := 0
	for m != 0 {
		m &= m - 1
		n++
	}
	return n
}

// String renders the mask in the "P0156" textual form: the letter P
// followed by each set port's digit in ascending order.
func (m Mask) String() string {
	var b strings.Builder
	b.WriteByte('P')
	for _, p := range m.Ports() {
		if p > 9 {
			// Ports are documented 0..63, but the textual form is only
			// canonical for single-digit ports; double-digit ports are
			// rendered space separated to stay unambiguous.
			fmt.Fprintf(&b, " %d", p)
			continue
		}
		b.WriteByte(byte('0' + p))
	}
	return b.String()
}

// ParsePortMask parses the textual form produced by String: letters P/p are
// ignored and each digit names one port; after a space, a run of digits
// names one port (the form String uses for ports above 9).
func ParsePortMask(s string) (Mask, error) {
	var ports []int
	var digits strings.Builder
	multiDigit := false
	flush := func() error {
		if digits.Len() == 0 {
			return nil
		}
		v, err := strconv.Atoi(digits.String())
		if err != nil {
			return fmt.Errorf("portmask: invalid port number in %q: %w", s, err)
		}
		ports = append(ports, v)
		digits.Reset()
		return nil
	}
	for _, r := range s {
		switch {
		case r == 'P' || r == 'p':
			if err := flush(); err != nil {
				return 0, err
			}
		case r == ' ':
			if err := flush(); err != nil {
				return 0, err
			}
			multiDigit = true
		case r >= '0' && r <= '9' && !multiDigit:
			ports = append(ports, int(r-'0'))
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		default:
			return 0, fmt.Errorf("portmask: unexpected character %q in %q", r, s)
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return FromPorts(ports...), nil
}

// Union returns the bitwise union of two masks.
func Union(a, b Mask) Mask { return a | b }

// Intersect returns the bitwise intersection of two masks.
func Intersect(a, b Mask) Mask { return a & b }

// SortByCardinality returns masks sorted by ascending popcount, then by
// numeric value, useful for the solver's "prefer wider masks" objective
// term which is indexed by cardinality.
func SortByCardinality(masks []Mask) []Mask {
	out := make([]Mask, len(masks))
	copy(out, masks)
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Popcount(), out[j].Popcount()
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}
