package portmask

import (
	"reflect"
	"testing"
)

func TestRoundTripFromPorts(t *testing.T) {
	tests := [][]int{
		{},
		{0},
		{0, 1, 5, 6},
		{2, 3, 7},
	}
	for _, ports := range tests {
		m := FromPorts(ports...)
		if got := FromPorts(m.Ports()...); got != m {
			t.Errorf("FromPorts(%v).Ports() round trip = %#x, want %#x", ports, got, m)
		}
	}
}

func TestRoundTripString(t *testing.T) {
	tests := []struct {
		ports []int
		want  string
	}{
		{[]int{0, 1, 5, 6}, "P0156"},
		{[]int{2, 3, 7}, "P237"},
		{[]int{4}, "P4"},
	}
	for _, tc := range tests {
		m := FromPorts(tc.ports...)
		if got := m.String(); got != tc.want {
			t.Errorf("FromPorts(%v).String() = %q, want %q", tc.ports, got, tc.want)
		}
		parsed, err := ParsePortMask(tc.want)
		if err != nil {
			t.Fatalf("ParsePortMask(%q): %v", tc.want, err)
		}
		if parsed != m {
			t.Errorf("ParsePortMask(%q) = %#x, want %#x", tc.want, parsed, m)
		}
	}
}

func TestPorts(t *testing.T) {
	m := FromPorts(6, 1, 0, 5)
	if got, want := m.Ports(), []int{0, 1, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("Ports() = %v, want %v", got, want)
	}
}

func TestPopcount(t *testing.T) {
	if got := FromPorts(0, 1, 5, 6).Popcount(); got != 4 {
		t.Errorf("Popcount() = %d, want 4", got)
	}
	if got := Mask(0).Popcount(); got != 0 {
		t.Errorf("Popcount() of empty mask = %d, want 0", got)
	}
}

func TestParsePortMaskIgnoresCaseOfP(t *testing.T) {
	m, err := ParsePortMask("p0156")
	if err != nil {
		t.Fatalf("ParsePortMask: %v", err)
	}
	if want := FromPorts(0, 1, 5, 6); m != want {
		t.Errorf("ParsePortMask(lowercase) = %#x, want %#x", m, want)
	}
}

func TestSortByCardinality(t *testing.T) {
	in := []Mask{FromPorts(0, 1, 5, 6), FromPorts(4), FromPorts(2, 3, 7)}
	out := SortByCardinality(in)
	if out[0].Popcount() > out[1].Popcount() || out[1].Popcount() > out[2].Popcount() {
		t.Errorf("SortByCardinality not ascending: %v", out)
	}
}
