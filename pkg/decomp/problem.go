// Package decomp infers per-instruction execution-port usage from
// performance-counter measurements: given a microarchitecture's candidate
// port masks and a set of measured per-port cycle counts, it searches for the
// uops, and the mask each one occupies, with the lowest objective that
// reconstructs the measurements within an error budget (spec.md §6).
package decomp

import "github.com/oisee/x86isa/pkg/portmask"

// Measurement is one port's observed average cycles-busy count for the
// instruction under decomposition.
type Measurement struct {
	Port  int
	Value float64
}

// Problem is one decomposition-solver invocation.
type Problem struct {
	// CandidateMasks is the set of port combinations the target
	// microarchitecture can actually issue a uop to (typically
	// Microarchitecture.Masks).
	CandidateMasks []portmask.Mask

	// Measurements holds the observed per-port cycle counts to reconstruct.
	Measurements []Measurement

	// MaxUops bounds how many uops the solver will try before giving up.
	// Ignored when FixedUops is set.
	MaxUops int

	// FixedUops, when positive, forces the solver to decompose into exactly
	// this many uops instead of searching 1..MaxUops for the best count.
	// Real measurements typically do fix this independently (e.g. from a
	// retired-uops performance counter): the port measurements alone are
	// not enough to distinguish "one uop at twice the load" from "two uops
	// at half the load each" on the same mask.
	FixedUops int

	// Retired is the measured retired-uops-per-iteration count (spec.md
	// §4.5/§6), the performance-counter value the real decomposition model
	// anchors num_uops against: unless FixedUops is set, the search never
	// tries fewer uops than floor(Retired), and values above 50 are rejected outright as an
	// instrumentation error rather than modeled (spec.md §4.5 "Upper bound
	// on µops"). Zero means the count is unconstrained by a retired-uops
	// measurement and the search floor falls back to 1.
	Retired float64

	// MaxLoadPerUop caps how much of a port's per-iteration demand a
	// single uop can claim, modeling that a single static uop contributes
	// at most one dynamic execution's worth of port pressure per
	// iteration. Zero means unbounded.
	MaxLoadPerUop float64

	// ErrorBudget is the maximum acceptable L1 reconstruction error; a
	// solution whose error exceeds it is rejected (spec.md §6.2).
	ErrorBudget float64
}

// maxRetiredUops is spec.md §4.5's hard cap: a retired-uop count above this
// is treated as a measurement error, not a decomposition to solve.
const maxRetiredUops = 50.0

// Solution is the inferred per-uop port decomposition, in solver order (not
// necessarily final program order — see Order in order.go). PortLoads[i]
// holds one share per port in Masks[i].Ports(), in that order, summing to 1:
// spec.md §4.5 models a uop's execution as a distribution of its single
// dynamic issue across the ports its mask allows, not a scalar replicated
// onto every one of them, so the ports of a wide mask can carry unequal
// shares of its load (the quantity the objective's balance term judges).
type Solution struct {
	Masks     []portmask.Mask
	PortLoads [][]float64
	Objective float64
	Error     float64
	MaxError  float64
	NumUops   int
}

func measurementValue(ms []Measurement, port int) float64 {
	for _, m := range ms {
		if m.Port == port {
			return m.Value
		}
	}
	return 0
}

func maxPortIndex(ms []Measurement) int {
	max := -1
	for _, m := range ms {
		if m.Port > max {
			max = m.Port
		}
	}
	return max
}
