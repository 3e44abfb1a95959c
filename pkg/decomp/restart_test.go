package decomp

import (
	"testing"

	"github.com/oisee/x86isa/pkg/portmask"
)

func TestSolveWithRestartsMatchesSingleChainOnTrivialProblem(t *testing.T) {
	problem := Problem{
		CandidateMasks: []portmask.Mask{portmask.FromPorts(0), portmask.FromPorts(1)},
		Measurements: []Measurement{
			{Port: 0, Value: 1.0},
			{Port: 1, Value: 1.0},
		},
		MaxUops:       4,
		MaxLoadPerUop: 1.0,
		ErrorBudget:   1e-6,
	}
	sol, err := SolveWithRestarts(problem, 6)
	if err != nil {
		t.Fatalf("SolveWithRestarts: %v", err)
	}
	if sol.NumUops != 2 {
		t.Errorf("NumUops = %d, want 2", sol.NumUops)
	}
	if sol.Error > 1e-6 {
		t.Errorf("Error = %v, want ~0", sol.Error)
	}
}

func TestSolveWithRestartsOneBehavesLikeSolve(t *testing.T) {
	problem := Problem{
		CandidateMasks: []portmask.Mask{portmask.FromPorts(0)},
		Measurements:   []Measurement{{Port: 0, Value: 1.0}},
		FixedUops:      1,
		MaxLoadPerUop:  1.0,
		ErrorBudget:    1e-6,
	}
	sol, err := SolveWithRestarts(problem, 1)
	if err != nil {
		t.Fatalf("SolveWithRestarts: %v", err)
	}
	if sol.NumUops != 1 {
		t.Errorf("NumUops = %d, want 1", sol.NumUops)
	}
}

func TestSolveWithRestartsPropagatesInfeasibleError(t *testing.T) {
	problem := Problem{
		CandidateMasks: []portmask.Mask{portmask.FromPorts(0)},
		Measurements:   []Measurement{{Port: 0, Value: 5.0}, {Port: 1, Value: 5.0}},
		FixedUops:      1,
		MaxLoadPerUop:  1.0,
		ErrorBudget:    0.01,
	}
	if _, err := SolveWithRestarts(problem, 4); err == nil {
		t.Error("SolveWithRestarts returned nil error for an infeasible problem")
	}
}
