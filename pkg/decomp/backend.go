package decomp

import (
	"math"
	"math/rand"
	"time"
)

// solverBackend is the MIP engine as spec.md §9 says to treat it: an
// external dependency behind an interface exposing only the operations a
// caller needs. No off-the-shelf MIP library appears anywhere in the
// example corpus this repository was built from, so the only concrete
// implementation (annealingBackend) is a from-scratch simulated-annealing
// search rather than a wrapped commercial solver; it finds no proven
// optimum and does no branch-and-bound — see
// DESIGN.md for the per-dependency justification this choice requires.
type solverBackend interface {
	addVar(name string, lower, upper float64) int
	addConstraint(c constraint)
	setObjective(fn objectiveFunc)
	setTimeLimit(d time.Duration)
	solve() (assignment []float64, objective float64, err error)
}

// objectiveFunc scores a full variable assignment; the backend minimizes it.
type objectiveFunc func(values []float64) float64

// constraint is a soft penalty term added to the objective during search,
// rather than a hard linear-programming row — the annealing backend has no
// separate feasible-region projection step.
type constraint struct {
	name    string
	penalty func(values []float64) float64
}

type varBounds struct {
	name         string
	lower, upper float64
}

// annealingBackend implements solverBackend with Metropolis-Hastings
// annealing over continuous bounded variables only; it has no discrete
// variables and no branch-and-bound (the mask choice is made outside it, by
// greedyAssign in solve.go). It is modeled directly on the accept/anneal loop of
// a Markov-chain instruction-sequence optimizer: current/best candidates,
// a temperature that decays every step, and a cost function the chain
// tries to drive down (spec.md §9 solver-backend-as-interface).
type annealingBackend struct {
	vars        []varBounds
	constraints []constraint
	objective   objectiveFunc
	timeLimit   time.Duration
	rng         *rand.Rand
	seed        []float64
}

func newAnnealingBackend(seed int64) *annealingBackend {
	return &annealingBackend{rng: rand.New(rand.NewSource(seed))}
}

// seedCurrent overrides solve's default midpoint starting point. Callers
// that already have a good candidate (e.g. a water-filled decomposition)
// use this so the chain's "best" can only match or improve on it, never
// wander away from it into a worse starting neighborhood.
func (b *annealingBackend) seedCurrent(values []float64) {
	b.seed = append([]float64(nil), values...)
}

func (b *annealingBackend) addVar(name string, lower, upper float64) int {
	b.vars = append(b.vars, varBounds{name: name, lower: lower, upper: upper})
	return len(b.vars) - 1
}

func (b *annealingBackend) addConstraint(c constraint) {
	b.constraints = append(b.constraints, c)
}

func (b *annealingBackend) setObjective(fn objectiveFunc) { b.objective = fn }

func (b *annealingBackend) setTimeLimit(d time.Duration) { b.timeLimit = d }

func (b *annealingBackend) cost(values []float64) float64 {
	total := b.objective(values)
	for _, c := range b.constraints {
		total += c.penalty(values)
	}
	return total
}

// solve runs a Metropolis-Hastings chain: propose a perturbation to one
// variable, accept improving moves always and worsening moves with
// probability exp(-delta/temperature), and decay the temperature each step
// — the same accept/anneal shape as a Markov-chain instruction optimizer's
// Step method, applied here to continuous load variables instead of
// instruction sequences.
func (b *annealingBackend) solve() ([]float64, float64, error) {
	if b.objective == nil {
		return nil, 0, errNoObjective
	}
	current := make([]float64, len(b.vars))
	if len(b.seed) == len(b.vars) {
		copy(current, b.seed)
	} else {
		for i, v := range b.vars {
			current[i] = v.lower + (v.upper-v.lower)*0.5
		}
	}
	currentCost := b.cost(current)

	best := append([]float64(nil), current...)
	bestCost := currentCost

	deadline := time.Now().Add(b.timeLimit)
	if b.timeLimit <= 0 {
		deadline = time.Now().Add(50 * time.Millisecond)
	}

	temperature := 1.0
	for iter := 0; iter < 20000 && time.Now().Before(deadline); iter++ {
		candidate := append([]float64(nil), current...)
		idx := b.rng.Intn(len(b.vars))
		v := b.vars[idx]
		span := v.upper - v.lower
		if span <= 0 {
			continue
		}
		candidate[idx] = clamp(current[idx]+(b.rng.Float64()-0.5)*span*0.2, v.lower, v.upper)

		candidateCost := b.cost(candidate)
		delta := candidateCost - currentCost
		if delta < 0 || b.rng.Float64() < math.Exp(-delta/temperature) {
			current = candidate
			currentCost = candidateCost
			if currentCost < bestCost {
				best = append([]float64(nil), current...)
				bestCost = currentCost
			}
		}
		temperature *= 0.999
		if temperature < 1e-4 {
			temperature = 1e-4
		}
	}

	return best, bestCost, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
