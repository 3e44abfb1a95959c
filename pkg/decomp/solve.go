package decomp

import (
	"sort"
	"time"

	"github.com/oisee/x86isa/pkg/portmask"
	"github.com/oisee/x86isa/pkg/xerr"
)

var errNoObjective = xerr.New(xerr.Internal, "decomp: solve() called with no objective set")

// portMaskSizeWeights is the real MIP model's decreasing weight-by-width
// table (spec.md §6, lifted from the original solver's
// kPortMaskSizeWeights): a wider mask leaves the real scheduler more
// freedom, so using one costs less in the "prefer wide masks" term of the
// objective. Indexed by mask cardinality (popcount); index 0 is unused
// since an empty mask never appears in a decomposition.
var portMaskSizeWeights = [...]float64{1, 32, 16, 8, 4, 2, 1}

// Objective coefficients (spec.md §6.2), lifted from the original solver's
// kBalancingWeight/kErrorWeight/kMaxErrorWeight/kNumUopsWeight constants.
const (
	weightBalance = 10000.0
	weightError   = 1000.0
	weightMaxErr  = 1000.0
	weightUop     = 1.0
)

func portMaskWeight(cardinality int) float64 {
	if cardinality <= 0 {
		return portMaskSizeWeights[0]
	}
	if cardinality >= len(portMaskSizeWeights) {
		return portMaskSizeWeights[len(portMaskSizeWeights)-1]
	}
	return portMaskSizeWeights[cardinality]
}

// Solve infers the smallest-objective port decomposition that reconstructs
// problem.Measurements within problem.ErrorBudget (spec.md §6). For each
// candidate uop count, a greedy construction appends, one uop at a time,
// whichever candidate mask yields the lowest real objective once its share
// of each port it touches is assigned by water-filling (see assignLoads);
// the resulting per-port shares are then polished by a short annealing
// pass before scoring.
func Solve(problem Problem) (Solution, error) {
	return solveWithSeed(problem, 1)
}

// maskInRange reports whether every port m touches has a measurement.
func maskInRange(m portmask.Mask, maxPort int) bool {
	for _, p := range m.Ports() {
		if p > maxPort {
			return false
		}
	}
	return true
}

// greedyAssign builds one candidate decomposition of exactly k uops: at
// each step it tries every candidate mask, water-fills it (and every uop
// already chosen) against the raw measurements via assignLoads, and keeps
// whichever candidate leaves the real objective (spec.md §6.2) lowest. This
// is a local, one-mask-at-a-time search, not the original's exact MIP, so
// it is not guaranteed to find the global optimum — see DESIGN.md.
func greedyAssign(problem Problem, k int) ([]portmask.Mask, [][]float64, error) {
	maxPort := maxPortIndex(problem.Measurements)
	if maxPort < 0 {
		return nil, nil, xerr.New(xerr.InvalidArgument, "decomp: no measurements supplied")
	}
	if len(problem.CandidateMasks) == 0 {
		return nil, nil, xerr.New(xerr.InvalidArgument, "decomp: no candidate masks supplied")
	}
	original := make([]float64, maxPort+1)
	for p := range original {
		original[p] = measurementValue(problem.Measurements, p)
	}

	masks := make([]portmask.Mask, 0, k)
	var portLoads [][]float64

	for step := 0; step < k; step++ {
		bestMask := portmask.Mask(0)
		var bestLoads [][]float64
		bestObj := 0.0
		found := false

		for _, m := range problem.CandidateMasks {
			if !maskInRange(m, maxPort) {
				continue
			}
			trial := make([]portmask.Mask, len(masks)+1)
			copy(trial, masks)
			trial[len(masks)] = m

			trialLoads := assignLoads(trial, original, maxPort, problem.MaxLoadPerUop)
			_, errs := reconstructAndErrors(problem, trial, trialLoads, maxPort)
			obj := objective(trial, trialLoads, errs)

			if !found || obj < bestObj-1e-12 {
				bestMask, bestLoads, bestObj, found = m, trialLoads, obj, true
			}
		}

		if !found {
			bestMask = narrowestMask(problem.CandidateMasks)
			trial := append(append([]portmask.Mask(nil), masks...), bestMask)
			bestLoads = assignLoads(trial, original, maxPort, problem.MaxLoadPerUop)
		}

		masks = append(masks, bestMask)
		portLoads = bestLoads
	}

	return masks, portLoads, nil
}

func narrowestMask(masks []portmask.Mask) portmask.Mask {
	sorted := portmask.SortByCardinality(masks)
	if len(sorted) == 0 {
		return portmask.Mask(0)
	}
	return sorted[0]
}

// portCaps reads residual[p] for each port in ports, clamped to zero.
func portCaps(residual []float64, ports []int) []float64 {
	caps := make([]float64, len(ports))
	for i, p := range ports {
		if p < len(residual) && residual[p] > 0 {
			caps[i] = residual[p]
		}
	}
	return caps
}

// waterFillEven splits total across len(caps) shares so as to minimize the
// spread (max-min) of the result, filling the tightest-capped slots to
// their cap first and equalizing the rest (spec.md §6.2's balance term is
// exactly this spread) — the standard water-filling construction. When the
// combined caps fall short of total, the shortfall is spread evenly across
// every slot: a uop's shares must still sum to exactly total (is_used=1 in
// the original model is not negotiable), so the excess has to land
// somewhere even if it overshoots every one of the uop's ports.
func waterFillEven(caps []float64, total float64) []float64 {
	n := len(caps)
	shares := make([]float64, n)
	if n == 0 {
		return shares
	}
	sumCaps := 0.0
	for _, c := range caps {
		if c > 0 {
			sumCaps += c
		}
	}
	if total > sumCaps {
		overflow := (total - sumCaps) / float64(n)
		for i, c := range caps {
			if c < 0 {
				c = 0
			}
			shares[i] = c + overflow
		}
		return shares
	}

	fixed := make([]bool, n)
	remaining := total
	for {
		activeN := 0
		for i := range caps {
			if !fixed[i] {
				activeN++
			}
		}
		if activeN == 0 {
			break
		}
		fair := remaining / float64(activeN)
		pick := -1
		for i := range caps {
			if fixed[i] {
				continue
			}
			if caps[i] < fair-1e-12 && (pick == -1 || caps[i] < caps[pick]) {
				pick = i
			}
		}
		if pick == -1 {
			for i := range caps {
				if !fixed[i] {
					shares[i] = fair
				}
			}
			break
		}
		shares[pick] = caps[pick]
		remaining -= caps[pick]
		if remaining < 0 {
			remaining = 0
		}
		fixed[pick] = true
	}
	return shares
}

// assignLoads computes PortLoads for a fixed sequence of masks: identical
// masks are merged into one group (their combined demand is count, split
// evenly once the group's water-fill is found, since interchangeable uops
// on the same mask are indistinguishable and the objective is symmetric in
// them), and groups are water-filled against the shared residual from
// narrowest to widest mask — which is also the order the ports most
// starved of alternatives get first claim on their own capacity.
func assignLoads(masks []portmask.Mask, original []float64, maxPort int, maxLoadPerUop float64) [][]float64 {
	residual := append([]float64(nil), original...)
	portLoads := make([][]float64, len(masks))

	type group struct {
		mask    portmask.Mask
		indices []int
	}
	groups := make(map[portmask.Mask]*group)
	var order []portmask.Mask
	for i, m := range masks {
		g, ok := groups[m]
		if !ok {
			g = &group{mask: m}
			groups[m] = g
			order = append(order, m)
		}
		g.indices = append(g.indices, i)
	}
	sort.Slice(order, func(a, b int) bool {
		pa, pb := order[a].Popcount(), order[b].Popcount()
		if pa != pb {
			return pa < pb
		}
		return order[a] < order[b]
	})

	for _, m := range order {
		g := groups[m]
		ports := m.Ports()
		count := float64(len(g.indices))
		caps := portCaps(residual, ports)
		if maxLoadPerUop > 0 {
			perUopCap := maxLoadPerUop * count
			for i := range caps {
				if caps[i] > perUopCap {
					caps[i] = perUopCap
				}
			}
		}
		totals := waterFillEven(caps, count)
		perInstance := make([]float64, len(ports))
		for i, v := range totals {
			perInstance[i] = v / count
			if p := ports[i]; p < len(residual) {
				residual[p] -= v
			}
		}
		for _, idx := range g.indices {
			portLoads[idx] = append([]float64(nil), perInstance...)
		}
	}
	return portLoads
}

// polish runs a short annealing pass over the per-port shares greedyAssign
// picked, reparametrizing each multi-port uop's shares as width-1 free
// variables (the last port's share is whatever keeps the uop's total at
// exactly 1, spec.md §4.5's Σload=is_used constraint) and nudging them to
// further reduce the real objective, seeded from the water-filled values
// so the pass can only match or improve on greedyAssign's result.
func polish(problem Problem, masks []portmask.Mask, portLoads [][]float64, seed int64) [][]float64 {
	maxPort := maxPortIndex(problem.Measurements)

	type slot struct{ uop, port int }
	var slots []slot
	backend := newAnnealingBackend(seed)
	for i, shares := range portLoads {
		for j := 0; j < len(shares)-1; j++ {
			backend.addVar("share", 0, 1)
			slots = append(slots, slot{i, j})
		}
	}
	if len(slots) == 0 {
		return portLoads
	}

	seedValues := make([]float64, len(slots))
	for idx, s := range slots {
		seedValues[idx] = portLoads[s.uop][s.port]
	}

	decode := func(values []float64) [][]float64 {
		out := make([][]float64, len(portLoads))
		for i, shares := range portLoads {
			out[i] = append([]float64(nil), shares...)
		}
		for idx, s := range slots {
			out[s.uop][s.port] = values[idx]
		}
		for _, shares := range out {
			if len(shares) < 2 {
				continue
			}
			sum := 0.0
			for j := 0; j < len(shares)-1; j++ {
				sum += shares[j]
			}
			shares[len(shares)-1] = 1 - sum
		}
		return out
	}

	backend.setObjective(func(values []float64) float64 {
		candidate := decode(values)
		penalty := 0.0
		for _, shares := range candidate {
			if len(shares) == 0 {
				continue
			}
			last := shares[len(shares)-1]
			if last < 0 {
				penalty += 1e6 * -last
			}
		}
		_, errs := reconstructAndErrors(problem, masks, candidate, maxPort)
		return objective(masks, candidate, errs) + penalty
	})
	backend.seedCurrent(seedValues)
	backend.setTimeLimit(5 * time.Millisecond)

	result, _, err := backend.solve()
	if err != nil || len(result) != len(slots) {
		return portLoads
	}
	return decode(result)
}

// reconstructAndErrors returns, per port 0..maxPort, the total load every
// uop's shares add up to and the absolute difference from the measurement.
func reconstructAndErrors(problem Problem, masks []portmask.Mask, portLoads [][]float64, maxPort int) (recon, errs []float64) {
	if maxPort < 0 {
		return nil, nil
	}
	recon = make([]float64, maxPort+1)
	for i, m := range masks {
		shares := portLoads[i]
		for j, p := range m.Ports() {
			if p <= maxPort && j < len(shares) {
				recon[p] += shares[j]
			}
		}
	}
	errs = make([]float64, maxPort+1)
	for p := 0; p <= maxPort; p++ {
		d := recon[p] - measurementValue(problem.Measurements, p)
		if d < 0 {
			d = -d
		}
		errs[p] = d
	}
	return recon, errs
}

func reconstructionError(problem Problem, masks []portmask.Mask, portLoads [][]float64) float64 {
	_, errs := reconstructAndErrors(problem, masks, portLoads, maxPortIndex(problem.Measurements))
	total := 0.0
	for _, e := range errs {
		total += e
	}
	return total
}

func maxReconstructionError(problem Problem, masks []portmask.Mask, portLoads [][]float64) float64 {
	_, errs := reconstructAndErrors(problem, masks, portLoads, maxPortIndex(problem.Measurements))
	max := 0.0
	for _, e := range errs {
		if e > max {
			max = e
		}
	}
	return max
}

// objective computes spec.md §6.2's five-term cost: a decreasing weight by
// mask width, the within-uop load imbalance (max share - min share) summed
// over every uop, the L1 and L∞ reconstruction error, and the uop count.
func objective(masks []portmask.Mask, portLoads [][]float64, errs []float64) float64 {
	obj := 0.0
	for i, m := range masks {
		obj += portMaskWeight(m.Popcount())
		shares := portLoads[i]
		if len(shares) > 1 {
			min, max := shares[0], shares[0]
			for _, s := range shares[1:] {
				if s < min {
					min = s
				}
				if s > max {
					max = s
				}
			}
			obj += weightBalance * (max - min)
		}
	}
	errSum, maxErr := 0.0, 0.0
	for _, e := range errs {
		errSum += e
		if e > maxErr {
			maxErr = e
		}
	}
	obj += weightError*errSum + weightMaxErr*maxErr + weightUop*float64(len(masks))
	return obj
}
