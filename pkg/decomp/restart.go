package decomp

import (
	"context"
	"math"

	"github.com/oisee/x86isa/pkg/xerr"
	"golang.org/x/sync/errgroup"
)

// SolveWithRestarts runs the annealing polish pass from restarts different
// random seeds concurrently and keeps the lowest-objective result. This is
// the fan-out the teacher's WorkerPool (pkg/search/worker.go) does by hand
// with a channel and a sync.WaitGroup, done here with errgroup.Group
// instead: each chain is an independent unit of work over a shared
// Problem, and the group collects whichever finishes with the best score.
// restarts <= 1 behaves exactly like Solve.
func SolveWithRestarts(problem Problem, restarts int) (Solution, error) {
	if restarts <= 1 {
		return Solve(problem)
	}

	results := make([]Solution, restarts)
	errs := make([]error, restarts)

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < restarts; i++ {
		i := i
		g.Go(func() error {
			results[i], errs[i] = solveWithSeed(problem, int64(i)*7919+1)
			return nil
		})
	}
	_ = g.Wait()

	var best Solution
	haveBest := false
	var firstErr error
	for i := range results {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		if !haveBest || results[i].Objective < best.Objective {
			best, haveBest = results[i], true
		}
	}
	if !haveBest {
		return Solution{}, firstErr
	}
	return best, nil
}

// solveWithSeed is Solve with the annealing seed offset by base, so
// concurrent restarts explore different neighborhoods of the load space
// instead of repeating identical chains.
func solveWithSeed(problem Problem, base int64) (Solution, error) {
	if problem.Retired > maxRetiredUops {
		return Solution{}, xerr.New(xerr.Internal, "decomp: retired uop count %.4f exceeds the hard cap of %.0f", problem.Retired, maxRetiredUops)
	}
	if len(problem.CandidateMasks) == 0 {
		return Solution{}, xerr.New(xerr.InvalidArgument, "decomp: no candidate masks supplied")
	}
	if problem.FixedUops <= 0 && problem.MaxUops <= 0 {
		return Solution{}, xerr.New(xerr.InvalidArgument, "decomp: MaxUops must be positive")
	}

	firstK, lastK := 1, problem.MaxUops
	if problem.FixedUops > 0 {
		firstK, lastK = problem.FixedUops, problem.FixedUops
	} else if problem.Retired > 0 {
		if floor := int(math.Floor(problem.Retired)); floor > firstK {
			firstK = floor
		}
		if firstK > lastK {
			lastK = firstK
		}
	}

	var best Solution
	haveBest := false

	for k := firstK; k <= lastK; k++ {
		masks, portLoads, err := greedyAssign(problem, k)
		if err != nil {
			continue
		}
		portLoads = polish(problem, masks, portLoads, base+int64(k))

		_, errs := reconstructAndErrors(problem, masks, portLoads, maxPortIndex(problem.Measurements))
		reconErr, maxErr := 0.0, 0.0
		for _, e := range errs {
			reconErr += e
			if e > maxErr {
				maxErr = e
			}
		}
		obj := objective(masks, portLoads, errs)

		within := reconErr <= problem.ErrorBudget
		bestWithin := haveBest && best.Error <= problem.ErrorBudget
		if !within && bestWithin {
			continue
		}
		if !haveBest || (within && !bestWithin) || obj < best.Objective {
			best = Solution{Masks: masks, PortLoads: portLoads, Objective: obj, Error: reconErr, MaxError: maxErr, NumUops: k}
			haveBest = true
		}
	}

	if !haveBest {
		return Solution{}, xerr.New(xerr.Internal, "decomp: no feasible decomposition found within uop count %d..%d", firstK, lastK)
	}
	if best.Error > problem.ErrorBudget {
		return Solution{}, xerr.New(xerr.Internal, "decomp: best decomposition has error %.3f, exceeds budget %.3f", best.Error, problem.ErrorBudget)
	}
	return best, nil
}
