package decomp

import (
	"context"
	"encoding/binary"
	"io"
	"os/exec"

	"github.com/oisee/x86isa/pkg/portmask"
	"github.com/oisee/x86isa/pkg/xerr"
)

// ExternalProcess wraps a long-running external MIP solver as a child
// process, the same arrangement the teacher uses to hand batches of
// candidates to an accelerator process over stdin/stdout pipes: start it
// once, push one problem down the pipe per call, read back one solution.
// This is the "treat the MIP engine as an external dependency" option
// spec.md §9 calls out, for deployments where a real solver binary is
// available; annealingBackend (backend.go) is what Solve uses when one
// isn't.
type ExternalProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// StartExternalProcess launches path (expected to speak the wire protocol
// below on its stdin/stdout) and returns a handle to it.
func StartExternalProcess(ctx context.Context, path string, args ...string) (*ExternalProcess, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, xerr.Wrap(xerr.Internal, err, "decomp: open stdin pipe to %q", path)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, xerr.Wrap(xerr.Internal, err, "decomp: open stdout pipe to %q", path)
	}
	if err := cmd.Start(); err != nil {
		return nil, xerr.Wrap(xerr.Internal, err, "decomp: start external solver %q", path)
	}
	return &ExternalProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Solve sends one Problem down the pipe and reads back the solver's
// Solution. The wire format is deliberately minimal: a uint32 count
// followed by that many {port uint32, value float64} measurement pairs,
// then a uint32 mask count and that many uint64 masks, then a uint32
// MaxUops, a float64 ErrorBudget and a float64 Retired; the reply is a
// uint32 solution length followed by that many {mask uint64, shares...}
// entries — each mask is followed by exactly popcount(mask) float64
// shares, one per port in the mask's ascending-port order, so the width
// never needs to travel separately — and a trailing float64 objective.
func (e *ExternalProcess) Solve(problem Problem) (Solution, error) {
	if err := binary.Write(e.stdin, binary.LittleEndian, uint32(len(problem.Measurements))); err != nil {
		return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: write measurement count")
	}
	for _, m := range problem.Measurements {
		if err := binary.Write(e.stdin, binary.LittleEndian, uint32(m.Port)); err != nil {
			return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: write measurement port")
		}
		if err := binary.Write(e.stdin, binary.LittleEndian, m.Value); err != nil {
			return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: write measurement value")
		}
	}
	if err := binary.Write(e.stdin, binary.LittleEndian, uint32(len(problem.CandidateMasks))); err != nil {
		return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: write mask count")
	}
	for _, m := range problem.CandidateMasks {
		if err := binary.Write(e.stdin, binary.LittleEndian, uint64(m)); err != nil {
			return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: write candidate mask")
		}
	}
	if err := binary.Write(e.stdin, binary.LittleEndian, uint32(problem.MaxUops)); err != nil {
		return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: write MaxUops")
	}
	if err := binary.Write(e.stdin, binary.LittleEndian, problem.ErrorBudget); err != nil {
		return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: write ErrorBudget")
	}
	if err := binary.Write(e.stdin, binary.LittleEndian, problem.Retired); err != nil {
		return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: write Retired")
	}

	var n uint32
	if err := binary.Read(e.stdout, binary.LittleEndian, &n); err != nil {
		return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: read solution length")
	}
	sol := Solution{Masks: make([]portmask.Mask, n), PortLoads: make([][]float64, n), NumUops: int(n)}
	for i := uint32(0); i < n; i++ {
		var mask uint64
		if err := binary.Read(e.stdout, binary.LittleEndian, &mask); err != nil {
			return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: read solution mask %d", i)
		}
		m := portmask.Mask(mask)
		shares := make([]float64, m.Popcount())
		for j := range shares {
			if err := binary.Read(e.stdout, binary.LittleEndian, &shares[j]); err != nil {
				return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: read solution share %d/%d", i, j)
			}
		}
		sol.Masks[i] = m
		sol.PortLoads[i] = shares
	}
	if err := binary.Read(e.stdout, binary.LittleEndian, &sol.Objective); err != nil {
		return Solution{}, xerr.Wrap(xerr.Internal, err, "decomp: read objective")
	}
	sol.Error = reconstructionError(problem, sol.Masks, sol.PortLoads)
	sol.MaxError = maxReconstructionError(problem, sol.Masks, sol.PortLoads)
	return sol, nil
}

// Close terminates the external process.
func (e *ExternalProcess) Close() error {
	e.stdin.Close()
	e.stdout.Close()
	return e.cmd.Wait()
}
