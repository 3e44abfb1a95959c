package decomp

import (
	"encoding/gob"
	"os"

	"github.com/oisee/x86isa/pkg/xerr"
)

// Checkpoint is a snapshot of every decomposition result found so far,
// persisted with gob the same way the teacher's long-running search
// persists its best-rule table: a batch job can be killed and resumed
// without re-solving instructions it already finished.
type Checkpoint struct {
	Results map[string]Solution
}

// SaveCheckpoint gob-encodes ck to path, overwriting any existing file.
func SaveCheckpoint(path string, ck Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return xerr.Wrap(xerr.Internal, err, "decomp: create checkpoint %q", path)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(ck); err != nil {
		return xerr.Wrap(xerr.Internal, err, "decomp: encode checkpoint %q", path)
	}
	return nil
}

// LoadCheckpoint decodes a Checkpoint previously written by SaveCheckpoint.
func LoadCheckpoint(path string) (Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Checkpoint{}, xerr.Wrap(xerr.Internal, err, "decomp: open checkpoint %q", path)
	}
	defer f.Close()
	var ck Checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return Checkpoint{}, xerr.Wrap(xerr.Internal, err, "decomp: decode checkpoint %q", path)
	}
	return ck, nil
}
