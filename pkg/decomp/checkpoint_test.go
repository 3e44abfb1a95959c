package decomp

import (
	"path/filepath"
	"testing"

	"github.com/oisee/x86isa/pkg/portmask"
)

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.gob")
	ck := Checkpoint{
		Results: map[string]Solution{
			"NOP": {
				Masks:     []portmask.Mask{portmask.FromPorts(0, 1, 5, 6)},
				PortLoads: [][]float64{{0.25, 0.25, 0.25, 0.25}},
				Objective: 1.5,
				NumUops:   1,
			},
		},
	}
	if err := SaveCheckpoint(path, ck); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	got, ok := loaded.Results["NOP"]
	if !ok {
		t.Fatal("loaded checkpoint missing NOP entry")
	}
	if got.Objective != 1.5 || got.NumUops != 1 {
		t.Errorf("loaded solution = %+v, want Objective 1.5, NumUops 1", got)
	}
	if len(got.Masks) != 1 || got.Masks[0] != portmask.FromPorts(0, 1, 5, 6) {
		t.Errorf("loaded masks = %v, want [P0156]", got.Masks)
	}
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "does-not-exist.gob"))
	if err == nil {
		t.Error("LoadCheckpoint on a missing file returned nil error")
	}
}
