package microarch

import "github.com/oisee/x86isa/pkg/portmask"

// BuiltinRegistry seeds a Registry with the microarchitectures this
// repository's own tests exercise — currently just Haswell, the
// microarchitecture spec.md §8's "Negate" decomposition scenario measures
// against — plus the Ivy-Bridge/Sandy-Bridge alias spec.md §9 leaves open.
//
// Ivy Bridge reused Sandy Bridge's port layout essentially unchanged; this
// model records that as an explicit Alias rather than registering a second,
// silently-duplicated Microarchitecture value (spec.md §9 Open Question).
func BuiltinRegistry() *Registry {
	r := NewRegistry()

	haswell := Microarchitecture{
		Ports: []string{"0", "1", "2", "3", "4", "5", "6", "7"},
		Masks: []portmask.Mask{
			portmask.FromPorts(0),
			portmask.FromPorts(1),
			portmask.FromPorts(2),
			portmask.FromPorts(3),
			portmask.FromPorts(4),
			portmask.FromPorts(5),
			portmask.FromPorts(6),
			portmask.FromPorts(7),
			portmask.FromPorts(0, 1),
			portmask.FromPorts(0, 5),
			portmask.FromPorts(0, 6),
			portmask.FromPorts(1, 5),
			portmask.FromPorts(2, 3),
			portmask.FromPorts(2, 3, 7),
			portmask.FromPorts(0, 1, 5),
			portmask.FromPorts(0, 1, 6),
			portmask.FromPorts(0, 5, 6),
			portmask.FromPorts(0, 1, 5, 6),
		},
		LoadAGU:   2,
		StoreAGU:  7,
		StoreData: 4,
	}
	_ = r.Register("hsw", haswell)

	sandyBridge := Microarchitecture{
		Ports: []string{"0", "1", "2", "3", "4", "5"},
		Masks: []portmask.Mask{
			portmask.FromPorts(0),
			portmask.FromPorts(1),
			portmask.FromPorts(2),
			portmask.FromPorts(3),
			portmask.FromPorts(4),
			portmask.FromPorts(5),
			portmask.FromPorts(0, 1),
			portmask.FromPorts(0, 5),
			portmask.FromPorts(1, 5),
			portmask.FromPorts(2, 3),
		},
		LoadAGU:   2,
		StoreAGU:  3,
		StoreData: 4,
	}
	_ = r.Register("snb", sandyBridge)
	_ = r.Alias("ivb", "snb")

	return r
}
