// Package microarch describes the execution-port shape of a concrete
// microarchitecture and provides an explicit registry for looking one up
// by name — replacing the process-wide static map spec.md §9 flags
// ("Global registry -> explicit context") with a value callers construct
// and pass around.
package microarch

import (
	"github.com/oisee/x86isa/pkg/portmask"
	"github.com/oisee/x86isa/pkg/xerr"
)

// Microarchitecture is the static port shape the decomposition solver
// (pkg/decomp) fits measurements against.
type Microarchitecture struct {
	// Ports names every execution port, in the canonical order used when
	// printing a histogram (spec.md §6.1).
	Ports []string

	// Masks enumerates every port-combination the solver is allowed to
	// assign a µop to — not necessarily all 2^len(Ports) subsets, since
	// real microarchitectures only issue a handful of distinct masks.
	Masks []portmask.Mask

	// LoadAGU, StoreAGU, and StoreData name the distinguished port indices
	// spec.md §4.5's ordering algorithm needs: the port(s) that compute
	// load addresses, the port(s) that compute store addresses, and the
	// port that writes store data. -1 means "this microarchitecture has
	// no such distinguished port".
	LoadAGU   int
	StoreAGU  int
	StoreData int
}

// ProtectedMode reports whether port index p takes no part in addressing:
// true when p is neither the load-AGU, store-AGU, nor store-data port.
func (m Microarchitecture) ProtectedMode(p int) bool {
	return p != m.LoadAGU && p != m.StoreAGU && p != m.StoreData
}

// Registry resolves microarchitecture identifiers (e.g. "hsw") to their
// Microarchitecture value, with explicit aliasing for microarchitectures
// this model treats as identical (spec.md §9 Open Question: Ivy Bridge
// inherits Sandy Bridge's port layout, recorded as an alias rather than a
// silent duplicate).
type Registry struct {
	byID  map[string]Microarchitecture
	alias map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]Microarchitecture),
		alias: make(map[string]string),
	}
}

// Register adds a microarchitecture under id. Re-registering an id already
// present — including one currently used as an alias target — is an
// invalid argument: callers should make the replacement explicit instead of
// having it happen silently underneath existing aliases.
func (r *Registry) Register(id string, m Microarchitecture) error {
	if _, exists := r.byID[id]; exists {
		return xerr.New(xerr.InvalidArgument, "microarch: %q already registered", id)
	}
	r.byID[id] = m
	return nil
}

// Alias records that id should resolve to the same Microarchitecture as
// target. target must already be registered (directly, not transitively
// through another alias — aliases do not chain).
func (r *Registry) Alias(id, target string) error {
	if _, exists := r.byID[target]; !exists {
		return xerr.New(xerr.NotFound, "microarch: alias target %q not registered", target)
	}
	if _, exists := r.byID[id]; exists {
		return xerr.New(xerr.InvalidArgument, "microarch: %q already registered directly, cannot also alias it", id)
	}
	r.alias[id] = target
	return nil
}

// Lookup resolves id, following at most one alias hop.
func (r *Registry) Lookup(id string) (Microarchitecture, bool) {
	if m, ok := r.byID[id]; ok {
		return m, true
	}
	if target, ok := r.alias[id]; ok {
		m, ok := r.byID[target]
		return m, ok
	}
	return Microarchitecture{}, false
}

// IDs lists every directly registered identifier, not including aliases.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}
