package decomp

import (
	"github.com/oisee/x86isa/pkg/microarch"
	"github.com/oisee/x86isa/pkg/portmask"
)

type uopClass int

const (
	classNonMemory uopClass = iota
	classLoadAGU
	classStoreAGU
	classStoreData
)

// classify buckets a uop's mask by which distinguished memory-pipeline
// port it touches. A mask touching the store-data port always counts as a
// memory-buffer write even if it also touches an AGU port, since spec.md
// §4.5 pairs those uops with a separate address-generation uop rather than
// treating them as doing both jobs at once.
func classify(m portmask.Mask, arch microarch.Microarchitecture) uopClass {
	switch {
	case arch.StoreData >= 0 && m.Has(arch.StoreData):
		return classStoreData
	case arch.StoreAGU >= 0 && m.Has(arch.StoreAGU):
		return classStoreAGU
	case arch.LoadAGU >= 0 && m.Has(arch.LoadAGU):
		return classLoadAGU
	default:
		return classNonMemory
	}
}

// Order produces the program-order permutation of sol.Masks (spec.md
// §4.5): each memory-buffer-write uop is paired with an address-generation
// uop, preferring a dedicated store-AGU uop and falling back to a
// load-store-AGU uop when no store-AGU uop remains. Unpaired load-AGU uops
// emit first, then unpaired store-AGU uops, then non-memory uops in mask
// order, then the paired (AGU, write) pairs, then any write left unpaired
// because no AGU uop remained to pair it with.
func Order(sol Solution, arch microarch.Microarchitecture) []int {
	n := len(sol.Masks)
	classes := make([]uopClass, n)
	for i, m := range sol.Masks {
		classes[i] = classify(m, arch)
	}

	var loadAGU, storeAGU, storeData, nonMemory []int
	for i, c := range classes {
		switch c {
		case classLoadAGU:
			loadAGU = append(loadAGU, i)
		case classStoreAGU:
			storeAGU = append(storeAGU, i)
		case classStoreData:
			storeData = append(storeData, i)
		default:
			nonMemory = append(nonMemory, i)
		}
	}

	type pair struct{ agu, write int }
	var pairs []pair
	for len(storeData) > 0 {
		write := storeData[0]
		storeData = storeData[1:]
		switch {
		case len(storeAGU) > 0:
			pairs = append(pairs, pair{storeAGU[0], write})
			storeAGU = storeAGU[1:]
		case len(loadAGU) > 0:
			pairs = append(pairs, pair{loadAGU[0], write})
			loadAGU = loadAGU[1:]
		default:
			pairs = append(pairs, pair{-1, write})
		}
	}

	order := make([]int, 0, n)
	order = append(order, loadAGU...)
	order = append(order, storeAGU...)
	order = append(order, nonMemory...)

	var unpairedWrites []int
	for _, p := range pairs {
		if p.agu >= 0 {
			order = append(order, p.agu, p.write)
		} else {
			unpairedWrites = append(unpairedWrites, p.write)
		}
	}
	order = append(order, unpairedWrites...)

	return order
}

// IsOrderUnique reports whether Order's placement is the only program order
// consistent with sol: true exactly when at most one distinct mask appears
// among sol's non-memory uops, since two differently-masked non-memory
// uops could swap without changing the reconstructed measurements, making
// their relative order a free choice rather than a determined one
// (spec.md §4.5).
func IsOrderUnique(sol Solution, arch microarch.Microarchitecture) bool {
	seen := make(map[portmask.Mask]bool)
	for _, m := range sol.Masks {
		if classify(m, arch) == classNonMemory {
			seen[m] = true
		}
	}
	return len(seen) <= 1
}
