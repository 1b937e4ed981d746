package tower

import (
	"math/rand"
	"sort"
)

// generateHazardMap fixes the hazard positions for every level of a game
// before the first pick. Each level gets a uniform random subset of
// HazardCount tile indices, sorted for deterministic comparison. The map is
// immutable once persisted.
func generateHazardMap(p Profile, rng *rand.Rand) [][]int {
	m := make([][]int, p.MaxLevel)
	for level := 0; level < p.MaxLevel; level++ {
		perm := rng.Perm(p.TilesPerRow)
		hazards := append([]int(nil), perm[:p.HazardCount]...)
		sort.Ints(hazards)
		m[level] = hazards
	}
	return m
}

func containsTile(tiles []int, tile int) bool {
	for _, t := range tiles {
		if t == tile {
			return true
		}
	}
	return false
}
