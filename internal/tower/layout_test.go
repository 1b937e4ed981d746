package tower

import (
	"math/rand"
	"sort"
	"testing"
)

func TestGenerateHazardMapShape(t *testing.T) {
	for _, p := range Profiles() {
		rng := rand.New(rand.NewSource(1))
		m := generateHazardMap(p, rng)
		if len(m) != p.MaxLevel {
			t.Fatalf("%s: %d levels want %d", p.Difficulty, len(m), p.MaxLevel)
		}
		for level, hazards := range m {
			if len(hazards) != p.HazardCount {
				t.Fatalf("%s level %d: %d hazards want %d", p.Difficulty, level, len(hazards), p.HazardCount)
			}
			if !sort.IntsAreSorted(hazards) {
				t.Fatalf("%s level %d: hazards not sorted: %v", p.Difficulty, level, hazards)
			}
			seen := map[int]bool{}
			for _, h := range hazards {
				if h < 0 || h >= p.TilesPerRow {
					t.Fatalf("%s level %d: hazard %d out of range", p.Difficulty, level, h)
				}
				if seen[h] {
					t.Fatalf("%s level %d: duplicate hazard %d", p.Difficulty, level, h)
				}
				seen[h] = true
			}
		}
	}
}

func TestGenerateHazardMapSeededDeterminism(t *testing.T) {
	p, _ := ProfileFor(DifficultyHard)
	a := generateHazardMap(p, rand.New(rand.NewSource(42)))
	b := generateHazardMap(p, rand.New(rand.NewSource(42)))
	for level := range a {
		if len(a[level]) != len(b[level]) {
			t.Fatalf("level %d: length mismatch", level)
		}
		for i := range a[level] {
			if a[level][i] != b[level][i] {
				t.Fatalf("level %d: same seed produced different layouts", level)
			}
		}
	}
}

func TestGenerateHazardMapCoversAllTiles(t *testing.T) {
	// Over many games every tile index should appear as a hazard eventually.
	p, _ := ProfileFor(DifficultyEasy)
	rng := rand.New(rand.NewSource(7))
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		for _, hazards := range generateHazardMap(p, rng) {
			for _, h := range hazards {
				seen[h] = true
			}
		}
	}
	for tile := 0; tile < p.TilesPerRow; tile++ {
		if !seen[tile] {
			t.Fatalf("tile %d never drawn as hazard across 200 games", tile)
		}
	}
}
