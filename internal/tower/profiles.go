package tower

// Profile is the static per-difficulty configuration. SafeCount is carried
// explicitly so the hazardCount+safeCount==tilesPerRow invariant is checkable
// rather than implied.
type Profile struct {
	Difficulty  string    `json:"difficulty"`
	TilesPerRow int       `json:"tiles_per_row"`
	HazardCount int       `json:"hazard_count"`
	SafeCount   int       `json:"safe_count"`
	MaxLevel    int       `json:"max_level"`
	Multipliers []float64 `json:"multipliers"`
}

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// profiles is keyed by difficulty name. Multiplier curves are tuned for a
// ~96% RTP and must stay strictly increasing with length == MaxLevel.
var profiles = map[string]Profile{
	DifficultyEasy: {
		Difficulty:  DifficultyEasy,
		TilesPerRow: 4,
		HazardCount: 1,
		SafeCount:   3,
		MaxLevel:    9,
		Multipliers: []float64{1.28, 1.64, 2.10, 2.68, 3.44, 4.40, 5.63, 7.21, 9.23},
	},
	DifficultyMedium: {
		Difficulty:  DifficultyMedium,
		TilesPerRow: 3,
		HazardCount: 1,
		SafeCount:   2,
		MaxLevel:    9,
		Multipliers: []float64{1.42, 2.11, 3.14, 4.67, 6.94, 10.33, 15.36, 22.85, 33.99},
	},
	DifficultyHard: {
		Difficulty:  DifficultyHard,
		TilesPerRow: 4,
		HazardCount: 2,
		SafeCount:   2,
		MaxLevel:    9,
		Multipliers: []float64{1.92, 3.84, 7.68, 15.36, 30.72, 61.44, 122.88, 245.76, 491.52},
	},
}

func ProfileFor(difficulty string) (Profile, bool) {
	p, ok := profiles[difficulty]
	return p, ok
}

// Profiles returns every difficulty in a stable order.
func Profiles() []Profile {
	return []Profile{
		profiles[DifficultyEasy],
		profiles[DifficultyMedium],
		profiles[DifficultyHard],
	}
}
