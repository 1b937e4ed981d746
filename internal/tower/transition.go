package tower

// PickOutcome is the fully-resolved effect of one tile selection. The caller
// applies it to the persisted row and the attempt log in one transaction.
type PickOutcome struct {
	WasSafe         bool
	WasLastLevel    bool
	NewLevel        int
	Multiplier      float64
	Status          GameStatus
	PayoutCents     int64
	RevealedHazards []int
	Attempt         LevelAttempt
}

// resolvePick runs the state machine for a single tile selection against an
// in-memory copy of the game. It mutates nothing; hazard reveal is limited
// to the level just played.
//
//	active --select(hazard)-->                 lost
//	active --select(safe, not last level)-->   active (level+1)
//	active --select(safe, last level)-->       cashedOut (auto win)
func resolvePick(g Game, p Profile, tile int) (PickOutcome, error) {
	if g.Status != StatusActive {
		return PickOutcome{}, ErrGameNotActive
	}
	if tile < 0 || tile >= p.TilesPerRow {
		return PickOutcome{}, ErrInvalidTile
	}

	hazards := g.HazardMap[g.Level]
	levelMultiplier := p.Multipliers[g.Level]
	attempt := LevelAttempt{
		GameID:            g.ID,
		LevelNumber:       g.Level,
		TileSelected:      tile,
		MultiplierAtLevel: levelMultiplier,
	}

	if containsTile(hazards, tile) {
		// Loss keeps the original debit; finalPayout stays absent.
		return PickOutcome{
			WasSafe:         false,
			NewLevel:        g.Level,
			Multiplier:      g.Multiplier,
			Status:          StatusLost,
			RevealedHazards: hazards,
			Attempt:         attempt,
		}, nil
	}

	attempt.WasSafe = true
	next := g.Level + 1
	if next == p.MaxLevel {
		return PickOutcome{
			WasSafe:         true,
			WasLastLevel:    true,
			NewLevel:        next,
			Multiplier:      levelMultiplier,
			Status:          StatusCashedOut,
			PayoutCents:     PayoutCents(g.BetCents, levelMultiplier),
			RevealedHazards: hazards,
			Attempt:         attempt,
		}, nil
	}
	return PickOutcome{
		WasSafe:    true,
		NewLevel:   next,
		Multiplier: levelMultiplier,
		Status:     StatusActive,
		Attempt:    attempt,
	}, nil
}

// CashOutQuote is the settlement owed for an explicit cash-out.
type CashOutQuote struct {
	Multiplier  float64
	PayoutCents int64
}

// resolveCashOut validates an explicit cash-out and prices it at the
// multiplier of the last cleared level.
func resolveCashOut(g Game, p Profile) (CashOutQuote, error) {
	if g.Status != StatusActive {
		return CashOutQuote{}, ErrGameNotActive
	}
	if g.Level == 0 {
		return CashOutQuote{}, ErrNothingToCashOut
	}
	m := p.Multipliers[g.Level-1]
	return CashOutQuote{
		Multiplier:  m,
		PayoutCents: PayoutCents(g.BetCents, m),
	}, nil
}
