package tower

import "time"

type StartGameInput struct {
	PlayerID       string
	Difficulty     string
	BetCents       int64
	IdempotencyKey string
}

type StartGameResult struct {
	GameID       string     `json:"game_id"`
	Difficulty   string     `json:"difficulty"`
	BetCents     int64      `json:"bet_cents"`
	CurrentLevel int        `json:"current_level"`
	Status       GameStatus `json:"status"`
	TilesPerRow  int        `json:"tiles_per_row"`
	MaxLevel     int        `json:"max_level"`
	BalanceCents int64      `json:"balance_cents"`
}

type PickTileInput struct {
	GameID         string
	PlayerID       string
	TileIndex      int
	IdempotencyKey string
}

type PickTileResult struct {
	IsHazard        bool       `json:"is_hazard"`
	NewLevel        int        `json:"new_level"`
	Multiplier      float64    `json:"multiplier"`
	Status          GameStatus `json:"status"`
	PayoutCents     int64      `json:"payout_cents,omitempty"`
	WasLastLevel    bool       `json:"was_last_level"`
	RevealedHazards []int      `json:"revealed_hazards,omitempty"`
}

type CashOutInput struct {
	GameID         string
	PlayerID       string
	IdempotencyKey string
}

type CashOutResult struct {
	PayoutCents int64      `json:"payout_cents"`
	Multiplier  float64    `json:"multiplier"`
	Status      GameStatus `json:"status"`
}

// ActiveGameView is the sanitized shape of an in-flight game. It never
// carries hazard positions.
type ActiveGameView struct {
	GameID       string     `json:"game_id"`
	Difficulty   string     `json:"difficulty"`
	BetCents     int64      `json:"bet_cents"`
	CurrentLevel int        `json:"current_level"`
	Multiplier   float64    `json:"multiplier"`
	Status       GameStatus `json:"status"`
	TilesPerRow  int        `json:"tiles_per_row"`
	MaxLevel     int        `json:"max_level"`
	CreatedAt    time.Time  `json:"created_at"`
}

// FinishedGameView includes the full hazard map; only terminal games are
// ever rendered with it.
type FinishedGameView struct {
	GameID           string     `json:"game_id"`
	Difficulty       string     `json:"difficulty"`
	BetCents         int64      `json:"bet_cents"`
	LevelReached     int        `json:"level_reached"`
	Status           GameStatus `json:"status"`
	Multiplier       float64    `json:"multiplier"`
	FinalPayoutCents int64      `json:"final_payout_cents,omitempty"`
	HazardMap        [][]int    `json:"hazard_map"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type WalletView struct {
	BalanceCents      int64 `json:"balance_cents"`
	TotalWageredCents int64 `json:"total_wagered_cents"`
	TotalWonCents     int64 `json:"total_won_cents"`
}

// WinEvent is the public summary published for notable wins.
type WinEvent struct {
	PlayerID     string    `json:"player_id"`
	GameType     string    `json:"game_type"`
	Difficulty   string    `json:"difficulty"`
	BetCents     int64     `json:"bet_cents"`
	PayoutCents  int64     `json:"payout_cents"`
	ProfitCents  int64     `json:"profit_cents"`
	Multiplier   float64   `json:"multiplier"`
	LevelReached int       `json:"level_reached"`
	At           time.Time `json:"at"`
}
