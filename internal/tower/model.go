package tower

import (
	"errors"
	"math"
	"time"
)

type GameStatus string

const (
	StatusActive    GameStatus = "active"
	StatusLost      GameStatus = "lost"
	StatusCashedOut GameStatus = "cashedOut"
)

func (s GameStatus) Valid() bool {
	switch s {
	case StatusActive, StatusLost, StatusCashedOut:
		return true
	}
	return false
}

func (s GameStatus) Terminal() bool {
	return s == StatusLost || s == StatusCashedOut
}

const GameType = "tower"

var (
	ErrInvalidDifficulty    = errors.New("unknown difficulty")
	ErrInvalidBet           = errors.New("bet amount out of range")
	ErrInvalidTile          = errors.New("tile index out of range")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrGameAlreadyActive    = errors.New("player already has an active game")
	ErrGameNotFound         = errors.New("game not found")
	ErrGameNotActive        = errors.New("game is not active")
	ErrNothingToCashOut     = errors.New("nothing to cash out")
	ErrConcurrencyConflict  = errors.New("game was modified concurrently")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrRateLimited          = errors.New("bet rate limit exceeded")
)

// Game mirrors one row of tower.games. The hazard map is written once at
// creation and never leaves the server while the game is active.
type Game struct {
	ID               string
	PlayerID         string
	Difficulty       string
	BetCents         int64
	Level            int
	Status           GameStatus
	Multiplier       float64
	FinalPayoutCents int64 // 0 while absent
	HazardMap        [][]int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type LevelAttempt struct {
	GameID            string
	LevelNumber       int
	TileSelected      int
	WasSafe           bool
	MultiplierAtLevel float64
}

// PayoutCents rounds bet * multiplier to whole cents.
func PayoutCents(betCents int64, multiplier float64) int64 {
	return int64(math.Round(float64(betCents) * multiplier))
}

func DollarsToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func CentsToDollars(v int64) float64 {
	return float64(v) / 100
}
