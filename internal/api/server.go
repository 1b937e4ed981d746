package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"towerd/internal/auth"
	"towerd/internal/config"
	"towerd/internal/feed"
	"towerd/internal/tower"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const playerContextKey contextKey = "player"

type PlayerContext struct {
	PlayerID string
	Email    string
}

type Server struct {
	cfg   config.APIConfig
	log   *slog.Logger
	auth  *auth.Client
	tower *tower.Service
	hub   *feed.Hub
	mux   *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, authClient *auth.Client, towerSvc *tower.Service, hub *feed.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:   cfg,
		log:   logger,
		auth:  authClient,
		tower: towerSvc,
		hub:   hub,
		mux:   chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/tower/start", s.handleStartGame)
			r.Post("/tower/{id}/pick", s.handlePickTile)
			r.Post("/tower/{id}/cashout", s.handleCashOut)
			r.Get("/tower/active", s.handleActiveGame)
			r.Get("/tower/history", s.handleHistory)
			r.Get("/tower/difficulties", s.handleDifficulties)
			r.Get("/wallet", s.handleWallet)
			if s.hub != nil {
				r.Get("/feed/ws", s.hub.ServeWS)
			}
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, PlayerContext{
			PlayerID: user.ID,
			Email:    user.Email,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func playerFromContext(ctx context.Context) (PlayerContext, error) {
	v := ctx.Value(playerContextKey)
	player, ok := v.(PlayerContext)
	if !ok || player.PlayerID == "" {
		return PlayerContext{}, errors.New("missing auth context")
	}
	return player, nil
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Difficulty string `json:"difficulty"`
		BetCents   int64  `json:"bet_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.tower.StartGame(r.Context(), tower.StartGameInput{
		PlayerID:       player.PlayerID,
		Difficulty:     in.Difficulty,
		BetCents:       in.BetCents,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handlePickTile(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		TileIndex *int `json:"tile_index"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.TileIndex == nil {
		writeError(w, http.StatusBadRequest, "tile_index is required")
		return
	}
	result, err := s.tower.PickTile(r.Context(), tower.PickTileInput{
		GameID:         chi.URLParam(r, "id"),
		PlayerID:       player.PlayerID,
		TileIndex:      *in.TileIndex,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCashOut(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	result, err := s.tower.CashOut(r.Context(), tower.CashOutInput{
		GameID:         chi.URLParam(r, "id"),
		PlayerID:       player.PlayerID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleActiveGame(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	game, err := s.tower.ActiveGame(r.Context(), player.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	games, err := s.tower.History(r.Context(), player.PlayerID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleDifficulties(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"difficulties": tower.Profiles()})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	wallet, err := s.tower.Wallet(r.Context(), player.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tower.ErrInvalidDifficulty),
		errors.Is(err, tower.ErrInvalidBet),
		errors.Is(err, tower.ErrInvalidTile),
		errors.Is(err, tower.ErrInsufficientFunds),
		errors.Is(err, tower.ErrGameNotActive),
		errors.Is(err, tower.ErrNothingToCashOut):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tower.ErrGameNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tower.ErrGameAlreadyActive),
		errors.Is(err, tower.ErrConcurrencyConflict),
		errors.Is(err, tower.ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tower.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
