package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/threes-sim/engine/nbastats"
	"github.com/threes-sim/engine/simulation"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// SimulateRequest is the POST /api/simulate body. Player takes a free-form
// name or a numeric stats.nba.com identifier; everything else is optional.
type SimulateRequest struct {
	Player           string  `json:"player"`
	Opponent         string  `json:"opponent,omitempty"`
	Season           string  `json:"season,omitempty"`
	Games            int     `json:"games,omitempty"`
	BootstrapSamples int     `json:"bootstrap_samples,omitempty"`
	Zones            int     `json:"zones,omitempty"`
	Seed             *uint64 `json:"seed,omitempty"`
}

// SimulateResponse acknowledges an accepted run
type SimulateResponse struct {
	RunID      string `json:"run_id"`
	PlayerID   int    `json:"player_id"`
	PlayerName string `json:"player_name"`
	Opponent   string `json:"opponent,omitempty"`
	Season     string `json:"season"`
	Games      int    `json:"games"`
	Seed       uint64 `json:"seed"`
	Status     string `json:"status"`
}

// StatusResponse is a run status plus its completion fraction
type StatusResponse struct {
	*simulation.RunStatus
	Progress float64 `json:"progress"`
}

func (s *Server) simulateHandler(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Player) == "" {
		writeError(w, http.StatusBadRequest, "player is required")
		return
	}
	if req.Games < 0 || req.BootstrapSamples < 0 || req.Zones < 0 {
		writeError(w, http.StatusBadRequest, "games, bootstrap_samples, and zones must not be negative")
		return
	}
	if req.Games > s.config.MaxGames {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("games must be at most %d", s.config.MaxGames))
		return
	}

	player, err := s.lookupPlayer(r.Context(), req.Player)
	if errors.Is(err, nbastats.ErrPlayerNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Str("player", req.Player).Msg("Player lookup failed")
		writeError(w, http.StatusBadGateway, "Player lookup failed")
		return
	}

	games := req.Games
	if games == 0 {
		games = s.config.DefaultGames
	}
	samples := req.BootstrapSamples
	if samples == 0 {
		samples = s.config.BootstrapSamples
	}
	season := strings.TrimSpace(req.Season)
	if season == "" {
		season = s.config.DefaultSeason
	}
	if season == "" {
		season = nbastats.CurrentSeason()
	}
	seed := uint64(time.Now().UnixNano())
	if req.Seed != nil {
		seed = *req.Seed
	}

	params := simulation.RunParams{
		RunID:            uuid.New().String(),
		PlayerID:         player.ID,
		PlayerName:       player.Name,
		Opponent:         strings.ToUpper(strings.TrimSpace(req.Opponent)),
		Season:           season,
		Games:            games,
		BootstrapSamples: samples,
		Zones:            req.Zones,
		Seed:             seed,
	}
	if err := s.engine.CreateRun(r.Context(), params); err != nil {
		log.Error().Err(err).Str("run_id", params.RunID).Msg("Failed to create simulation run")
		writeError(w, http.StatusInternalServerError, "Failed to create simulation run")
		return
	}
	go s.engine.RunSimulation(params)

	writeJSON(w, http.StatusAccepted, SimulateResponse{
		RunID:      params.RunID,
		PlayerID:   params.PlayerID,
		PlayerName: params.PlayerName,
		Opponent:   params.Opponent,
		Season:     params.Season,
		Games:      params.Games,
		Seed:       params.Seed,
		Status:     simulation.StatusPending,
	})
}

// lookupPlayer resolves the request's player field, which is either a
// numeric identifier or a free-form name
func (s *Server) lookupPlayer(ctx context.Context, raw string) (nbastats.Player, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.Atoi(raw); err == nil {
		return s.players.PlayerByID(ctx, id)
	}
	return s.players.ResolvePlayer(ctx, raw)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	status, err := s.engine.GetRunStatus(r.Context(), runID)
	if errors.Is(err, simulation.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Simulation not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Failed to read run status")
		writeError(w, http.StatusInternalServerError, "Failed to read run status")
		return
	}

	progress := 0.0
	if status.TotalGames > 0 {
		progress = float64(status.CompletedGames) / float64(status.TotalGames)
	}
	writeJSON(w, http.StatusOK, StatusResponse{RunStatus: status, Progress: progress})
}

func (s *Server) resultHandler(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	status, err := s.engine.GetRunStatus(r.Context(), runID)
	if errors.Is(err, simulation.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Simulation not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Failed to read run status")
		writeError(w, http.StatusInternalServerError, "Failed to read run status")
		return
	}

	switch status.Status {
	case simulation.StatusCompleted:
	case simulation.StatusError:
		writeError(w, http.StatusInternalServerError, "Simulation failed: "+status.Error)
		return
	default:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"run_id":  runID,
			"status":  status.Status,
			"message": "Simulation not yet complete",
		})
		return
	}

	result, err := s.engine.GetRunResult(r.Context(), runID)
	if errors.Is(err, simulation.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Simulation result not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Failed to read run result")
		writeError(w, http.StatusInternalServerError, "Failed to read run result")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) playerSearchHandler(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	players, err := s.players.SearchPlayers(r.Context(), query, limit)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Player search failed")
		writeError(w, http.StatusBadGateway, "Player search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"players": players,
		"count":   len(players),
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":      "healthy",
		"time":        time.Now().UTC(),
		"active_runs": s.engine.ActiveRuns(),
		"workers":     s.config.Workers,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// A dead cache degrades to live fetches, so it never fails the check
	if s.cache == nil {
		health["cache"] = "not configured"
	} else if err := s.cache.Ping(ctx); err != nil {
		health["cache"] = err.Error()
	} else {
		health["cache"] = "connected"
	}

	if s.db == nil {
		health["database"] = "not configured"
		writeJSON(w, http.StatusOK, health)
		return
	}
	if err := s.db.Ping(ctx); err != nil {
		health["status"] = "unhealthy"
		health["database"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "connected"
	writeJSON(w, http.StatusOK, health)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
