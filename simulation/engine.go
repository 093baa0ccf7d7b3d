package simulation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"github.com/threes-sim/engine/cluster"
	"github.com/threes-sim/engine/metrics"
	"github.com/threes-sim/engine/models"
)

// Run lifecycle states
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// ShotSource provides the shot-chart data a run needs. The stats client
// implements it; tests substitute fixtures.
type ShotSource interface {
	PlayerShotChart(ctx context.Context, playerID int, season string) ([]models.ShotRecord, error)
	LeagueShotChart(ctx context.Context, season string) ([]models.ShotRecord, error)
}

// Engine prepares simulation inputs, drives runs, and mirrors their state
// to the database
type Engine struct {
	db      DB
	stats   ShotSource
	workers int

	mu         sync.RWMutex
	activeRuns map[string]*RunStatus
}

// RunParams carries one run's fully-resolved parameters
type RunParams struct {
	RunID            string
	PlayerID         int
	PlayerName       string
	Opponent         string // team abbreviation; empty disables the defensive adjustment
	Season           string
	Games            int
	BootstrapSamples int
	Zones            int // > 0 overrides zone-count selection
	Seed             uint64
}

// RunStatus tracks the progress of a simulation run
type RunStatus struct {
	RunID          string     `json:"run_id"`
	PlayerID       int        `json:"player_id"`
	PlayerName     string     `json:"player_name"`
	Opponent       string     `json:"opponent,omitempty"`
	Season         string     `json:"season"`
	TotalGames     int        `json:"total_games"`
	CompletedGames int        `json:"completed_games"`
	Status         string     `json:"status"`
	Error          string     `json:"error,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	CompletedTime  *time.Time `json:"completed_time,omitempty"`

	result *RunResult
}

// RunResult is the aggregate artifact of a completed run
type RunResult struct {
	RunID        string         `json:"run_id"`
	PlayerID     int            `json:"player_id"`
	PlayerName   string         `json:"player_name"`
	Opponent     string         `json:"opponent,omitempty"`
	Season       string         `json:"season"`
	Games        int            `json:"games"`
	Seed         uint64         `json:"seed"`
	Distribution map[int]int    `json:"distribution"`
	Summary      models.Summary `json:"summary"`
	Model        ModelInfo      `json:"model"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ModelInfo describes the fitted inputs behind a result
type ModelInfo struct {
	Zones       int          `json:"zones"`
	Covariance  string       `json:"covariance"`
	BIC         float64      `json:"bic"`
	Converged   bool         `json:"converged"`
	AttemptMean float64      `json:"attempt_mean"`
	AttemptStd  float64      `json:"attempt_std"`
	ZoneDetails []ZoneDetail `json:"zone_details"`
}

// ZoneDetail reports one zone's location, rates, and adjustment. Nil rate
// pointers mean the population never shot from the zone; a nil adjustment
// means no defensive information.
type ZoneDetail struct {
	Zone         int      `json:"zone"`
	CenterX      float64  `json:"center_x"`
	CenterY      float64  `json:"center_y"`
	Weight       float64  `json:"weight"`
	PlayerRate   *float64 `json:"player_rate"`
	LeagueRate   *float64 `json:"league_rate"`
	OpponentRate *float64 `json:"opponent_rate"`
	Adjustment   *float64 `json:"adjustment"`
}

// NewEngine creates a simulation engine. db may be nil for memory-only use.
func NewEngine(db DB, stats ShotSource, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		db:         db,
		stats:      stats,
		workers:    workers,
		activeRuns: make(map[string]*RunStatus),
	}
}

// RunSimulation executes a complete simulation run: fetch, fit, simulate,
// aggregate, store. It is meant to be launched on its own goroutine; all
// failures land in the run status rather than a return value.
func (e *Engine) RunSimulation(params RunParams) {
	ctx := context.Background()
	start := time.Now()
	metrics.RecordSimulationStarted()

	e.mu.Lock()
	e.activeRuns[params.RunID] = &RunStatus{
		RunID:      params.RunID,
		PlayerID:   params.PlayerID,
		PlayerName: params.PlayerName,
		Opponent:   params.Opponent,
		Season:     params.Season,
		TotalGames: params.Games,
		Status:     StatusRunning,
		StartTime:  start,
	}
	e.mu.Unlock()
	e.updateRunStatus(ctx, params.RunID, StatusRunning, "")

	result, err := e.execute(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("run_id", params.RunID).Msg("Simulation run failed")
		metrics.RecordSimulationFailed()
		e.failRun(ctx, params.RunID, err)
		return
	}

	if err := e.storeResult(ctx, result); err != nil {
		// The in-memory copy still serves reads; persistence is retried on
		// the next run of the same player at worst.
		log.Error().Err(err).Str("run_id", params.RunID).Msg("Failed to store simulation result")
	}

	e.mu.Lock()
	if status, exists := e.activeRuns[params.RunID]; exists {
		now := time.Now()
		status.Status = StatusCompleted
		status.CompletedGames = params.Games
		status.CompletedTime = &now
		status.result = result
	}
	e.mu.Unlock()
	e.updateRunStatus(ctx, params.RunID, StatusCompleted, "")

	elapsed := time.Since(start)
	metrics.RecordSimulationCompleted(elapsed.Seconds())
	log.Info().
		Str("run_id", params.RunID).
		Str("player", params.PlayerName).
		Int("games", params.Games).
		Dur("elapsed", elapsed).
		Msg("Simulation run completed")
}

// execute prepares every model input and runs the game loop
func (e *Engine) execute(ctx context.Context, params RunParams) (*RunResult, error) {
	playerShots, err := e.stats.PlayerShotChart(ctx, params.PlayerID, params.Season)
	if err != nil {
		return nil, fmt.Errorf("fetch player shot chart: %w", err)
	}
	playerShots = models.FilterComplete(playerShots)
	if len(playerShots) == 0 {
		return nil, fmt.Errorf("%w: player %s has no usable three-point attempts in %s",
			cluster.ErrInsufficientData, params.PlayerName, params.Season)
	}
	log.Info().Str("run_id", params.RunID).Int("shots", len(playerShots)).Msg("Fetched player shot chart")

	leagueShots, err := e.stats.LeagueShotChart(ctx, params.Season)
	if err != nil {
		return nil, fmt.Errorf("fetch league shot chart: %w", err)
	}
	leagueShots = models.FilterComplete(leagueShots)
	log.Info().Str("run_id", params.RunID).Int("shots", len(leagueShots)).Msg("Fetched league shot chart")

	model, err := cluster.Fit(models.Coordinates(playerShots), cluster.Options{
		Zones: params.Zones,
		Seed:  params.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("fit zone model: %w", err)
	}
	k := model.Zones()
	log.Info().
		Str("run_id", params.RunID).
		Int("zones", k).
		Str("covariance", string(model.Family())).
		Float64("bic", model.BIC()).
		Bool("converged", model.Converged()).
		Msg("Zone model selected")

	playerRates, err := models.ZoneRates(model.PredictZones(models.Coordinates(playerShots)), models.Outcomes(playerShots), k)
	if err != nil {
		return nil, fmt.Errorf("player zone rates: %w", err)
	}

	leagueRates, opponentRates, err := e.defenseRates(model, leagueShots, params.Opponent)
	if err != nil {
		return nil, err
	}

	adjustment := models.UnitAdjustment(k)
	if params.Opponent != "" {
		adjustment, err = models.ComputeAdjustment(opponentRates, leagueRates)
		if err != nil {
			return nil, fmt.Errorf("defensive adjustment: %w", err)
		}
	}

	volume, err := BootstrapAttempts(models.AttemptsPerGame(playerShots), params.BootstrapSamples, rand.NewSource(params.Seed+1))
	if err != nil {
		return nil, fmt.Errorf("bootstrap attempt volume: %w", err)
	}
	log.Info().
		Str("run_id", params.RunID).
		Float64("attempt_mean", volume.Mean).
		Float64("attempt_std", volume.Std).
		Msg("Attempt volume estimated")

	sim := &Simulator{
		Model:       model,
		PlayerRates: playerRates,
		Adjustment:  adjustment,
		Volume:      volume,
		Workers:     e.workers,
		OnProgress: func(delta int) {
			e.updateProgress(params.RunID, delta)
		},
	}
	outcome := sim.Run(params.Games, params.Seed)

	means := model.Means()
	weights := model.Weights()
	details := make([]ZoneDetail, k)
	for z := 0; z < k; z++ {
		details[z] = ZoneDetail{
			Zone:         z,
			CenterX:      means[z][0],
			CenterY:      means[z][1],
			Weight:       weights[z],
			PlayerRate:   playerRates[z].ValueOrNil(),
			LeagueRate:   leagueRates[z].ValueOrNil(),
			OpponentRate: opponentRates[z].ValueOrNil(),
			Adjustment:   adjustment[z].ValueOrNil(),
		}
	}

	return &RunResult{
		RunID:        params.RunID,
		PlayerID:     params.PlayerID,
		PlayerName:   params.PlayerName,
		Opponent:     params.Opponent,
		Season:       params.Season,
		Games:        params.Games,
		Seed:         params.Seed,
		Distribution: outcome.Distribution(),
		Summary:      outcome.Summarize(),
		Model: ModelInfo{
			Zones:       k,
			Covariance:  string(model.Family()),
			BIC:         model.BIC(),
			Converged:   model.Converged(),
			AttemptMean: volume.Mean,
			AttemptStd:  volume.Std,
			ZoneDetails: details,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// defenseRates labels league shots with the fitted zones and splits out the
// opponent's defensive sample. With no opponent the opponent table is all
// undefined.
func (e *Engine) defenseRates(model *cluster.Model, leagueShots []models.ShotRecord, opponent string) (models.RateTable, models.RateTable, error) {
	k := model.Zones()
	if len(leagueShots) == 0 {
		return make(models.RateTable, k), make(models.RateTable, k), nil
	}

	zones := model.PredictZones(models.Coordinates(leagueShots))
	leagueRates, err := models.ZoneRates(zones, models.Outcomes(leagueShots), k)
	if err != nil {
		return nil, nil, fmt.Errorf("league zone rates: %w", err)
	}

	opponentRates := make(models.RateTable, k)
	if opponent != "" {
		oppZones := make([]int, 0, len(leagueShots))
		oppMade := make([]bool, 0, len(leagueShots))
		for i, shot := range leagueShots {
			if strings.EqualFold(shot.DefendingTeam, opponent) {
				oppZones = append(oppZones, zones[i])
				oppMade = append(oppMade, shot.Made)
			}
		}
		opponentRates, err = models.ZoneRates(oppZones, oppMade, k)
		if err != nil {
			return nil, nil, fmt.Errorf("opponent zone rates: %w", err)
		}
	}
	return leagueRates, opponentRates, nil
}

// failRun records a failed run in memory and the database
func (e *Engine) failRun(ctx context.Context, runID string, runErr error) {
	e.mu.Lock()
	if status, exists := e.activeRuns[runID]; exists {
		now := time.Now()
		status.Status = StatusError
		status.Error = runErr.Error()
		status.CompletedTime = &now
	}
	e.mu.Unlock()
	e.updateRunStatus(ctx, runID, StatusError, runErr.Error())
}
