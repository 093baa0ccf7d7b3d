package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

const (
	dbOpTimeout   = 5 * time.Second
	progressFlush = 1000 // completed games between progress writes
	runRetention  = 24 * time.Hour
)

// ErrRunNotFound reports an unknown run identifier
var ErrRunNotFound = errors.New("simulation run not found")

// DB is the database surface the engine needs. *pgxpool.Pool satisfies it,
// as do pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const runsDDL = `
CREATE TABLE IF NOT EXISTS simulation_runs (
	id UUID PRIMARY KEY,
	player_id INTEGER NOT NULL,
	player_name TEXT NOT NULL,
	opponent TEXT,
	season TEXT NOT NULL,
	games INTEGER NOT NULL,
	bootstrap_samples INTEGER NOT NULL,
	zones_override INTEGER NOT NULL DEFAULT 0,
	seed BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT,
	completed_games INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const resultsDDL = `
CREATE TABLE IF NOT EXISTS simulation_results (
	run_id UUID PRIMARY KEY REFERENCES simulation_runs(id) ON DELETE CASCADE,
	games INTEGER NOT NULL,
	distribution JSONB NOT NULL,
	summary JSONB NOT NULL,
	model_info JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// InitSchema creates the run-tracking tables when they do not exist
func (e *Engine) InitSchema(ctx context.Context) error {
	if e.db == nil {
		return fmt.Errorf("init schema: no database configured")
	}
	for _, ddl := range []string{runsDDL, resultsDDL} {
		if _, err := e.db.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	log.Info().Msg("Simulation schema ready")
	return nil
}

// CreateRun registers a pending run in memory and the database. The caller
// launches RunSimulation afterwards.
func (e *Engine) CreateRun(ctx context.Context, params RunParams) error {
	e.mu.Lock()
	e.activeRuns[params.RunID] = &RunStatus{
		RunID:      params.RunID,
		PlayerID:   params.PlayerID,
		PlayerName: params.PlayerName,
		Opponent:   params.Opponent,
		Season:     params.Season,
		TotalGames: params.Games,
		Status:     StatusPending,
		StartTime:  time.Now(),
	}
	e.mu.Unlock()

	if e.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbOpTimeout)
	defer cancel()
	_, err := e.db.Exec(ctx, `
		INSERT INTO simulation_runs
			(id, player_id, player_name, opponent, season, games, bootstrap_samples, zones_override, seed, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)`,
		params.RunID, params.PlayerID, params.PlayerName, params.Opponent, params.Season,
		params.Games, params.BootstrapSamples, params.Zones, int64(params.Seed), StatusPending)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// updateRunStatus mirrors a lifecycle transition to the database
func (e *Engine) updateRunStatus(ctx context.Context, runID, status, errMsg string) {
	if e.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, dbOpTimeout)
	defer cancel()
	_, err := e.db.Exec(ctx, `
		UPDATE simulation_runs SET status = $2, error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`,
		runID, status, errMsg)
	if err != nil {
		log.Warn().Err(err).Str("run_id", runID).Str("status", status).Msg("Failed to update run status")
	}
}

// updateProgress advances the in-memory counter on every call and writes it
// through on flush boundaries. The write happens off the simulation
// goroutine so a slow database never stalls the game loop.
func (e *Engine) updateProgress(runID string, delta int) {
	e.mu.Lock()
	status, exists := e.activeRuns[runID]
	if !exists {
		e.mu.Unlock()
		return
	}
	status.CompletedGames += delta
	completed, total := status.CompletedGames, status.TotalGames
	e.mu.Unlock()

	if e.db == nil {
		return
	}
	if completed%progressFlush != 0 && completed != total {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbOpTimeout)
		defer cancel()
		if _, err := e.db.Exec(ctx, `
			UPDATE simulation_runs SET completed_games = $2, updated_at = NOW()
			WHERE id = $1`,
			runID, completed); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("Failed to flush run progress")
		}
	}()
}

// storeResult upserts the aggregate result row for a run
func (e *Engine) storeResult(ctx context.Context, result *RunResult) error {
	if e.db == nil {
		return nil
	}
	distribution, err := json.Marshal(result.Distribution)
	if err != nil {
		return fmt.Errorf("marshal distribution: %w", err)
	}
	summary, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	modelInfo, err := json.Marshal(result.Model)
	if err != nil {
		return fmt.Errorf("marshal model info: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbOpTimeout)
	defer cancel()
	_, err = e.db.Exec(ctx, `
		INSERT INTO simulation_results (run_id, games, distribution, summary, model_info)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			games = EXCLUDED.games,
			distribution = EXCLUDED.distribution,
			summary = EXCLUDED.summary,
			model_info = EXCLUDED.model_info,
			updated_at = NOW()`,
		result.RunID, result.Games, distribution, summary, modelInfo)
	if err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

// GetRunStatus reads a run's status, preferring the in-memory copy and
// falling back to the database for runs from earlier process lifetimes
func (e *Engine) GetRunStatus(ctx context.Context, runID string) (*RunStatus, error) {
	e.mu.RLock()
	if status, exists := e.activeRuns[runID]; exists {
		snapshot := *status
		e.mu.RUnlock()
		return &snapshot, nil
	}
	e.mu.RUnlock()

	if e.db == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	var (
		s       RunStatus
		updated time.Time
	)
	err := e.db.QueryRow(ctx, `
		SELECT id, player_id, player_name, COALESCE(opponent, ''), season, games,
			completed_games, status, COALESCE(error, ''), created_at, updated_at
		FROM simulation_runs WHERE id = $1`,
		runID).Scan(&s.RunID, &s.PlayerID, &s.PlayerName, &s.Opponent, &s.Season,
		&s.TotalGames, &s.CompletedGames, &s.Status, &s.Error, &s.StartTime, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run status: %w", err)
	}
	if s.Status == StatusCompleted || s.Status == StatusError {
		s.CompletedTime = &updated
	}
	return &s, nil
}

// GetRunResult reads a completed run's result, preferring the in-memory copy
func (e *Engine) GetRunResult(ctx context.Context, runID string) (*RunResult, error) {
	e.mu.RLock()
	if status, exists := e.activeRuns[runID]; exists && status.result != nil {
		result := status.result
		e.mu.RUnlock()
		return result, nil
	}
	e.mu.RUnlock()

	if e.db == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	var (
		result       RunResult
		distribution []byte
		summary      []byte
		modelInfo    []byte
		seed         int64
	)
	err := e.db.QueryRow(ctx, `
		SELECT r.run_id, r.games, r.distribution, r.summary, r.model_info, r.created_at,
			s.player_id, s.player_name, COALESCE(s.opponent, ''), s.season, s.seed
		FROM simulation_results r
		JOIN simulation_runs s ON s.id = r.run_id
		WHERE r.run_id = $1`,
		runID).Scan(&result.RunID, &result.Games, &distribution, &summary, &modelInfo,
		&result.CreatedAt, &result.PlayerID, &result.PlayerName, &result.Opponent,
		&result.Season, &seed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run result: %w", err)
	}
	result.Seed = uint64(seed)
	if err := json.Unmarshal(distribution, &result.Distribution); err != nil {
		return nil, fmt.Errorf("decode distribution: %w", err)
	}
	if err := json.Unmarshal(summary, &result.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	if err := json.Unmarshal(modelInfo, &result.Model); err != nil {
		return nil, fmt.Errorf("decode model info: %w", err)
	}
	return &result, nil
}

// ActiveRuns reports how many runs the engine is tracking in memory
func (e *Engine) ActiveRuns() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeRuns)
}

// CleanupOldRuns drops finished runs from the in-memory map once they age
// out. The database rows stay.
func (e *Engine) CleanupOldRuns() {
	cutoff := time.Now().Add(-runRetention)
	removed := 0
	e.mu.Lock()
	for id, status := range e.activeRuns {
		if status.CompletedTime != nil && status.CompletedTime.Before(cutoff) {
			delete(e.activeRuns, id)
			removed++
		}
	}
	e.mu.Unlock()
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Cleaned up old simulation runs")
	}
}
