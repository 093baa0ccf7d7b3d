package simulation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threes-sim/engine/models"
)

func testResult(runID string) *RunResult {
	return &RunResult{
		RunID:        runID,
		PlayerID:     1629029,
		PlayerName:   "Luka Doncic",
		Season:       "2023-24",
		Games:        100,
		Seed:         7,
		Distribution: map[int]int{2: 40, 3: 60},
		Summary:      models.Summary{Games: 100, Mean: 2.6, StdDev: 1.4, Median: 3, P10: 1, P90: 5, Max: 8},
		Model: ModelInfo{
			Zones:       3,
			Covariance:  "full",
			BIC:         1523.4,
			Converged:   true,
			AttemptMean: 7.8,
			AttemptStd:  1.1,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// TestInitSchema tests that both tables are created
func TestInitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS simulation_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS simulation_results").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	engine := NewEngine(mock, nil, 1)
	require.NoError(t, engine.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCreateRun tests that a new run is registered in memory and the database
func TestCreateRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	params := testParams("run-db-1")
	mock.ExpectExec("INSERT INTO simulation_runs").
		WithArgs(params.RunID, params.PlayerID, params.PlayerName, params.Opponent,
			params.Season, params.Games, params.BootstrapSamples, params.Zones,
			int64(params.Seed), StatusPending).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	engine := NewEngine(mock, nil, 1)
	require.NoError(t, engine.CreateRun(context.Background(), params))
	assert.NoError(t, mock.ExpectationsWereMet())

	status, err := engine.GetRunStatus(context.Background(), "run-db-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)
	assert.Equal(t, params.Games, status.TotalGames)
	assert.Equal(t, 0, status.CompletedGames)
}

// TestCreateRunNoDatabase tests memory-only registration
func TestCreateRunNoDatabase(t *testing.T) {
	engine := NewEngine(nil, nil, 1)
	params := testParams("run-db-2")

	require.NoError(t, engine.CreateRun(context.Background(), params))

	status, err := engine.GetRunStatus(context.Background(), "run-db-2")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)
}

// TestStoreResult tests the aggregate upsert
func TestStoreResult(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	result := testResult("run-db-3")
	mock.ExpectExec("INSERT INTO simulation_results").
		WithArgs(result.RunID, result.Games, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	engine := NewEngine(mock, nil, 1)
	require.NoError(t, engine.storeResult(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestGetRunStatusFromDatabase tests the fallback read for runs no longer
// held in memory
func TestGetRunStatusFromDatabase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Now().Add(-time.Hour)
	updated := started.Add(2 * time.Minute)
	mock.ExpectQuery("SELECT id, player_id, player_name").
		WithArgs("run-db-4").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "player_id", "player_name", "opponent", "season", "games",
			"completed_games", "status", "error", "created_at", "updated_at",
		}).AddRow("run-db-4", 201939, "Stephen Curry", "", "2023-24", 500,
			500, StatusCompleted, "", started, updated))

	engine := NewEngine(mock, nil, 1)
	status, err := engine.GetRunStatus(context.Background(), "run-db-4")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "Stephen Curry", status.PlayerName)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, 500, status.CompletedGames)
	require.NotNil(t, status.CompletedTime)
	assert.Equal(t, updated, *status.CompletedTime)
}

// TestGetRunStatusNotFound tests that an unknown id maps to ErrRunNotFound
func TestGetRunStatusNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, player_id, player_name").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	engine := NewEngine(mock, nil, 1)
	_, err = engine.GetRunStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// TestGetRunResultFromDatabase tests decoding a persisted result row
func TestGetRunResultFromDatabase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := testResult("run-db-5")
	distribution, err := json.Marshal(want.Distribution)
	require.NoError(t, err)
	summary, err := json.Marshal(want.Summary)
	require.NoError(t, err)
	modelInfo, err := json.Marshal(want.Model)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT r.run_id, r.games").
		WithArgs("run-db-5").
		WillReturnRows(pgxmock.NewRows([]string{
			"run_id", "games", "distribution", "summary", "model_info", "created_at",
			"player_id", "player_name", "opponent", "season", "seed",
		}).AddRow(want.RunID, want.Games, distribution, summary, modelInfo,
			want.CreatedAt, want.PlayerID, want.PlayerName, "", want.Season, int64(want.Seed)))

	engine := NewEngine(mock, nil, 1)
	got, err := engine.GetRunResult(context.Background(), "run-db-5")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, want.Distribution, got.Distribution)
	assert.Equal(t, want.Summary, got.Summary)
	assert.Equal(t, want.Model.Zones, got.Model.Zones)
	assert.Equal(t, want.Seed, got.Seed)
}

// TestUpdateProgressMemory tests the in-memory progress counter
func TestUpdateProgressMemory(t *testing.T) {
	engine := NewEngine(nil, nil, 1)
	params := testParams("run-db-6")
	require.NoError(t, engine.CreateRun(context.Background(), params))

	engine.updateProgress("run-db-6", 30)
	engine.updateProgress("run-db-6", 20)

	status, err := engine.GetRunStatus(context.Background(), "run-db-6")
	require.NoError(t, err)
	assert.Equal(t, 50, status.CompletedGames)

	// Unknown runs are ignored
	engine.updateProgress("missing", 10)
}

// TestCleanupOldRuns tests that only aged-out finished runs are dropped
func TestCleanupOldRuns(t *testing.T) {
	engine := NewEngine(nil, nil, 1)

	stale := time.Now().Add(-25 * time.Hour)
	fresh := time.Now().Add(-time.Hour)
	engine.activeRuns["stale"] = &RunStatus{RunID: "stale", Status: StatusCompleted, CompletedTime: &stale}
	engine.activeRuns["fresh"] = &RunStatus{RunID: "fresh", Status: StatusCompleted, CompletedTime: &fresh}
	engine.activeRuns["live"] = &RunStatus{RunID: "live", Status: StatusRunning}

	engine.CleanupOldRuns()

	assert.Equal(t, 2, engine.ActiveRuns())
	_, err := engine.GetRunStatus(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = engine.GetRunStatus(context.Background(), "fresh")
	assert.NoError(t, err)
}
