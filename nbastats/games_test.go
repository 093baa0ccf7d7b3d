package nbastats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestOpposingAbbr tests matchup-string parsing for home and road games
func TestOpposingAbbr(t *testing.T) {
	tests := []struct {
		matchup  string
		teamAbbr string
		want     string
	}{
		{"DAL vs. BOS", "DAL", "BOS"},
		{"DAL vs. BOS", "BOS", "DAL"},
		{"MIA @ DEN", "MIA", "DEN"},
		{"MIA @ DEN", "DEN", "MIA"},
		{"DAL vs. BOS", "LAL", "DAL"}, // shooter not in matchup: first side wins
		{"", "DAL", ""},
		{"DAL", "DAL", ""},
	}

	for _, tt := range tests {
		if got := opposingAbbr(tt.matchup, tt.teamAbbr); got != tt.want {
			t.Errorf("opposingAbbr(%q, %q) = %q, want %q", tt.matchup, tt.teamAbbr, got, tt.want)
		}
	}
}

// TestMatchupIndexDefender tests defender lookup, including the fallback
// when the shooter's own row is missing
func TestMatchupIndexDefender(t *testing.T) {
	index := MatchupIndex{
		"0022300001": {
			{GameID: "0022300001", TeamID: 1610612742, TeamAbbr: "DAL", Matchup: "DAL vs. BOS"},
			{GameID: "0022300001", TeamID: 1610612738, TeamAbbr: "BOS", Matchup: "BOS @ DAL"},
		},
		"0022300002": {
			{GameID: "0022300002", TeamID: 1610612748, TeamAbbr: "MIA", Matchup: "MIA @ DEN"},
		},
	}

	tests := []struct {
		name   string
		gameID string
		teamID int
		want   string
	}{
		{"home team", "0022300001", 1610612742, "BOS"},
		{"road team", "0022300001", 1610612738, "DAL"},
		{"missing own row falls back to other side", "0022300002", 1610612743, "MIA"},
		{"unknown game", "0022399999", 1610612742, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := index.Defender(tt.gameID, tt.teamID); got != tt.want {
				t.Errorf("Defender(%q, %d) = %q, want %q", tt.gameID, tt.teamID, got, tt.want)
			}
		})
	}
}

// TestGameMatchups tests fetching and indexing the season game log
func TestGameMatchups(t *testing.T) {
	payload, err := json.Marshal(response{
		ResultSets: []resultSet{{
			Name:    gameFinderSet,
			Headers: []string{"SEASON_ID", "TEAM_ID", "TEAM_ABBREVIATION", "TEAM_NAME", "GAME_ID", "GAME_DATE", "MATCHUP", "WL"},
			RowSet: [][]interface{}{
				{"22023", 1610612742, "DAL", "Dallas Mavericks", "0022300001", "2023-10-25", "DAL vs. BOS", "W"},
				{"22023", 1610612738, "BOS", "Boston Celtics", "0022300001", "2023-10-25", "BOS @ DAL", "L"},
				{"22023", 1610612748, "MIA", "Miami Heat", "0022300002", "2023-10-26", "MIA @ DEN", "L"},
				{"22023", 1610612743, "DEN", "Denver Nuggets", "0022300002", "2023-10-26", "DEN vs. MIA", "W"},
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats/"+gameFinderEndpoint {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("PlayerOrTeam"); got != "T" {
			t.Errorf("Expected PlayerOrTeam=T, got %q", got)
		}
		w.Write(payload)
	}))
	defer srv.Close()

	client := NewClient(nil)
	client.baseURL = srv.URL

	index, err := client.GameMatchups(context.Background(), "2023-24")
	if err != nil {
		t.Fatalf("GameMatchups returned error: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("Expected 2 games, got %d", len(index))
	}
	if got := index.Defender("0022300002", 1610612743); got != "MIA" {
		t.Errorf("Expected DEN's defender MIA, got %q", got)
	}
}

// TestGameMatchupsMissingSet tests the error on an unexpected payload
func TestGameMatchupsMissingSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultSets":[]}`))
	}))
	defer srv.Close()

	client := NewClient(nil)
	client.baseURL = srv.URL

	if _, err := client.GameMatchups(context.Background(), "2023-24"); err == nil {
		t.Error("Expected error for missing result set, got nil")
	}
}
