package nbastats

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

var testRoster = []Player{
	{ID: 201939, Name: "Stephen Curry", TeamID: 1610612744, TeamAbbr: "GSW", Active: true},
	{ID: 1629029, Name: "Luka Doncic", TeamID: 1610612742, TeamAbbr: "DAL", Active: true},
	{ID: 203081, Name: "Damian Lillard", TeamID: 1610612749, TeamAbbr: "MIL", Active: true},
	{ID: 1627736, Name: "Seth Curry", TeamID: 1610612766, TeamAbbr: "CHA", Active: true},
	{ID: 76986, Name: "Dell Curry", Active: false},
}

// TestResolveAmong tests exact, substring, and closest-match resolution
func TestResolveAmong(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantID  int
		wantErr bool
	}{
		{"exact match", "Stephen Curry", 201939, false},
		{"exact case-insensitive", "stephen curry", 201939, false},
		{"unique substring", "Doncic", 1629029, false},
		{"ambiguous substring picks closest", "Curry", 1627736, false},
		{"near-miss spelling falls back to similarity", "Steph Curry", 201939, false},
		{"initials fall back to similarity", "S Curry", 1627736, false},
		{"no match", "Larry Bird", 0, true},
		{"empty query", "  ", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player, err := resolveAmong(testRoster, tt.query)
			if tt.wantErr {
				if !errors.Is(err, ErrPlayerNotFound) {
					t.Fatalf("Expected ErrPlayerNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveAmong returned error: %v", err)
			}
			if player.ID != tt.wantID {
				t.Errorf("Resolved %q to %s (%d), want id %d", tt.query, player.Name, player.ID, tt.wantID)
			}
		})
	}
}

// TestSearchAmong tests ranking and the result cap
func TestSearchAmong(t *testing.T) {
	hits := searchAmong(testRoster, "curry", 10)
	if len(hits) != 3 {
		t.Fatalf("Expected 3 Curry hits, got %d", len(hits))
	}
	for _, hit := range hits {
		if hit.Name != "Stephen Curry" && hit.Name != "Seth Curry" && hit.Name != "Dell Curry" {
			t.Errorf("Unexpected hit %q", hit.Name)
		}
	}

	capped := searchAmong(testRoster, "curry", 2)
	if len(capped) != 2 {
		t.Errorf("Expected limit to cap results at 2, got %d", len(capped))
	}

	if got := searchAmong(testRoster, "", 10); got != nil {
		t.Errorf("Expected no hits for empty query, got %d", len(got))
	}
	if got := searchAmong(testRoster, "xyzzy", 10); len(got) != 0 {
		t.Errorf("Expected no hits for unmatched query, got %d", len(got))
	}
}

// TestSimilarity tests the ratio against hand-checked values
func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1.0},
		{"abc", "xyz", 0.0},
		{"", "", 0.0},
		{"abcd", "bc", 2.0 * 2 / 6},      // "bc" in common
		{"Curry", "curry", 1.0},          // case-insensitive
		{"abab", "ab", 2.0 * 2 / 6},      // single longest run counted once
	}

	for _, tt := range tests {
		if got := similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

// TestResolvePlayer tests resolution through the roster endpoint
func TestResolvePlayer(t *testing.T) {
	payload, err := json.Marshal(response{
		ResultSets: []resultSet{{
			Name: allPlayersSet,
			Headers: []string{
				"PERSON_ID", "DISPLAY_LAST_COMMA_FIRST", "DISPLAY_FIRST_LAST", "ROSTERSTATUS",
				"FROM_YEAR", "TO_YEAR", "PLAYERCODE", "TEAM_ID", "TEAM_CITY", "TEAM_NAME", "TEAM_ABBREVIATION",
			},
			RowSet: [][]interface{}{
				{201939, "Curry, Stephen", "Stephen Curry", 1, "2009", "2025", "stephen_curry", 1610612744, "Golden State", "Warriors", "GSW"},
				{1629029, "Doncic, Luka", "Luka Doncic", 1, "2018", "2025", "luka_doncic", 1610612742, "Dallas", "Mavericks", "DAL"},
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats/"+allPlayersEndpoint {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write(payload)
	}))
	defer srv.Close()

	client := NewClient(nil)
	client.baseURL = srv.URL

	player, err := client.ResolvePlayer(context.Background(), "luka doncic")
	if err != nil {
		t.Fatalf("ResolvePlayer returned error: %v", err)
	}
	if player.ID != 1629029 {
		t.Errorf("Expected Doncic (1629029), got %s (%d)", player.Name, player.ID)
	}
	if player.TeamAbbr != "DAL" {
		t.Errorf("Expected team DAL, got %q", player.TeamAbbr)
	}

	if _, err := client.ResolvePlayer(context.Background(), "Nobody Nowhere"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("Expected ErrPlayerNotFound, got %v", err)
	}
}
