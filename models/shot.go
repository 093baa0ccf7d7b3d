package models

import (
	"math"
	"sort"
)

// ShotRecord represents a single three-point attempt with its court location
type ShotRecord struct {
	GameID        string  `json:"game_id"`
	PlayerID      int     `json:"player_id"`
	TeamID        int     `json:"team_id"`
	LocX          float64 `json:"loc_x"` // court-relative units, hoop-centered
	LocY          float64 `json:"loc_y"`
	Made          bool    `json:"made"`
	DefendingTeam string  `json:"defending_team,omitempty"` // abbreviation, set for league-scope fetches
}

// FilterComplete drops records whose coordinates are not finite numbers.
// Upstream rows occasionally arrive with blank location cells; those decode
// to NaN and must never reach the clustering model.
func FilterComplete(records []ShotRecord) []ShotRecord {
	out := make([]ShotRecord, 0, len(records))
	for _, r := range records {
		if !isFinite(r.LocX) || !isFinite(r.LocY) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Coordinates extracts the x/y location of each record as a point slice
func Coordinates(records []ShotRecord) [][]float64 {
	pts := make([][]float64, len(records))
	for i, r := range records {
		pts[i] = []float64{r.LocX, r.LocY}
	}
	return pts
}

// Outcomes extracts the made flag of each record
func Outcomes(records []ShotRecord) []bool {
	made := make([]bool, len(records))
	for i, r := range records {
		made[i] = r.Made
	}
	return made
}

// AttemptsPerGame groups records by game and counts attempts in each,
// producing the per-game volume history the bootstrap estimator resamples.
// Games with no recorded attempts do not appear. Output order follows
// ascending game identifier so repeated calls agree.
func AttemptsPerGame(records []ShotRecord) []int {
	byGame := make(map[string]int)
	for _, r := range records {
		byGame[r.GameID]++
	}

	ids := make([]string, 0, len(byGame))
	for id := range byGame {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	counts := make([]int, len(ids))
	for i, id := range ids {
		counts[i] = byGame[id]
	}
	return counts
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
