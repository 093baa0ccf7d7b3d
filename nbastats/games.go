package nbastats

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	gameFinderEndpoint = "leaguegamefinder"
	gameFinderSet      = "LeagueGameFinderResults"
)

// Matchup is one team's side of one game. The matchup string reads
// "DAL vs. BOS" for home games and "DAL @ BOS" on the road.
type Matchup struct {
	GameID   string
	TeamID   int
	TeamAbbr string
	Matchup  string
}

// MatchupIndex groups matchup rows by game so a shot's defending team can
// be looked up from its game and shooting team
type MatchupIndex map[string][]Matchup

// Defender returns the team abbreviation defending against teamID in the
// given game, or "" when the game is unknown
func (m MatchupIndex) Defender(gameID string, teamID int) string {
	for _, entry := range m[gameID] {
		if entry.TeamID == teamID {
			return opposingAbbr(entry.Matchup, entry.TeamAbbr)
		}
	}
	// The shooter's own row can be missing from the log; any remaining
	// row belongs to the other team, which is the defender.
	for _, entry := range m[gameID] {
		if entry.TeamID != teamID {
			return entry.TeamAbbr
		}
	}
	return ""
}

// opposingAbbr picks the other side out of a matchup string. The first and
// last fields are the two teams regardless of the vs./@ separator.
func opposingAbbr(matchup, teamAbbr string) string {
	fields := strings.Fields(matchup)
	if len(fields) < 2 {
		return ""
	}
	first, last := fields[0], fields[len(fields)-1]
	if teamAbbr != first {
		return first
	}
	if teamAbbr != last {
		return last
	}
	return ""
}

// GameMatchups fetches the season's team game log and indexes it by game
func (c *Client) GameMatchups(ctx context.Context, season string) (MatchupIndex, error) {
	params := url.Values{
		"PlayerOrTeam": {"T"},
		"Season":       {season},
		"SeasonType":   {seasonTypeRegular},
		"LeagueID":     {"00"},
	}

	var resp response
	if err := c.get(ctx, gameFinderEndpoint, params, &resp); err != nil {
		return nil, err
	}

	set, ok := resp.set(gameFinderSet)
	if !ok {
		return nil, fmt.Errorf("game finder response missing %s result set", gameFinderSet)
	}
	gameCol := set.col("GAME_ID")
	teamCol := set.col("TEAM_ID")
	abbrCol := set.col("TEAM_ABBREVIATION")
	matchupCol := set.col("MATCHUP")
	if gameCol < 0 || teamCol < 0 || abbrCol < 0 || matchupCol < 0 {
		return nil, fmt.Errorf("game finder response missing matchup columns")
	}

	index := make(MatchupIndex)
	for _, row := range set.RowSet {
		entry := Matchup{
			GameID:   rowString(row, gameCol),
			TeamID:   rowInt(row, teamCol),
			TeamAbbr: rowString(row, abbrCol),
			Matchup:  rowString(row, matchupCol),
		}
		if entry.GameID == "" {
			continue
		}
		index[entry.GameID] = append(index[entry.GameID], entry)
	}
	log.Debug().Str("season", season).Int("games", len(index)).Msg("Indexed season matchups")
	return index, nil
}
