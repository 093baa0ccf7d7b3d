package nbastats

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/threes-sim/engine/models"
)

const (
	shotChartEndpoint = "shotchartdetail"
	shotChartSet      = "Shot_Chart_Detail"

	// contextMeasure3PA restricts the chart to three-point attempts
	contextMeasure3PA = "FG3A"

	seasonTypeRegular = "Regular Season"
)

// shotChartParams builds the full parameter list the endpoint insists on.
// PlayerID 0 with TeamID 0 selects the whole league.
func shotChartParams(playerID, teamID int, season string) url.Values {
	return url.Values{
		"PlayerID":       {strconv.Itoa(playerID)},
		"TeamID":         {strconv.Itoa(teamID)},
		"Season":         {season},
		"SeasonType":     {seasonTypeRegular},
		"ContextMeasure": {contextMeasure3PA},
		"LeagueID":       {"00"},
		"LastNGames":     {"0"},
		"Month":          {"0"},
		"OpponentTeamID": {"0"},
		"Period":         {"0"},
		"ContextFilter":  {""},
		"DateFrom":       {""},
		"DateTo":         {""},
		"GameID":         {""},
		"GameSegment":    {""},
		"Location":       {""},
		"Outcome":        {""},
		"Position":       {""},
		"RookieYear":     {""},
		"SeasonSegment":  {""},
		"VsConference":   {""},
		"VsDivision":     {""},
	}
}

// PlayerShotChart fetches one player's three-point attempts for a season
func (c *Client) PlayerShotChart(ctx context.Context, playerID int, season string) ([]models.ShotRecord, error) {
	var resp response
	if err := c.get(ctx, shotChartEndpoint, shotChartParams(playerID, 0, season), &resp); err != nil {
		return nil, err
	}
	shots, err := parseShotChart(&resp, nil)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("player_id", playerID).Str("season", season).Int("shots", len(shots)).Msg("Parsed player shot chart")
	return shots, nil
}

// LeagueShotChart fetches every three-point attempt in a season, labeling
// each shot with the defending team derived from the game's matchup
func (c *Client) LeagueShotChart(ctx context.Context, season string) ([]models.ShotRecord, error) {
	matchups, err := c.GameMatchups(ctx, season)
	if err != nil {
		return nil, err
	}

	var resp response
	if err := c.get(ctx, shotChartEndpoint, shotChartParams(0, 0, season), &resp); err != nil {
		return nil, err
	}
	shots, err := parseShotChart(&resp, matchups)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("season", season).Int("shots", len(shots)).Msg("Parsed league shot chart")
	return shots, nil
}

// parseShotChart maps chart rows to shot records. Rows without usable
// coordinates are dropped. A non-nil matchup index labels each shot with
// its defending team.
func parseShotChart(resp *response, matchups MatchupIndex) ([]models.ShotRecord, error) {
	set, ok := resp.set(shotChartSet)
	if !ok {
		return nil, fmt.Errorf("shot chart response missing %s result set", shotChartSet)
	}

	gameCol := set.col("GAME_ID")
	playerCol := set.col("PLAYER_ID")
	teamCol := set.col("TEAM_ID")
	xCol := set.col("LOC_X")
	yCol := set.col("LOC_Y")
	madeCol := set.col("SHOT_MADE_FLAG")
	for name, idx := range map[string]int{
		"GAME_ID": gameCol, "PLAYER_ID": playerCol, "TEAM_ID": teamCol,
		"LOC_X": xCol, "LOC_Y": yCol, "SHOT_MADE_FLAG": madeCol,
	} {
		if idx < 0 {
			return nil, fmt.Errorf("shot chart response missing %s column", name)
		}
	}

	shots := make([]models.ShotRecord, 0, len(set.RowSet))
	for _, row := range set.RowSet {
		x, okX := rowFloat(row, xCol)
		y, okY := rowFloat(row, yCol)
		if !okX || !okY {
			continue
		}

		rec := models.ShotRecord{
			GameID:   rowString(row, gameCol),
			PlayerID: rowInt(row, playerCol),
			TeamID:   rowInt(row, teamCol),
			LocX:     x,
			LocY:     y,
			Made:     rowInt(row, madeCol) == 1,
		}
		if matchups != nil {
			rec.DefendingTeam = matchups.Defender(rec.GameID, rec.TeamID)
		}
		shots = append(shots, rec)
	}
	return shots, nil
}
