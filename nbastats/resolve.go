package nbastats

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrPlayerNotFound reports that a name matched no player
var ErrPlayerNotFound = errors.New("player not found")

const (
	allPlayersEndpoint = "commonallplayers"
	allPlayersSet      = "CommonAllPlayers"

	// searchFloor is the minimum similarity for a non-substring search hit
	searchFloor = 0.6

	// resolveFloor is the minimum similarity to resolve a name with no
	// substring match at all
	resolveFloor = 0.75
)

// Player is one roster entry
type Player struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	TeamID   int    `json:"team_id"`
	TeamAbbr string `json:"team_abbr"`
	Active   bool   `json:"active"`
}

// AllPlayers fetches the full player index, current rosters included
func (c *Client) AllPlayers(ctx context.Context, season string) ([]Player, error) {
	params := url.Values{
		"LeagueID":            {"00"},
		"Season":              {season},
		"IsOnlyCurrentSeason": {"0"},
	}

	var resp response
	if err := c.get(ctx, allPlayersEndpoint, params, &resp); err != nil {
		return nil, err
	}

	set, ok := resp.set(allPlayersSet)
	if !ok {
		return nil, fmt.Errorf("player index response missing %s result set", allPlayersSet)
	}
	idCol := set.col("PERSON_ID")
	nameCol := set.col("DISPLAY_FIRST_LAST")
	rosterCol := set.col("ROSTERSTATUS")
	teamCol := set.col("TEAM_ID")
	abbrCol := set.col("TEAM_ABBREVIATION")
	if idCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("player index response missing identity columns")
	}

	players := make([]Player, 0, len(set.RowSet))
	for _, row := range set.RowSet {
		p := Player{
			ID:       rowInt(row, idCol),
			Name:     rowString(row, nameCol),
			TeamID:   rowInt(row, teamCol),
			TeamAbbr: rowString(row, abbrCol),
			Active:   rowInt(row, rosterCol) == 1,
		}
		if p.ID == 0 || p.Name == "" {
			continue
		}
		players = append(players, p)
	}
	log.Debug().Str("season", season).Int("players", len(players)).Msg("Fetched player index")
	return players, nil
}

// ResolvePlayer maps a free-form name to one player. An exact
// case-insensitive match wins; otherwise substring candidates are ranked by
// similarity and the closest taken.
func (c *Client) ResolvePlayer(ctx context.Context, name string) (Player, error) {
	players, err := c.AllPlayers(ctx, CurrentSeason())
	if err != nil {
		return Player{}, err
	}
	return resolveAmong(players, name)
}

// PlayerByID looks a player up by their numeric stats.nba.com identifier
func (c *Client) PlayerByID(ctx context.Context, id int) (Player, error) {
	players, err := c.AllPlayers(ctx, CurrentSeason())
	if err != nil {
		return Player{}, err
	}
	for _, p := range players {
		if p.ID == id {
			return p, nil
		}
	}
	return Player{}, fmt.Errorf("%w: id %d", ErrPlayerNotFound, id)
}

func resolveAmong(players []Player, name string) (Player, error) {
	query := strings.TrimSpace(name)
	if query == "" {
		return Player{}, fmt.Errorf("%w: empty name", ErrPlayerNotFound)
	}

	var candidates []Player
	for _, p := range players {
		if strings.EqualFold(p.Name, query) {
			return p, nil
		}
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(query)) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		// No substring hit; fall back to pure similarity so near-miss
		// spellings ("Steph Curry") still resolve.
		var best Player
		bestScore := 0.0
		for _, p := range players {
			if score := similarity(query, p.Name); score > bestScore {
				best, bestScore = p, score
			}
		}
		if bestScore >= resolveFloor {
			return best, nil
		}
		return Player{}, fmt.Errorf("%w: %q", ErrPlayerNotFound, name)
	}

	best := candidates[0]
	bestScore := similarity(query, best.Name)
	for _, p := range candidates[1:] {
		if score := similarity(query, p.Name); score > bestScore {
			best, bestScore = p, score
		}
	}
	return best, nil
}

// SearchPlayers ranks the player index against a query, best match first
func (c *Client) SearchPlayers(ctx context.Context, query string, limit int) ([]Player, error) {
	players, err := c.AllPlayers(ctx, CurrentSeason())
	if err != nil {
		return nil, err
	}
	return searchAmong(players, query, limit), nil
}

func searchAmong(players []Player, query string, limit int) []Player {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil
	}

	type scored struct {
		player Player
		score  float64
	}
	lower := strings.ToLower(query)
	var hits []scored
	for _, p := range players {
		score := similarity(query, p.Name)
		if strings.Contains(strings.ToLower(p.Name), lower) {
			// substring hits always rank above pure-similarity hits
			score++
		} else if score < searchFloor {
			continue
		}
		hits = append(hits, scored{player: p, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	result := make([]Player, len(hits))
	for i, h := range hits {
		result[i] = h.player
	}
	return result
}

// similarity scores two strings in [0,1] as twice the number of characters
// matched across recursively-taken longest common substrings over the total
// length, case-insensitively
func similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	return 2 * float64(matchedChars(a, b)) / float64(total)
}

func matchedChars(a, b string) int {
	ai, bi, size := longestCommonRun(a, b)
	if size == 0 {
		return 0
	}
	return size + matchedChars(a[:ai], b[:bi]) + matchedChars(a[ai+size:], b[bi+size:])
}

// longestCommonRun finds the longest common substring of a and b, returning
// its start in each and its length
func longestCommonRun(a, b string) (int, int, int) {
	var bestA, bestB, bestLen int
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				curr[j] = 0
				continue
			}
			curr[j] = prev[j-1] + 1
			if curr[j] > bestLen {
				bestLen = curr[j]
				bestA = i - bestLen
				bestB = j - bestLen
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return bestA, bestB, bestLen
}
