package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"arc-stats-service/internal/model"
)

// Participant is one eligible player of an assembled match. UsernameKey is
// empty for anonymous players; those never receive ratings but still hold a
// placement.
type Participant struct {
	PlayerColor       string
	Username          string
	UsernameKey       string
	RawUsername       *string
	SelectedCharacter string
	VictoryPoints     int
	Placement         int
}

// Match is the aggregate of one game's raw result rows. It is either fully
// valid with ranked participants, or invalid with a reason and no
// participant data.
type Match struct {
	GameID              string
	StartedAt           *time.Time
	EndedAt             *time.Time
	NavigationCount     int
	PlayerCountExpected int
	PlayerCountActual   int
	IsValid             bool
	InvalidReason       string
	Participants        []Participant
	Players             []Participant
}

// UsernameKey normalizes a username into the identity key used to correlate
// a player across matches: trimmed and case-folded.
func UsernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Assemble groups raw rows by game id and derives one Match per game.
// Validity rules run in a fixed order and the first failure wins; matches
// failing any rule are kept with their reason but carry no participants.
func Assemble(rows []model.GameResult, minVictoryPoints int) []Match {
	order := make([]string, 0)
	grouped := make(map[string][]model.GameResult)
	for _, row := range rows {
		if _, ok := grouped[row.GameID]; !ok {
			order = append(order, row.GameID)
		}
		grouped[row.GameID] = append(grouped[row.GameID], row)
	}

	matches := make([]Match, 0, len(order))
	for _, gameID := range order {
		matches = append(matches, assembleOne(gameID, grouped[gameID], minVictoryPoints))
	}

	// Chronological order for the rating replay: ended_at ascending with
	// missing end times last, game id breaking ties.
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].EndedAt, matches[j].EndedAt
		switch {
		case a == nil && b == nil:
			return matches[i].GameID < matches[j].GameID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return matches[i].GameID < matches[j].GameID
		}
	})

	return matches
}

func assembleOne(gameID string, rows []model.GameResult, minVictoryPoints int) Match {
	meta := rows[0]
	expected := meta.PlayerCount

	var invalidReason string

	if meta.EndedAt == nil {
		invalidReason = "Missing ended_at on game result"
	}

	if invalidReason == "" && (expected < 2 || expected > 6) {
		invalidReason = fmt.Sprintf("Unsupported player_count=%d (expected 2-6)", expected)
	}

	eligible := make([]Participant, 0, len(rows))
	for _, r := range rows {
		if r.VictoryPoints < minVictoryPoints {
			continue
		}
		username := ""
		if r.Username != nil {
			username = strings.TrimSpace(*r.Username)
		}
		key := ""
		if username != "" {
			key = UsernameKey(username)
		}
		eligible = append(eligible, Participant{
			PlayerColor:       r.PlayerColor,
			Username:          username,
			UsernameKey:       key,
			RawUsername:       r.RawUsername,
			SelectedCharacter: r.SelectedCharacter,
			VictoryPoints:     r.VictoryPoints,
		})
	}

	if invalidReason == "" {
		if len(eligible) < 2 {
			invalidReason = fmt.Sprintf("Not enough players after filtering (<%d VP excluded)", minVictoryPoints)
		} else if len(eligible) > 6 {
			invalidReason = fmt.Sprintf("Unsupported filtered player_count=%d (expected 2-6)", len(eligible))
		}
	}

	if invalidReason == "" {
		seen := make(map[string]struct{}, len(eligible))
		for _, p := range eligible {
			if p.UsernameKey == "" {
				continue
			}
			if _, ok := seen[p.UsernameKey]; ok {
				invalidReason = fmt.Sprintf("Duplicate username_key in match: %s", p.UsernameKey)
				break
			}
			seen[p.UsernameKey] = struct{}{}
		}
	}

	if invalidReason == "" {
		seen := make(map[int]struct{}, len(eligible))
		for _, p := range eligible {
			if _, ok := seen[p.VictoryPoints]; ok {
				invalidReason = "Duplicate victory_points detected (placement ties not supported)"
				break
			}
			seen[p.VictoryPoints] = struct{}{}
		}
	}

	match := Match{
		GameID:              gameID,
		StartedAt:           meta.StartedAt,
		EndedAt:             meta.EndedAt,
		NavigationCount:     meta.NavigationCount,
		PlayerCountExpected: expected,
		PlayerCountActual:   len(eligible),
		IsValid:             invalidReason == "",
		InvalidReason:       invalidReason,
	}
	if !match.IsValid {
		return match
	}

	// Ties are excluded above, so victory points plus color is a total order.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].VictoryPoints != eligible[j].VictoryPoints {
			return eligible[i].VictoryPoints > eligible[j].VictoryPoints
		}
		return eligible[i].PlayerColor < eligible[j].PlayerColor
	})
	for i := range eligible {
		eligible[i].Placement = i + 1
	}

	match.Participants = eligible
	for _, p := range eligible {
		if p.UsernameKey != "" {
			match.Players = append(match.Players, p)
		}
	}
	return match
}
