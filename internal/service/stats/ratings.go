package stats

import (
	"sort"
	"time"

	"arc-stats-service/internal/model"

	trueskill "github.com/mafredri/go-trueskill"
)

// Prior skill distribution for a player never seen before.
const (
	PriorMu    = 25.0
	PriorSigma = PriorMu / 3.0
)

type playerState struct {
	username    string
	mu          float64
	sigma       float64
	gamesPlayed int
	lastGameID  string
	lastGameAt  *time.Time
}

type ReplayResult struct {
	Events  []model.PlayerRatingEvent
	Ratings []model.PlayerRating
}

// Replay folds the chronologically ordered matches through the skill
// updater. Invalid matches are skipped by policy, not failed. Anonymous
// participants take part in every update (their placement shapes the
// opponents' deltas) but are never remembered: no event, no rating row.
//
// The fold is deterministic: state is keyed by username key, updates happen
// in placement order, and the final snapshot is sorted by key.
func Replay(matches []Match, ratingVersion int, now time.Time) ReplayResult {
	ts := trueskill.New()
	current := make(map[string]*playerState)
	events := make([]model.PlayerRatingEvent, 0)

	for _, match := range matches {
		if !match.IsValid {
			continue
		}

		// Participants are already in placement order, which is the rank
		// order the updater expects.
		players := make([]trueskill.Player, 0, len(match.Participants))
		for _, p := range match.Participants {
			if st, ok := current[p.UsernameKey]; ok && p.UsernameKey != "" {
				players = append(players, trueskill.NewPlayer(st.mu, st.sigma))
			} else {
				players = append(players, trueskill.NewPlayer(PriorMu, PriorSigma))
			}
		}

		adjusted, _ := ts.AdjustSkills(players, false)

		for i, p := range match.Participants {
			if p.UsernameKey == "" {
				continue
			}

			before := players[i]
			after := adjusted[i]

			events = append(events, model.PlayerRatingEvent{
				GameID:        match.GameID,
				EndedAt:       match.EndedAt,
				UsernameKey:   p.UsernameKey,
				Username:      p.Username,
				Placement:     p.Placement,
				MuBefore:      before.Mu(),
				SigmaBefore:   before.Sigma(),
				MuAfter:       after.Mu(),
				SigmaAfter:    after.Sigma(),
				RatingVersion: ratingVersion,
			})

			st, ok := current[p.UsernameKey]
			if !ok {
				st = &playerState{}
				current[p.UsernameKey] = st
			}
			st.username = p.Username
			st.mu = after.Mu()
			st.sigma = after.Sigma()
			st.gamesPlayed++
			st.lastGameID = match.GameID
			st.lastGameAt = match.EndedAt
		}
	}

	keys := make([]string, 0, len(current))
	for key := range current {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ratings := make([]model.PlayerRating, 0, len(keys))
	for _, key := range keys {
		st := current[key]
		gameID := st.lastGameID
		ratings = append(ratings, model.PlayerRating{
			UsernameKey:   key,
			Username:      st.username,
			Mu:            st.mu,
			Sigma:         st.sigma,
			GamesPlayed:   st.gamesPlayed,
			LastGameID:    &gameID,
			LastGameAt:    st.lastGameAt,
			RatingVersion: ratingVersion,
			UpdatedAt:     now,
		})
	}

	return ReplayResult{Events: events, Ratings: ratings}
}
