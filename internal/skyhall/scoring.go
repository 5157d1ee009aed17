package skyhall

import (
	"fmt"

	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
)

// ScoreCeiling is the cumulative score at which a match ends.
const ScoreCeiling = 100

// RoundScores computes every player's score for a finished round: the sum of
// all twelve card values, face up or not. The player who triggered the
// closing lap must be strictly lowest; otherwise their score is doubled.
// Returns the per-player scores and the ID of the doubled player, if any.
func RoundScores(game *entity.GameData) (map[string]int, string) {
	scores := make(map[string]int, len(game.Hands))
	for id, hand := range game.Hands {
		total := 0
		for _, card := range hand {
			total += card.Value
		}
		scores[id] = total
	}

	trigger := game.LastTurnBy
	if trigger == "" {
		return scores, ""
	}

	for id, score := range scores {
		if id != trigger && score <= scores[trigger] {
			scores[trigger] *= 2
			return scores, trigger
		}
	}

	return scores, ""
}

// ApplyRound folds a finished round into the match: appends round scores to
// each player's history, updates cumulative totals and decides whether the
// match is over. When any cumulative score reaches the ceiling the match
// finishes and the winner is the lowest cumulative score, ties broken by
// earliest join order.
func ApplyRound(match *entity.Match) error {
	if match.Game == nil || match.Game.Step != entity.StepEndGame {
		return fmt.Errorf("%w: round is not over", apperror.ErrMatchNotPlaying)
	}

	scores, _ := RoundScores(match.Game)

	over := false
	for _, link := range match.Players {
		score := scores[link.PlayerID]
		link.ScoreHistory = append(link.ScoreHistory, score)
		link.Score += score

		if link.Score >= ScoreCeiling {
			over = true
		}
	}

	if !over {
		match.NextRoundReady = nil
		return nil
	}

	match.Status = entity.StatusFinished

	var winner *entity.PlayerLink
	for _, link := range match.Players {
		if winner == nil || link.Score < winner.Score {
			winner = link
		}
	}

	match.WinnerID = winner.PlayerID
	match.WinnerScore = winner.Score
	match.Game.CurrentPlayer = ""

	return nil
}
