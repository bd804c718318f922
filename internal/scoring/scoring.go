// Package scoring computes per-question results and rank-based points.
//
// The k-th fastest correct player earns points/k, rounded half away from zero
// to Scorer.Precision decimal places. Unanswered or incorrect submissions earn
// nothing. percentCorrect is an integer percentage of all players in the
// session and averageAnswerTime is whole seconds over submitters only.
package scoring

import (
	"math"
	"sort"
	"time"

	"quiz-live-service/internal/domain"
)

// DefaultPrecision keeps one decimal place, so 10/3 scores 3.3.
const DefaultPrecision = 1

// Input is a closed question with everything submitted while it was open.
type Input struct {
	Question    domain.Question
	OpenedAt    time.Time
	Players     []domain.Player // join order, used to break time ties
	Submissions map[int]domain.Submission
}

// Outcome is the scored question.
type Outcome struct {
	Result  domain.QuestionResult
	Awarded map[int]float64 // playerID -> points, correct players only
	Ranks   map[int]int     // playerID -> 1-based rank among correct players
}

// Scorer applies the rounding policy.
type Scorer struct {
	Precision int
}

func New(precision int) Scorer {
	if precision < 0 {
		precision = DefaultPrecision
	}
	return Scorer{Precision: precision}
}

// Score evaluates one closed question.
func (s Scorer) Score(in Input) Outcome {
	correctIDs := in.Question.CorrectAnswerIDs()

	type entry struct {
		player domain.Player
		order  int
		at     time.Time
	}
	var correct []entry
	var elapsed time.Duration
	submitted := 0

	for order, p := range in.Players {
		sub, ok := in.Submissions[p.ID]
		if !ok {
			continue
		}
		submitted++
		if d := sub.SubmittedAt.Sub(in.OpenedAt); d > 0 {
			elapsed += d
		}
		if IsCorrect(sub.AnswerIDs, correctIDs) {
			correct = append(correct, entry{player: p, order: order, at: sub.SubmittedAt})
		}
	}

	sort.SliceStable(correct, func(i, j int) bool {
		if !correct[i].at.Equal(correct[j].at) {
			return correct[i].at.Before(correct[j].at)
		}
		return correct[i].order < correct[j].order
	})

	out := Outcome{
		Result: domain.QuestionResult{
			QuestionID:         in.Question.ID,
			PlayersCorrectList: make([]string, 0, len(correct)),
		},
		Awarded: make(map[int]float64, len(correct)),
		Ranks:   make(map[int]int, len(correct)),
	}
	for i, e := range correct {
		rank := i + 1
		out.Result.PlayersCorrectList = append(out.Result.PlayersCorrectList, e.player.Name)
		out.Awarded[e.player.ID] = s.Round(float64(in.Question.Points) / float64(rank))
		out.Ranks[e.player.ID] = rank
	}
	if submitted > 0 {
		out.Result.AverageAnswerTime = int(math.Round(elapsed.Seconds() / float64(submitted)))
	}
	if n := len(in.Players); n > 0 {
		out.Result.PercentCorrect = int(math.Round(float64(len(correct)) * 100 / float64(n)))
	}
	return out
}

// Round applies the scorer's precision.
func (s Scorer) Round(x float64) float64 {
	scale := math.Pow10(s.Precision)
	return math.Round(x*scale) / scale
}

// IsCorrect reports whether got and want hold exactly the same ids.
func IsCorrect(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[int]struct{}, len(want))
	for _, id := range want {
		seen[id] = struct{}{}
	}
	for _, id := range got {
		if _, ok := seen[id]; !ok {
			return false
		}
		delete(seen, id)
	}
	return len(seen) == 0
}

// Totals sums awarded points per player across outcomes.
func (s Scorer) Totals(outcomes []Outcome) map[int]float64 {
	totals := make(map[int]float64)
	for _, o := range outcomes {
		for id, pts := range o.Awarded {
			totals[id] += pts
		}
	}
	for id, pts := range totals {
		totals[id] = s.Round(pts)
	}
	return totals
}

// Rank orders players by total score, highest first; ties keep join order.
func Rank(players []domain.Player, totals map[int]float64) []domain.RankedPlayer {
	ranked := make([]domain.RankedPlayer, len(players))
	for i, p := range players {
		ranked[i] = domain.RankedPlayer{Name: p.Name, Score: totals[p.ID]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
