package battle

import (
	"math/rand"
	"sync"
	"time"

	"vocab-battle/internal/domain"
)

// Opponent decides, once per question, whether the simulated participant scores.
type Opponent interface {
	ShouldAnswerCorrectly(d domain.Difficulty) bool
}

// Accuracy is the per-question success probability of each difficulty tier.
func Accuracy(d domain.Difficulty) float64 {
	switch d {
	case domain.DifficultyEasy:
		return 0.3
	case domain.DifficultyHard:
		return 0.9
	}
	return 0.6
}

// BernoulliOpponent draws an independent Bernoulli trial per question; it keeps no state
// between draws besides its random source.
type BernoulliOpponent struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewOpponent builds an opponent; a nil source is seeded from the clock.
func NewOpponent(rnd *rand.Rand) *BernoulliOpponent {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &BernoulliOpponent{rnd: rnd}
}

func (o *BernoulliOpponent) ShouldAnswerCorrectly(d domain.Difficulty) bool {
	return o.Draw(Accuracy(d))
}

// Draw returns true with probability p.
func (o *BernoulliOpponent) Draw(p float64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rnd.Float64() < p
}

// SimulateOpponentScores plays runs contests of questions each and returns the opponent's totals.
func SimulateOpponentScores(op Opponent, d domain.Difficulty, questions, runs int) []int {
	scores := make([]int, runs)
	for r := 0; r < runs; r++ {
		for q := 0; q < questions; q++ {
			if op.ShouldAnswerCorrectly(d) {
				scores[r]++
			}
		}
	}
	return scores
}

// MeanScore averages scores; an empty slice averages to zero.
func MeanScore(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	total := 0
	for _, s := range scores {
		total += s
	}
	return float64(total) / float64(len(scores))
}
