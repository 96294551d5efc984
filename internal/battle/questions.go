package battle

import (
	"math/rand"

	"vocab-battle/internal/domain"
)

const (
	// BattleQuestionCount is the length of a head-to-head question sequence.
	BattleQuestionCount = 10
	// DailyQuestionCount is the length of the daily challenge.
	DailyQuestionCount = 5
	// OptionsPerQuestion is the correct definition plus three distractors.
	OptionsPerQuestion = 4
)

// Rand is the subset of *rand.Rand the builder and simulator need.
type Rand interface {
	Intn(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

type globalRand struct{}

func (globalRand) Intn(n int) int                     { return rand.Intn(n) }
func (globalRand) Float64() float64                   { return rand.Float64() }
func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// DefaultRand is safe for concurrent use.
var DefaultRand Rand = globalRand{}

// BuildQuestions draws min(count, len(pool)) distinct words without replacement and
// turns each into a question with three distractor definitions from the rest of the pool.
// An empty pool yields an empty sequence. Duplicate definitions are never offered twice,
// so a pool with fewer than four distinct definitions yields questions with fewer options.
func BuildQuestions(rnd Rand, pool []domain.VocabularyWord, count int) []domain.Question {
	if len(pool) == 0 || count <= 0 {
		return nil
	}
	if rnd == nil {
		rnd = DefaultRand
	}
	n := count
	if len(pool) < n {
		n = len(pool)
	}

	order := shuffledIndexes(rnd, len(pool))
	questions := make([]domain.Question, 0, n)
	for _, at := range order[:n] {
		questions = append(questions, buildQuestion(rnd, pool, at))
	}
	return questions
}

func buildQuestion(rnd Rand, pool []domain.VocabularyWord, at int) domain.Question {
	word := pool[at]
	options := make([]string, 0, OptionsPerQuestion)
	options = append(options, word.Definition)
	seen := map[string]struct{}{word.Definition: {}}

	for _, i := range shuffledIndexes(rnd, len(pool)) {
		if len(options) == OptionsPerQuestion {
			break
		}
		if i == at {
			continue
		}
		def := pool[i].Definition
		if _, dup := seen[def]; dup {
			continue
		}
		seen[def] = struct{}{}
		options = append(options, def)
	}

	rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return domain.Question{
		WordID:  word.ID,
		Prompt:  word.Word,
		Correct: word.Definition,
		Options: options,
	}
}

func shuffledIndexes(rnd Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rnd.Shuffle(n, func(i, j int) {
		idx[i], idx[j] = idx[j], idx[i]
	})
	return idx
}

// ValidQuestion reports whether q has distinct options containing the correct one exactly once.
func ValidQuestion(q domain.Question) bool {
	if q.Correct == "" || len(q.Options) < 2 {
		return false
	}
	seen := make(map[string]struct{}, len(q.Options))
	correct := 0
	for _, opt := range q.Options {
		if _, dup := seen[opt]; dup {
			return false
		}
		seen[opt] = struct{}{}
		if opt == q.Correct {
			correct++
		}
	}
	return correct == 1
}
