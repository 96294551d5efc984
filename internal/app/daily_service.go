package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/battle"
	"vocab-battle/internal/domain"
)

const dateLayout = "2006-01-02"

// DailyStore persists per-user daily challenge records. Get returns an empty record
// for unknown users. Update applies fn to the current record atomically; when fn
// returns an error nothing is written and the error is returned.
type DailyStore interface {
	Get(ctx context.Context, userID string) (domain.DailyRecord, error)
	Update(ctx context.Context, userID string, fn func(*domain.DailyRecord) error) (domain.DailyRecord, error)
}

// DailyService issues one short challenge per user per UTC day and tracks streaks.
type DailyService struct {
	store DailyStore
	words VocabularyRepository
	clock clockwork.Clock
	rnd   battle.Rand

	// QuestionCount is the length of each day's challenge.
	QuestionCount int
}

func NewDailyService(store DailyStore, words VocabularyRepository, clock clockwork.Clock) *DailyService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DailyService{
		store:         store,
		words:         words,
		clock:         clock,
		rnd:           battle.DefaultRand,
		QuestionCount: battle.DailyQuestionCount,
	}
}

// Start returns today's challenge, issuing it on first call. Reopening returns the same
// questions; once completed only the streak is returned.
func (s *DailyService) Start(ctx context.Context, userID string) (domain.DailyChallenge, error) {
	now := s.clock.Now().UTC()
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return domain.DailyChallenge{}, err
	}
	if c, ok := issuedChallenge(rec, now); ok {
		return c, nil
	}

	words, err := s.words.ListWords(ctx)
	if err != nil {
		return domain.DailyChallenge{}, err
	}
	if len(words) == 0 {
		return domain.DailyChallenge{}, domain.ErrEmptyVocabulary
	}
	pending := battle.BuildQuestions(s.rnd, words, s.QuestionCount)
	rec, err = s.store.Update(ctx, userID, func(rec *domain.DailyRecord) error {
		// a concurrent start may have issued today's challenge already
		if _, ok := issuedChallenge(*rec, now); ok {
			return nil
		}
		rec.UserID = userID
		rec.PendingDate = now.Format(dateLayout)
		rec.Pending = pending
		rec.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.DailyChallenge{}, err
	}
	c, _ := issuedChallenge(rec, now)
	return c, nil
}

// Complete scores answers (one per question, in order) against today's challenge.
// The streak continues when the previous completion was yesterday, otherwise restarts at 1.
// Only one of several concurrent completions succeeds; the others get ErrDailyCompleted.
func (s *DailyService) Complete(ctx context.Context, userID string, answers []string) (domain.DailyResult, error) {
	now := s.clock.Now().UTC()
	today := now.Format(dateLayout)

	var score, total int
	rec, err := s.store.Update(ctx, userID, func(rec *domain.DailyRecord) error {
		if rec.LastCompleted == today {
			return domain.ErrDailyCompleted
		}
		if rec.PendingDate != today || len(rec.Pending) == 0 {
			return domain.ErrDailyNotStarted
		}

		score = 0
		for i, q := range rec.Pending {
			if i < len(answers) && q.IsCorrect(answers[i]) {
				score++
			}
		}
		total = len(rec.Pending)

		if rec.LastCompleted == now.AddDate(0, 0, -1).Format(dateLayout) {
			rec.Streak++
		} else {
			rec.Streak = 1
		}
		rec.UserID = userID
		rec.LastCompleted = today
		rec.LastScore = score
		rec.TotalCompleted++
		rec.PendingDate, rec.Pending = "", nil
		rec.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.DailyResult{}, err
	}

	log.Info().Str("user", userID).Int("score", score).Int("streak", rec.Streak).Msg("daily challenge completed")
	return domain.DailyResult{Score: score, Total: total, Record: rec}, nil
}

// issuedChallenge is today's challenge when one is pending or already completed.
func issuedChallenge(rec domain.DailyRecord, now time.Time) (domain.DailyChallenge, bool) {
	today := now.Format(dateLayout)
	streak := liveStreak(rec, now)
	switch {
	case rec.LastCompleted == today:
		return domain.DailyChallenge{Date: today, Streak: streak, Completed: true}, true
	case rec.PendingDate == today && len(rec.Pending) > 0:
		return domain.DailyChallenge{Date: today, Questions: rec.Pending, Streak: streak}, true
	}
	return domain.DailyChallenge{}, false
}

// liveStreak is the stored streak while it can still be continued, zero once a day was missed.
func liveStreak(rec domain.DailyRecord, now time.Time) int {
	switch rec.LastCompleted {
	case now.Format(dateLayout), now.AddDate(0, 0, -1).Format(dateLayout):
		return rec.Streak
	}
	return 0
}
