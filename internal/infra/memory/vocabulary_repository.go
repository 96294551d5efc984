package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"vocab-battle/internal/domain"
)

const poolKey = "vocabulary"

// WordLoader fetches the vocabulary pool from a backing store (e.g., Postgres).
type WordLoader interface {
	LoadWords(ctx context.Context) ([]domain.VocabularyWord, error)
}

// VocabularyRepository caches the word pool with TTL to avoid repeated DB hits.
type VocabularyRepository struct {
	loader WordLoader
	ttl    time.Duration
	clock  clockwork.Clock
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	words     []domain.VocabularyWord
	expiresAt time.Time
}

func NewVocabularyRepository(loader WordLoader, ttl time.Duration, clock clockwork.Clock) *VocabularyRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &VocabularyRepository{
		loader: loader,
		ttl:    ttl,
		clock:  clock,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *VocabularyRepository) ListWords(ctx context.Context) ([]domain.VocabularyWord, error) {
	if words, ok := r.cached(r.clock.Now()); ok {
		return words, nil
	}

	result, err, _ := r.sf.Do(poolKey, func() (interface{}, error) {
		now := r.clock.Now()
		if words, ok := r.cached(now); ok {
			return words, nil
		}

		words, err := r.loader.LoadWords(ctx)
		if err != nil {
			return nil, err
		}

		expiresAt := now.Add(r.ttlWithJitter())
		r.mu.Lock()
		r.words = words
		r.expiresAt = expiresAt
		r.mu.Unlock()
		return words, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.VocabularyWord), nil
}

func (r *VocabularyRepository) cached(now time.Time) ([]domain.VocabularyWord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.words != nil && r.expiresAt.After(now) {
		return r.words, true
	}
	return nil, false
}

func (r *VocabularyRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticWordLoader is a simple loader backed by a fixed slice (useful for tests/demos).
type StaticWordLoader struct {
	words []domain.VocabularyWord
}

func NewStaticWordLoader(words []domain.VocabularyWord) *StaticWordLoader {
	return &StaticWordLoader{words: words}
}

func (l *StaticWordLoader) LoadWords(_ context.Context) ([]domain.VocabularyWord, error) {
	return append([]domain.VocabularyWord(nil), l.words...), nil
}
