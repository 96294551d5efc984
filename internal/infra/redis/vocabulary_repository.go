package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"vocab-battle/internal/domain"
	"vocab-battle/internal/infra/memory"
)

const wordsKey = "vocabulary:words"

// VocabularyRepository caches the word pool in Redis (hash of id -> JSON word) and falls
// back to a loader on cache miss.
type VocabularyRepository struct {
	client *redis.Client
	loader memory.WordLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewVocabularyRepository(client *redis.Client, loader memory.WordLoader, ttl time.Duration) *VocabularyRepository {
	return &VocabularyRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *VocabularyRepository) ListWords(ctx context.Context) ([]domain.VocabularyWord, error) {
	if words, ok := r.cached(ctx); ok {
		return words, nil
	}

	result, err, _ := r.sf.Do(wordsKey, func() (interface{}, error) {
		// re-check in case another caller filled it
		if words, ok := r.cached(ctx); ok {
			return words, nil
		}

		words, err := r.loader.LoadWords(ctx)
		if err != nil {
			return nil, err
		}

		pipe := r.client.Pipeline()
		pipe.Del(ctx, wordsKey)
		for _, w := range words {
			raw, err := json.Marshal(w)
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, wordsKey, w.ID, raw)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 && len(words) > 0 {
			pipe.Expire(ctx, wordsKey, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn().Err(err).Msg("caching vocabulary failed")
		}
		return words, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.VocabularyWord), nil
}

func (r *VocabularyRepository) cached(ctx context.Context) ([]domain.VocabularyWord, bool) {
	entries, err := r.client.HGetAll(ctx, wordsKey).Result()
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	words := make([]domain.VocabularyWord, 0, len(entries))
	for _, raw := range entries {
		var w domain.VocabularyWord
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, false
		}
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool { return words[i].ID < words[j].ID })
	return words, true
}

func (r *VocabularyRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
