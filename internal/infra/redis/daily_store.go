package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vocab-battle/internal/domain"
)

// DailyStore keeps one JSON record per user at daily:{userID}.
type DailyStore struct {
	client *redis.Client
	ttl    time.Duration
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// NewDailyStore builds a store; records expire after ttl without activity (0 keeps them).
func NewDailyStore(client *redis.Client, ttl time.Duration) *DailyStore {
	return &DailyStore{client: client, ttl: ttl}
}

func (s *DailyStore) Get(ctx context.Context, userID string) (domain.DailyRecord, error) {
	return s.read(ctx, s.client, userID)
}

// Update runs fn on the stored record under WATCH and writes the result in a MULTI block,
// re-running fn when another writer touched the record in between. An error from fn
// aborts the write and is returned as is.
func (s *DailyStore) Update(ctx context.Context, userID string, fn func(*domain.DailyRecord) error) (domain.DailyRecord, error) {
	key := s.key(userID)
	var updated domain.DailyRecord

	txf := func(tx *redis.Tx) error {
		rec, err := s.read(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode daily record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		updated = rec
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.DailyRecord{}, err
		}
		return updated, nil
	}
	return domain.DailyRecord{}, fmt.Errorf("%w: %s contended", domain.ErrSyncWriteFailed, key)
}

func (s *DailyStore) read(ctx context.Context, c stringGetter, userID string) (domain.DailyRecord, error) {
	raw, err := c.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DailyRecord{UserID: userID}, nil
	}
	if err != nil {
		return domain.DailyRecord{}, fmt.Errorf("get daily record: %w", err)
	}
	var rec domain.DailyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.DailyRecord{}, fmt.Errorf("decode daily record: %w", err)
	}
	return rec, nil
}

func (s *DailyStore) key(userID string) string {
	return "daily:" + userID
}
