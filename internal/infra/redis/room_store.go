package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/battle"
	"vocab-battle/internal/domain"
)

const maxTxRetries = 10

// Notifier fans room changes out to subscribers (Redis Pub/Sub or NATS).
type Notifier interface {
	Publish(ctx context.Context, update domain.RoomUpdate) error
	Subscribe(ctx context.Context, code string) (<-chan domain.RoomUpdate, func(), error)
}

// RoomStore keeps each room as a Redis hash (battle:room:{code}). Merges touch only the
// fields the patch changed, inside WATCH/MULTI so concurrent writers never interleave.
// Every write refreshes the key TTL; an expired room simply disappears.
type RoomStore struct {
	client   *redis.Client
	notifier Notifier
	ttl      time.Duration
}

func NewRoomStore(client *redis.Client, notifier Notifier, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, notifier: notifier, ttl: ttl}
}

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	if err := battle.ValidateNewRoom(room, room.HostID); err != nil {
		return err
	}
	fields, err := encodeRoom(room)
	if err != nil {
		return err
	}
	key := s.key(room.Code)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrRoomExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, pairs(fields)...)
			s.expire(ctx, pipe, key)
			return nil
		})
		return err
	}
	return s.watch(ctx, key, txf)
}

func (s *RoomStore) Get(ctx context.Context, code string) (domain.Room, error) {
	fields, err := s.client.HGetAll(ctx, s.key(code)).Result()
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", code, err)
	}
	if len(fields) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return decodeRoom(fields)
}

// Merge validates patch against the stored room with battle.ApplyPatch and writes the
// changed fields atomically, then publishes the new snapshot.
func (s *RoomStore) Merge(ctx context.Context, code string, patch domain.RoomPatch) (domain.Room, error) {
	key := s.key(code)
	var merged domain.Room

	txf := func(tx *redis.Tx) error {
		prevFields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(prevFields) == 0 {
			return domain.ErrRoomNotFound
		}
		prev, err := decodeRoom(prevFields)
		if err != nil {
			return err
		}
		next, err := battle.ApplyPatch(prev, patch)
		if err != nil {
			return err
		}
		nextFields, err := encodeRoom(next)
		if err != nil {
			return err
		}
		set, del := diffFields(prevFields, nextFields)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(set) > 0 {
				pipe.HSet(ctx, key, pairs(set)...)
			}
			if len(del) > 0 {
				pipe.HDel(ctx, key, del...)
			}
			s.expire(ctx, pipe, key)
			return nil
		})
		merged = next
		return err
	}
	if err := s.watch(ctx, key, txf); err != nil {
		return domain.Room{}, err
	}

	s.publish(ctx, domain.RoomUpdate{Code: code, Room: merged})
	return merged, nil
}

func (s *RoomStore) Delete(ctx context.Context, code string) error {
	n, err := s.client.Del(ctx, s.key(code)).Result()
	if err != nil {
		return fmt.Errorf("delete room %s: %w", code, err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	s.publish(ctx, domain.RoomUpdate{Code: code, Deleted: true})
	return nil
}

// Subscribe listens for changes before reading the snapshot, so no write between the two
// is lost; a change already folded into the snapshot may arrive again afterwards.
func (s *RoomStore) Subscribe(ctx context.Context, code string) (<-chan domain.RoomUpdate, func(), error) {
	changes, stop, err := s.notifier.Subscribe(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	room, err := s.Get(ctx, code)
	if err != nil {
		stop()
		return nil, nil, err
	}
	return prepend(domain.RoomUpdate{Code: code, Room: room}, changes, stop)
}

func (s *RoomStore) watch(ctx context.Context, key string, txf func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s contended", domain.ErrSyncWriteFailed, key)
}

func (s *RoomStore) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RoomStore) publish(ctx context.Context, update domain.RoomUpdate) {
	if err := s.notifier.Publish(ctx, update); err != nil {
		log.Warn().Err(err).Str("room", update.Code).Msg("publish room update failed")
	}
}

func (s *RoomStore) key(code string) string {
	return "battle:room:" + code
}
