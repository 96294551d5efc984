package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/battle"
	"vocab-battle/internal/domain"
)

const subscriberBuffer = 8

// RoomStore is an in-memory implementation of app.RoomStore. Rooms untouched for longer
// than the TTL are removed by the reaper.
type RoomStore struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu    sync.Mutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	room        domain.Room
	touched     time.Time
	subscribers map[chan domain.RoomUpdate]struct{}
}

func NewRoomStore(clock clockwork.Clock, ttl time.Duration) *RoomStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomStore{
		clock: clock,
		ttl:   ttl,
		rooms: make(map[string]*roomEntry),
	}
}

func (s *RoomStore) Create(_ context.Context, room domain.Room) error {
	if err := battle.ValidateNewRoom(room, room.HostID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrRoomExists
	}
	s.rooms[room.Code] = &roomEntry{
		room:        room.Clone(),
		touched:     s.clock.Now(),
		subscribers: make(map[chan domain.RoomUpdate]struct{}),
	}
	return nil
}

func (s *RoomStore) Get(_ context.Context, code string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return entry.room.Clone(), nil
}

// Merge applies patch under the store lock and notifies subscribers with the new snapshot.
func (s *RoomStore) Merge(_ context.Context, code string, patch domain.RoomPatch) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	next, err := battle.ApplyPatch(entry.room, patch)
	if err != nil {
		return domain.Room{}, err
	}
	entry.room = next
	entry.touched = s.clock.Now()
	s.broadcastLocked(entry, domain.RoomUpdate{Code: code, Room: next.Clone()})
	return next.Clone(), nil
}

// Delete removes the room, sends a deletion notice and closes every subscription.
func (s *RoomStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return domain.ErrRoomNotFound
	}
	s.deleteLocked(code)
	return nil
}

func (s *RoomStore) Subscribe(_ context.Context, code string) (<-chan domain.RoomUpdate, func(), error) {
	ch := make(chan domain.RoomUpdate, subscriberBuffer)

	s.mu.Lock()
	entry, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrRoomNotFound
	}
	entry.subscribers[ch] = struct{}{}
	ch <- domain.RoomUpdate{Code: code, Room: entry.room.Clone()}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entry, ok := s.rooms[code]
		if !ok {
			return
		}
		if _, ok := entry.subscribers[ch]; ok {
			delete(entry.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// Reap removes rooms idle for longer than the TTL and returns how many were removed.
func (s *RoomStore) Reap() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for code, entry := range s.rooms {
		if now.Sub(entry.touched) > s.ttl {
			s.deleteLocked(code)
			removed++
		}
	}
	return removed
}

// RunReaper calls Reap every interval until ctx is done.
func (s *RoomStore) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := s.Reap(); n > 0 {
				log.Info().Int("rooms", n).Msg("expired idle rooms")
			}
		}
	}
}

func (s *RoomStore) deleteLocked(code string) {
	entry := s.rooms[code]
	delete(s.rooms, code)
	s.broadcastLocked(entry, domain.RoomUpdate{Code: code, Deleted: true})
	for ch := range entry.subscribers {
		close(ch)
	}
	entry.subscribers = nil
}

func (s *RoomStore) broadcastLocked(entry *roomEntry, update domain.RoomUpdate) {
	for ch := range entry.subscribers {
		select {
		case ch <- update:
		default:
			// drop the oldest update so a slow subscriber never blocks writers
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}
