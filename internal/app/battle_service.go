package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/battle"
	"vocab-battle/internal/domain"
)

// maxCodeAttempts bounds room code regeneration on collision.
const maxCodeAttempts = 5

// RoomStore is the shared document store holding rooms (in-memory, Redis, remote).
type RoomStore interface {
	Create(ctx context.Context, room domain.Room) error
	Get(ctx context.Context, code string) (domain.Room, error)
	Merge(ctx context.Context, code string, patch domain.RoomPatch) (domain.Room, error)
	Delete(ctx context.Context, code string) error
	// Subscribe delivers the current snapshot first, then every change. The caller must
	// invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, code string) (<-chan domain.RoomUpdate, func(), error)
}

// VocabularyRepository loads the word pool (from cache/backing store).
type VocabularyRepository interface {
	ListWords(ctx context.Context) ([]domain.VocabularyWord, error)
}

// BattleService contains the room and solo contest use cases.
type BattleService struct {
	rooms   RoomStore
	words   VocabularyRepository
	machine battle.Machine
	clock   clockwork.Clock
	rnd     battle.Rand

	// NewCode generates room codes; replaced in tests to force collisions.
	NewCode func() (string, error)
	// QuestionCount is the length of every generated sequence.
	QuestionCount int
}

func NewBattleService(rooms RoomStore, words VocabularyRepository, machine battle.Machine, clock clockwork.Clock) *BattleService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BattleService{
		rooms:   rooms,
		words:   words,
		machine: machine,
		clock:   clock,
		rnd:     battle.DefaultRand,
		NewCode: battle.NewRoomCode,

		QuestionCount: battle.BattleQuestionCount,
	}
}

// CreateRoom builds a fresh question sequence and stores a waiting room hosted by host.
func (s *BattleService) CreateRoom(ctx context.Context, host domain.Identity) (domain.Room, error) {
	questions, err := s.questions(ctx, s.QuestionCount)
	if err != nil {
		return domain.Room{}, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.NewCode()
		if err != nil {
			return domain.Room{}, err
		}
		room := battle.NewRoom(code, host, questions)
		err = s.rooms.Create(ctx, room)
		if errors.Is(err, domain.ErrRoomExists) {
			log.Debug().Str("room", room.Code).Int("attempt", attempt+1).Msg("room code collision")
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		log.Info().Str("room", room.Code).Str("host", host.ID).Int("questions", len(questions)).Msg("room created")
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("create room after %d attempts: %w", maxCodeAttempts, domain.ErrRoomExists)
}

// JoinRoom registers guest on a waiting room. Re-joining as the same guest is a no-op.
func (s *BattleService) JoinRoom(ctx context.Context, code string, guest domain.Identity) (domain.Room, error) {
	code = domain.NormalizeCode(code)
	room, err := s.rooms.Get(ctx, code)
	if err != nil {
		return domain.Room{}, err
	}
	if room.GuestID != "" && room.GuestID == guest.ID {
		return room, nil
	}
	if room.HostID == guest.ID || room.Status != domain.StatusWaiting || room.GuestID != "" {
		return domain.Room{}, domain.ErrRoomNotJoinable
	}

	room, err = s.rooms.Merge(ctx, code, battle.JoinPatch(guest))
	if err != nil {
		return domain.Room{}, err
	}
	log.Info().Str("room", code).Str("guest", guest.ID).Msg("guest joined")
	return room, nil
}

// OpenRoom subscribes self to a room and returns a runner ready to play it.
func (s *BattleService) OpenRoom(ctx context.Context, self domain.Identity, code string) (*battle.Runner, error) {
	code = domain.NormalizeCode(code)
	room, err := s.rooms.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	view, err := battle.NewRoomView(self, room)
	if err != nil {
		return nil, err
	}
	updates, cancel, err := s.rooms.Subscribe(ctx, code)
	if err != nil {
		return nil, err
	}
	link := &battle.RoomLink{
		Writer:      s.rooms,
		Updates:     updates,
		Unsubscribe: cancel,
		Leave:       func(ctx context.Context) { s.Leave(ctx, code) },
	}
	return battle.NewRunner(s.machine, s.clock, view, link), nil
}

// StartSolo prepares a contest against the simulated opponent.
func (s *BattleService) StartSolo(ctx context.Context, self domain.Identity, d domain.Difficulty) (*battle.Runner, error) {
	questions, err := s.questions(ctx, s.QuestionCount)
	if err != nil {
		return nil, err
	}
	return battle.NewRunner(s.machine, s.clock, battle.NewSoloView(self, questions, d), nil), nil
}

// Leave tears the room down best-effort; the counterpart observes the deletion.
func (s *BattleService) Leave(ctx context.Context, code string) {
	err := s.rooms.Delete(ctx, domain.NormalizeCode(code))
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		log.Warn().Err(err).Str("room", code).Msg("room teardown failed")
	}
}

func (s *BattleService) questions(ctx context.Context, count int) ([]domain.Question, error) {
	words, err := s.words.ListWords(ctx)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, domain.ErrEmptyVocabulary
	}
	return battle.BuildQuestions(s.rnd, words, count), nil
}
