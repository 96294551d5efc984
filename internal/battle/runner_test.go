package battle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"vocab-battle/internal/domain"
)

func waitView(t *testing.T, r *Runner, match func(View) bool) View {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-r.Views():
			if !ok {
				t.Fatalf("runner stopped before expected view")
			}
			if match(v) {
				return v
			}
		case <-timeout:
			t.Fatalf("timed out waiting for view, last %+v", r.View())
		}
	}
}

func TestRunnerSoloWithFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := Machine{
		Timing:   Timing{QuestionSeconds: 2, Tick: time.Second, AnswerSettle: 1500 * time.Millisecond, TimeoutSettle: time.Second},
		Opponent: fixedOpponent(true),
	}
	qs := testQuestions(2)
	r := NewRunner(m, clock, NewSoloView(host, qs, domain.DifficultyHard), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type outcome struct {
		res domain.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Run(ctx)
		done <- outcome{res, err}
	}()

	waitView(t, r, func(v View) bool { return v.Phase == PhasePlaying && v.Index == 0 })
	if err := r.Answer(ctx, qs[0].Correct); err != nil {
		t.Fatalf("answer: %v", err)
	}
	waitView(t, r, func(v View) bool { return v.Phase == PhaseSettling })

	clock.Advance(1500 * time.Millisecond)
	waitView(t, r, func(v View) bool { return v.Phase == PhasePlaying && v.Index == 1 })

	clock.Advance(time.Second)
	waitView(t, r, func(v View) bool { return v.TimeLeft == 1 })
	clock.Advance(time.Second)

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("run: %v", out.err)
		}
		if out.res.MyScore != 1 || out.res.OpponentScore != 2 || out.res.Outcome != domain.OutcomeLose {
			t.Fatalf("unexpected result %+v", out.res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not finish")
	}

	if err := r.Answer(context.Background(), "late"); !errors.Is(err, ErrContestOver) {
		t.Fatalf("expected contest over, got %v", err)
	}
}

type recordingWriter struct {
	mu      sync.Mutex
	calls   int
	patches chan domain.RoomPatch
	fail    func(call int) error
}

func (w *recordingWriter) Merge(_ context.Context, _ string, p domain.RoomPatch) (domain.Room, error) {
	w.mu.Lock()
	w.calls++
	call := w.calls
	w.mu.Unlock()
	if w.fail != nil {
		if err := w.fail(call); err != nil {
			return domain.Room{}, err
		}
	}
	w.patches <- p
	return domain.Room{}, nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func startRoomRunner(t *testing.T, w *recordingWriter, leave func(context.Context)) (*Runner, chan domain.RoomUpdate, context.CancelFunc, chan error) {
	t.Helper()
	room := NewRoom("ABC123", host, testQuestions(2))
	v, err := NewRoomView(host, room)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	updates := make(chan domain.RoomUpdate, 4)
	r := NewRunner(testMachine(nil), clockwork.NewFakeClock(), v, &RoomLink{
		Writer:      w,
		Updates:     updates,
		Unsubscribe: func() {},
		Leave:       leave,
	})
	r.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx)
		errs <- err
	}()
	room = mustApply(t, room, JoinPatch(guest))
	updates <- domain.RoomUpdate{Code: room.Code, Room: room}
	return r, updates, cancel, errs
}

func TestRunnerRetriesTransientWrites(t *testing.T) {
	w := &recordingWriter{
		patches: make(chan domain.RoomPatch, 1),
		fail: func(call int) error {
			if call < 3 {
				return errors.New("store unavailable")
			}
			return nil
		},
	}
	_, _, cancel, errs := startRoomRunner(t, w, nil)
	defer cancel()

	select {
	case p := <-w.patches:
		if p.Status == nil || *p.Status != domain.StatusPlaying || p.ActorID != host.ID {
			t.Fatalf("expected host start write, got %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("write never succeeded")
	}
	if w.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", w.count())
	}
	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestRunnerDoesNotRetryRejections(t *testing.T) {
	attempts := make(chan int, 8)
	w := &recordingWriter{
		patches: make(chan domain.RoomPatch, 1),
		fail: func(call int) error {
			attempts <- call
			return domain.ErrNotAuthorized
		},
	}
	_, _, cancel, errs := startRoomRunner(t, w, nil)
	defer cancel()

	select {
	case <-attempts:
	case <-time.After(2 * time.Second):
		t.Fatalf("write never attempted")
	}
	select {
	case call := <-attempts:
		t.Fatalf("rejected write was retried (attempt %d)", call)
	case <-time.After(100 * time.Millisecond):
	}
	cancel()
	<-errs
}

// flakyStore applies patches like a real store and fails pointer advances a fixed
// number of times.
type flakyStore struct {
	mu           sync.Mutex
	room         domain.Room
	updates      chan domain.RoomUpdate
	advanceFails int
	advanceCalls int
}

func (s *flakyStore) Merge(_ context.Context, _ string, p domain.RoomPatch) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CurrentIndex != nil {
		s.advanceCalls++
		if s.advanceCalls <= s.advanceFails {
			return domain.Room{}, errors.New("store unavailable")
		}
	}
	next, err := ApplyPatch(s.room, p)
	if err != nil {
		return s.room, err
	}
	s.room = next
	s.updates <- domain.RoomUpdate{Code: next.Code, Room: next}
	return next, nil
}

func (s *flakyStore) snapshot() (domain.Room, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.advanceCalls
}

func TestRunnerRecoversFromFailedAdvance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room := NewRoom("ABC123", host, testQuestions(3))
	v, err := NewRoomView(host, room)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	// one more failure than the retry budget forces a second round
	store := &flakyStore{
		room:         mustApply(t, room, JoinPatch(guest)),
		updates:      make(chan domain.RoomUpdate, 32),
		advanceFails: 4,
	}
	r := NewRunner(testMachine(nil), clock, v, &RoomLink{
		Writer:      store,
		Updates:     store.updates,
		Unsubscribe: func() {},
	})
	r.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx)
		errs <- err
	}()
	ready, _ := store.snapshot()
	store.updates <- domain.RoomUpdate{Code: ready.Code, Room: ready}

	waitView(t, r, func(v View) bool { return v.Phase == PhasePlaying && v.Index == 0 })
	if _, err := store.Merge(ctx, room.Code, domain.RoomPatch{ActorID: guest.ID, GuestScore: ptr(0), GuestAnswer: ptr("wrong")}); err != nil {
		t.Fatalf("guest answer: %v", err)
	}
	waitView(t, r, func(v View) bool { return v.OpponentAnswered })

	if err := r.Answer(ctx, room.Questions[0].Correct); err != nil {
		t.Fatalf("answer: %v", err)
	}
	waitView(t, r, func(v View) bool { return v.Phase == PhaseSettling })
	clock.Advance(1500 * time.Millisecond)

	waitView(t, r, func(v View) bool { return v.Phase == PhasePlaying && v.Index == 1 })
	stored, calls := store.snapshot()
	if stored.CurrentIndex != 1 || calls != 5 {
		t.Fatalf("expected index 1 after 5 advance attempts, got index %d after %d", stored.CurrentIndex, calls)
	}
	if stored.HostScore != 1 {
		t.Fatalf("expected host score stored before the advance, got %d", stored.HostScore)
	}

	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestRunnerLeavesOnCancel(t *testing.T) {
	left := make(chan struct{}, 1)
	w := &recordingWriter{patches: make(chan domain.RoomPatch, 4)}
	r, _, cancel, errs := startRoomRunner(t, w, func(context.Context) { left <- struct{}{} })

	waitView(t, r, func(v View) bool { return v.Status == domain.StatusReady })
	cancel()

	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	select {
	case <-left:
	default:
		t.Fatalf("expected leave on cancel")
	}
	select {
	case <-r.Done():
	default:
		t.Fatalf("expected done closed")
	}
}

func TestRunnerAbandonsOnDelete(t *testing.T) {
	w := &recordingWriter{patches: make(chan domain.RoomPatch, 4)}
	r, updates, cancel, errs := startRoomRunner(t, w, nil)
	defer cancel()

	waitView(t, r, func(v View) bool { return v.Status == domain.StatusReady })
	updates <- domain.RoomUpdate{Code: "ABC123", Deleted: true}

	if err := <-errs; err != nil {
		t.Fatalf("expected clean finish, got %v", err)
	}
	if res := r.View().Result; res == nil || !res.Abandoned {
		t.Fatalf("expected abandoned result, got %+v", res)
	}
}
