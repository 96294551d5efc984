package http

import (
	"context"
	"errors"
	"testing"
	"time"

	"vocab-battle/internal/app"
	"vocab-battle/internal/battle"
	"vocab-battle/internal/domain"
)

func dialClient(t *testing.T, serverURL string, self domain.Identity) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+serverURL[len("http"):], self)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientErrorsKeepTheirIdentity(t *testing.T) {
	server, _ := newTestServer(t)
	c := dialClient(t, server.URL, domain.Identity{ID: "u1", Name: "Alice"})

	_, err := c.Get(context.Background(), "NOPE00")
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room not found across the wire, got %v", err)
	}
	if !domain.IsRejection(err) {
		t.Fatalf("expected rejection classification to survive")
	}

	words, err := c.ListWords(context.Background())
	if err != nil || len(words) != len(sampleWords()) {
		t.Fatalf("expected vocabulary over the wire, got %d words err %v", len(words), err)
	}
}

func TestClientSubscriptionSeesDeletion(t *testing.T) {
	server, _ := newTestServer(t)
	alice := domain.Identity{ID: "u1", Name: "Alice"}
	c := dialClient(t, server.URL, alice)
	ctx := context.Background()

	room := battle.NewRoom("ROOM01", alice, battle.BuildQuestions(nil, sampleWords(), 2))
	if err := c.Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.Create(ctx, room); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected room exists, got %v", err)
	}

	ch, cancel, err := c.Subscribe(ctx, "room01")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	select {
	case u := <-ch:
		if u.Room.Code != "ROOM01" {
			t.Fatalf("unexpected snapshot %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no initial snapshot")
	}

	if err := c.Delete(ctx, "ROOM01"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok || u.Deleted {
				return
			}
		case <-deadline:
			t.Fatalf("deletion never observed")
		}
	}
}

// play answers each question once, choosing with pick.
func play(ctx context.Context, r *battle.Runner, pick func(domain.Question) string) {
	answered := -1
	for v := range r.Views() {
		if v.Phase != battle.PhasePlaying || v.Resolved || v.Index <= answered {
			continue
		}
		q, ok := v.Current()
		if !ok {
			continue
		}
		answered = v.Index
		_ = r.Answer(ctx, pick(q))
	}
}

func wrongOption(q domain.Question) string {
	for _, opt := range q.Options {
		if opt != q.Correct {
			return opt
		}
	}
	return ""
}

func TestRemoteBattleEndToEnd(t *testing.T) {
	server, _ := newTestServer(t)
	alice := domain.Identity{ID: "u1", Name: "Alice"}
	bob := domain.Identity{ID: "u2", Name: "Bob"}
	hostClient := dialClient(t, server.URL, alice)
	guestClient := dialClient(t, server.URL, bob)

	machine := battle.Machine{Timing: battle.Timing{
		QuestionSeconds: 20,
		Tick:            100 * time.Millisecond,
		AnswerSettle:    20 * time.Millisecond,
		TimeoutSettle:   20 * time.Millisecond,
	}}
	hostSvc := app.NewBattleService(hostClient, hostClient, machine, nil)
	hostSvc.QuestionCount = 3
	guestSvc := app.NewBattleService(guestClient, guestClient, machine, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	room, err := hostSvc.CreateRoom(ctx, alice)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := guestSvc.JoinRoom(ctx, room.Code, bob); err != nil {
		t.Fatalf("join room: %v", err)
	}

	hostRunner, err := hostSvc.OpenRoom(ctx, alice, room.Code)
	if err != nil {
		t.Fatalf("open host: %v", err)
	}
	guestRunner, err := guestSvc.OpenRoom(ctx, bob, room.Code)
	if err != nil {
		t.Fatalf("open guest: %v", err)
	}

	go play(ctx, hostRunner, func(q domain.Question) string { return q.Correct })
	go play(ctx, guestRunner, wrongOption)

	results := make(chan domain.Result, 2)
	errs := make(chan error, 2)
	for _, r := range []*battle.Runner{hostRunner, guestRunner} {
		go func(r *battle.Runner) {
			res, err := r.Run(ctx)
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}(r)
	}

	byOutcome := map[domain.Outcome]domain.Result{}
	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			byOutcome[res.Outcome] = res
		case err := <-errs:
			t.Fatalf("run: %v", err)
		}
	}
	win, lose := byOutcome[domain.OutcomeWin], byOutcome[domain.OutcomeLose]
	if win.MyScore != 3 || win.OpponentScore != 0 || win.OpponentName != bob.Name {
		t.Fatalf("unexpected host result %+v", win)
	}
	if lose.MyScore != 0 || lose.OpponentScore != 3 || lose.OpponentName != alice.Name {
		t.Fatalf("unexpected guest result %+v", lose)
	}

	final, err := hostClient.Get(ctx, room.Code)
	if err != nil {
		t.Fatalf("get final room: %v", err)
	}
	if final.Status != domain.StatusFinished || final.CurrentIndex != 2 {
		t.Fatalf("unexpected final room %+v", final)
	}
	if winner, ok := battle.Winner(final); !ok || winner != domain.RoleHost {
		t.Fatalf("expected host to win, got %q", winner)
	}
}
