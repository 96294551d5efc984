package battle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/domain"
)

// ErrContestOver is returned when answering after the runner stopped.
var ErrContestOver = errors.New("contest is over")

const (
	viewBufferSize = 16
	leaveTimeout   = 2 * time.Second
)

// RoomWriter is the write half of the shared document store.
type RoomWriter interface {
	Merge(ctx context.Context, code string, patch domain.RoomPatch) (domain.Room, error)
}

// RoomLink connects a runner to its room: writes, the change subscription and teardown.
type RoomLink struct {
	Writer      RoomWriter
	Updates     <-chan domain.RoomUpdate
	Unsubscribe func()
	// Leave is invoked best-effort when the contest is abandoned locally.
	Leave func(ctx context.Context)
}

// Runner drives one participant's Machine on a single event loop: countdown and settle
// timers, remote notifications, local answers and write results are all serialized
// through Run. Writes run one at a time off the loop, in the order the machine issued them.
type Runner struct {
	machine Machine
	clock   clockwork.Clock
	link    *RoomLink

	answers chan string
	done    chan struct{}

	mu    sync.RWMutex
	view  View
	views chan View

	// NewBackOff builds the retry policy for failed writes.
	NewBackOff func() backoff.BackOff
}

// NewRunner builds a runner; link is nil for solo contests.
func NewRunner(m Machine, clock clockwork.Clock, v View, link *RoomLink) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		machine:    m,
		clock:      clock,
		link:       link,
		answers:    make(chan string, 1),
		done:       make(chan struct{}),
		view:       v,
		views:      make(chan View, viewBufferSize),
		NewBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 3 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// View returns the current local view.
func (r *Runner) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}

// Views streams view snapshots; slow readers only miss intermediate snapshots.
func (r *Runner) Views() <-chan View {
	return r.views
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Answer submits a local answer for the current question.
func (r *Runner) Answer(ctx context.Context, option string) error {
	select {
	case r.answers <- option:
		return nil
	case <-r.done:
		return ErrContestOver
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until the contest finishes or ctx is cancelled. Every timer is
// stopped and the subscription released on all exit paths; on cancellation a room
// contest is also torn down best-effort.
func (r *Runner) Run(ctx context.Context) (domain.Result, error) {
	defer close(r.done)
	defer close(r.views)

	var tick, settle clockwork.Timer
	settleIndex := -1
	stop := func(t *clockwork.Timer) {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
	defer func() {
		stop(&tick)
		stop(&settle)
		if r.link != nil && r.link.Unsubscribe != nil {
			r.link.Unsubscribe()
		}
	}()

	var (
		pending  []domain.RoomPatch
		inflight bool
		results  = make(chan writeResult, 1)
	)
	pump := func() {
		if inflight || len(pending) == 0 {
			return
		}
		patch, code := pending[0], r.View().Code
		pending = pending[1:]
		inflight = true
		go func() { results <- r.write(ctx, code, patch) }()
	}

	var result *domain.Result
	apply := func(ev Event) bool {
		next, effs := r.machine.Step(r.View(), ev)
		for _, eff := range effs {
			switch e := eff.(type) {
			case ArmTick:
				stop(&tick)
				tick = r.clock.NewTimer(e.After)
			case DisarmTick:
				stop(&tick)
			case ScheduleSettle:
				stop(&settle)
				settle = r.clock.NewTimer(e.After)
				settleIndex = e.Index
			case WritePatch:
				if r.link != nil && r.link.Writer != nil {
					pending = append(pending, e.Patch)
				}
			case Finalize:
				res := e.Result
				result = &res
			}
		}
		r.publish(next)
		pump()
		return result != nil
	}

	var updates <-chan domain.RoomUpdate
	if r.link != nil {
		updates = r.link.Updates
	} else if apply(Started{}) {
		return *result, nil
	}

	for {
		var tickC, settleC <-chan time.Time
		if tick != nil {
			tickC = tick.Chan()
		}
		if settle != nil {
			settleC = settle.Chan()
		}

		var finished bool
		select {
		case <-ctx.Done():
			r.leave()
			return domain.Result{}, ctx.Err()
		case u, ok := <-updates:
			if !ok || u.Deleted {
				updates = nil
				finished = apply(RemoteDeleted{})
			} else {
				finished = apply(RemoteChanged{Room: u.Room})
			}
		case option := <-r.answers:
			finished = apply(AnswerSubmitted{Option: option})
		case <-tickC:
			tick = nil
			finished = apply(Ticked{})
		case <-settleC:
			settle = nil
			finished = apply(SettleElapsed{Index: settleIndex})
		case res := <-results:
			inflight = false
			switch {
			case ctx.Err() != nil:
				// shutting down; the ctx case ends the loop
			case res.err != nil:
				log.Warn().
					Err(fmt.Errorf("%w: %w", domain.ErrSyncWriteFailed, res.err)).
					Str("room", res.code).
					Str("actor", res.patch.ActorID).
					Int("index", res.patch.Index).
					Msg("room write failed")
				finished = apply(WriteFailed{Patch: res.patch, Err: res.err})
			default:
				finished = apply(WriteApplied{Room: res.room})
			}
			pump()
		}
		if finished {
			return *result, nil
		}
	}
}

type writeResult struct {
	code  string
	patch domain.RoomPatch
	room  domain.Room
	err   error
}

// write merges a patch with bounded retry; rejections are not retried.
func (r *Runner) write(ctx context.Context, code string, patch domain.RoomPatch) writeResult {
	res := writeResult{code: code, patch: patch}
	op := func() error {
		room, err := r.link.Writer.Merge(ctx, code, patch)
		if err != nil {
			if domain.IsRejection(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		res.room = room
		return nil
	}
	res.err = backoff.Retry(op, backoff.WithContext(r.NewBackOff(), ctx))
	return res
}

func (r *Runner) leave() {
	if r.link == nil || r.link.Leave == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	r.link.Leave(ctx)
}

func (r *Runner) publish(v View) {
	r.mu.Lock()
	r.view = v
	r.mu.Unlock()

	select {
	case r.views <- v:
	default:
		// drop the oldest snapshot; each view is complete on its own
		select {
		case <-r.views:
		default:
		}
		select {
		case r.views <- v:
		default:
		}
	}
}
