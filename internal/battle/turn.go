package battle

import (
	"fmt"
	"strings"
	"time"

	"vocab-battle/internal/domain"
)

// Mode distinguishes an AI contest from a two-human room.
type Mode string

const (
	ModeSolo Mode = "solo"
	ModeRoom Mode = "room"
)

// Phase is the local participant's position in the current question.
type Phase string

const (
	// PhaseWaiting: contest not started yet (room waiting/ready).
	PhaseWaiting Phase = "waiting"
	// PhasePlaying: countdown running, no local answer.
	PhasePlaying Phase = "playing"
	// PhaseSettling: answer or timeout recorded, reveal delay running.
	PhaseSettling Phase = "settling"
	// PhaseAwaiting: resolved locally, waiting on the counterpart or the host's pointer.
	PhaseAwaiting Phase = "awaiting"
	// PhaseAdvancing: host wrote an advance or finish and waits for the store to apply it.
	PhaseAdvancing Phase = "advancing"
	PhaseFinished  Phase = "finished"
)

// Timing holds the countdown and settle durations.
type Timing struct {
	QuestionSeconds int
	Tick            time.Duration
	AnswerSettle    time.Duration
	TimeoutSettle   time.Duration
}

// DefaultTiming is a 10s countdown, 1.5s reveal after an answer and 1s after a timeout.
func DefaultTiming() Timing {
	return Timing{
		QuestionSeconds: 10,
		Tick:            time.Second,
		AnswerSettle:    1500 * time.Millisecond,
		TimeoutSettle:   time.Second,
	}
}

// View is the local, serializable state of one participant's contest.
type View struct {
	Mode       Mode              `json:"mode"`
	Role       domain.Role       `json:"role"`
	Self       domain.Identity   `json:"self"`
	Code       string            `json:"code,omitempty"`
	Difficulty domain.Difficulty `json:"difficulty,omitempty"`

	Phase     Phase             `json:"phase"`
	Status    domain.RoomStatus `json:"status"`
	Questions []domain.Question `json:"questions"`
	Index     int               `json:"index"`
	TimeLeft  int               `json:"timeLeft"`
	Selected  string            `json:"selected,omitempty"`
	// Resolved is set once the local side answered or timed out on Index.
	Resolved bool `json:"resolved"`
	// OpponentAnswered is set once the counterpart's answer for Index was observed.
	OpponentAnswered bool `json:"opponentAnswered"`

	MyScore       int            `json:"myScore"`
	OpponentScore int            `json:"opponentScore"`
	OpponentName  string         `json:"opponentName"`
	Result        *domain.Result `json:"result,omitempty"`
}

// Current returns the question at Index.
func (v View) Current() (domain.Question, bool) {
	if v.Index < 0 || v.Index >= len(v.Questions) {
		return domain.Question{}, false
	}
	return v.Questions[v.Index], true
}

func (v View) last() bool {
	return v.Index >= len(v.Questions)-1
}

// NewSoloView prepares an AI contest; it starts on the Started event.
func NewSoloView(self domain.Identity, questions []domain.Question, d domain.Difficulty) View {
	return View{
		Mode:         ModeSolo,
		Role:         domain.RoleHost,
		Self:         self,
		Difficulty:   d,
		Phase:        PhaseWaiting,
		Questions:    questions,
		OpponentName: fmt.Sprintf("AI (%s)", tierName(d)),
	}
}

func tierName(d domain.Difficulty) string {
	s := string(d)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// NewRoomView prepares a room participant; the first remote snapshot drives it.
func NewRoomView(self domain.Identity, room domain.Room) (View, error) {
	role, ok := room.RoleOf(self.ID)
	if !ok {
		return View{}, domain.ErrNotAuthorized
	}
	v := View{
		Mode:      ModeRoom,
		Role:      role,
		Self:      self,
		Code:      room.Code,
		Phase:     PhaseWaiting,
		Questions: room.Questions,
	}
	v.OpponentName = opponentName(role, room)
	return v, nil
}

// Event is an input to the machine.
type Event interface{ isEvent() }

// Started begins a solo contest.
type Started struct{}

// AnswerSubmitted is a local answer.
type AnswerSubmitted struct{ Option string }

// Ticked is one countdown step.
type Ticked struct{}

// SettleElapsed fires when the reveal delay scheduled for Index ends.
type SettleElapsed struct{ Index int }

// RemoteChanged carries a room snapshot from the subscription.
type RemoteChanged struct{ Room domain.Room }

// RemoteDeleted reports the room was torn down or expired.
type RemoteDeleted struct{}

// WriteApplied carries the room the store returned for a successful write.
type WriteApplied struct{ Room domain.Room }

// WriteFailed reports a write that could not be applied after retries.
type WriteFailed struct {
	Patch domain.RoomPatch
	Err   error
}

func (Started) isEvent()         {}
func (AnswerSubmitted) isEvent() {}
func (Ticked) isEvent()          {}
func (SettleElapsed) isEvent()   {}
func (RemoteChanged) isEvent()   {}
func (RemoteDeleted) isEvent()   {}
func (WriteApplied) isEvent()    {}
func (WriteFailed) isEvent()     {}

// Effect is an output the runner must carry out.
type Effect interface{ isEffect() }

// ArmTick (re)arms the countdown to fire once after After.
type ArmTick struct{ After time.Duration }

// DisarmTick cancels the countdown.
type DisarmTick struct{}

// ScheduleSettle (re)arms the reveal delay for Index.
type ScheduleSettle struct {
	Index int
	After time.Duration
}

// WritePatch merges a partial update into the shared room.
type WritePatch struct{ Patch domain.RoomPatch }

// Finalize ends the contest.
type Finalize struct{ Result domain.Result }

func (ArmTick) isEffect()        {}
func (DisarmTick) isEffect()     {}
func (ScheduleSettle) isEffect() {}
func (WritePatch) isEffect()     {}
func (Finalize) isEffect()       {}

// Machine is the turn/timer controller and reconciliation protocol as a pure
// function of (View, Event) -> (View, []Effect).
type Machine struct {
	Timing   Timing
	Opponent Opponent
}

// Step applies ev to v. A finished view absorbs every event.
func (m Machine) Step(v View, ev Event) (View, []Effect) {
	if v.Phase == PhaseFinished {
		return v, nil
	}
	switch e := ev.(type) {
	case Started:
		return m.start(v)
	case AnswerSubmitted:
		return m.answer(v, e.Option)
	case Ticked:
		return m.tick(v)
	case SettleElapsed:
		return m.settle(v, e.Index)
	case RemoteChanged:
		return m.reconcile(v, e.Room)
	case RemoteDeleted:
		return m.finish(v, true)
	case WriteApplied:
		if e.Room.Code == "" {
			return v, nil
		}
		return m.reconcile(v, e.Room)
	case WriteFailed:
		return m.writeFailed(v, e.Patch, e.Err)
	}
	return v, nil
}

func (m Machine) start(v View) (View, []Effect) {
	if v.Mode != ModeSolo || v.Phase != PhaseWaiting {
		return v, nil
	}
	v.Status = domain.StatusPlaying
	if len(v.Questions) == 0 {
		return m.finish(v, false)
	}
	v.Index = 0
	m.resetQuestion(&v)
	v.Phase = PhasePlaying
	return v, []Effect{ArmTick{After: m.Timing.Tick}}
}

func (m Machine) answer(v View, option string) (View, []Effect) {
	if v.Phase != PhasePlaying || v.Resolved {
		return v, nil
	}
	q, ok := v.Current()
	if !ok {
		return v, nil
	}
	v.Selected = option
	v.Resolved = true
	if q.IsCorrect(option) {
		v.MyScore++
	}
	v.Phase = PhaseSettling
	settle := ScheduleSettle{Index: v.Index, After: m.Timing.AnswerSettle}

	if v.Mode == ModeSolo {
		m.drawOpponent(&v)
		return v, []Effect{DisarmTick{}, settle}
	}
	// the countdown keeps running so the host can still wait out the guest
	return v, []Effect{WritePatch{Patch: answerPatch(v, option)}, settle}
}

func (m Machine) tick(v View) (View, []Effect) {
	switch v.Phase {
	case PhasePlaying, PhaseSettling, PhaseAwaiting:
	default:
		return v, nil
	}
	if v.TimeLeft <= 0 {
		return v, nil
	}
	v.TimeLeft--
	if v.TimeLeft > 0 {
		return v, []Effect{ArmTick{After: m.Timing.Tick}}
	}

	switch {
	case v.Phase == PhasePlaying && v.Mode == ModeSolo:
		v.Resolved = true
		m.drawOpponent(&v)
		return m.advanceSolo(v)
	case v.Phase == PhasePlaying:
		// a miss; the guest never advances the pointer on its own timeout
		v.Resolved = true
		v.Phase = PhaseSettling
		return v, []Effect{ScheduleSettle{Index: v.Index, After: m.Timing.TimeoutSettle}}
	case v.Phase == PhaseAwaiting && v.Role == domain.RoleHost:
		v.Phase = PhaseSettling
		return v, []Effect{ScheduleSettle{Index: v.Index, After: m.Timing.TimeoutSettle}}
	}
	return v, nil
}

func (m Machine) settle(v View, index int) (View, []Effect) {
	if index != v.Index || v.Phase != PhaseSettling {
		return v, nil
	}
	switch {
	case v.Mode == ModeSolo:
		return m.advanceSolo(v)
	case v.Role == domain.RoleGuest:
		v.Phase = PhaseAwaiting
		return v, nil
	case v.OpponentAnswered || v.TimeLeft == 0:
		return m.advanceRoom(v)
	}
	v.Phase = PhaseAwaiting
	return v, nil
}

func (m Machine) advanceSolo(v View) (View, []Effect) {
	if v.last() {
		return m.finish(v, false)
	}
	v.Index++
	m.resetQuestion(&v)
	v.Phase = PhasePlaying
	return v, []Effect{ArmTick{After: m.Timing.Tick}}
}

// advanceRoom is host-only: ask the store to move the shared pointer, or to finish on the
// last question. The local view follows once the store reports the new room, so the
// host never runs ahead of the shared document.
func (m Machine) advanceRoom(v View) (View, []Effect) {
	patch := domain.RoomPatch{ActorID: v.Self.ID, Index: v.Index}
	if v.last() {
		finished := domain.StatusFinished
		patch.Status = &finished
	} else {
		next := v.Index + 1
		patch.CurrentIndex = &next
	}
	v.Phase = PhaseAdvancing
	return v, []Effect{DisarmTick{}, WritePatch{Patch: patch}}
}

// writeFailed re-issues a write for the current question that the store never applied.
// Rejections are final and older writes are dropped; the next snapshot reconciles.
func (m Machine) writeFailed(v View, patch domain.RoomPatch, err error) (View, []Effect) {
	if v.Mode != ModeRoom || domain.IsRejection(err) || patch.Index != v.Index {
		return v, nil
	}
	return v, []Effect{WritePatch{Patch: patch}}
}

func (m Machine) reconcile(v View, room domain.Room) (View, []Effect) {
	if v.Mode != ModeRoom || (room.Code != "" && v.Code != "" && room.Code != v.Code) {
		return v, nil
	}
	// stale notifications never regress status or the pointer
	if room.Status.Rank() < v.Status.Rank() {
		return v, nil
	}
	if v.Phase != PhaseWaiting && room.Status == domain.StatusPlaying && room.CurrentIndex < v.Index {
		return v, nil
	}

	prev := v.Status
	v.Status = room.Status
	if len(v.Questions) == 0 {
		v.Questions = room.Questions
	}
	if name := opponentName(v.Role, room); name != "" {
		v.OpponentName = name
	}
	mine, theirs := room.HostScore, room.GuestScore
	if v.Role == domain.RoleGuest {
		mine, theirs = theirs, mine
	}
	v.MyScore = max(v.MyScore, mine)
	v.OpponentScore = max(v.OpponentScore, theirs)

	var effs []Effect
	switch room.Status {
	case domain.StatusReady:
		if v.Role == domain.RoleHost && v.Phase == PhaseWaiting && prev != domain.StatusReady {
			playing := domain.StatusPlaying
			effs = append(effs, WritePatch{Patch: domain.RoomPatch{ActorID: v.Self.ID, Status: &playing}})
		}
	case domain.StatusPlaying:
		if v.Phase == PhaseWaiting || room.CurrentIndex > v.Index {
			v.Index = room.CurrentIndex
			m.resetQuestion(&v)
			v.Phase = PhasePlaying
			effs = append(effs, ArmTick{After: m.Timing.Tick})
		}
		if opponentAnswer(v.Role, room) != nil && !v.OpponentAnswered {
			v.OpponentAnswered = true
			if v.Role == domain.RoleHost && v.Phase == PhaseAwaiting {
				v.Phase = PhaseSettling
				effs = append(effs, ScheduleSettle{Index: v.Index, After: m.Timing.AnswerSettle})
			}
		}
	case domain.StatusFinished:
		// the finished document is the single source of the result for both sides
		v.MyScore, v.OpponentScore = mine, theirs
		return m.finish(v, false)
	}
	return v, effs
}

func (m Machine) finish(v View, abandoned bool) (View, []Effect) {
	v.Phase = PhaseFinished
	result := domain.Result{
		Code:          v.Code,
		MyScore:       v.MyScore,
		OpponentScore: v.OpponentScore,
		OpponentName:  v.OpponentName,
		Outcome:       OutcomeFor(v.MyScore, v.OpponentScore),
		Abandoned:     abandoned,
	}
	v.Result = &result
	return v, []Effect{DisarmTick{}, Finalize{Result: result}}
}

func (m Machine) resetQuestion(v *View) {
	v.Selected = ""
	v.Resolved = false
	v.OpponentAnswered = false
	v.TimeLeft = m.Timing.QuestionSeconds
}

func (m Machine) drawOpponent(v *View) {
	if m.Opponent != nil && m.Opponent.ShouldAnswerCorrectly(v.Difficulty) {
		v.OpponentScore++
	}
}

func answerPatch(v View, option string) domain.RoomPatch {
	score := v.MyScore
	p := domain.RoomPatch{ActorID: v.Self.ID, Index: v.Index}
	if v.Role == domain.RoleHost {
		p.HostScore, p.HostAnswer = &score, &option
	} else {
		p.GuestScore, p.GuestAnswer = &score, &option
	}
	return p
}

func opponentName(role domain.Role, room domain.Room) string {
	if role == domain.RoleHost {
		return room.GuestName
	}
	return room.HostName
}

func opponentAnswer(role domain.Role, room domain.Room) *string {
	if role == domain.RoleHost {
		return room.GuestAnswer
	}
	return room.HostAnswer
}
