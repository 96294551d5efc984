package battle

import (
	"fmt"

	"vocab-battle/internal/domain"
)

// NewRoom builds the initial document a host writes on create.
func NewRoom(code string, host domain.Identity, questions []domain.Question) domain.Room {
	return domain.Room{
		Code:      domain.NormalizeCode(code),
		HostID:    host.ID,
		HostName:  host.Name,
		Status:    domain.StatusWaiting,
		Questions: questions,
	}
}

// ValidateNewRoom checks a room document submitted for creation by actorID.
func ValidateNewRoom(room domain.Room, actorID string) error {
	switch {
	case room.Code == "" || room.Code != domain.NormalizeCode(room.Code):
		return fmt.Errorf("%w: code must be uppercase and non-empty", domain.ErrInvalidRoom)
	case room.HostID == "" || room.HostID != actorID:
		return fmt.Errorf("%w: host must be the creator", domain.ErrNotAuthorized)
	case room.GuestID != "" || room.GuestName != "":
		return fmt.Errorf("%w: guest fields must be empty", domain.ErrInvalidRoom)
	case room.Status != domain.StatusWaiting:
		return fmt.Errorf("%w: status must be waiting", domain.ErrInvalidRoom)
	case room.CurrentIndex != 0 || room.HostScore != 0 || room.GuestScore != 0:
		return fmt.Errorf("%w: progress fields must start at zero", domain.ErrInvalidRoom)
	case room.HostAnswer != nil || room.GuestAnswer != nil:
		return fmt.Errorf("%w: answers must be empty", domain.ErrInvalidRoom)
	case len(room.Questions) == 0:
		return fmt.Errorf("%w: no questions", domain.ErrInvalidRoom)
	}
	for i, q := range room.Questions {
		if !ValidQuestion(q) {
			return fmt.Errorf("%w: question %d is malformed", domain.ErrInvalidRoom, i)
		}
	}
	return nil
}

// ApplyPatch merges p into room, enforcing the authority rule and the forward-only
// state machine. On error the original room is returned untouched.
//
// The host owns currentIndex, clearing answers and the playing/finished transitions;
// each side owns its own score and answer; the guest owns the join. Answers are cleared
// only by an advance, finishing requires the last question, and scores and answers are
// accepted only while playing.
func ApplyPatch(room domain.Room, p domain.RoomPatch) (domain.Room, error) {
	role, known := room.RoleOf(p.ActorID)
	if !known {
		if p.GuestID == nil {
			return room, domain.ErrNotAuthorized
		}
		role = domain.RoleGuest
	}
	if err := checkOwnership(role, p); err != nil {
		return room, err
	}
	if p.ClearAnswers && (p.CurrentIndex == nil || *p.CurrentIndex <= room.CurrentIndex) {
		return room, fmt.Errorf("%w: answers are only cleared by an advance", domain.ErrNotAuthorized)
	}

	out := room.Clone()
	if p.GuestID != nil {
		if err := applyJoin(&out, p); err != nil {
			return room, err
		}
	}
	if p.Status != nil {
		if err := applyStatus(&out, *p.Status); err != nil {
			return room, err
		}
	}
	if p.CurrentIndex != nil {
		if err := applyIndex(&out, *p.CurrentIndex); err != nil {
			return room, err
		}
	}
	if out.Status == domain.StatusFinished && room.Status != domain.StatusFinished && out.CurrentIndex != out.LastIndex() {
		return room, fmt.Errorf("%w: finish at %d of %d", domain.ErrNotAuthorized, out.CurrentIndex, len(out.Questions))
	}

	score, answer := p.HostScore, p.HostAnswer
	scoreField, answerField := &out.HostScore, &out.HostAnswer
	if role == domain.RoleGuest {
		score, answer = p.GuestScore, p.GuestAnswer
		scoreField, answerField = &out.GuestScore, &out.GuestAnswer
	}
	// scores and answers freeze once the contest is finished
	if (score != nil || answer != nil) && out.Status != domain.StatusPlaying {
		return room, fmt.Errorf("%w: contest is %s", domain.ErrNotAuthorized, out.Status)
	}
	if score != nil {
		if *score < *scoreField || *score > out.CurrentIndex+1 {
			return room, fmt.Errorf("%w: %d -> %d at index %d", domain.ErrScoreRegression, *scoreField, *score, out.CurrentIndex)
		}
		*scoreField = *score
	}
	if answer != nil && p.Index == out.CurrentIndex {
		switch {
		case *answerField == nil:
			v := *answer
			*answerField = &v
		case **answerField != *answer:
			return room, domain.ErrAnswerAlreadySet
		}
	}
	return out, nil
}

func checkOwnership(role domain.Role, p domain.RoomPatch) error {
	if role == domain.RoleGuest {
		if p.HostScore != nil || p.HostAnswer != nil || p.CurrentIndex != nil || p.ClearAnswers {
			return fmt.Errorf("%w: guest may not write host fields or advance", domain.ErrNotAuthorized)
		}
		if p.Status != nil && (*p.Status != domain.StatusReady || p.GuestID == nil) {
			return fmt.Errorf("%w: guest may only move the room to ready by joining", domain.ErrNotAuthorized)
		}
		return nil
	}
	if p.GuestID != nil || p.GuestName != nil || p.GuestScore != nil || p.GuestAnswer != nil {
		return fmt.Errorf("%w: host may not write guest fields", domain.ErrNotAuthorized)
	}
	if p.Status != nil && *p.Status != domain.StatusPlaying && *p.Status != domain.StatusFinished {
		return fmt.Errorf("%w: host may only start or finish the contest", domain.ErrNotAuthorized)
	}
	return nil
}

func applyJoin(out *domain.Room, p domain.RoomPatch) error {
	if *p.GuestID != p.ActorID {
		return fmt.Errorf("%w: guest id must match the writer", domain.ErrNotAuthorized)
	}
	if out.Status != domain.StatusWaiting || out.GuestID != "" {
		return domain.ErrRoomNotJoinable
	}
	out.GuestID = *p.GuestID
	if p.GuestName != nil {
		out.GuestName = *p.GuestName
	}
	out.Status = domain.StatusReady
	return nil
}

func applyStatus(out *domain.Room, next domain.RoomStatus) error {
	cur := out.Status
	switch {
	case next.Rank() == cur.Rank():
		return nil
	case next.Rank() < cur.Rank():
		return fmt.Errorf("%w: %s -> %s", domain.ErrStatusRegression, cur, next)
	case next.Rank() != cur.Rank()+1:
		return fmt.Errorf("%w: %s -> %s skips a state", domain.ErrNotAuthorized, cur, next)
	}
	out.Status = next
	return nil
}

func applyIndex(out *domain.Room, next int) error {
	if out.Status != domain.StatusPlaying {
		return fmt.Errorf("%w: contest is %s", domain.ErrIndexOutOfRange, out.Status)
	}
	if next < out.CurrentIndex || next > out.CurrentIndex+1 || next > out.LastIndex() {
		return fmt.Errorf("%w: %d -> %d of %d", domain.ErrIndexOutOfRange, out.CurrentIndex, next, len(out.Questions))
	}
	if next > out.CurrentIndex {
		out.CurrentIndex = next
		out.HostAnswer, out.GuestAnswer = nil, nil
	}
	return nil
}

// JoinPatch is the guest's join write.
func JoinPatch(guest domain.Identity) domain.RoomPatch {
	status := domain.StatusReady
	return domain.RoomPatch{
		ActorID:   guest.ID,
		GuestID:   &guest.ID,
		GuestName: &guest.Name,
		Status:    &status,
	}
}

// OutcomeFor compares two scores from the first side's point of view.
func OutcomeFor(mine, theirs int) domain.Outcome {
	switch {
	case mine > theirs:
		return domain.OutcomeWin
	case mine < theirs:
		return domain.OutcomeLose
	}
	return domain.OutcomeDraw
}

// Winner returns the winning role of a room by hostScore vs guestScore, or false on a draw.
func Winner(room domain.Room) (domain.Role, bool) {
	switch OutcomeFor(room.HostScore, room.GuestScore) {
	case domain.OutcomeWin:
		return domain.RoleHost, true
	case domain.OutcomeLose:
		return domain.RoleGuest, true
	}
	return "", false
}
