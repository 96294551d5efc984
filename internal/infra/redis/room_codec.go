package redis

import (
	"encoding/json"
	"fmt"
	"strconv"

	"vocab-battle/internal/domain"
)

// Hash fields of a room. Answer fields are absent when no answer is recorded.
const (
	fieldCode         = "code"
	fieldHostID       = "hostId"
	fieldHostName     = "hostName"
	fieldGuestID      = "guestId"
	fieldGuestName    = "guestName"
	fieldStatus       = "status"
	fieldQuestions    = "questions"
	fieldCurrentIndex = "currentIndex"
	fieldHostScore    = "hostScore"
	fieldGuestScore   = "guestScore"
	fieldHostAnswer   = "hostAnswer"
	fieldGuestAnswer  = "guestAnswer"
)

func encodeRoom(room domain.Room) (map[string]string, error) {
	questions, err := json.Marshal(room.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	fields := map[string]string{
		fieldCode:         room.Code,
		fieldHostID:       room.HostID,
		fieldHostName:     room.HostName,
		fieldStatus:       string(room.Status),
		fieldQuestions:    string(questions),
		fieldCurrentIndex: strconv.Itoa(room.CurrentIndex),
		fieldHostScore:    strconv.Itoa(room.HostScore),
		fieldGuestScore:   strconv.Itoa(room.GuestScore),
	}
	if room.GuestID != "" {
		fields[fieldGuestID] = room.GuestID
		fields[fieldGuestName] = room.GuestName
	}
	if room.HostAnswer != nil {
		fields[fieldHostAnswer] = *room.HostAnswer
	}
	if room.GuestAnswer != nil {
		fields[fieldGuestAnswer] = *room.GuestAnswer
	}
	return fields, nil
}

func decodeRoom(fields map[string]string) (domain.Room, error) {
	room := domain.Room{
		Code:      fields[fieldCode],
		HostID:    fields[fieldHostID],
		HostName:  fields[fieldHostName],
		GuestID:   fields[fieldGuestID],
		GuestName: fields[fieldGuestName],
		Status:    domain.RoomStatus(fields[fieldStatus]),
	}
	if raw := fields[fieldQuestions]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &room.Questions); err != nil {
			return domain.Room{}, fmt.Errorf("decode questions: %w", err)
		}
	}
	for field, dst := range map[string]*int{
		fieldCurrentIndex: &room.CurrentIndex,
		fieldHostScore:    &room.HostScore,
		fieldGuestScore:   &room.GuestScore,
	} {
		n, err := strconv.Atoi(fields[field])
		if err != nil {
			return domain.Room{}, fmt.Errorf("decode %s: %w", field, err)
		}
		*dst = n
	}
	if v, ok := fields[fieldHostAnswer]; ok {
		room.HostAnswer = &v
	}
	if v, ok := fields[fieldGuestAnswer]; ok {
		room.GuestAnswer = &v
	}
	return room, nil
}

// diffFields returns the fields to set and the fields to delete to turn prev into next.
func diffFields(prev, next map[string]string) (map[string]string, []string) {
	set := make(map[string]string)
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			set[k] = v
		}
	}
	var del []string
	for k := range prev {
		if _, ok := next[k]; !ok {
			del = append(del, k)
		}
	}
	return set, del
}

func pairs(fields map[string]string) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
