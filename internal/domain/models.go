package domain

import (
	"strings"
	"time"
)

// VocabularyWord is one entry of the vocabulary pool.
type VocabularyWord struct {
	ID         string `json:"id"`
	Word       string `json:"word"`
	Definition string `json:"definition"`
}

// Question models an MCQ question: the prompt is a word, the options are definitions.
type Question struct {
	WordID  string   `json:"wordId"`
	Prompt  string   `json:"prompt"`
	Correct string   `json:"correct"`
	Options []string `json:"options"`
}

// IsCorrect reports whether option is the question's correct definition.
func (q Question) IsCorrect(option string) bool {
	return option != "" && option == q.Correct
}

// Identity is the participant id and display name supplied by the identity provider.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomStatus is the forward-only lifecycle of a room.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusReady    RoomStatus = "ready"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

// Rank orders statuses along the state machine; unknown statuses rank below waiting.
func (s RoomStatus) Rank() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusReady:
		return 2
	case StatusPlaying:
		return 3
	case StatusFinished:
		return 4
	}
	return 0
}

// Role is the side a participant plays in a room.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Room is the shared authoritative record of a two-party contest.
// Answer fields are nil when absent.
type Room struct {
	Code         string     `json:"code"`
	HostID       string     `json:"hostId"`
	HostName     string     `json:"hostName"`
	GuestID      string     `json:"guestId,omitempty"`
	GuestName    string     `json:"guestName,omitempty"`
	Status       RoomStatus `json:"status"`
	Questions    []Question `json:"questions"`
	CurrentIndex int        `json:"currentIndex"`
	HostScore    int        `json:"hostScore"`
	GuestScore   int        `json:"guestScore"`
	HostAnswer   *string    `json:"hostAnswer,omitempty"`
	GuestAnswer  *string    `json:"guestAnswer,omitempty"`
}

// RoleOf derives the role of a participant id, or false if it is neither side.
func (r Room) RoleOf(id string) (Role, bool) {
	switch {
	case id == "":
		return "", false
	case id == r.HostID:
		return RoleHost, true
	case id == r.GuestID:
		return RoleGuest, true
	}
	return "", false
}

// LastIndex is the last playable question index.
func (r Room) LastIndex() int {
	return len(r.Questions) - 1
}

// Clone returns a copy that shares no mutable state with r.
func (r Room) Clone() Room {
	out := r
	out.Questions = append([]Question(nil), r.Questions...)
	if r.HostAnswer != nil {
		v := *r.HostAnswer
		out.HostAnswer = &v
	}
	if r.GuestAnswer != nil {
		v := *r.GuestAnswer
		out.GuestAnswer = &v
	}
	return out
}

// RoomPatch is a partial-field merge against a room. Nil fields are left untouched.
type RoomPatch struct {
	// ActorID identifies the writer; its role is derived from the room, never claimed.
	ActorID string `json:"actorId"`
	// Index is the question index the writer believed current when answering.
	Index        int         `json:"index"`
	GuestID      *string     `json:"guestId,omitempty"`
	GuestName    *string     `json:"guestName,omitempty"`
	Status       *RoomStatus `json:"status,omitempty"`
	CurrentIndex *int        `json:"currentIndex,omitempty"`
	HostScore    *int        `json:"hostScore,omitempty"`
	GuestScore   *int        `json:"guestScore,omitempty"`
	HostAnswer   *string     `json:"hostAnswer,omitempty"`
	GuestAnswer  *string     `json:"guestAnswer,omitempty"`
	ClearAnswers bool        `json:"clearAnswers,omitempty"`
}

// RoomUpdate is a change notification: a full snapshot or a deletion.
type RoomUpdate struct {
	Code    string `json:"code"`
	Room    Room   `json:"room"`
	Deleted bool   `json:"deleted,omitempty"`
}

// NormalizeCode uppercases and trims a user-entered room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Difficulty selects the AI opponent accuracy tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty maps a string to a difficulty, defaulting to medium.
func ParseDifficulty(raw string) Difficulty {
	switch Difficulty(strings.ToLower(raw)) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	}
	return DifficultyMedium
}

// Outcome of a finished contest from one side's point of view.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	OutcomeDraw Outcome = "draw"
)

// Result summarizes a finished contest for the local participant.
type Result struct {
	Code          string  `json:"code,omitempty"`
	MyScore       int     `json:"myScore"`
	OpponentScore int     `json:"opponentScore"`
	OpponentName  string  `json:"opponentName"`
	Outcome       Outcome `json:"outcome"`
	Abandoned     bool    `json:"abandoned,omitempty"`
}

// DailyRecord tracks a user's daily challenge history and today's pending challenge.
type DailyRecord struct {
	UserID         string     `json:"userId"`
	LastCompleted  string     `json:"lastCompleted,omitempty"` // YYYY-MM-DD
	Streak         int        `json:"streak"`
	LastScore      int        `json:"lastScore"`
	TotalCompleted int        `json:"totalCompleted"`
	PendingDate    string     `json:"pendingDate,omitempty"`
	Pending        []Question `json:"pending,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// DailyChallenge is what a user sees when opening the daily challenge.
type DailyChallenge struct {
	Date      string     `json:"date"`
	Questions []Question `json:"questions,omitempty"`
	Streak    int        `json:"streak"`
	Completed bool       `json:"completed"`
}

// DailyResult is returned after completing the daily challenge.
type DailyResult struct {
	Score  int         `json:"score"`
	Total  int         `json:"total"`
	Record DailyRecord `json:"record"`
}
