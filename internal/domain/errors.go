package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room code does not resolve to a room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotJoinable is returned when joining a room that is no longer waiting.
	ErrRoomNotJoinable = errors.New("room is no longer available")
	// ErrRoomExists indicates a generated room code collided with a live room.
	ErrRoomExists = errors.New("room already exists")
	// ErrInvalidRoom indicates a malformed room document on create.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrNotAuthorized is returned when a write violates the authority rule.
	ErrNotAuthorized = errors.New("write not permitted for this participant")
	// ErrStatusRegression is returned when a write would move status backwards.
	ErrStatusRegression = errors.New("room status cannot move backwards")
	// ErrIndexOutOfRange is returned when currentIndex would decrease or pass the last question.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrScoreRegression is returned when a score would decrease or exceed the answered questions.
	ErrScoreRegression = errors.New("invalid score update")
	// ErrAnswerAlreadySet is returned on a second answer for the same question.
	ErrAnswerAlreadySet = errors.New("answer already recorded for this question")
	// ErrSyncWriteFailed wraps a merge that could not reach the shared store.
	ErrSyncWriteFailed = errors.New("sync write failed")
	// ErrEmptyVocabulary indicates there are no words to build questions from.
	ErrEmptyVocabulary = errors.New("vocabulary is empty")
	// ErrDailyNotStarted is returned when completing a daily challenge that was never issued.
	ErrDailyNotStarted = errors.New("daily challenge not started")
	// ErrDailyCompleted is returned when the daily challenge was already completed today.
	ErrDailyCompleted = errors.New("daily challenge already completed today")
)

var errorCodes = map[error]string{
	ErrRoomNotFound:     "room_not_found",
	ErrRoomNotJoinable:  "room_not_joinable",
	ErrRoomExists:       "room_exists",
	ErrInvalidRoom:      "invalid_room",
	ErrNotAuthorized:    "not_authorized",
	ErrStatusRegression: "status_regression",
	ErrIndexOutOfRange:  "index_out_of_range",
	ErrScoreRegression:  "score_regression",
	ErrAnswerAlreadySet: "answer_already_set",
	ErrSyncWriteFailed:  "sync_write_failed",
	ErrEmptyVocabulary:  "empty_vocabulary",
	ErrDailyNotStarted:  "daily_not_started",
	ErrDailyCompleted:   "daily_completed",
}

// ErrorCode returns the stable wire code for err, or "internal".
func ErrorCode(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "internal"
}

// CodedError carries a server-side error across the wire and unwraps to its sentinel.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string { return e.Message }

func (e *CodedError) Unwrap() error {
	for sentinel, code := range errorCodes {
		if code == e.Code {
			return sentinel
		}
	}
	return nil
}

// IsRejection reports whether err is a deterministic validation failure that retrying cannot fix.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrStatusRegression),
		errors.Is(err, ErrIndexOutOfRange),
		errors.Is(err, ErrScoreRegression),
		errors.Is(err, ErrAnswerAlreadySet),
		errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrInvalidRoom):
		return true
	}
	return false
}
