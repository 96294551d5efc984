package http

import (
	"encoding/json"

	"vocab-battle/internal/domain"
)

// Message types of the room store protocol spoken over /ws.
const (
	typeConnected   = "connected"
	typeCreate      = "create"
	typeGet         = "get"
	typeMerge       = "merge"
	typeDelete      = "delete"
	typeSubscribe   = "subscribe"
	typeUnsubscribe = "unsubscribe"
	typeWords       = "words"
	typeResult      = "result"
	typeError       = "error"
	typeUpdate      = "update"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload T      `json:"payload"`
}

type codePayload struct {
	Code string `json:"code"`
}

type mergePayload struct {
	Code  string           `json:"code"`
	Patch domain.RoomPatch `json:"patch"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type connectedPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

func errorMessage(id string, err error) outboundMessage[any] {
	return outboundMessage[any]{
		Type:    typeError,
		ID:      id,
		Payload: errorPayload{Code: domain.ErrorCode(err), Message: err.Error()},
	}
}
