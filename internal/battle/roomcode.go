package battle

import (
	"crypto/rand"
	"fmt"
)

const (
	// RoomCodeLength is the number of characters in a shareable room code.
	RoomCodeLength = 6
	roomCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewRoomCode returns a random uppercase base-36 code.
func NewRoomCode() (string, error) {
	// reject bytes past the largest multiple of 36 so every character is equally likely
	const limit = 256 - 256%len(roomCodeChars)
	out := make([]byte, 0, RoomCodeLength)
	buf := make([]byte, RoomCodeLength*2)
	for len(out) < RoomCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, roomCodeChars[int(b)%len(roomCodeChars)])
			if len(out) == RoomCodeLength {
				break
			}
		}
	}
	return string(out), nil
}
