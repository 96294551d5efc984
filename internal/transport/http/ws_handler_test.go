package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"vocab-battle/internal/battle"
	"vocab-battle/internal/domain"
	"vocab-battle/internal/infra/memory"
)

func sampleWords() []domain.VocabularyWord {
	return []domain.VocabularyWord{
		{ID: "w1", Word: "abate", Definition: "to lessen"},
		{ID: "w2", Word: "candid", Definition: "truthful"},
		{ID: "w3", Word: "deft", Definition: "skillful"},
		{ID: "w4", Word: "ephemeral", Definition: "short-lived"},
		{ID: "w5", Word: "frugal", Definition: "economical"},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.RoomStore) {
	t.Helper()
	store := memory.NewRoomStore(clockwork.NewRealClock(), time.Hour)
	words := memory.NewVocabularyRepository(memory.NewStaticWordLoader(sampleWords()), time.Minute, nil)
	wsHandler := NewWSHandler(store, words)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func dialRaw(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?userId=" + userID + "&name=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	readNext(conn, t, typeConnected)
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		ID      string         `json:"id"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func TestWebSocketCreateAndForgedMerge(t *testing.T) {
	server, store := newTestServer(t)
	hostConn := dialRaw(t, server, "u1")

	room := battle.NewRoom("ABC123", domain.Identity{ID: "u1", Name: "Alice"}, battle.BuildQuestions(nil, sampleWords(), 3))
	if err := hostConn.WriteJSON(map[string]any{"type": "create", "id": "1", "payload": room}); err != nil {
		t.Fatalf("write create: %v", err)
	}
	readNext(hostConn, t, typeResult)

	guestConn := dialRaw(t, server, "u2")
	join := battle.JoinPatch(domain.Identity{ID: "u2", Name: "Bob"})
	if err := guestConn.WriteJSON(map[string]any{"type": "merge", "id": "1", "payload": map[string]any{"code": "abc123", "patch": join}}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	_, payload := readNext(guestConn, t, typeResult)
	if payload["status"] != string(domain.StatusReady) {
		t.Fatalf("expected ready room, got %v", payload)
	}

	// the guest claims to be the host; the server attributes the write to u2
	next := 1
	forged := domain.RoomPatch{ActorID: "u1", CurrentIndex: &next}
	if err := guestConn.WriteJSON(map[string]any{"type": "merge", "id": "2", "payload": map[string]any{"code": "ABC123", "patch": forged}}); err != nil {
		t.Fatalf("write forged: %v", err)
	}
	_, payload = readNext(guestConn, t, typeError)
	if payload["code"] != "not_authorized" {
		t.Fatalf("expected not_authorized, got %v", payload)
	}

	got, _ := store.Get(context.Background(), "ABC123")
	if got.CurrentIndex != 0 {
		t.Fatalf("forged advance applied: %+v", got)
	}
}

func TestWebSocketRejectsCreateForOtherHost(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dialRaw(t, server, "mallory")

	room := battle.NewRoom("ABC123", domain.Identity{ID: "u1", Name: "Alice"}, battle.BuildQuestions(nil, sampleWords(), 3))
	_ = conn.WriteJSON(map[string]any{"type": "create", "id": "1", "payload": room})
	_, payload := readNext(conn, t, typeError)
	if payload["code"] != "not_authorized" {
		t.Fatalf("expected not_authorized, got %v", payload)
	}
}

func TestWebSocketUnknownType(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dialRaw(t, server, "u1")

	_ = conn.WriteJSON(map[string]any{"type": "dance", "id": "9"})
	_, payload := readNext(conn, t, typeError)
	if payload["code"] != "internal" {
		t.Fatalf("expected generic error, got %v", payload)
	}
}

func TestWebSocketRequiresUser(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
