package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/app"
	"vocab-battle/internal/battle"
	"vocab-battle/internal/domain"
)

var errBadPayload = errors.New("invalid payload")

// WSHandler exposes the shared room store and the vocabulary pool to remote participants.
// Every write is attributed to the connection's userId; a client cannot claim another identity.
type WSHandler struct {
	rooms    app.RoomStore
	words    app.VocabularyRepository
	upgrader websocket.Upgrader
}

func NewWSHandler(rooms app.RoomStore, words app.VocabularyRepository) *WSHandler {
	return &WSHandler{
		rooms: rooms,
		words: words,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn is the per-connection state owned by the read loop.
type wsConn struct {
	h      *WSHandler
	userID string
	send   chan outboundMessage[any]
	closed chan struct{}
	// writerDone is closed when the peer can no longer be written to.
	writerDone chan struct{}

	subsWG sync.WaitGroup
	subs   map[string]func()
}

// ServeWS upgrades HTTP requests to websockets and serves store operations until the
// peer disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := log.With().Str("conn", connID).Str("user", userID).Logger()
	logger.Debug().Msg("ws connected")

	c := &wsConn{
		h:      h,
		userID: userID,
		send:   make(chan outboundMessage[any], 16),
		closed: make(chan struct{}),
		subs:   make(map[string]func()),

		writerDone: make(chan struct{}),
	}

	go func() {
		defer close(c.writerDone)
		// unblock the read loop once writes fail
		defer conn.Close()
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	c.reply(outboundMessage[any]{Type: typeConnected, Payload: connectedPayload{ConnectionID: connID, UserID: userID}})

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		c.handle(ctx, inbound)
	}

	close(c.closed)
	for _, cancel := range c.subs {
		cancel()
	}
	c.subsWG.Wait()
	close(c.send)
	<-c.writerDone
	logger.Debug().Msg("ws disconnected")
}

func (c *wsConn) handle(ctx context.Context, in inboundMessage) {
	result, err := c.dispatch(ctx, in)
	if err != nil {
		if !domain.IsRejection(err) && !errors.Is(err, errBadPayload) {
			log.Warn().Err(err).Str("op", in.Type).Str("user", c.userID).Msg("room store operation failed")
		}
		c.reply(errorMessage(in.ID, err))
		return
	}
	c.reply(outboundMessage[any]{Type: typeResult, ID: in.ID, Payload: result})
}

func (c *wsConn) dispatch(ctx context.Context, in inboundMessage) (any, error) {
	switch in.Type {
	case typeCreate:
		var room domain.Room
		if err := decode(in.Payload, &room); err != nil {
			return nil, err
		}
		if err := battle.ValidateNewRoom(room, c.userID); err != nil {
			return nil, err
		}
		if err := c.h.rooms.Create(ctx, room); err != nil {
			return nil, err
		}
		return room, nil
	case typeGet:
		var p codePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return c.h.rooms.Get(ctx, domain.NormalizeCode(p.Code))
	case typeMerge:
		var p mergePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		p.Patch.ActorID = c.userID
		return c.h.rooms.Merge(ctx, domain.NormalizeCode(p.Code), p.Patch)
	case typeDelete:
		var p codePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		code := domain.NormalizeCode(p.Code)
		room, err := c.h.rooms.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if _, ok := room.RoleOf(c.userID); !ok {
			return nil, domain.ErrNotAuthorized
		}
		return codePayload{Code: code}, c.h.rooms.Delete(ctx, code)
	case typeSubscribe:
		var p codePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return codePayload{Code: domain.NormalizeCode(p.Code)}, c.subscribe(ctx, domain.NormalizeCode(p.Code))
	case typeUnsubscribe:
		var p codePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		code := domain.NormalizeCode(p.Code)
		if cancel, ok := c.subs[code]; ok {
			cancel()
			delete(c.subs, code)
		}
		return codePayload{Code: code}, nil
	case typeWords:
		return c.h.words.ListWords(ctx)
	}
	return nil, errors.New("unsupported message type")
}

func (c *wsConn) subscribe(ctx context.Context, code string) error {
	if cancel, ok := c.subs[code]; ok {
		cancel()
		delete(c.subs, code)
	}
	updates, cancel, err := c.h.rooms.Subscribe(ctx, code)
	if err != nil {
		return err
	}
	c.subs[code] = cancel

	c.subsWG.Add(1)
	go func() {
		defer c.subsWG.Done()
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case c.send <- outboundMessage[any]{Type: typeUpdate, Payload: update}:
				case <-c.closed:
					return
				case <-c.writerDone:
					return
				}
			case <-c.closed:
				return
			}
		}
	}()
	return nil
}

func (c *wsConn) reply(msg outboundMessage[any]) {
	select {
	case c.send <- msg:
	case <-c.closed:
	case <-c.writerDone:
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errBadPayload
	}
	return nil
}
