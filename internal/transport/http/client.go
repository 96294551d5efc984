package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/domain"
)

// ErrClientClosed is returned by calls on a closed or disconnected client.
var ErrClientClosed = errors.New("room store connection closed")

const unsubscribeTimeout = 2 * time.Second

// Client speaks the /ws room store protocol and implements app.RoomStore and
// app.VocabularyRepository for a remote participant.
type Client struct {
	conn   *websocket.Conn
	self   domain.Identity
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan inboundMessage
	subs    map[string]chan domain.RoomUpdate
	closed  bool

	done chan struct{}
}

// Dial connects to a gateway; serverURL is the ws:// or wss:// base of the server.
func Dial(ctx context.Context, serverURL string, self domain.Identity) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("userId", self.ID)
	q.Set("name", self.Name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	c := &Client{
		conn:    conn,
		self:    self,
		pending: make(map[string]chan inboundMessage),
		subs:    make(map[string]chan domain.RoomUpdate),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) Create(ctx context.Context, room domain.Room) error {
	return c.call(ctx, typeCreate, room, nil)
}

func (c *Client) Get(ctx context.Context, code string) (domain.Room, error) {
	var room domain.Room
	err := c.call(ctx, typeGet, codePayload{Code: code}, &room)
	return room, err
}

func (c *Client) Merge(ctx context.Context, code string, patch domain.RoomPatch) (domain.Room, error) {
	var room domain.Room
	err := c.call(ctx, typeMerge, mergePayload{Code: code, Patch: patch}, &room)
	return room, err
}

func (c *Client) Delete(ctx context.Context, code string) error {
	return c.call(ctx, typeDelete, codePayload{Code: code}, nil)
}

func (c *Client) ListWords(ctx context.Context) ([]domain.VocabularyWord, error) {
	var words []domain.VocabularyWord
	err := c.call(ctx, typeWords, nil, &words)
	return words, err
}

// Subscribe registers locally before asking the server, so the initial snapshot is never
// missed. One subscription per room code per client.
func (c *Client) Subscribe(ctx context.Context, code string) (<-chan domain.RoomUpdate, func(), error) {
	code = domain.NormalizeCode(code)
	ch := make(chan domain.RoomUpdate, 8)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, ErrClientClosed
	}
	if _, ok := c.subs[code]; ok {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("already subscribed to %s", code)
	}
	c.subs[code] = ch
	c.mu.Unlock()

	if err := c.call(ctx, typeSubscribe, codePayload{Code: code}, nil); err != nil {
		c.dropSub(code, ch)
		return nil, nil, err
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if c.dropSub(code, ch) {
				ctx, stop := context.WithTimeout(context.Background(), unsubscribeTimeout)
				defer stop()
				_ = c.call(ctx, typeUnsubscribe, codePayload{Code: code}, nil)
			}
		})
	}
	return ch, cancel, nil
}

// dropSub removes and closes ch if it is still registered for code.
func (c *Client) dropSub(code string, ch chan domain.RoomUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.subs[code]; ok && cur == ch {
		delete(c.subs, code)
		close(ch)
		return true
	}
	return false
}

func (c *Client) call(ctx context.Context, typ string, payload any, out any) error {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	reply := make(chan inboundMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg := outboundMessage[any]{Type: typ, ID: id, Payload: payload}
	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}

	select {
	case in := <-reply:
		if in.Type == typeError {
			var e errorPayload
			if err := json.Unmarshal(in.Payload, &e); err != nil {
				return fmt.Errorf("%s: malformed error reply: %w", typ, err)
			}
			return &domain.CodedError{Code: e.Code, Message: e.Message}
		}
		if out == nil || len(in.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(in.Payload, out); err != nil {
			return fmt.Errorf("%s: decode reply: %w", typ, err)
		}
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		var in inboundMessage
		if err := c.conn.ReadJSON(&in); err != nil {
			log.Debug().Err(err).Str("user", c.self.ID).Msg("room store connection closed")
			return
		}
		switch in.Type {
		case typeResult, typeError:
			c.mu.Lock()
			reply, ok := c.pending[in.ID]
			c.mu.Unlock()
			if ok {
				reply <- in
			}
		case typeUpdate:
			var update domain.RoomUpdate
			if err := json.Unmarshal(in.Payload, &update); err != nil {
				log.Warn().Err(err).Msg("dropping malformed room update")
				continue
			}
			c.deliver(update)
		}
	}
}

func (c *Client) deliver(update domain.RoomUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.subs[update.Code]
	if !ok {
		return
	}
	select {
	case ch <- update:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- update
	}
	if update.Deleted {
		delete(c.subs, update.Code)
		close(ch)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	for code, ch := range c.subs {
		delete(c.subs, code)
		close(ch)
	}
	c.mu.Unlock()
	close(c.done)
}
