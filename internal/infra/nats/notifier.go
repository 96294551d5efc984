package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/domain"
)

const (
	maxReconnects = -1
	reconnectWait = 2 * time.Second
	updateBuffer  = 8
)

// Connect dials NATS with unlimited reconnects and logged connection events.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("vocab-battle"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Notifier publishes room updates on a subject per room ({prefix}.{code}) so every
// gateway instance sharing the Redis store sees every change.
type Notifier struct {
	nc     *nats.Conn
	prefix string
}

func NewNotifier(nc *nats.Conn, prefix string) *Notifier {
	if prefix == "" {
		prefix = "battle.rooms"
	}
	return &Notifier{nc: nc, prefix: prefix}
}

func (n *Notifier) Publish(_ context.Context, update domain.RoomUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	if err := n.nc.Publish(n.subject(update.Code), payload); err != nil {
		return fmt.Errorf("publish %s: %w", update.Code, err)
	}
	return nil
}

// Subscribe returns once the server has registered the subscription.
func (n *Notifier) Subscribe(_ context.Context, code string) (<-chan domain.RoomUpdate, func(), error) {
	s := &subscription{out: make(chan domain.RoomUpdate, updateBuffer)}
	sub, err := n.nc.Subscribe(n.subject(code), func(msg *nats.Msg) {
		var update domain.RoomUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			log.Warn().Err(err).Str("room", code).Msg("dropping malformed room update")
			return
		}
		s.deliver(update)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe room %s: %w", code, err)
	}
	if err := n.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("subscribe room %s: %w", code, err)
	}

	cancel := func() {
		_ = sub.Unsubscribe()
		s.close()
	}
	return s.out, cancel, nil
}

func (n *Notifier) subject(code string) string {
	return n.prefix + "." + code
}

type subscription struct {
	mu     sync.Mutex
	closed bool
	out    chan domain.RoomUpdate
}

// deliver never blocks the NATS dispatcher: a lagging reader loses the oldest update.
func (s *subscription) deliver(update domain.RoomUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- update:
	default:
		select {
		case <-s.out:
		default:
		}
		s.out <- update
	}
	if update.Deleted {
		s.closed = true
		close(s.out)
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
