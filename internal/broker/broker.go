package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/timeflux-go/timeflux/internal/logging"
	"github.com/timeflux-go/timeflux/internal/telemetry"
)

// subscribeByte and unsubscribeByte are the one-byte prefixes ZMQ's XPUB
// socket surfaces on its own Recv() stream whenever a downstream SUB
// connects or disconnects.
const (
	subscribeByte   = 0x01
	unsubscribeByte = 0x00
)

// cacheEntry is one topic's most recently forwarded message.
type cacheEntry struct {
	topic []byte
	data  []byte
	meta  []byte
}

// LVC is the standalone pub/sub broker: an ingress socket any publisher
// can send to, an egress socket any subscriber reads from, and a
// last-value cache replayed to a subscriber the instant it joins.
type LVC struct {
	ingressAddr string
	egressAddr  string
	log         *logging.Logger
	telemetry   *telemetry.Provider

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option configures an LVC at construction time.
type Option func(*LVC)

// WithLogger attaches a logger; broker transport errors are logged, never
// fatal.
func WithLogger(log *logging.Logger) Option {
	return func(b *LVC) { b.log = log }
}

// WithTelemetry attaches a telemetry provider for per-topic relay counters.
func WithTelemetry(t *telemetry.Provider) Option {
	return func(b *LVC) { b.telemetry = t }
}

// NewLVC builds a broker bound to ingressAddr (publishers connect their
// PUB sockets here) and egressAddr (subscribers connect their SUB
// sockets here). Nothing is bound until Run is called.
func NewLVC(ingressAddr, egressAddr string, opts ...Option) *LVC {
	b := &LVC{
		ingressAddr: ingressAddr,
		egressAddr:  egressAddr,
		cache:       make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run binds both sockets and forwards messages until ctx is canceled.
// Two loops run concurrently: one relays ingress traffic to the egress
// socket and updates the cache; the other watches the egress socket's
// own subscribe/unsubscribe notification stream and replays a cached
// message to a topic's newest subscriber.
func (b *LVC) Run(ctx context.Context) error {
	ingress := zmq4.NewSub(ctx)
	if err := ingress.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return fmt.Errorf("broker: subscribe ingress to all topics: %w", err)
	}
	if err := ingress.Listen(b.ingressAddr); err != nil {
		return fmt.Errorf("broker: listen ingress %q: %w", b.ingressAddr, err)
	}
	defer ingress.Close()

	egress := zmq4.NewXPub(ctx)
	if err := egress.Listen(b.egressAddr); err != nil {
		return fmt.Errorf("broker: listen egress %q: %w", b.egressAddr, err)
	}
	defer egress.Close()

	errCh := make(chan error, 2)
	go b.relay(ctx, ingress, egress, errCh)
	go b.watchSubscriptions(ctx, egress, errCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (b *LVC) relay(ctx context.Context, ingress, egress zmq4.Socket, errCh chan<- error) {
	for {
		msg, err := ingress.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logError("ingress recv failed", err)
			continue
		}
		if len(msg.Frames) != 3 {
			b.logError("malformed message", fmt.Errorf("expected 3 frames, got %d", len(msg.Frames)))
			continue
		}
		topic, data, meta := msg.Frames[0], msg.Frames[1], msg.Frames[2]
		b.store(topic, data, meta)
		if err := egress.Send(msg); err != nil {
			b.logError("egress send failed", err)
			continue
		}
		if b.telemetry != nil {
			b.telemetry.RecordBrokerRelay(ctx, string(topic), len(data)+len(meta))
		}
	}
}

// watchSubscriptions reads XPUB's own notification stream. On a fresh subscribe to a topic the cache
// already holds, it replays that cached message immediately so the new
// subscriber never waits an arbitrary time for the next real update.
func (b *LVC) watchSubscriptions(ctx context.Context, egress zmq4.Socket, errCh chan<- error) {
	for {
		msg, err := egress.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logError("egress recv failed", err)
			continue
		}
		if len(msg.Frames) == 0 || len(msg.Frames[0]) == 0 {
			continue
		}
		prefix := msg.Frames[0][0]
		topic := msg.Frames[0][1:]
		if prefix != subscribeByte {
			continue
		}
		entry, ok := b.lookup(topic)
		if !ok {
			continue
		}
		replay := zmq4.NewMsgFrom(entry.topic, entry.data, entry.meta)
		if err := egress.Send(replay); err != nil {
			b.logError("lvc replay failed", err)
		}
	}
}

func (b *LVC) store(topic, data, meta []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache[string(topic)] = cacheEntry{
		topic: append([]byte(nil), topic...),
		data:  append([]byte(nil), data...),
		meta:  append([]byte(nil), meta...),
	}
}

func (b *LVC) lookup(topic []byte) (cacheEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.cache[string(topic)]
	return entry, ok
}

func (b *LVC) logError(msg string, err error) {
	if b.log != nil {
		b.log.WithError(err).Warn(msg)
	}
}
