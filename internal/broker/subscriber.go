package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/node"
)

func init() {
	node.Default().Register("broker", "Subscriber", newSubscriber)
}

// subMessage is one decoded wire message waiting to be merged into its
// topic's output port on the next Update.
type subMessage struct {
	topic string
	data  *frame.Frame
	meta  map[string]interface{}
}

// Subscriber is the node contract half of the pub/sub subscriber: one
// output port per subscribed topic, non-blockingly drained every cycle;
// several messages
// arriving for the same topic within one cycle are concatenated into a
// single per-cycle frame, with later meta keys overriding earlier ones.
type Subscriber struct {
	node.Base

	topics     []string
	serializer Serializer
	address    string

	sock   zmq4.Socket
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []subMessage
	started bool
}

func newSubscriber(params map[string]interface{}) (node.Instance, error) {
	rawTopics, _ := params["topics"].([]interface{})
	if len(rawTopics) == 0 {
		return nil, fmt.Errorf("subscriber: params.topics must be a non-empty list")
	}
	topics := make([]string, 0, len(rawTopics))
	for _, t := range rawTopics {
		s, ok := t.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("subscriber: params.topics entries must be non-empty strings")
		}
		topics = append(topics, s)
	}
	address, _ := params["address"].(string)
	if address == "" {
		return nil, fmt.Errorf("subscriber: params.address is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		topics:     topics,
		serializer: GobSerializer{},
		address:    address,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// ensureStarted dials the SUB socket, subscribes to every configured
// topic, and starts the background drain goroutine. Deferred to first
// Update rather than construction so a worker can build every node before
// any network connection opens.
func (s *Subscriber) ensureStarted() error {
	if s.started {
		return nil
	}
	s.sock = zmq4.NewSub(s.ctx)
	if err := s.sock.Dial(s.address); err != nil {
		return fmt.Errorf("subscriber: dial %q: %w", s.address, err)
	}
	for _, topic := range s.topics {
		if err := s.sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			return fmt.Errorf("subscriber: subscribe %q: %w", topic, err)
		}
	}
	s.started = true
	go s.recvLoop()
	return nil
}

// recvLoop is the only goroutine that calls Recv; ZeroMQ sockets in this
// library are not safe for concurrent Recv/Send from multiple goroutines,
// and Recv blocks, which is why draining happens here instead of in
// Update.
func (s *Subscriber) recvLoop() {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			continue
		}
		if len(msg.Frames) != 3 {
			continue
		}
		var payload Payload
		if err := s.serializer.Decode(msg.Frames[1], &payload); err != nil {
			continue
		}
		var meta map[string]interface{}
		if err := s.serializer.Decode(msg.Frames[2], &meta); err != nil {
			meta = map[string]interface{}{}
		}
		fr, _ := payload.Data.(*frame.Frame)
		s.mu.Lock()
		s.pending = append(s.pending, subMessage{topic: string(msg.Frames[0]), data: fr, meta: meta})
		s.mu.Unlock()
	}
}

// Update drains everything recvLoop buffered since the last cycle and
// exposes one output port per topic ("o_<topic>"), concatenating rows
// from successive messages on the same topic and merging their meta
// dictionaries (later message wins on key conflict).
func (s *Subscriber) Update() error {
	if err := s.ensureStarted(); err != nil {
		return err
	}

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	byTopic := make(map[string][]subMessage)
	for _, m := range batch {
		byTopic[m.topic] = append(byTopic[m.topic], m)
	}

	for topic, msgs := range byTopic {
		port := s.Port("o_" + sanitizeTopic(topic))
		merged := mergeFrames(msgs)
		port.Data = merged.data
		port.Meta = merged.meta
	}
	return nil
}

type merged struct {
	data *frame.Frame
	meta map[string]interface{}
}

func mergeFrames(msgs []subMessage) merged {
	meta := map[string]interface{}{}
	var out *frame.Frame
	for _, m := range msgs {
		for k, v := range m.meta {
			meta[k] = v
		}
		if m.data == nil {
			continue
		}
		if out == nil {
			out = m.data.Clone()
			continue
		}
		out.Index = append(out.Index, m.data.Index...)
		out.Values = append(out.Values, m.data.Values...)
	}
	return merged{data: out, meta: meta}
}

// sanitizeTopic turns an arbitrary topic bytestring into a valid port-name
// suffix:
// runs of non-alphanumeric characters collapse to a single "_", and
// leading/trailing separators are trimmed so no segment is ever empty.
func sanitizeTopic(topic string) string {
	out := make([]rune, 0, len(topic))
	prevSep := true // trims a leading separator too
	for _, r := range topic {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			prevSep = false
			continue
		}
		if !prevSep {
			out = append(out, '_')
			prevSep = true
		}
	}
	for len(out) > 0 && out[len(out)-1] == '_' {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return "topic"
	}
	return string(out)
}

// Terminate releases the underlying socket.
func (s *Subscriber) Terminate() error {
	s.cancel()
	if s.sock != nil {
		return s.sock.Close()
	}
	return nil
}
