package broker

import (
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/timeflux-go/timeflux/internal/config"
	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/node"
)

func init() {
	gob.Register(&frame.Frame{})
	node.Default().Register("broker", "Publisher", newPublisher)
}

// Publisher is the node contract half of the pub/sub publisher: on each
// cycle, every input port carrying data or meta is sent as
// [topic, data, meta] over the ingress socket, mapping a numbered input's
// suffix onto the topic (topic+suffix) for fan-in publishing of several
// named streams under one node.
type Publisher struct {
	node.Base

	topic      string
	serializer Serializer
	slowJoiner time.Duration

	sock    zmq4.Socket
	dialed  bool
	joined  bool
	ctx     context.Context
	cancel  context.CancelFunc
	address string
}

func newPublisher(params map[string]interface{}) (node.Instance, error) {
	topic, _ := params["topic"].(string)
	if topic == "" {
		return nil, fmt.Errorf("publisher: params.topic is required")
	}
	address, _ := params["address"].(string)
	if address == "" {
		return nil, fmt.Errorf("publisher: params.address is required")
	}
	slowJoinerMs, _ := params["slow_joiner_ms"].(float64)
	slowJoiner := time.Duration(slowJoinerMs) * time.Millisecond
	if slowJoinerMs == 0 {
		slowJoiner = config.Default().PublisherSlowJoinerWait
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		topic:      topic,
		serializer: GobSerializer{},
		slowJoiner: slowJoiner,
		address:    address,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (p *Publisher) ensureDialed() error {
	if p.dialed {
		return nil
	}
	p.sock = zmq4.NewPub(p.ctx)
	if err := p.sock.Dial(p.address); err != nil {
		return fmt.Errorf("publisher: dial %q: %w", p.address, err)
	}
	p.dialed = true
	return nil
}

// Update sends every ready named/numbered input as its own topic message.
// The "slow joiner" sleep (ZeroMQ's well-known connect/subscribe race)
// happens once, lazily, before the very first publish.
func (p *Publisher) Update() error {
	if err := p.ensureDialed(); err != nil {
		return err
	}
	if !p.joined {
		time.Sleep(p.slowJoiner)
		p.joined = true
	}

	for _, in := range p.Iterate("i*") {
		port := in.Port
		if port.Data == nil && len(port.Meta) == 0 {
			continue
		}
		topic := p.topic + in.Suffix
		// A meta-only port has a typed-nil *frame.Frame here, which gob
		// refuses to encode; leave Payload.Data absent instead.
		var payload Payload
		if port.Data != nil {
			payload.Data = port.Data
		}
		dataBlob, err := p.serializer.Encode(payload)
		if err != nil {
			return fmt.Errorf("publisher: encode data for %q: %w", topic, err)
		}
		metaBlob, err := p.serializer.Encode(port.Meta)
		if err != nil {
			return fmt.Errorf("publisher: encode meta for %q: %w", topic, err)
		}
		msg := zmq4.NewMsgFrom([]byte(topic), dataBlob, metaBlob)
		if err := p.sock.Send(msg); err != nil {
			return fmt.Errorf("publisher: send %q: %w", topic, err)
		}
	}
	return nil
}

// Terminate releases the underlying socket.
func (p *Publisher) Terminate() error {
	p.cancel()
	if p.sock != nil {
		return p.sock.Close()
	}
	return nil
}
