package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Monitored wraps an LVC with a silence watchdog: if no ingress message
// arrives within Timeout, it logs a warning and, if ExitOnSilence is set,
// stops the broker.
type Monitored struct {
	*LVC
	Timeout       time.Duration
	ExitOnSilence bool
}

// NewMonitored builds a Monitored broker. timeout must fall within
// config.BrokerMonitorMinTimeout/MaxTimeout; callers validate that bound,
// this constructor only stores what it's given.
func NewMonitored(ingressAddr, egressAddr string, timeout time.Duration, exitOnSilence bool, opts ...Option) *Monitored {
	return &Monitored{
		LVC:           NewLVC(ingressAddr, egressAddr, opts...),
		Timeout:       timeout,
		ExitOnSilence: exitOnSilence,
	}
}

// Run behaves like LVC.Run but additionally watchdogs silence: every
// relayed message resets the timer; if it ever fires, a warning is
// logged and, if ExitOnSilence, Run returns ErrSilence instead of
// blocking forever.
func (m *Monitored) Run(ctx context.Context) error {
	ingress := zmq4.NewSub(ctx)
	if err := ingress.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return fmt.Errorf("broker: subscribe ingress to all topics: %w", err)
	}
	if err := ingress.Listen(m.ingressAddr); err != nil {
		return fmt.Errorf("broker: listen ingress %q: %w", m.ingressAddr, err)
	}
	defer ingress.Close()

	egress := zmq4.NewXPub(ctx)
	if err := egress.Listen(m.egressAddr); err != nil {
		return fmt.Errorf("broker: listen egress %q: %w", m.egressAddr, err)
	}
	defer egress.Close()

	errCh := make(chan error, 3)
	activity := make(chan struct{}, 1)

	go m.relayMonitored(ctx, ingress, egress, activity, errCh)
	go m.watchSubscriptions(ctx, egress, errCh)
	go m.watchSilence(ctx, activity, errCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ErrSilence is returned by Monitored.Run when ExitOnSilence is set and
// no message arrived within Timeout.
var ErrSilence = fmt.Errorf("broker: no message received within the monitor timeout")

func (m *Monitored) relayMonitored(ctx context.Context, ingress, egress zmq4.Socket, activity chan<- struct{}, errCh chan<- error) {
	for {
		msg, err := ingress.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logError("ingress recv failed", err)
			continue
		}
		select {
		case activity <- struct{}{}:
		default:
		}
		if len(msg.Frames) != 3 {
			m.logError("malformed message", fmt.Errorf("expected 3 frames, got %d", len(msg.Frames)))
			continue
		}
		topic, data, meta := msg.Frames[0], msg.Frames[1], msg.Frames[2]
		m.store(topic, data, meta)
		if err := egress.Send(msg); err != nil {
			m.logError("egress send failed", err)
			continue
		}
		if m.telemetry != nil {
			m.telemetry.RecordBrokerRelay(ctx, string(topic), len(data)+len(meta))
		}
	}
}

func (m *Monitored) watchSilence(ctx context.Context, activity <-chan struct{}, errCh chan<- error) {
	timer := time.NewTimer(m.Timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-activity:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(m.Timeout)
		case <-timer.C:
			if m.log != nil {
				m.log.WithField("timeout", m.Timeout.String()).Warn("no broker message received within the monitor timeout")
			}
			if m.ExitOnSilence {
				errCh <- ErrSilence
				return
			}
			timer.Reset(m.Timeout)
		}
	}
}
