// Package config centralizes the runtime's tunables — the Manager's
// supervision cadence, shutdown grace period, and the timeout ranges the
// broker and Background Task transports use — rather than scattering
// literal durations through the packages that consume them.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config holds every tunable the runtime needs outside of an
// application's own graph/node descriptors.
type Config struct {
	// PollInterval is how often the Manager polls worker processes for
	// exit: no signal-based reaping, just periodic liveness
	// checks.
	PollInterval time.Duration `validate:"gt=0"`

	// ShutdownTimeout is how long the Manager waits after requesting a
	// graceful stop before force-killing a worker.
	ShutdownTimeout time.Duration `validate:"gt=0"`

	// BrokerMonitorMinTimeout and BrokerMonitorMaxTimeout bound how long
	// a BrokerMonitored variant waits for traffic before it logs a
	// watchdog warning.
	BrokerMonitorMinTimeout time.Duration `validate:"gt=0,ltefield=BrokerMonitorMaxTimeout"`
	BrokerMonitorMaxTimeout time.Duration `validate:"gt=0,gtefield=BrokerMonitorMinTimeout"`

	// TaskTransportTimeout bounds how long, once a Background Task's
	// child process has exited, its owner still waits for the status
	// reply over the PAIR socket before considering the task
	// unresponsive.
	TaskTransportTimeout time.Duration `validate:"gt=0"`

	// PublisherSlowJoinerWait is the optional initial sleep a Publisher
	// node takes before its first publish, giving subscribers time to
	// connect.
	PublisherSlowJoinerWait time.Duration `validate:"gte=0"`
}

// Default returns the tunables used when an application doesn't override
// them.
func Default() *Config {
	return &Config{
		PollInterval:            100 * time.Millisecond,
		ShutdownTimeout:         10 * time.Second,
		BrokerMonitorMinTimeout: 1 * time.Second,
		BrokerMonitorMaxTimeout: 5 * time.Second,
		TaskTransportTimeout:    5 * time.Second,
		PublisherSlowJoinerWait: 200 * time.Millisecond,
	}
}

// fieldErrors maps each struct-tag-validated field to the sentinel error
// callers have always matched on, so swapping in go-playground/validator
// didn't change Validate's contract.
var fieldErrors = map[string]error{
	"PollInterval":            ErrInvalidPollInterval,
	"ShutdownTimeout":         ErrInvalidShutdownTimeout,
	"BrokerMonitorMinTimeout": ErrInvalidBrokerMonitorTimeout,
	"BrokerMonitorMaxTimeout": ErrInvalidBrokerMonitorTimeout,
	"TaskTransportTimeout":    ErrInvalidTaskTransportTimeout,
	"PublisherSlowJoinerWait": ErrInvalidPublisherSlowJoinerWait,
}

// Validate rejects a Config with a zero or negative duration in any field
// except PublisherSlowJoinerWait (which may be zero but not negative), and
// a broker monitor range whose minimum exceeds its maximum.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	for _, fe := range err.(validator.ValidationErrors) {
		if sentinel, ok := fieldErrors[fe.StructField()]; ok {
			return sentinel
		}
	}
	return err
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
