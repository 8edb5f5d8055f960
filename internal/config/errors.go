package config

import "errors"

var (
	ErrInvalidPollInterval            = errors.New("config: poll interval must be positive")
	ErrInvalidShutdownTimeout         = errors.New("config: shutdown timeout must be positive")
	ErrInvalidBrokerMonitorTimeout    = errors.New("config: broker monitor timeout range is invalid")
	ErrInvalidTaskTransportTimeout    = errors.New("config: task transport timeout must be positive")
	ErrInvalidPublisherSlowJoinerWait = errors.New("config: publisher slow joiner wait must not be negative")
)
