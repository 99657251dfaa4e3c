package mqtt

import (
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/gaitlog/pkg/logger"
)

const (
	defaultBroker   = "tcp://localhost:1883"
	defaultTopic    = "gaitlog/items"
	defaultClientID = "gaitlog-server"
	defaultTimeout  = 10 * time.Second

	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithBroker sets the broker URL, e.g. tcp://localhost:1883.
func WithBroker(url string) Option {
	return func(s *Subscriber) {
		if url = strings.TrimSpace(url); url != "" {
			s.broker = url
		}
	}
}

// WithTopic sets the ingest topic. Acks go to <topic>/ack.
func WithTopic(topic string) Option {
	return func(s *Subscriber) {
		if topic = strings.Trim(strings.TrimSpace(topic), "/"); topic != "" {
			s.topic = topic
		}
	}
}

// WithClientID sets the MQTT client id.
func WithClientID(id string) Option {
	return func(s *Subscriber) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithQoS sets the QoS for the subscription and acks.
func WithQoS(qos byte) Option {
	return func(s *Subscriber) {
		if qos <= 2 {
			s.qos = qos
		}
	}
}

// WithTimeout bounds connect, subscribe and publish waits.
func WithTimeout(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithWorkers sets how many goroutines ingest queued messages.
func WithWorkers(n int) Option {
	return func(s *Subscriber) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize bounds the backlog of received but not yet ingested messages.
func WithQueueSize(n int) Option {
	return func(s *Subscriber) {
		if n > 0 {
			s.backlog = n
		}
	}
}

// WithClient uses an existing paho client instead of dialing one.
func WithClient(c paho.Client) Option {
	return func(s *Subscriber) {
		s.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}
