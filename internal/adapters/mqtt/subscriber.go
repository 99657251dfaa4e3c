// Package mqtt feeds device batches published on a broker topic into the
// ingest pipeline and answers each one on <topic>/ack.
//
// The paho callback only enqueues; a worker pool ingests. Messages are
// partitioned by session so one session's batches are ingested in arrival
// order. When a partition is full the message is refused with a negative
// ack so the device retries.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/gaitlog/internal/adapters/mq/queue"
	"github.com/okian/gaitlog/internal/adapters/mq/worker"
	service "github.com/okian/gaitlog/internal/app"
	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/logger"
	"github.com/okian/gaitlog/pkg/metrics"
)

// Error constants.
var (
	ErrConnect   = errors.New("mqtt connect failed")
	ErrSubscribe = errors.New("mqtt subscribe failed")
)

// Ingester is the part of the session service the subscriber needs.
type Ingester interface {
	Ingest(ctx context.Context, req types.IngestRequest) (service.IngestResult, error)
}

// publisher is the slice of paho.Client used to send acks.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Ack is published for every message received on the ingest topic.
type Ack struct {
	SessionID string `json:"session_id,omitempty"`
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Total     int    `json:"total,omitempty"`
	Message   string `json:"message"`
}

// Subscriber consumes ingest batches from an MQTT topic.
type Subscriber struct {
	ingester Ingester
	broker   string
	topic    string
	clientID string
	qos      byte
	timeout  time.Duration
	workers  int
	backlog  int
	logger   logger.Logger

	mu     sync.Mutex
	client paho.Client
	pub    publisher
	queue  *queue.Partitioned
	pool   *worker.Pool
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a subscriber. Start connects it.
func New(ing Ingester, opts ...Option) *Subscriber {
	s := &Subscriber{
		ingester: ing,
		broker:   defaultBroker,
		topic:    defaultTopic,
		clientID: defaultClientID,
		qos:      1,
		timeout:  defaultTimeout,
		workers:  defaultWorkers,
		backlog:  defaultQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AckTopic is where acknowledgements are published.
func (s *Subscriber) AckTopic() string { return s.topic + "/ack" }

// Start connects to the broker and subscribes to the ingest topic.
func (s *Subscriber) Start(ctx context.Context) error {
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startWorkers(s.ctx)
	if s.client == nil {
		opts := paho.NewClientOptions().
			AddBroker(s.broker).
			SetClientID(s.clientID).
			SetAutoReconnect(true).
			SetOrderMatters(true).
			SetConnectTimeout(s.timeout)
		s.client = paho.NewClient(opts)
	}
	s.pub = s.client

	if token := s.client.Connect(); !token.WaitTimeout(s.timeout) || token.Error() != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnect, s.broker, token.Error())
	}

	token := s.client.Subscribe(s.topic, s.qos, func(_ paho.Client, msg paho.Message) {
		s.receive(msg)
	})
	if !token.WaitTimeout(s.timeout) || token.Error() != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubscribe, s.topic, token.Error())
	}

	s.logger.Info(ctx, "mqtt subscriber started",
		logger.String("broker", s.broker),
		logger.String("topic", s.topic),
		logger.Int("workers", s.pool.Size()),
	)
	return nil
}

func (s *Subscriber) startWorkers(ctx context.Context) {
	if s.logger == nil {
		s.logger = logger.Get()
	}
	perWorker := max(1, s.backlog/s.workers)
	s.queue = queue.NewPartitioned(s.workers, queue.WithCapacity(perWorker))
	sources := make([]worker.Source, 0, s.workers)
	for _, q := range s.queue.Partitions() {
		sources = append(sources, q)
	}
	s.pool = worker.NewShardedPool(sources, s, worker.WithLogger(s.logger))
	s.pool.Start(ctx)
}

// Stop unsubscribes, lets the workers finish the backlog and disconnects.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	connected := s.client != nil && s.client.IsConnected()
	if connected {
		s.client.Unsubscribe(s.topic).WaitTimeout(s.timeout)
	}
	if s.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "mqtt backlog not drained", logger.Error(err))
		}
		cancel()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if connected {
		s.client.Disconnect(250)
	}
}

// receive is the paho callback. It must not block, so it only enqueues.
func (s *Subscriber) receive(msg paho.Message) {
	ctx := s.context()
	payload := msg.Payload()
	err := s.queue.Enqueue(ctx, queue.Message{Key: sessionKey(payload), Topic: msg.Topic(), Payload: payload})
	if err == nil {
		return
	}
	metrics.RecordMQTTMessage("rejected")
	s.logger.Warn(ctx, "mqtt message refused", logger.String("topic", msg.Topic()), logger.Error(err))
	_ = s.publishAck(ctx, Ack{Message: fmt.Sprintf("busy: %v", err)})
}

// Handle ingests one queued message and publishes its ack.
func (s *Subscriber) Handle(ctx context.Context, m queue.Message) error {
	return s.publishAck(ctx, s.Process(ctx, m.Payload))
}

func (s *Subscriber) publishAck(ctx context.Context, ack Ack) error {
	payload, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	token := s.pub.Publish(s.AckTopic(), s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish ack for %q: timed out", ack.SessionID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish ack for %q: %w", ack.SessionID, err)
	}
	return nil
}

// sessionKey peeks at the batch's session id. Malformed payloads share the
// empty key and are rejected by the worker.
func sessionKey(payload []byte) string {
	var head struct {
		FileName       string `json:"file_name"`
		SessionIDCamel string `json:"sessionId"`
		SessionID      string `json:"session_id"`
	}
	_ = json.Unmarshal(payload, &head)
	return types.IngestRequest{
		FileName:       head.FileName,
		SessionIDCamel: head.SessionIDCamel,
		SessionID:      head.SessionID,
	}.ID()
}

func (s *Subscriber) context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Process ingests one message payload and reports the outcome.
func (s *Subscriber) Process(ctx context.Context, payload []byte) Ack {
	var req types.IngestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		metrics.RecordMQTTMessage("invalid")
		return Ack{Message: fmt.Sprintf("malformed payload: %v", err)}
	}

	res, err := s.ingester.Ingest(ctx, req)
	if err != nil {
		result := "error"
		if errors.Is(err, service.ErrValidation) {
			result = "invalid"
		}
		metrics.RecordMQTTMessage(result)
		return Ack{SessionID: req.ID(), Message: err.Error()}
	}

	result := "ok"
	if res.Duplicate {
		result = "duplicate"
	}
	metrics.RecordMQTTMessage(result)
	return Ack{
		SessionID: res.SessionID,
		OK:        true,
		Duplicate: res.Duplicate,
		Total:     res.Total,
		Message:   res.Message,
	}
}
