package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gaitlog/internal/adapters/mq/queue"
	service "github.com/okian/gaitlog/internal/app"
	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{topic: topic, payload: payload.([]byte)})
	return &fakeToken{}
}

func (p *fakePublisher) acks() []Ack {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Ack, 0, len(p.sent))
	for _, m := range p.sent {
		var a Ack
		if json.Unmarshal(m.payload, &a) == nil {
			out = append(out, a)
		}
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func payload(id string, rows int, seq float64) []byte {
	data := make([][]types.Number, rows)
	for i := range data {
		data[i] = []types.Number{
			types.NewNumber(float64(i) / 100),
			types.NewNumber(0), types.NewNumber(0), types.NewNumber(0), types.NewNumber(1),
		}
	}
	req := types.IngestRequest{
		FileName:    id,
		CurrentTime: "2000-01-01 00:00:10.000000",
		TimeOffset:  types.NewNumber(10),
		DataPoints:  types.NewNumber(float64(rows)),
		Data:        data,
	}
	if seq > 0 {
		req.BatchSeq = types.NewNumber(seq)
	}
	b, _ := json.Marshal(req)
	return b
}

func TestSubscriber_Process(t *testing.T) {
	Convey("Given a subscriber over a running service", t, func() {
		ctx := context.Background()
		svc := service.New()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		sub := New(svc, WithTopic("/devices/gait/"), WithLogger(logger.Get()))

		Convey("Then the ack topic hangs off the trimmed ingest topic", func() {
			So(sub.AckTopic(), ShouldEqual, "devices/gait/ack")
		})

		Convey("When a valid batch arrives", func() {
			ack := sub.Process(ctx, payload("left-1", 4, 0))

			Convey("Then it is stored and acknowledged", func() {
				So(ack.OK, ShouldBeTrue)
				So(ack.SessionID, ShouldEqual, "left-1")
				So(ack.Total, ShouldEqual, 4)
				s, err := svc.Session(ctx, "left-1")
				So(err, ShouldBeNil)
				So(s.SampleCount, ShouldEqual, 4)
			})
		})

		Convey("When a sequenced batch is redelivered", func() {
			first := sub.Process(ctx, payload("right-1", 2, 1))
			again := sub.Process(ctx, payload("right-1", 2, 1))

			Convey("Then the replay is acknowledged as a duplicate", func() {
				So(first.Duplicate, ShouldBeFalse)
				So(again.OK, ShouldBeTrue)
				So(again.Duplicate, ShouldBeTrue)
				So(again.Total, ShouldEqual, 2)
			})
		})

		Convey("When the payload is not JSON", func() {
			ack := sub.Process(ctx, []byte("nope"))

			Convey("Then a negative ack is returned", func() {
				So(ack.OK, ShouldBeFalse)
				So(ack.Message, ShouldStartWith, "malformed payload")
			})
		})

		Convey("When the batch is invalid", func() {
			ack := sub.Process(ctx, payload("", 2, 0))

			Convey("Then the validation error is reported", func() {
				So(ack.OK, ShouldBeFalse)
				So(ack.Message, ShouldContainSubstring, "validation error")
			})
		})

		Convey("When a queued message is handled", func() {
			pub := &fakePublisher{}
			sub.pub = pub
			err := sub.Handle(ctx, queue.Message{Topic: "devices/gait", Payload: payload("left-2", 3, 0)})

			Convey("Then one ack is published on the ack topic", func() {
				So(err, ShouldBeNil)
				So(pub.sent, ShouldHaveLength, 1)
				So(pub.sent[0].topic, ShouldEqual, "devices/gait/ack")
				var ack Ack
				So(json.Unmarshal(pub.sent[0].payload, &ack), ShouldBeNil)
				So(ack.OK, ShouldBeTrue)
				So(ack.Message, ShouldEqual, "Received file: left-2, Number of elements: 3, Total number of elements: 3")
			})
		})
	})
}

func TestSubscriber_Backlog(t *testing.T) {
	Convey("Given a subscriber with running workers", t, func() {
		ctx := context.Background()
		svc := service.New()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		pub := &fakePublisher{}
		sub := New(svc, WithWorkers(3), WithQueueSize(64), WithLogger(logger.Get()))
		sub.pub = pub
		sub.startWorkers(ctx)

		Convey("When sequenced batches of one session arrive together", func() {
			for seq := 1; seq <= 10; seq++ {
				sub.receive(&fakeMessage{topic: defaultTopic, payload: payload("left-3", 5, float64(seq))})
			}
			sub.Stop()

			Convey("Then every batch is ingested and acknowledged", func() {
				acks := pub.acks()
				So(acks, ShouldHaveLength, 10)
				for _, a := range acks {
					So(a.OK, ShouldBeTrue)
				}
				s, err := svc.Session(ctx, "left-3")
				So(err, ShouldBeNil)
				So(s.SampleCount, ShouldEqual, 50)
			})
		})

		Convey("When messages arrive after the backlog is closed", func() {
			sub.Stop()
			sub.receive(&fakeMessage{topic: defaultTopic, payload: payload("left-4", 2, 0)})

			Convey("Then they are refused with a negative ack", func() {
				acks := pub.acks()
				So(acks, ShouldHaveLength, 1)
				So(acks[0].OK, ShouldBeFalse)
				So(acks[0].Message, ShouldStartWith, "busy")
			})
		})
	})
}

func TestSubscriber_Options(t *testing.T) {
	Convey("Given default options", t, func() {
		sub := New(nil)

		So(sub.broker, ShouldEqual, defaultBroker)
		So(sub.topic, ShouldEqual, defaultTopic)
		So(sub.qos, ShouldEqual, byte(1))

		Convey("When invalid overrides are passed", func() {
			sub := New(nil, WithQoS(7), WithTimeout(-time.Second), WithBroker("  "), WithClientID(""))

			Convey("Then defaults are kept", func() {
				So(sub.qos, ShouldEqual, byte(1))
				So(sub.timeout, ShouldEqual, defaultTimeout)
				So(sub.broker, ShouldEqual, defaultBroker)
				So(sub.clientID, ShouldEqual, defaultClientID)
			})
		})

		Convey("When the worker pool is sized", func() {
			sub := New(nil, WithWorkers(8), WithQueueSize(16), WithWorkers(0), WithQueueSize(-1))

			Convey("Then only positive values are applied", func() {
				So(sub.workers, ShouldEqual, 8)
				So(sub.backlog, ShouldEqual, 16)
			})
		})
	})
}

func TestSessionKey(t *testing.T) {
	Convey("Given payloads naming the session in each accepted way", t, func() {
		cases := map[string]string{
			`{"file_name":"left-1.csv","data":[]}`:        "left-1.csv",
			`{"sessionId":"left-2","data":[]}`:            "left-2",
			`{"session_id":" right-3 ","data":[]}`:        "right-3",
			`{"sessionId":"left-4","session_id":"other"}`: "left-4",
			`not json`: "",
		}

		Convey("Then each partitions on the same id ingest uses", func() {
			for body, want := range cases {
				So(sessionKey([]byte(body)), ShouldEqual, want)
			}
		})
	})
}
