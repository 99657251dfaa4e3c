package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/gaitlog/internal/adapters/mq/queue"
	"github.com/okian/gaitlog/internal/adapters/mq/worker"
	logging "github.com/okian/gaitlog/pkg/logger"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
	wg   *sync.WaitGroup
}

func newRecorder(expect int) *recorder {
	wg := &sync.WaitGroup{}
	wg.Add(expect)
	return &recorder{fail: make(map[string]error), wg: wg}
}

func (r *recorder) Handle(_ context.Context, m queue.Message) error {
	r.mu.Lock()
	r.seen = append(r.seen, string(m.Payload))
	err := r.fail[string(m.Payload)]
	r.mu.Unlock()
	r.wg.Done()
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func waitFor(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func TestWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		rec := newRecorder(3)
		rec.fail["bad"] = errors.New("boom")
		w := worker.NewWorker(q, rec, worker.WithName("test"))
		go w.Run(ctx)

		convey.Convey("When messages are queued", func() {
			for _, p := range []string{"a", "bad", "c"} {
				convey.So(q.Enqueue(ctx, queue.Message{Payload: []byte(p)}), convey.ShouldBeNil)
			}

			convey.Convey("Then every message reaches the handler, failures included", func() {
				convey.So(waitFor(rec.wg, 2*time.Second), convey.ShouldBeTrue)
				convey.So(rec.count(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(ctx)

			convey.Convey("Then Run returns", func() {
				convey.So(err, convey.ShouldBeNil)
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					t.Fatal("worker did not stop")
				}
			})
		})
	})

	convey.Convey("Given a worker whose source closes", t, func() {
		q := queue.NewInMemoryQueue()
		w := worker.NewWorker(q, worker.HandlerFunc(func(context.Context, queue.Message) error { return nil }))
		go w.Run(context.Background())
		_ = q.Close()

		convey.Convey("Then the worker stops on its own", func() {
			select {
			case <-w.Done():
			case <-time.After(time.Second):
				t.Fatal("worker did not stop")
			}
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		rec := newRecorder(50)
		pool := worker.NewPool(4, q, rec, worker.WithLogger(logging.Get()))
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		for i := 0; i < 50; i++ {
			convey.So(q.Enqueue(ctx, queue.Message{Payload: []byte{byte(i)}}), convey.ShouldBeNil)
		}

		convey.Convey("When it is started and then shut down", func() {
			pool.Start(ctx)
			err := pool.Shutdown(ctx)

			convey.Convey("Then everything queued beforehand was handled", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.count(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a sharded pool over partitions", t, func() {
		ctx := context.Background()
		parts := queue.NewPartitioned(3, queue.WithCapacity(50))
		var (
			mu    sync.Mutex
			order = make(map[string][]byte)
		)
		wg := &sync.WaitGroup{}
		wg.Add(30)
		h := worker.HandlerFunc(func(_ context.Context, m queue.Message) error {
			mu.Lock()
			order[m.Key] = append(order[m.Key], m.Payload[0])
			mu.Unlock()
			wg.Done()
			return nil
		})
		sources := make([]worker.Source, 0, 3)
		for _, q := range parts.Partitions() {
			sources = append(sources, q)
		}
		pool := worker.NewShardedPool(sources, h)
		pool.Start(ctx)

		for i := 0; i < 30; i++ {
			key := []string{"a", "b", "c", "d", "e"}[i%5]
			convey.So(parts.Enqueue(ctx, queue.Message{Key: key, Payload: []byte{byte(i)}}), convey.ShouldBeNil)
		}

		convey.Convey("Then each key is handled in enqueue order", func() {
			convey.So(waitFor(wg, 2*time.Second), convey.ShouldBeTrue)
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			mu.Lock()
			defer mu.Unlock()
			convey.So(order, convey.ShouldHaveLength, 5)
			for _, seq := range order {
				convey.So(seq, convey.ShouldHaveLength, 6)
				for i := 1; i < len(seq); i++ {
					convey.So(seq[i], convey.ShouldBeGreaterThan, seq[i-1])
				}
			}
		})
	})

	convey.Convey("Given a pool sized from the CPU count", t, func() {
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), worker.HandlerFunc(func(context.Context, queue.Message) error { return nil }))
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
