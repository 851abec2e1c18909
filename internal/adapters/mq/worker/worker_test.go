package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/mq/queue"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/mq/worker"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu    sync.Mutex
	users []int64
	fail  map[int64]bool
}

func (r *recorder) Process(_ context.Context, j queue.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[j.UserID] {
		return errors.New("replay failed")
	}
	r.users = append(r.users, j.UserID)
	return nil
}

func (r *recorder) seen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func TestPool(t *testing.T) {
	Convey("Given a pool draining a closed queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		rec := &recorder{fail: map[int64]bool{13: true}}
		pool := worker.NewPool(4, q, rec, worker.WithLogger(logger.Nop()))

		for id := int64(1); id <= 40; id++ {
			So(q.Enqueue(ctx, queue.NewJob(queue.KindReplay, id)), ShouldBeTrue)
		}
		So(q.Close(), ShouldBeNil)
		pool.Start(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := pool.Wait(waitCtx)

		Convey("Then every job is processed once and failures are counted", func() {
			So(err, ShouldBeNil)
			So(rec.seen(), ShouldEqual, 39)
			st := pool.Stats()
			So(st.Workers, ShouldEqual, 4)
			So(st.Processed, ShouldEqual, 39)
			So(st.Failed, ShouldEqual, 1)
		})
	})

	Convey("Given a running pool on an open queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue()
		rec := &recorder{}
		pool := worker.NewPool(2, q, rec, worker.WithLogger(logger.Nop()))
		pool.Start(ctx)
		So(q.Enqueue(ctx, queue.NewJob(queue.KindRecompute, 5)), ShouldBeTrue)

		Convey("When it is shut down", func() {
			deadline := time.Now().Add(2 * time.Second)
			for rec.seen() == 0 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			err := pool.Shutdown(ctx)

			Convey("Then the queue is closed and workers stop", func() {
				So(err, ShouldBeNil)
				So(q.IsClosed(), ShouldBeTrue)
				So(rec.seen(), ShouldEqual, 1)
				So(pool.Wait(ctx), ShouldBeNil)
			})
		})
	})
}

func TestWorkerShutdownOnContext(t *testing.T) {
	Convey("Given a worker whose context is cancelled", t, func() {
		q := queue.NewInMemoryQueue()
		w := worker.New(q, worker.ProcessorFunc(func(context.Context, queue.Job) error { return nil }),
			worker.WithLogger(logger.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(done)
		}()
		cancel()

		Convey("Then Run returns and Shutdown succeeds", func() {
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				So("worker did not stop", ShouldBeEmpty)
			}
			So(w.Shutdown(context.Background()), ShouldBeNil)
		})
	})
}
