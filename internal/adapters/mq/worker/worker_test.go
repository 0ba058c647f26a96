package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/tourney/internal/adapters/mq/queue"
	"github.com/okian/tourney/internal/adapters/mq/worker"
	logging "github.com/okian/tourney/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockSource struct {
	jobs chan worker.Job
	once sync.Once
}

func newMockSource() *mockSource {
	return &mockSource{jobs: make(chan worker.Job, 16)}
}

func (m *mockSource) Dequeue(context.Context) <-chan worker.Job { return m.jobs }

func (m *mockSource) Close() error {
	m.once.Do(func() { close(m.jobs) })
	return nil
}

// mockProcessor fails the first failures[matchID] attempts for a match.
type mockProcessor struct {
	mu        sync.Mutex
	failures  map[string]int
	permanent map[string]bool
	attempts  map[string][]int
	done      map[string]bool
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{
		failures:  map[string]int{},
		permanent: map[string]bool{},
		attempts:  map[string][]int{},
		done:      map[string]bool{},
	}
}

func (m *mockProcessor) Process(_ context.Context, job worker.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[job.MatchID] = append(m.attempts[job.MatchID], job.Attempt)
	if m.permanent[job.MatchID] {
		return worker.Permanent(errors.New("invalid outcome"))
	}
	if m.failures[job.MatchID] > 0 {
		m.failures[job.MatchID]--
		return errors.New("version conflict")
	}
	m.done[job.MatchID] = true
	return nil
}

func (m *mockProcessor) isDone(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[id]
}

func (m *mockProcessor) attemptsFor(id string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.attempts[id]...)
}

type deadLetters struct {
	mu   sync.Mutex
	jobs []worker.Job
}

func (d *deadLetters) add(_ context.Context, j worker.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, j)
}

func (d *deadLetters) list() []worker.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]worker.Job(nil), d.jobs...)
}

func TestWorkerHandle(t *testing.T) {
	convey.Convey("Given a worker with three attempts and no backoff", t, func() {
		_ = logging.Init()
		proc := newMockProcessor()
		dl := &deadLetters{}
		w := worker.NewInMemoryWorker(newMockSource(), proc,
			worker.WithName("test-worker"),
			worker.WithMaxAttempts(3),
			worker.WithBackoff(0),
			worker.WithDeadLetter(dl.add),
		)
		ctx := context.Background()

		convey.Convey("When the job succeeds on the second attempt", func() {
			proc.failures["m1"] = 1
			err := w.Handle(ctx, worker.Job{MatchID: "m1"})

			convey.Convey("Then it is retried and not dead-lettered", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(proc.attemptsFor("m1"), convey.ShouldResemble, []int{1, 2})
				convey.So(dl.list(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the job keeps failing", func() {
			proc.failures["m2"] = 10
			err := w.Handle(ctx, worker.Job{MatchID: "m2"})

			convey.Convey("Then it is dead-lettered with its last error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(proc.attemptsFor("m2"), convey.ShouldResemble, []int{1, 2, 3})
				convey.So(dl.list(), convey.ShouldHaveLength, 1)
				convey.So(dl.list()[0].Attempt, convey.ShouldEqual, 3)
				convey.So(dl.list()[0].LastError, convey.ShouldEqual, "version conflict")
			})
		})

		convey.Convey("When the failure is permanent", func() {
			proc.permanent["m3"] = true
			err := w.Handle(ctx, worker.Job{MatchID: "m3"})

			convey.Convey("Then it is not retried", func() {
				convey.So(errors.Is(err, worker.ErrPermanent), convey.ShouldBeTrue)
				convey.So(proc.attemptsFor("m3"), convey.ShouldResemble, []int{1})
				convey.So(dl.list(), convey.ShouldHaveLength, 1)
			})
		})

		convey.Convey("When a re-enqueued job already used attempts", func() {
			proc.failures["m4"] = 10
			_ = w.Handle(ctx, worker.Job{MatchID: "m4", Attempt: 2})

			convey.Convey("Then counting continues from there", func() {
				convey.So(proc.attemptsFor("m4"), convey.ShouldResemble, []int{3})
			})
		})
	})

	convey.Convey("Given a long backoff and a cancelled context", t, func() {
		_ = logging.Init()
		proc := newMockProcessor()
		proc.failures["m5"] = 1
		dl := &deadLetters{}
		w := worker.NewInMemoryWorker(newMockSource(), proc,
			worker.WithBackoff(time.Hour), worker.WithDeadLetter(dl.add))
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		err := w.Handle(ctx, worker.Job{MatchID: "m5"})

		convey.Convey("Then the wait is abandoned and the job kept for later", func() {
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			convey.So(dl.list(), convey.ShouldHaveLength, 1)
		})
	})
}

func TestWorkerRun(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		_ = logging.Init()
		src := newMockSource()
		proc := newMockProcessor()
		w := worker.NewInMemoryWorker(src, proc, worker.WithBackoff(0))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job arrives", func() {
			src.jobs <- worker.Job{MatchID: "m1"}

			convey.Convey("Then it is processed", func() {
				convey.So(waitFor(func() bool { return proc.isDone("m1") }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a worker whose source closes", t, func() {
		_ = logging.Init()
		src := newMockSource()
		w := worker.NewInMemoryWorker(src, newMockProcessor())
		finished := make(chan struct{})
		go func() {
			w.Run(context.Background())
			close(finished)
		}()
		_ = src.Close()

		convey.Convey("Then the worker stops", func() {
			select {
			case <-finished:
			case <-time.After(time.Second):
				convey.So("worker still running", convey.ShouldBeEmpty)
			}
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of four workers on a real queue", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(200))
		proc := newMockProcessor()
		dl := &deadLetters{}
		pool := worker.NewPool(4, q, proc, worker.WithBackoff(0), worker.WithDeadLetter(dl.add))
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When many jobs are queued and the pool shuts down", func() {
			ids := make([]string, 100)
			for i := range ids {
				ids[i] = "m" + string(rune('A'+i%26)) + string(rune('a'+i/26))
				proc.failures[ids[i]] = i % 2
			}
			proc.permanent["bad"] = true
			for _, id := range append(ids, "bad") {
				convey.So(q.Enqueue(ctx, worker.Job{MatchID: id}), convey.ShouldBeTrue)
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued job is drained before the workers stop", func() {
				convey.So(err, convey.ShouldBeNil)
				for _, id := range ids {
					convey.So(proc.isDone(id), convey.ShouldBeTrue)
				}
				convey.So(dl.list(), convey.ShouldHaveLength, 1)
				convey.So(dl.list()[0].MatchID, convey.ShouldEqual, "bad")
			})
		})
	})

	convey.Convey("Given a pool with the default size", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, newMockSource(), newMockProcessor())

		convey.Convey("Then it has at least one worker", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
