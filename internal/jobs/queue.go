package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MimeLyc/latexmt-web/pkg/log"
)

var ErrQueueStopped = errors.New("queue is stopped")

type Executor func(ctx context.Context, task Task) error

// Queue hands submitted tasks to a fixed set of worker goroutines. Submit
// never waits for a task to run.
type Queue struct {
	workerCount int
	logger      *log.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	pending  chan Task
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	active   atomic.Int64
}

func NewQueue(workerCount int, logger *log.Logger) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Queue{
		workerCount: workerCount,
		logger:      logger.With("component", "queue"),
		pending:     make(chan Task, 1024),
		stopCh:      make(chan struct{}),
	}
}

// Submit schedules a task. Tasks submitted before Start run once workers are up.
func (q *Queue) Submit(task Task) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return ErrQueueStopped
	}

	select {
	case q.pending <- task:
	default:
		go func() {
			select {
			case q.pending <- task:
			case <-q.stopCh:
			}
		}()
	}
	return nil
}

func (q *Queue) Start(ctx context.Context, exec Executor) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i, exec)
	}
	q.logger.Info("Queue started", "workers", q.workerCount)
}

// Stop stops accepting tasks and waits for running tasks to return.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(q.stopCh)
		q.wg.Wait()
	})
}

// Active reports how many tasks are executing right now.
func (q *Queue) Active() int {
	return int(q.active.Load())
}

func (q *Queue) worker(ctx context.Context, n int, exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case task := <-q.pending:
			q.active.Add(1)
			if err := q.run(ctx, exec, task); err != nil {
				q.logger.Error("Job failed", "worker", n, "job", task.JobID, "error", err)
			}
			q.active.Add(-1)
		}
	}
}

func (q *Queue) run(ctx context.Context, exec Executor, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return exec(ctx, task)
}
