package tracking

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/race-service/internal/metrics"
)

// Dispatcher runs fire-and-forget persistence tasks on a small worker pool.
// Submitting never blocks: when the queue is full the task is dropped and
// counted. Failures are logged and swallowed. Tasks submitted with the same
// key run on one worker, in submission order.
type Dispatcher struct {
	queues  []chan task // one per worker
	next    atomic.Uint32
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type task struct {
	op string
	fn func(ctx context.Context) error
}

func NewDispatcher(workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	perWorker := (queueSize + workers - 1) / workers

	d := &Dispatcher{
		queues:  make([]chan task, workers),
		timeout: timeout,
	}
	d.wg.Add(workers)
	for i := range d.queues {
		d.queues[i] = make(chan task, perWorker)
		go d.worker(d.queues[i])
	}
	return d
}

// Go enqueues fn under the operation name op on the next worker.
func (d *Dispatcher) Go(op string, fn func(ctx context.Context) error) bool {
	i := int(d.next.Add(1)-1) % len(d.queues)
	return d.submit(i, op, fn)
}

// GoKeyed enqueues fn behind every earlier task with the same key.
func (d *Dispatcher) GoKeyed(key, op string, fn func(ctx context.Context) error) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return d.submit(int(h.Sum32()%uint32(len(d.queues))), op, fn)
}

func (d *Dispatcher) submit(i int, op string, fn func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.PersistTasks.WithLabelValues(op, "dropped").Inc()
		slog.Warn("persist task dropped: dispatcher closed", "op", op)
		return false
	}

	select {
	case d.queues[i] <- task{op: op, fn: fn}:
		metrics.PersistQueueDepth.Inc()
		return true
	default:
		metrics.PersistTasks.WithLabelValues(op, "dropped").Inc()
		slog.Warn("persist task dropped: queue full", "op", op)
		return false
	}
}

// Close stops accepting tasks and waits until queued ones finish or ctx
// expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(queue <-chan task) {
	defer d.wg.Done()

	for t := range queue {
		metrics.PersistQueueDepth.Dec()
		d.run(t)
	}
}

func (d *Dispatcher) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.PersistTasks.WithLabelValues(t.op, "error").Inc()
			slog.Error("persist task panic", "op", t.op, "panic", r)
		}
	}()

	start := time.Now()
	err := t.fn(ctx)
	if err != nil {
		metrics.PersistTasks.WithLabelValues(t.op, "error").Inc()
		lvl := slog.LevelWarn
		if errors.Is(err, context.DeadlineExceeded) {
			lvl = slog.LevelError
		}
		slog.Log(ctx, lvl, "persist task failed", "op", t.op, "dur_ms", time.Since(start).Milliseconds(), "err", err)
		return
	}
	metrics.PersistTasks.WithLabelValues(t.op, "ok").Inc()
}
