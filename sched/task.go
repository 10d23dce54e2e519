package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// TaskFunc is the body of a fork-join task.
type TaskFunc func(input any) any

// TaskFlags carries the reserved flags word from produce()'s signature
// in spec.md §4.2. No bit is currently interpreted; it is threaded
// through untouched so a future flag (e.g. a priority hint) has
// somewhere to live without another signature change.
type TaskFlags uint32

// TaskStats records a task's timing: when it was
// handed to the queue, when a worker actually began running it, and
// when it completed, so callers can compute both queueing delay and
// service time.
type TaskStats struct {
	Enqueued    time.Time
	Started     time.Time
	Completed   time.Time
	WaiterStart time.Time
	WaiterEnd   time.Time
}

// Task is a single unit of work submitted to a TaskQueue. A Task must
// run at most once concurrently: running is set by CompareAndSwap when
// a worker picks it up and stored back to false on completion, so a bug that
// tried to hand the same Task to two workers would be caught rather
// than silently racing. CPU records which per-CPU queue produced it,
// and Detached reports whether a caller is permitted to Wait on it,
// the task-layer analogue of a detached thread's unjoinability.
type Task struct {
	fn       TaskFunc
	input    any
	output   any
	err      error
	cpu      int
	flags    TaskFlags
	detached bool

	running atomic.Bool
	done    chan struct{}
	stats   TaskStats
}

// CPU returns the id of the CPU whose queue this task was produced on.
func (t *Task) CPU() int { return t.cpu }

// Detached reports whether this task was produced detached: Wait
// rejects a detached task with kernel.NotJoinable, mirroring
// sched.Thread.Detached/Scheduler.Join.
func (t *Task) Detached() bool { return t.detached }

// cpuTaskQueue is one CPU's own pending list and worker pool. Workers
// only ever pop from this list, never another CPU's, which is what
// makes "a task cannot be consumed from two CPUs" a structural
// property rather than a convention: there is no shared pending list
// for a second CPU's workers to reach into.
type cpuTaskQueue struct {
	id int

	sem *semaphore.Weighted

	mu      sync.Mutex
	pending []*Task
	notify  chan struct{}

	ctx context.Context
	wg  *sync.WaitGroup
}

// TaskQueue is the fork-join task layer of spec.md §4.2: one
// cpuTaskQueue per simulated CPU, each with its own bounded worker
// pool so concurrency is bounded per CPU the way the original bounds
// it per per-CPU worker thread, via golang.org/x/sync/semaphore rather
// than an unbounded goroutine-per-task pool.
type TaskQueue struct {
	queues map[int]*cpuTaskQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskQueue starts workersPerCPU workers draining each of numCPUs
// per-CPU queues (ids 0..numCPUs-1), each bounded by its own
// semaphore so at most workersPerCPU tasks run concurrently per CPU.
func NewTaskQueue(numCPUs, workersPerCPU int) *TaskQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &TaskQueue{
		queues: make(map[int]*cpuTaskQueue, numCPUs),
		ctx:    ctx,
		cancel: cancel,
	}
	for id := 0; id < numCPUs; id++ {
		cq := &cpuTaskQueue{
			id:     id,
			sem:    semaphore.NewWeighted(int64(workersPerCPU)),
			notify: make(chan struct{}, 1),
			ctx:    ctx,
			wg:     &q.wg,
		}
		q.queues[id] = cq
		for i := 0; i < workersPerCPU; i++ {
			q.wg.Add(1)
			go cq.workerLoop()
		}
	}
	return q
}

// Produce submits fn(input) to cpu's queue for asynchronous execution
// on a worker bound to that queue, matching spec.md §4.2's
// produce(cpu, flags, fn, arg, detached) -> Task. It fails with
// kernel.BadParameter if cpu names a CPU this queue was not built
// with. flags is carried on the Task but not otherwise interpreted.
func (q *TaskQueue) Produce(cpu int, flags TaskFlags, fn TaskFunc, arg any, detached bool) (*Task, error) {
	cq, ok := q.queues[cpu]
	if !ok {
		return nil, kernel.New("sched.TaskQueue.Produce", kernel.BadParameter)
	}
	t := &Task{fn: fn, input: arg, cpu: cpu, flags: flags, detached: detached, done: make(chan struct{})}
	t.stats.Enqueued = time.Now()

	cq.mu.Lock()
	cq.pending = append(cq.pending, t)
	cq.mu.Unlock()

	select {
	case cq.notify <- struct{}{}:
	default:
	}
	return t, nil
}

func (cq *cpuTaskQueue) workerLoop() {
	defer cq.wg.Done()
	for {
		t := cq.popNext()
		if t == nil {
			select {
			case <-cq.ctx.Done():
				return
			case <-cq.notify:
				continue
			}
		}
		if err := cq.sem.Acquire(cq.ctx, 1); err != nil {
			return
		}
		cq.runTask(t)
		cq.sem.Release(1)
	}
}

func (cq *cpuTaskQueue) popNext() *Task {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	if len(cq.pending) == 0 {
		return nil
	}
	t := cq.pending[0]
	cq.pending = cq.pending[1:]
	return t
}

func (cq *cpuTaskQueue) runTask(t *Task) {
	if !t.running.CompareAndSwap(false, true) {
		panic(kernel.New("sched.cpuTaskQueue.runTask", kernel.Conflict))
	}
	t.stats.Started = time.Now()
	t.output = t.fn(t.input)
	t.stats.Completed = time.Now()
	t.running.Store(false)
	close(t.done)
}

// Wait blocks until t completes and returns its output, recording the
// waiter's own start/end timestamps alongside the enqueue/start/
// completion timestamps runTask stamped. It fails with
// kernel.NotJoinable if t was produced detached.
func (q *TaskQueue) Wait(t *Task) (any, error) {
	if t.detached {
		return nil, kernel.New("sched.TaskQueue.Wait", kernel.NotJoinable)
	}
	t.stats.WaiterStart = time.Now()
	<-t.done
	t.stats.WaiterEnd = time.Now()
	return t.output, nil
}

// Stats returns t's timing, valid only after Wait has returned (or, for
// a detached task, once its done channel has closed).
func (t *Task) Stats() TaskStats { return t.stats }

// PendingLen reports how many tasks are queued but not yet started on
// cpu's queue. Tests use it to confirm a task really only ever sits
// on its own CPU's queue.
func (q *TaskQueue) PendingLen(cpu int) int {
	cq, ok := q.queues[cpu]
	if !ok {
		return 0
	}
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.pending)
}

// Close stops every CPU's workers and waits for in-flight tasks to
// drain. Queued-but-not-yet-started tasks are abandoned. Produce does
// not check whether the queue is closed: a task produced after Close
// is queued but never runs.
func (q *TaskQueue) Close() {
	q.cancel()
	q.wg.Wait()
}
