package taskmgr

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// HandlerFunc processes one task with the context of the queue it was
// queued on.
type HandlerFunc[C, T any] func(ctx context.Context, queueCtx C, task T) error

type queue struct {
	running bool
	tasks   list.List
}

// TaskManager runs tasks grouped into named queues. Tasks of one queue run
// one after another, different queues run concurrently, so the number of
// queues bounds the parallelism. A queue that runs out of its own tasks
// takes the next one from the shared queue.
type TaskManager[C, T any] struct {
	mutex    sync.Mutex
	contexts map[string]C
	queues   map[string]*queue
	shared   list.List
	handler  HandlerFunc[C, T]
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	errs     []error
	wg       sync.WaitGroup
}

// NewTaskManager creates a TaskManager that runs every task with handler.
func NewTaskManager[C, T any](handler HandlerFunc[C, T]) *TaskManager[C, T] {
	return &TaskManager[C, T]{
		contexts: make(map[string]C),
		queues:   make(map[string]*queue),
		handler:  handler,
	}
}

// AddContext sets the context handed to every task of queue key.
func (t *TaskManager[C, T]) AddContext(key string, ctx C) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.contexts[key] = ctx
	if _, ok := t.queues[key]; !ok {
		t.queues[key] = &queue{}
	}
}

// AddTask appends task to queue key. It may be called while Run is in
// progress, e.g. from a handler.
func (t *TaskManager[C, T]) AddTask(key string, task T) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	q, ok := t.queues[key]
	if !ok {
		q = &queue{}
		t.queues[key] = q
	}
	q.tasks.PushBack(task)
	if t.running && !q.running {
		t.startQueue(key, q)
	}
}

// AddSharedTask appends task to the shared queue, which is drained by every
// queue that has a context. It may be called while Run is in progress.
func (t *TaskManager[C, T]) AddSharedTask(task T) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.shared.PushBack(task)
	if !t.running {
		return
	}
	for key, q := range t.queues {
		if _, ok := t.contexts[key]; ok && !q.running {
			t.startQueue(key, q)
		}
	}
}

// startQueue must be called with the mutex held.
func (t *TaskManager[C, T]) startQueue(key string, q *queue) {
	q.running = true
	t.wg.Add(1)
	go t.runQueue(key, q)
}

// next pops the next task of q, falling back to the shared queue for queues
// with a context. It must be called with the mutex held.
func (t *TaskManager[C, T]) next(key string, q *queue) (T, bool) {
	if q.tasks.Len() > 0 {
		return q.tasks.Remove(q.tasks.Front()).(T), true
	}
	if _, ok := t.contexts[key]; ok && t.shared.Len() > 0 {
		return t.shared.Remove(t.shared.Front()).(T), true
	}
	var zero T
	return zero, false
}

func (t *TaskManager[C, T]) fail(err error) {
	t.mutex.Lock()
	t.errs = append(t.errs, err)
	t.mutex.Unlock()
	t.cancel()
}

func (t *TaskManager[C, T]) runQueue(key string, q *queue) {
	defer t.wg.Done()
	t.mutex.Lock()
	qctx := t.contexts[key]
	for {
		var task T
		ok := t.ctx.Err() == nil
		if ok {
			task, ok = t.next(key, q)
		}
		if !ok {
			q.running = false
			t.mutex.Unlock()
			return
		}
		t.mutex.Unlock()
		if err := t.handler(t.ctx, qctx, task); err != nil {
			t.fail(err)
		}
		t.mutex.Lock()
	}
}

// Run runs all queued tasks and blocks until every queue is drained. The
// first failing task cancels the remaining ones. The returned error joins
// all task errors, or is ctx's error if ctx was cancelled.
func (t *TaskManager[C, T]) Run(ctx context.Context) error {
	t.mutex.Lock()
	t.ctx, t.cancel = context.WithCancel(ctx)
	defer t.cancel()
	t.errs = nil
	t.running = true
	for key, q := range t.queues {
		_, hasContext := t.contexts[key]
		if q.running || (q.tasks.Len() == 0 && !(hasContext && t.shared.Len() > 0)) {
			continue
		}
		t.startQueue(key, q)
	}
	t.mutex.Unlock()

	t.wg.Wait()
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.running = false
	if len(t.errs) == 0 && ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Join(t.errs...)
}
