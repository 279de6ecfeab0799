package pipeline

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"wordfreq/mapreduce/functions"
	"wordfreq/mapreduce/types"
)

// Partial is the output of one shard submitted to the reducer.
type Partial struct {
	Shard   string
	Records iter.Seq[types.KeyValue]
}

// CombinedPartial wraps the per-shard aggregate of a combiner.
func CombinedPartial(shard string, counts types.PartialCount) Partial {
	return Partial{
		Shard: shard,
		Records: func(yield func(types.KeyValue) bool) {
			for k, v := range counts {
				if !yield(types.KeyValue{Key: k, Value: v}) {
					return
				}
			}
		},
	}
}

// RawPartial wraps uncombined map output.
func RawPartial(shard string, records []types.KeyValue) Partial {
	return Partial{Shard: shard, Records: slices.Values(records)}
}

// Future is resolved once with the final counts.
type Future struct {
	done   chan struct{}
	once   sync.Once
	counts types.WordCount
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(counts types.WordCount, err error) {
	f.once.Do(func() {
		f.counts, f.err = counts, err
		close(f.done)
	})
}

// Done is closed when the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is resolved or ctx is done.
func (f *Future) Wait(ctx context.Context) (types.WordCount, error) {
	select {
	case <-f.done:
		return f.counts, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reducer owns the global counts. Producers hand it partials with Submit;
// a single goroutine merges them one at a time, so a partial is either fully
// merged or not at all.
type Reducer struct {
	maxDistinct int
	submit      chan Partial
	abort       chan struct{}
	abortOnce   sync.Once
	abortErr    error
	failed      chan struct{}
	failErr     error
	future      *Future

	// held for reading while sending on submit and for writing on close
	mutex  sync.RWMutex
	closed bool
}

// NewReducer starts a reducer. If maxDistinct is positive, merging more
// distinct tokens than that fails with ErrResourceExhausted.
func NewReducer(maxDistinct int, backlog int) *Reducer {
	r := &Reducer{
		maxDistinct: maxDistinct,
		submit:      make(chan Partial, max(backlog, 0)),
		abort:       make(chan struct{}),
		failed:      make(chan struct{}),
		future:      newFuture(),
	}
	go r.run()
	return r
}

func (r *Reducer) run() {
	totals := make(types.WordCount)
	for {
		select {
		case <-r.abort:
			r.future.resolve(nil, r.abortErr)
			return
		case p, ok := <-r.submit:
			if !ok {
				r.future.resolve(totals, nil)
				return
			}
			if err := r.merge(totals, p); err != nil {
				// stop receiving, pending and later submits see failed
				r.failErr = err
				close(r.failed)
				r.future.resolve(nil, err)
				return
			}
		}
	}
}

// stopped returns the error that ended the reducer early, if any.
func (r *Reducer) stopped() error {
	select {
	case <-r.abort:
		return r.abortErr
	case <-r.failed:
		return r.failErr
	default:
		return nil
	}
}

// merge applies p to totals, or leaves totals untouched on error.
func (r *Reducer) merge(totals types.WordCount, p Partial) error {
	staged := make(map[types.Token]uint64)
	for kv := range p.Records {
		cur, ok := staged[kv.Key]
		if !ok {
			cur = totals[kv.Key]
		}
		sum, err := functions.Add(cur, kv.Value)
		if err != nil {
			return fmt.Errorf("merge %s: token %q: %w", p.Shard, kv.Key, err)
		}
		staged[kv.Key] = sum
	}
	if r.maxDistinct > 0 {
		distinct := len(totals)
		for k := range staged {
			if _, ok := totals[k]; !ok {
				distinct++
			}
		}
		if distinct > r.maxDistinct {
			return fmt.Errorf("merge %s: %d distinct tokens exceed the limit of %d: %w",
				p.Shard, distinct, r.maxDistinct, ErrResourceExhausted)
		}
	}
	maps.Copy(totals, staged)
	return nil
}

// Submit hands p to the reducer. p must not be modified afterwards. Once a
// merge has failed, Submit returns that error.
func (r *Reducer) Submit(ctx context.Context, p Partial) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.closed {
		return errReducerClosed
	}
	if err := r.stopped(); err != nil {
		return err
	}
	select {
	case r.submit <- p:
		return nil
	case <-r.abort:
		return r.abortErr
	case <-r.failed:
		return r.failErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends submissions. The returned future resolves after every
// submitted partial has been merged.
func (r *Reducer) Close() *Future {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.closed {
		r.closed = true
		close(r.submit)
	}
	return r.future
}

// Abort discards queued partials and resolves the future with err. Counts
// merged so far are dropped.
func (r *Reducer) Abort(err error) {
	r.abortOnce.Do(func() {
		r.abortErr = err
		close(r.abort)
	})
}

// Future returns the future of the reducer.
func (r *Reducer) Future() *Future {
	return r.future
}
