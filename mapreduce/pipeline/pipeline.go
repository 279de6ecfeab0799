package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"wordfreq/mapreduce/functions"
	"wordfreq/mapreduce/taskmgr"
	"wordfreq/mapreduce/types"
)

// Job runs one word count variant over a set of shards.
type Job struct {
	Variant types.Variant
	// MinLength overrides the variant's minimum token length when positive.
	MinLength int
	// Workers bounds the number of shards mapped concurrently.
	Workers int
	// NoCombine submits raw {token, 1} records instead of per-shard sums.
	NoCombine bool
	// MaxDistinct limits the number of distinct tokens, 0 means no limit.
	MaxDistinct int
	// Top keeps only the first Top ranked entries, 0 keeps all.
	Top int

	logger    *log.Logger
	logPrefix string
	verbose   bool
}

// Result is the terminal output of a job.
type Result struct {
	Variant types.Variant
	Counts  types.WordCount
	// Ranked is only set for RankedCount.
	Ranked []types.RankedEntry
	// Tokens is the number of tokens produced by the tokenizer.
	Tokens  uint64
	Shards  int
	Elapsed time.Duration
}

// Records returns the output records: by word for FlatCount, in rank order
// for RankedCount.
func (r *Result) Records() []types.KeyValue {
	if r.Variant == types.RankedCount {
		kvs := make([]types.KeyValue, 0, len(r.Ranked))
		for _, e := range r.Ranked {
			kvs = append(kvs, types.KeyValue{Key: e.Word, Value: e.Count})
		}
		return kvs
	}
	kvs := make([]types.KeyValue, 0, len(r.Counts))
	for word, count := range r.Counts {
		kvs = append(kvs, types.KeyValue{Key: word, Value: count})
	}
	slices.SortFunc(kvs, func(a, b types.KeyValue) int {
		return strings.Compare(a.Key, b.Key)
	})
	return kvs
}

// NewJob creates a job for variant v with default settings.
func NewJob(v types.Variant) *Job {
	return &Job{
		Variant:   v,
		Workers:   runtime.NumCPU(),
		logger:    log.Default(),
		logPrefix: "[pipeline]",
	}
}

// SetLogger sets the logger of the job.
func (j *Job) SetLogger(l *log.Logger) {
	j.logger = l
}

// SetLogPrefix sets the prefix of the log messages.
func (j *Job) SetLogPrefix(prefix string) {
	j.logPrefix = prefix
}

// SetVerbose enables per shard log messages.
func (j *Job) SetVerbose(verbose bool) {
	j.verbose = verbose
}

func (j *Job) printLog(format string, a ...any) {
	if j.logger == nil {
		return
	}
	buf := bytes.NewBufferString(j.logPrefix)
	buf.WriteByte(' ')
	fmt.Fprintf(buf, format, a...)
	j.logger.Print(buf.String())
}

type worker struct {
	id        string
	tokenizer functions.Tokenizer
	reducer   *Reducer
	tokens    *atomic.Uint64
}

// mapContents emits the map output of contents and stops early once ctx
// is done.
func mapContents(ctx context.Context, t functions.Tokenizer, contents string) iter.Seq[types.KeyValue] {
	return func(yield func(types.KeyValue) bool) {
		for line := range strings.Lines(contents) {
			if ctx.Err() != nil {
				return
			}
			for kv := range t.Map(line) {
				if !yield(kv) {
					return
				}
			}
		}
	}
}

func (j *Job) mapShard(ctx context.Context, w *worker, shard Shard) error {
	contents, err := shard.Read()
	if err != nil {
		return err
	}
	var tokens uint64
	kvs := func(yield func(types.KeyValue) bool) {
		for kv := range mapContents(ctx, w.tokenizer, contents) {
			tokens++
			if !yield(kv) {
				return
			}
		}
	}
	var partial Partial
	if j.NoCombine {
		partial = RawPartial(shard.Name(), slices.Collect(iter.Seq[types.KeyValue](kvs)))
	} else {
		counts, err := functions.Aggregate(kvs)
		if err != nil {
			return fmt.Errorf("combine %s: %w", shard.Name(), err)
		}
		partial = CombinedPartial(shard.Name(), counts)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.reducer.Submit(ctx, partial); err != nil {
		return err
	}
	w.tokens.Add(tokens)
	if j.verbose {
		j.printLog("worker %s mapped shard %s: %d tokens", w.id, shard.Name(), tokens)
	}
	return nil
}

// Count runs the tokenize, combine and reduce stages and returns the final
// per-token totals along with the number of tokens seen.
func (j *Job) Count(ctx context.Context, shards []Shard) (types.WordCount, uint64, error) {
	workers := max(j.Workers, 1)
	tokenizer := functions.TokenizerFor(j.Variant, j.MinLength)
	reducer := NewReducer(j.MaxDistinct, workers)
	var tokens atomic.Uint64

	mgr := taskmgr.NewTaskManager[*worker, Shard](j.mapShard)
	for i := range workers {
		id := fmt.Sprintf("worker-%d", i)
		mgr.AddContext(id, &worker{
			id:        id,
			tokenizer: tokenizer,
			reducer:   reducer,
			tokens:    &tokens,
		})
	}
	// idle workers pick up the next shard, a slow shard holds up only its own worker
	for _, shard := range shards {
		mgr.AddSharedTask(shard)
	}
	if err := mgr.Run(ctx); err != nil {
		reducer.Abort(err)
		return nil, 0, err
	}
	counts, err := reducer.Close().Wait(ctx)
	if err != nil {
		reducer.Abort(err)
		return nil, 0, err
	}
	return counts, tokens.Load(), nil
}

// Rank orders counts by count descending, ties by word descending, and
// applies the Top limit.
func (j *Job) Rank(counts types.WordCount) []types.RankedEntry {
	ranked := functions.Rank(functions.Entries(counts))
	if j.Top > 0 && len(ranked) > j.Top {
		ranked = ranked[:j.Top]
	}
	return ranked
}

// Run runs the job. For RankedCount the rank stage starts only after every
// shard has been merged.
func (j *Job) Run(ctx context.Context, shards []Shard) (*Result, error) {
	start := time.Now()
	j.printLog("job %s started: %d shards, %d workers", j.Variant, len(shards), max(j.Workers, 1))
	counts, tokens, err := j.Count(ctx, shards)
	if err != nil {
		j.printLog("job %s failed: %v", j.Variant, err)
		return nil, err
	}
	res := &Result{
		Variant: j.Variant,
		Counts:  counts,
		Tokens:  tokens,
		Shards:  len(shards),
	}
	if j.Variant == types.RankedCount {
		res.Ranked = j.Rank(counts)
	}
	res.Elapsed = time.Since(start)
	j.printLog("job %s finished in %v: %d tokens, %d distinct", j.Variant, res.Elapsed, tokens, len(counts))
	return res, nil
}
