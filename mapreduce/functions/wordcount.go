package functions

import (
	"fmt"
	"iter"
	"regexp"
	"slices"
	"strings"

	"wordfreq/mapreduce/types"
)

// ErrOverflow is returned when a count does not fit in a uint64.
var ErrOverflow = types.ErrOverflow

var (
	flatWordRe = regexp.MustCompile(`[\w']+`)
	rankWordRe = regexp.MustCompile(`\w+`)
)

// Tokenizer splits lines into lower-cased tokens.
type Tokenizer struct {
	re        *regexp.Regexp
	minLength int
}

// NewTokenizer returns a Tokenizer that emits every match of re that is at
// least minLength bytes long. A minLength below 1 is treated as 1.
func NewTokenizer(re *regexp.Regexp, minLength int) Tokenizer {
	return Tokenizer{re: re, minLength: max(minLength, 1)}
}

// FlatTokenizer matches runs of word characters and apostrophes and keeps
// single character tokens.
func FlatTokenizer() Tokenizer {
	return NewTokenizer(flatWordRe, 1)
}

// RankTokenizer matches runs of word characters and drops tokens of two
// characters or less.
func RankTokenizer() Tokenizer {
	return NewTokenizer(rankWordRe, 3)
}

// TokenizerFor returns the default tokenizer of the variant. If minLength is
// positive it overrides the variant's threshold.
func TokenizerFor(v types.Variant, minLength int) Tokenizer {
	t := FlatTokenizer()
	if v == types.RankedCount {
		t = RankTokenizer()
	}
	if minLength > 0 {
		t.minLength = minLength
	}
	return t
}

// MinLength returns the shortest token length that is emitted.
func (t Tokenizer) MinLength() int {
	return t.minLength
}

// Tokens returns the tokens of line. The sequence can be ranged over any
// number of times.
func (t Tokenizer) Tokens(line string) iter.Seq[types.Token] {
	return func(yield func(types.Token) bool) {
		for _, loc := range t.re.FindAllStringIndex(line, -1) {
			if loc[1]-loc[0] < t.minLength {
				continue
			}
			if !yield(strings.ToLower(line[loc[0]:loc[1]])) {
				return
			}
		}
	}
}

// Map emits {token, 1} for every token on every line of contents.
func (t Tokenizer) Map(contents string) iter.Seq[types.KeyValue] {
	return func(yield func(types.KeyValue) bool) {
		for line := range strings.Lines(contents) {
			for tok := range t.Tokens(line) {
				if !yield(types.KeyValue{Key: tok, Value: 1}) {
					return
				}
			}
		}
	}
}

// Add returns a+b, or ErrOverflow if the sum does not fit in a uint64.
func Add(a, b uint64) (uint64, error) {
	return types.AddCount(a, b)
}

// Combine sums the counts of key into a single record. It may be applied to
// any subset of the counts of a key without changing the final total.
func Combine(key types.Token, counts iter.Seq[uint64]) (types.KeyValue, error) {
	total, err := Reduce(key, counts)
	if err != nil {
		return types.KeyValue{}, err
	}
	return types.KeyValue{Key: key, Value: total}, nil
}

// Reduce returns the total of all counts contributed for key.
func Reduce(key types.Token, counts iter.Seq[uint64]) (uint64, error) {
	var total uint64
	var err error
	for c := range counts {
		if total, err = Add(total, c); err != nil {
			return 0, fmt.Errorf("token %q: %w", key, err)
		}
	}
	return total, nil
}

// Aggregate folds map output into a PartialCount.
func Aggregate(kvs iter.Seq[types.KeyValue]) (types.PartialCount, error) {
	partial := make(types.PartialCount)
	for kv := range kvs {
		sum, err := Add(partial[kv.Key], kv.Value)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", kv.Key, err)
		}
		partial[kv.Key] = sum
	}
	return partial, nil
}

// Entries re-keys the totals as (count, word) pairs.
func Entries(wc types.WordCount) iter.Seq[types.RankedEntry] {
	return func(yield func(types.RankedEntry) bool) {
		for word, count := range wc {
			if !yield(types.RankedEntry{Count: count, Word: word}) {
				return
			}
		}
	}
}

// Rank sorts entries by count descending, ties broken by word descending.
func Rank(entries iter.Seq[types.RankedEntry]) []types.RankedEntry {
	ranked := slices.Collect(entries)
	slices.SortFunc(ranked, func(a, b types.RankedEntry) int {
		return b.Compare(a)
	})
	return ranked
}
