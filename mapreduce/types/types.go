package types

import (
	"cmp"
	"errors"
	"math/bits"
)

// ErrOverflow is returned when a count does not fit in a uint64.
var ErrOverflow = errors.New("count overflow")

// Token is a normalized (lower-cased) word.
type Token = string

// KeyValue is the record exchanged between the map, combine and reduce
// stages. A map emits {token, 1}, a combiner emits {token, partial sum}.
type KeyValue struct {
	Key   Token  `json:"word"`
	Value uint64 `json:"count"`
}

// PartialCount holds the counts of one shard. It is handed to the reducer
// once and must not be modified afterwards.
type PartialCount map[Token]uint64

// WordCount is the final per-token total.
type WordCount map[Token]uint64

// AddCount returns a+b, or ErrOverflow if the sum does not fit in a uint64.
func AddCount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Total returns the sum of all counts.
func (wc WordCount) Total() (uint64, error) {
	var total uint64
	for _, c := range wc {
		var err error
		if total, err = AddCount(total, c); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// RankedEntry is a (count, word) pair produced by the rank stage.
type RankedEntry struct {
	Count uint64
	Word  Token
}

// Compare orders entries the way a (count, word) tuple compares: by count
// first, then by word.
func (e RankedEntry) Compare(o RankedEntry) int {
	if c := cmp.Compare(e.Count, o.Count); c != 0 {
		return c
	}
	return cmp.Compare(e.Word, o.Word)
}

// Variant selects one of the two word count jobs.
type Variant uint8

const (
	// FlatCount counts every token, output order unspecified.
	FlatCount Variant = iota
	// RankedCount drops short tokens and sorts the totals by frequency.
	RankedCount
)

func (v Variant) String() string {
	switch v {
	case FlatCount:
		return "count"
	case RankedCount:
		return "rank"
	default:
		return "unknown"
	}
}
