package types

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func TestTotal(t *testing.T) {
	total, err := WordCount{"the": 3, "cat": 2}.Total()
	if err != nil || total != 5 {
		t.Fatalf("Total() = %d, %v; expected 5", total, err)
	}
	if total, err := (WordCount{}).Total(); err != nil || total != 0 {
		t.Fatalf("empty Total() = %d, %v; expected 0", total, err)
	}
}

func TestTotalOverflow(t *testing.T) {
	_, err := WordCount{"a": math.MaxUint64, "b": 1}.Total()
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("Total() error = %v; expected ErrOverflow", err)
	}
}

func TestRankedEntryCompare(t *testing.T) {
	entries := []RankedEntry{{2, "cat"}, {3, "the"}, {2, "sat"}, {1, "mat"}}
	slices.SortFunc(entries, RankedEntry.Compare)
	want := []RankedEntry{{1, "mat"}, {2, "cat"}, {2, "sat"}, {3, "the"}}
	if !slices.Equal(entries, want) {
		t.Fatalf("sorted entries = %v; expected %v", entries, want)
	}
}
