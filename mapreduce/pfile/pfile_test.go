package pfile

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(name, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestRangesLineAligned(t *testing.T) {
	contents := "alpha beta\ngamma\n\ndelta epsilon zeta\nlast line without newline"
	p, err := Open(writeFile(t, contents))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	for _, chunkSize := range []int64{1, 3, 7, 16, 1 << 20} {
		ranges, err := p.Ranges(chunkSize)
		if err != nil {
			t.Fatal(err)
		}
		var rebuilt strings.Builder
		prevEnd := int64(0)
		for i, r := range ranges {
			if r[0] != prevEnd {
				t.Fatalf("chunkSize %d: range %d starts at %d; expected %d", chunkSize, i, r[0], prevEnd)
			}
			data, err := p.ReadPart(r[0], r[1])
			if err != nil {
				t.Fatal(err)
			}
			if i < len(ranges)-1 && !strings.HasSuffix(string(data), "\n") {
				t.Fatalf("chunkSize %d: range %d = %q does not end at a line break", chunkSize, i, data)
			}
			rebuilt.Write(data)
			prevEnd = r[1]
		}
		if rebuilt.String() != contents {
			t.Fatalf("chunkSize %d: ranges rebuild %q; expected %q", chunkSize, rebuilt.String(), contents)
		}
	}
}

func TestConcurrentReadPart(t *testing.T) {
	contents := strings.Repeat("0123456789", 100)
	p, err := Open(writeFile(t, contents))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := int64(i * 10)
			data, err := p.ReadPart(start, start+10)
			if err != nil {
				t.Error(err)
				return
			}
			if string(data) != "0123456789" {
				t.Errorf("part %d = %q", i, data)
			}
		}(i)
	}
	wg.Wait()
}

func TestReadPartErrors(t *testing.T) {
	p, err := Open(writeFile(t, "short"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.ReadPart(2, 100); err == nil {
		t.Fatal("read past end succeeded")
	}
	p.Close()
	if _, err := p.ReadPart(0, 1); err != ErrClosed {
		t.Fatalf("read after close = %v; expected ErrClosed", err)
	}
}

func TestIsText(t *testing.T) {
	tests := []struct {
		data []byte
		want bool
	}{
		{[]byte(""), true},
		{[]byte("plain ascii\n"), true},
		{[]byte("héllo wörld"), true},
		{[]byte("h\xc3"), true}, // rune cut by the sample boundary
		{[]byte("bin\x00ary"), false},
		{[]byte("bad \xff\xfe utf8 here"), false},
	}
	for _, tt := range tests {
		if got := IsText(tt.data); got != tt.want {
			t.Fatalf("IsText(%q) = %v; expected %v", tt.data, got, tt.want)
		}
	}
}

func TestIsTextFile(t *testing.T) {
	ok, err := IsTextFile(writeFile(t, "some words\n"))
	if err != nil || !ok {
		t.Fatalf("IsTextFile(text) = %v, %v; expected true", ok, err)
	}
	if _, err := IsTextFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("IsTextFile on a missing file succeeded")
	}
	tests := []struct {
		name     string
		contents string
		want     bool
	}{
		{"empty", "", true},
		{"nul in sample", "ab\x00cd", false},
		{"nul after sample", strings.Repeat("a", textSample) + "\x00", true},
	}
	for _, tt := range tests {
		if ok, err := IsTextFile(writeFile(t, tt.contents)); err != nil || ok != tt.want {
			t.Fatalf("IsTextFile(%s) = %v, %v; expected %v", tt.name, ok, err, tt.want)
		}
	}
}
