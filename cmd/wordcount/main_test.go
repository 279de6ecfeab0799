package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wordfreq/mapreduce/pipeline"
)

const sample = "The cat sat.\nThe CAT sat on the mat.\n"

func writeInput(t *testing.T, dir, contents string) string {
	t.Helper()
	name := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(name, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return name
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	logger := log.New(io.Discard, "", 0)
	err := run(context.Background(), append([]string{"wordcount"}, args...), strings.NewReader(stdin), &stdout, logger)
	return stdout.String(), err
}

func TestCheckCommand(t *testing.T) {
	tests := []struct {
		args []string
		ok   bool
	}{
		{nil, false},
		{[]string{"count"}, false},
		{[]string{"count", "a.txt", "b.txt"}, true},
		{[]string{"rank", "-"}, true},
		{[]string{"decode"}, false},
		{[]string{"decode", "out.pb"}, true},
		{[]string{"upload", "x"}, false},
	}
	for _, tt := range tests {
		if err := checkCommand(tt.args); (err == nil) != tt.ok {
			t.Fatalf("checkCommand(%v) = %v; expected ok=%v", tt.args, err, tt.ok)
		}
	}
}

func TestCountCommand(t *testing.T) {
	input := writeInput(t, t.TempDir(), sample)
	out, err := runCLI(t, "", "-shard-size", "8", "count", input)
	if err != nil {
		t.Fatal(err)
	}
	want := "cat\t2\nmat\t1\non\t1\nsat\t2\nthe\t3\n"
	if out != want {
		t.Fatalf("count output = %q; expected %q", out, want)
	}
}

func TestRankCommandStdin(t *testing.T) {
	out, err := runCLI(t, sample, "-shard-lines", "1", "rank", "-")
	if err != nil {
		t.Fatal(err)
	}
	want := "the\t3\nsat\t2\ncat\t2\nmat\t1\n"
	if out != want {
		t.Fatalf("rank output = %q; expected %q", out, want)
	}
}

func TestProtoOutputDecode(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, sample)
	output := filepath.Join(dir, "out.pb")
	if out, err := runCLI(t, "", "-format", "proto", "-o", output, "-top", "2", "rank", input); err != nil || out != "" {
		t.Fatalf("rank to file: %q, %v", out, err)
	}
	out, err := runCLI(t, "", "decode", output)
	if err != nil {
		t.Fatal(err)
	}
	if out != "the\t3\nsat\t2\n" {
		t.Fatalf("decoded output = %q", out)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFailedRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.txt")
	missing := filepath.Join(dir, "missing.txt")
	out, err := runCLI(t, "", "-o", output, "count", missing)
	if !errors.Is(err, pipeline.ErrInput) {
		t.Fatalf("error = %v; expected ErrInput", err)
	}
	if out != "" {
		t.Fatalf("failed run printed %q", out)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("output file exists after failed run: %v", err)
	}
}

func TestMaxDistinctFlag(t *testing.T) {
	_, err := runCLI(t, sample, "-max-distinct", "2", "count", "-")
	if !errors.Is(err, pipeline.ErrResourceExhausted) {
		t.Fatalf("error = %v; expected ErrResourceExhausted", err)
	}
}

func TestUsageErrors(t *testing.T) {
	out, err := runCLI(t, "", "-h")
	if !errors.Is(err, flag.ErrHelp) || !strings.Contains(out, "Usage of wordcount") {
		t.Fatalf("-h = %q, %v", out, err)
	}
	if _, err := runCLI(t, "", "-format", "xml", "count", "-"); err == nil {
		t.Fatal("unknown format accepted")
	}
	if _, err := runCLI(t, "", "frobnicate"); err == nil {
		t.Fatal("unknown command accepted")
	}
}
