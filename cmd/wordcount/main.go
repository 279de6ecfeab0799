package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"wordfreq/mapreduce/codec"
	"wordfreq/mapreduce/pipeline"
	"wordfreq/mapreduce/types"
	"wordfreq/utils"
)

// Context carries the options of one invocation.
type Context struct {
	workers     int
	shardSize   int64
	shardLines  int
	minLength   int
	maxDistinct int
	top         int
	noCombine   bool
	allowBinary bool
	verbose     bool
	format      codec.Format
	output      string

	stdin  io.Reader
	stdout io.Writer
	logger *log.Logger
}

func printUsage(w io.Writer, name string) {
	fmt.Fprintf(w, `Usage of %s: %s [OPTIONS] <COMMAND> [ARGS]
Options:
  -workers <number>          Number of shards mapped concurrently (default number of CPUs).
  -shard-size <bytes>        Target size of a file shard (default 1048576).
  -shard-lines <number>      Lines per shard when reading stdin (default 4096).
  -min-length <number>       Minimum token length, overrides the command default (count 1, rank 3).
  -max-distinct <number>     Fail when more distinct tokens are found (default 0, unlimited).
  -top <number>              (For rank command) Only output the first N entries.
  -no-combine                Skip the per-shard combine step.
  -allow-binary              Do not reject inputs that do not look like text.
  -format <text|json|proto>  Output format (default text).
  -o <filename>              Write the output to a file instead of stdout.
  -v                         Log every mapped shard.
  -h                         Print this help message.
Commands:
  count <input>...           Count every word of the inputs, "-" reads stdin.
  rank <input>...            Count words longer than two characters and sort by frequency.
  decode <filename>          Print a proto output file as text.
`, name, name)
}

func checkCommand(commands []string) error {
	if len(commands) == 0 {
		return errors.New("no command specified")
	}
	switch commands[0] {
	case "count", "rank":
		if len(commands) < 2 {
			return fmt.Errorf("%s command requires at least 1 input", commands[0])
		}
	case "decode":
		if len(commands) != 2 {
			return errors.New("decode command requires 1 argument")
		}
	default:
		return fmt.Errorf("unknown command %q", commands[0])
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := run(ctx, os.Args, os.Stdin, os.Stdout, log.New(os.Stderr, "", log.LstdFlags))
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, logger *log.Logger) error {
	flagSet := flag.NewFlagSet(args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	workers := flagSet.Int("workers", runtime.NumCPU(), "Number of shards mapped concurrently")
	shardSize := flagSet.Int64("shard-size", 1<<20, "Target size of a file shard")
	shardLines := flagSet.Int("shard-lines", 4096, "Lines per shard when reading stdin")
	minLength := flagSet.Int("min-length", 0, "Minimum token length")
	maxDistinct := flagSet.Int("max-distinct", 0, "Maximum number of distinct tokens")
	top := flagSet.Int("top", 0, "Only output the first N ranked entries")
	noCombine := flagSet.Bool("no-combine", false, "Skip the per-shard combine step")
	allowBinary := flagSet.Bool("allow-binary", false, "Accept inputs that do not look like text")
	formatFlag := flagSet.String("format", string(codec.Text), "Output format")
	output := flagSet.String("o", "", "Output file")
	verbose := flagSet.Bool("v", false, "Log every mapped shard")
	if err := flagSet.Parse(args[1:]); err != nil {
		printUsage(stdout, args[0])
		return err
	}
	commands := flagSet.Args()
	if err := checkCommand(commands); err != nil {
		printUsage(stdout, args[0])
		return err
	}
	format, err := codec.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}
	if *shardSize <= 0 || *shardLines <= 0 {
		return errors.New("shard size and shard lines must be positive")
	}

	c := &Context{
		workers:     *workers,
		shardSize:   *shardSize,
		shardLines:  *shardLines,
		minLength:   *minLength,
		maxDistinct: *maxDistinct,
		top:         *top,
		noCombine:   *noCombine,
		allowBinary: *allowBinary,
		verbose:     *verbose,
		format:      format,
		output:      *output,
		stdin:       stdin,
		stdout:      stdout,
		logger:      logger,
	}
	var operation string
	switch commands[0] {
	case "count":
		err = c.WordCount(ctx, types.FlatCount, commands[1:])
		operation = "count words"
	case "rank":
		err = c.WordCount(ctx, types.RankedCount, commands[1:])
		operation = "rank words"
	case "decode":
		err = c.Decode(commands[1])
		operation = "decode output"
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", operation, err)
	}
	return nil
}

// openInputs splits every input into shards. The returned function closes
// the opened files.
func (c *Context) openInputs(inputs []string) ([]pipeline.Shard, func(), error) {
	var shards []pipeline.Shard
	var sources []*pipeline.FileSource
	closeAll := func() {
		for _, src := range sources {
			src.Close()
		}
	}
	for _, input := range inputs {
		if input == "-" {
			s, err := pipeline.ReaderShards("stdin", c.stdin, c.shardLines)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			shards = append(shards, s...)
			continue
		}
		src, err := pipeline.OpenFile(input, c.shardSize, c.allowBinary)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sources = append(sources, src)
		shards = append(shards, src.Shards...)
	}
	return shards, closeAll, nil
}

// WordCount runs variant over inputs and writes the result.
func (c *Context) WordCount(ctx context.Context, variant types.Variant, inputs []string) error {
	shards, closeInputs, err := c.openInputs(inputs)
	if err != nil {
		return err
	}
	defer closeInputs()

	job := pipeline.NewJob(variant)
	job.Workers = c.workers
	job.MinLength = c.minLength
	job.MaxDistinct = c.maxDistinct
	job.NoCombine = c.noCombine
	job.Top = c.top
	job.SetLogger(c.logger)
	job.SetLogPrefix("[wordcount]")
	job.SetVerbose(c.verbose)
	res, err := job.Run(ctx, shards)
	if err != nil {
		return err
	}

	// encode everything before writing so a failed run leaves no output
	var buf bytes.Buffer
	digest := utils.NewDigestWriter(&buf)
	records := res.Records()
	if err := codec.WriteAll(digest, c.format, variant, records); err != nil {
		return err
	}
	if c.output == "" {
		if _, err := c.stdout.Write(buf.Bytes()); err != nil {
			return err
		}
	} else if err := writeOutputFile(c.output, buf.Bytes()); err != nil {
		return err
	}
	c.logger.Printf("[wordcount] %d records (%d bytes, md5 %s) written to %s",
		len(records), buf.Len(), digest.Sum(), c.outputName())
	return nil
}

func (c *Context) outputName() string {
	if c.output == "" {
		return "stdout"
	}
	return c.output
}

// writeOutputFile writes data next to filename and renames it into place
// once it is complete.
func writeOutputFile(filename string, data []byte) error {
	dir := filepath.Dir(filename)
	free, err := utils.FreeSpace(dir)
	if err != nil && !errors.Is(err, utils.ErrUnsupported) {
		return err
	}
	if err == nil && free < uint64(len(data)) {
		return fmt.Errorf("%s has %d bytes free, output needs %d: %w", dir, free, len(data), pipeline.ErrResourceExhausted)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

// Decode prints the records of a proto output file as text.
func (c *Context) Decode(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	r := codec.NewReader(f)
	h, err := r.Header()
	if err != nil {
		return err
	}
	c.logger.Printf("[wordcount] %s: variant %s, %d distinct, %d total, created %s",
		filename, h.Variant, h.Distinct, h.Total, h.CreatedAt.Local().Format(time.DateTime))
	w := codec.NewWriter(c.stdout, codec.Text)
	for {
		kv, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := w.Write(kv); err != nil {
			return err
		}
	}
	return w.Flush()
}
