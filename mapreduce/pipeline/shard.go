package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"wordfreq/mapreduce/pfile"
)

// Shard is an independent slice of the input.
type Shard interface {
	Name() string
	Read() (string, error)
}

type fileShard struct {
	file       *pfile.PFile
	rangeStart int64
	rangeEnd   int64
}

func (s fileShard) Name() string {
	return fmt.Sprintf("%s[%d:%d]", s.file.Name(), s.rangeStart, s.rangeEnd)
}

func (s fileShard) Read() (string, error) {
	data, err := s.file.ReadPart(s.rangeStart, s.rangeEnd)
	if err != nil {
		return "", inputError(s.Name(), err)
	}
	return string(data), nil
}

type lineShard struct {
	name  string
	lines []string
}

func (s lineShard) Name() string {
	return s.name
}

func (s lineShard) Read() (string, error) {
	return strings.Join(s.lines, "\n"), nil
}

// LineShards splits lines into shards of at most linesPerShard lines.
func LineShards(name string, lines []string, linesPerShard int) []Shard {
	if linesPerShard <= 0 {
		linesPerShard = len(lines)
	}
	var shards []Shard
	for i := 0; i < len(lines); i += linesPerShard {
		end := min(i+linesPerShard, len(lines))
		shards = append(shards, lineShard{
			name:  fmt.Sprintf("%s[%d:%d]", name, i, end),
			lines: lines[i:end],
		})
	}
	return shards
}

// ReaderShards reads r to the end and splits its lines into shards of at
// most linesPerShard lines.
func ReaderShards(name string, r io.Reader, linesPerShard int) ([]Shard, error) {
	br := bufio.NewReader(r)
	var lines []string
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimSuffix(line, "\n"))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, inputError(name, err)
		}
	}
	return LineShards(name, lines, linesPerShard), nil
}

// FileSource is an opened input file split into line aligned shards.
type FileSource struct {
	file   *pfile.PFile
	Shards []Shard
}

// OpenFile opens filename and splits it into shards of about shardSize
// bytes. Unless allowBinary is set, files that do not look like text are
// rejected.
func OpenFile(filename string, shardSize int64, allowBinary bool) (*FileSource, error) {
	if !allowBinary {
		isText, err := pfile.IsTextFile(filename)
		if err != nil {
			return nil, inputError(filename, err)
		}
		if !isText {
			return nil, inputError(filename, errors.New("not a text file"))
		}
	}
	f, err := pfile.Open(filename)
	if err != nil {
		return nil, inputError(filename, err)
	}
	ranges, err := f.Ranges(shardSize)
	if err != nil {
		f.Close()
		return nil, inputError(filename, err)
	}
	src := &FileSource{file: f}
	for _, r := range ranges {
		src.Shards = append(src.Shards, fileShard{file: f, rangeStart: r[0], rangeEnd: r[1]})
	}
	return src, nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}
