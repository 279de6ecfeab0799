package pfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"unicode/utf8"
)

// ErrClosed is returned by reads on a closed PFile.
var ErrClosed = errors.New("pfile is closed")

type readRequest struct {
	rangeStart int64
	rangeEnd   int64
	response   chan readResponse
}

type readResponse struct {
	data []byte
	err  error
}

// PFile serves ranged reads of one file from a single daemon goroutine, so
// many workers can read parts of the file concurrently.
type PFile struct {
	file        *os.File
	name        string
	size        int64
	request     chan readRequest
	startDaemon func()
	closeOnce   sync.Once
	closed      chan struct{}
}

// Open opens filename for ranged reads.
func Open(filename string) (*PFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if fi.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%s is a directory", filename)
	}
	p := &PFile{
		file:    file,
		name:    filename,
		size:    fi.Size(),
		request: make(chan readRequest),
		closed:  make(chan struct{}),
	}
	p.startDaemon = sync.OnceFunc(func() { go p.daemon() })
	return p, nil
}

// Name returns the name the file was opened with.
func (p *PFile) Name() string {
	return p.name
}

// Size returns the size of the file when it was opened.
func (p *PFile) Size() int64 {
	return p.size
}

// Close stops the daemon and closes the file.
func (p *PFile) Close() error {
	err := ErrClosed
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.file.Close()
	})
	return err
}

func (p *PFile) daemon() {
	for {
		select {
		case <-p.closed:
			return
		case request := <-p.request:
			data := make([]byte, request.rangeEnd-request.rangeStart)
			_, err := p.file.ReadAt(data, request.rangeStart)
			if err != nil {
				request.response <- readResponse{err: err}
				continue
			}
			request.response <- readResponse{data: data}
		}
	}
}

// ReadPart reads the bytes in [rangeStart, rangeEnd).
func (p *PFile) ReadPart(rangeStart int64, rangeEnd int64) ([]byte, error) {
	if rangeStart < 0 || rangeEnd < rangeStart || rangeEnd > p.size {
		return nil, fmt.Errorf("invalid range [%d, %d) for %s of size %d", rangeStart, rangeEnd, p.name, p.size)
	}
	select {
	case <-p.closed:
		return nil, ErrClosed
	default:
	}
	p.startDaemon()
	request := readRequest{
		rangeStart: rangeStart,
		rangeEnd:   rangeEnd,
		response:   make(chan readResponse, 1),
	}
	select {
	case <-p.closed:
		return nil, ErrClosed
	case p.request <- request:
	}
	resp := <-request.response
	return resp.data, resp.err
}

// NextLineStart returns the offset of the first byte after the first
// newline at or after offset, or Size if there is none. The search reads at
// most window bytes at a time.
func (p *PFile) NextLineStart(offset int64, window int64) (int64, error) {
	if window <= 0 {
		window = 4096
	}
	for offset < p.size {
		end := min(offset+window, p.size)
		data, err := p.ReadPart(offset, end)
		if err != nil {
			return 0, err
		}
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			return offset + int64(i) + 1, nil
		}
		offset = end
	}
	return p.size, nil
}

// Ranges splits the file into consecutive ranges of roughly chunkSize bytes
// that each end right after a newline (or at end of file).
func (p *PFile) Ranges(chunkSize int64) ([][2]int64, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	var ranges [][2]int64
	start := int64(0)
	for start < p.size {
		end := p.size
		if start+chunkSize < p.size {
			var err error
			end, err = p.NextLineStart(start+chunkSize-1, 0)
			if err != nil {
				return nil, err
			}
		}
		ranges = append(ranges, [2]int64{start, end})
		start = end
	}
	return ranges, nil
}

// textSample is how much of a file IsTextFile inspects.
const textSample = 1 << 10

// IsTextFile reports whether IsText accepts the first textSample bytes of
// filename. An empty file counts as text.
func IsTextFile(filename string) (bool, error) {
	f, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer f.Close()
	buffer := make([]byte, textSample)
	n, err := io.ReadFull(f, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	return IsText(buffer[:n]), nil
}

// IsText reports whether data looks like text. A multi-byte rune cut off at
// the end of data is accepted.
func IsText(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}
	if utf8.Valid(data) {
		return true
	}
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		tail := data[len(data)-i:]
		if !utf8.FullRune(tail) && utf8.Valid(data[:len(data)-i]) {
			return true
		}
	}
	return false
}
