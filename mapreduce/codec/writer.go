package codec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"wordfreq/mapreduce/types"
)

// Format is an output encoding.
type Format string

const (
	// Text writes "word\tcount" lines.
	Text Format = "text"
	// JSON writes one {"word":...,"count":...} object per line.
	JSON Format = "json"
	// Proto writes a framed header followed by framed records.
	Proto Format = "proto"
)

// ParseFormat parses the name of a format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case Text, JSON, Proto:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// Writer encodes records in one format.
type Writer struct {
	format Format
	bw     *bufio.Writer
	enc    *json.Encoder
}

// NewWriter returns a Writer encoding to w.
func NewWriter(w io.Writer, format Format) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{
		format: format,
		bw:     bw,
		enc:    json.NewEncoder(bw),
	}
}

// WriteHeader writes the stream header. Only the proto format has one.
func (w *Writer) WriteHeader(h Header) error {
	if w.format != Proto {
		return nil
	}
	payload, err := MarshalHeader(h)
	if err != nil {
		return err
	}
	return WriteFrame(w.bw, payload)
}

// Write writes one record.
func (w *Writer) Write(kv types.KeyValue) error {
	switch w.format {
	case JSON:
		return w.enc.Encode(kv)
	case Proto:
		return WriteFrame(w.bw, MarshalRecord(kv))
	default:
		w.bw.WriteString(kv.Key)
		w.bw.WriteByte('\t')
		w.bw.WriteString(strconv.FormatUint(kv.Value, 10))
		return w.bw.WriteByte('\n')
	}
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// WriteAll writes the header for variant followed by records and flushes.
func WriteAll(w io.Writer, format Format, variant types.Variant, records []types.KeyValue) error {
	var total uint64
	for _, kv := range records {
		var err error
		if total, err = types.AddCount(total, kv.Value); err != nil {
			return fmt.Errorf("total of %d records: %w", len(records), err)
		}
	}
	enc := NewWriter(w, format)
	err := enc.WriteHeader(Header{
		Variant:   variant.String(),
		Distinct:  uint64(len(records)),
		Total:     total,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	for _, kv := range records {
		if err := enc.Write(kv); err != nil {
			return err
		}
	}
	return enc.Flush()
}

// Reader decodes a proto stream.
type Reader struct {
	r      *bufio.Reader
	header *Header
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Header reads the stream header if it has not been read yet.
func (r *Reader) Header() (Header, error) {
	if r.header != nil {
		return *r.header, nil
	}
	payload, err := ReadFrame(r.r)
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	h, err := UnmarshalHeader(payload)
	if err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	r.header = &h
	return h, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (types.KeyValue, error) {
	if _, err := r.Header(); err != nil {
		return types.KeyValue{}, err
	}
	payload, err := ReadFrame(r.r)
	if err != nil {
		return types.KeyValue{}, err
	}
	return UnmarshalRecord(payload)
}
