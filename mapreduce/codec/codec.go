package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"

	"wordfreq/mapreduce/types"
)

// MaxFrameSize bounds the payload of a single frame.
const MaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned for frames larger than MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// record fields
const (
	wordField  protowire.Number = 1
	countField protowire.Number = 2
)

// WriteFrame writes payload to w.
// format is:
//
//	| length (8 bytes) | payload (length bytes) |
func WriteFrame(w io.Writer, payload []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint64(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame from r. It returns io.EOF if r ends before a
// new frame starts.
func ReadFrame(r io.Reader) ([]byte, error) {
	var length uint64
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Header describes the records of a proto stream.
type Header struct {
	Variant   string
	Distinct  uint64
	Total     uint64
	CreatedAt time.Time
}

// MarshalHeader encodes h as a google.protobuf.Struct wrapped in an Any.
// Struct numbers are doubles, so counts are stored as decimal strings.
func MarshalHeader(h Header) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"variant":    h.Variant,
		"distinct":   strconv.FormatUint(h.Distinct, 10),
		"total":      strconv.FormatUint(h.Total, 10),
		"created_at": h.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	payload, err := anypb.New(s)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(payload)
}

// UnmarshalHeader decodes a header written by MarshalHeader.
func UnmarshalHeader(data []byte) (Header, error) {
	payload := &anypb.Any{}
	if err := proto.Unmarshal(data, payload); err != nil {
		return Header{}, err
	}
	msg, err := payload.UnmarshalNew()
	if err != nil {
		return Header{}, err
	}
	s, ok := msg.(*structpb.Struct)
	if !ok {
		return Header{}, fmt.Errorf("unexpected header type %s", payload.TypeUrl)
	}
	fields := s.GetFields()
	h := Header{Variant: fields["variant"].GetStringValue()}
	if h.Distinct, err = headerCount(fields, "distinct"); err != nil {
		return Header{}, err
	}
	if h.Total, err = headerCount(fields, "total"); err != nil {
		return Header{}, err
	}
	if ts := fields["created_at"].GetStringValue(); ts != "" {
		if h.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return Header{}, err
		}
	}
	return h, nil
}

func headerCount(fields map[string]*structpb.Value, name string) (uint64, error) {
	v := fields[name].GetStringValue()
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("header %s: %w", name, err)
	}
	return n, nil
}

// MarshalRecord encodes kv as a message {1: word, 2: count}.
func MarshalRecord(kv types.KeyValue) []byte {
	b := make([]byte, 0, len(kv.Key)+16)
	b = protowire.AppendTag(b, wordField, protowire.BytesType)
	b = protowire.AppendString(b, kv.Key)
	b = protowire.AppendTag(b, countField, protowire.VarintType)
	b = protowire.AppendVarint(b, kv.Value)
	return b
}

// UnmarshalRecord decodes a record written by MarshalRecord. Unknown fields
// are skipped.
func UnmarshalRecord(b []byte) (types.KeyValue, error) {
	var kv types.KeyValue
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return kv, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == wordField && typ == protowire.BytesType:
			kv.Key, n = protowire.ConsumeString(b)
		case num == countField && typ == protowire.VarintType:
			kv.Value, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return kv, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return kv, nil
}
