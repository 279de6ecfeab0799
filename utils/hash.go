package utils

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

// HashBytes returns the MD5 hash of the given data.
func HashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// DigestWriter forwards writes to an underlying writer and keeps the MD5
// hash of everything written.
type DigestWriter struct {
	w io.Writer
	h hash.Hash
}

// NewDigestWriter returns a DigestWriter writing to w.
func NewDigestWriter(w io.Writer) *DigestWriter {
	return &DigestWriter{w: w, h: md5.New()}
}

func (d *DigestWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	d.h.Write(p[:n])
	return n, err
}

// Sum returns the hex encoded hash of the bytes written so far.
func (d *DigestWriter) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
