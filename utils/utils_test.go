package utils

import (
	"bytes"
	"testing"
)

func TestDigestWriter(t *testing.T) {
	var buf bytes.Buffer
	d := NewDigestWriter(&buf)
	d.Write([]byte("the\t3\n"))
	d.Write([]byte("cat\t2\n"))
	if buf.String() != "the\t3\ncat\t2\n" {
		t.Fatalf("forwarded %q", buf.String())
	}
	if got, want := d.Sum(), HashBytes(buf.Bytes()); got != want {
		t.Fatalf("digest = %s; expected %s", got, want)
	}
	if HashBytes(nil) != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Fatalf("md5 of empty input = %s", HashBytes(nil))
	}
}

func TestFreeSpace(t *testing.T) {
	free, err := FreeSpace(t.TempDir())
	if err == ErrUnsupported {
		t.Skip(err)
	}
	if err != nil {
		t.Fatal(err)
	}
	if free == 0 {
		t.Log("temp dir reports no free space")
	}
}
