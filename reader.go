package mjpeg

import (
	"io"
	"sync/atomic"
)

// Reader counts the bytes and reads that go through the underlying io.Reader.
// The counters may be read from another goroutine.
type Reader struct {
	reader io.Reader
	n      atomic.Uint64
	reads  atomic.Uint64
}

func NewReader(reader io.Reader) (*Reader, error) {
	if reader == nil {
		return nil, ErrNilReader
	}
	return &Reader{reader: reader}, nil
}

// Read performs a single Read on the underlying reader, so it returns as soon as any data
// is available instead of waiting to fill p.
func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = r.reader.Read(p)
	if n > 0 {
		r.n.Add(uint64(n))
		r.reads.Add(1)
	}
	return n, err
}

// ReadBytes returns the number of bytes read so far.
func (r *Reader) ReadBytes() uint64 {
	return r.n.Load()
}

func (r *Reader) Reads() uint64 {
	return r.reads.Load()
}
