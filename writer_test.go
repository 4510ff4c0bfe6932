package mjpeg

import (
	"bytes"
	"testing"
)

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() {
	f.flushes++
}

func TestNewWriter(t *testing.T) {
	if _, err := NewWriter(nil, "frame"); err != ErrNilWriter {
		t.Errorf("expected ErrNilWriter, but got %v", err)
	}
	writer, _ := NewWriter(&bytes.Buffer{}, "")
	if got := writer.ContentType(); got != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("unexpected content type %q", got)
	}
}

func TestWriter_WriteFrame(t *testing.T) {
	out := &flushRecorder{}
	writer, _ := NewWriter(out, "cam")

	if err := writer.WriteFrame([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	want := "--cam\r\nContent-Type: image/jpeg\r\nContent-Length: 3\r\n\r\nabc\r\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
	if out.flushes != 1 {
		t.Errorf("expected 1 flush, but got %d", out.flushes)
	}

	out.Reset()
	writer.OmitContentLength = true
	writer.WriteFrame([]byte("abc"))
	if want := "--cam\r\nContent-Type: image/jpeg\r\n\r\nabc\r\n"; out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestReader_Counts(t *testing.T) {
	if _, err := NewReader(nil); err != ErrNilReader {
		t.Errorf("expected ErrNilReader, but got %v", err)
	}

	reader, _ := NewReader(bytes.NewReader(make([]byte, 10)))
	buf := make([]byte, 4)
	for {
		if _, err := reader.Read(buf); err != nil {
			break
		}
	}
	if reader.ReadBytes() != 10 || reader.Reads() != 3 {
		t.Errorf("expected 10 bytes in 3 reads, but got %d in %d", reader.ReadBytes(), reader.Reads())
	}
}
