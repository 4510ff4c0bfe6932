package mjpeg

import (
	"fmt"
	"io"

	"github.com/torresjeff/mjpeg/config"
)

// Flusher matches http.Flusher, so parts reach HTTP clients as soon as they are written.
type Flusher interface {
	Flush()
}

// Writer encodes frames as a multipart/x-mixed-replace body.
type Writer struct {
	writer   io.Writer
	boundary string
	// OmitContentLength writes parts without a Content-Length header.
	OmitContentLength bool
}

func NewWriter(writer io.Writer, boundary string) (*Writer, error) {
	if writer == nil {
		return nil, ErrNilWriter
	}
	if boundary == "" {
		boundary = config.DefaultBoundary
	}
	return &Writer{writer: writer, boundary: boundary}, nil
}

// ContentType returns the Content-Type header value that announces this writer's boundary.
func (w *Writer) ContentType() string {
	return "multipart/x-mixed-replace; boundary=" + w.boundary
}

// WriteFrame writes one part holding payload, then flushes the underlying writer if it can be flushed.
func (w *Writer) WriteFrame(payload []byte) error {
	var header string
	if w.OmitContentLength {
		header = fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\n\r\n", w.boundary)
	} else {
		header = fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", w.boundary, len(payload))
	}
	if _, err := io.WriteString(w.writer, header); err != nil {
		return err
	}
	if _, err := w.writer.Write(payload); err != nil {
		return err
	}
	if _, err := io.WriteString(w.writer, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.writer.(Flusher); ok {
		f.Flush()
	}
	return nil
}
