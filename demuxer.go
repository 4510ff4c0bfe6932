package mjpeg

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/torresjeff/mjpeg/config"
	"go.uber.org/zap"
)

var headerTerminator = []byte("\r\n\r\n")

const boundaryParam = "boundary="

type stepResult uint8

const (
	// stepWait means no further progress is possible until more data arrives
	stepWait stepResult = iota
	stepFrame
	// stepSkipped means a prefix was dropped without producing a frame
	stepSkipped
)

// DemuxerStats counts what a Demuxer has produced and thrown away so far.
type DemuxerStats struct {
	Frames    uint64
	Anomalies uint64
	// Discarded is the number of bytes dropped without being part of a frame payload or its headers.
	Discarded uint64
}

// Demuxer turns the body of a multipart/x-mixed-replace response into frames. It is resumable:
// bytes that don't complete a frame stay buffered until the next call to Feed.
// A Demuxer belongs to a single connection and is not safe for concurrent use.
type Demuxer struct {
	logger   *zap.SugaredLogger
	boundary string
	marker   []byte
	buf      []byte
	// scanFrom is where the next marker search starts. Bytes before it cannot begin a marker.
	scanFrom  int
	seq       uint64
	maxBuffer int
	stats     DemuxerStats
}

// NewDemuxer creates a Demuxer for a response with the given Content-Type.
func NewDemuxer(logger *zap.SugaredLogger, contentType string) *Demuxer {
	return NewDemuxerWithBoundary(logger, ParseBoundary(contentType))
}

func NewDemuxerWithBoundary(logger *zap.SugaredLogger, boundary string) *Demuxer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if boundary == "" {
		boundary = config.DefaultBoundary
	}
	return &Demuxer{
		logger:    logger,
		boundary:  boundary,
		marker:    []byte("--" + boundary + "\r\n"),
		maxBuffer: config.MaxBufferSize,
	}
}

// ParseBoundary extracts the boundary parameter from a Content-Type value. A quoted value wins,
// otherwise the unquoted token up to the next separator is used. Without a boundary parameter
// config.DefaultBoundary is returned.
func ParseBoundary(contentType string) string {
	lower := strings.ToLower(contentType)
	for from := 0; ; {
		i := strings.Index(lower[from:], boundaryParam)
		if i < 0 {
			return config.DefaultBoundary
		}
		i += from
		if atParamStart(lower, i) {
			return boundaryValue(contentType[i+len(boundaryParam):])
		}
		from = i + len(boundaryParam)
	}
}

// atParamStart reports whether offset i begins a parameter name, i.e. follows ';' and optional whitespace.
func atParamStart(s string, i int) bool {
	return strings.HasSuffix(strings.TrimRight(s[:i], " \t"), ";")
}

func boundaryValue(v string) string {
	if strings.HasPrefix(v, `"`) {
		if end := strings.IndexByte(v[1:], '"'); end > 0 {
			return v[1 : end+1]
		}
		v = v[1:]
	}
	if end := strings.IndexAny(v, "; \t\""); end >= 0 {
		v = v[:end]
	}
	if v == "" {
		return config.DefaultBoundary
	}
	return v
}

func (d *Demuxer) Boundary() string {
	return d.boundary
}

// Buffered returns the number of bytes waiting for more data.
func (d *Demuxer) Buffered() int {
	return len(d.buf)
}

func (d *Demuxer) Stats() DemuxerStats {
	return d.stats
}

// Feed appends chunk to the accumulation buffer and returns every frame that became complete,
// in stream order. The chunk is copied, so the caller may reuse it.
func (d *Demuxer) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		frame, res := d.step()
		switch res {
		case stepFrame:
			frames = append(frames, frame)
		case stepSkipped:
		default:
			return frames
		}
	}
}

func (d *Demuxer) step() (Frame, stepResult) {
	start := d.findMarker()
	if start < 0 {
		d.trim()
		return Frame{}, stepWait
	}
	if start > 0 {
		// nothing before the marker can become part of a frame
		d.stats.Discarded += uint64(start)
		d.consume(start)
		start = 0
	}

	headersStart := start + len(d.marker)
	// Search from the marker's own CRLF so that a part with no header lines is recognised.
	rel := bytes.Index(d.buf[headersStart-2:], headerTerminator)
	if rel < 0 {
		if len(d.buf)-headersStart > config.MaxHeaderSize {
			d.skip(headersStart, "header block exceeds limit")
			return Frame{}, stepSkipped
		}
		return Frame{}, stepWait
	}
	headerEnd := headersStart - 2 + rel
	bodyStart := headerEnd + len(headerTerminator)
	if headerEnd-headersStart > config.MaxHeaderSize {
		d.skip(bodyStart, "header block exceeds limit")
		return Frame{}, stepSkipped
	}

	var block []byte
	if headerEnd > headersStart {
		block = d.buf[headersStart:headerEnd]
	}
	contentLength, ok := parseContentLength(block)
	if !ok {
		d.stats.Anomalies++
		d.logger.Debugf("[demuxer] part without a valid Content-Length, headers: %q", block)
	}
	if contentLength > config.MaxFrameSize {
		d.skip(bodyStart, "declared Content-Length exceeds limit")
		return Frame{}, stepSkipped
	}

	end := bodyStart + contentLength
	if end > len(d.buf) {
		return Frame{}, stepWait
	}

	payload := make([]byte, contentLength)
	copy(payload, d.buf[bodyStart:end])
	d.consume(end)

	d.seq++
	d.stats.Frames++
	return Frame{Seq: d.seq, Payload: payload}, stepFrame
}

// findMarker returns the offset of the next boundary-open marker, or -1.
func (d *Demuxer) findMarker() int {
	i := bytes.Index(d.buf[d.scanFrom:], d.marker)
	if i < 0 {
		// a marker may straddle the end of the buffer
		if next := len(d.buf) - len(d.marker) + 1; next > d.scanFrom {
			d.scanFrom = next
		}
		return -1
	}
	return d.scanFrom + i
}

// trim enforces the safety ceiling while no marker is in sight.
func (d *Demuxer) trim() {
	if len(d.buf) <= d.maxBuffer {
		return
	}
	drop := len(d.buf) - (len(d.marker) + config.TrailingWindow)
	d.logger.Debugf("[demuxer] no boundary in %d buffered bytes, dropping %d", len(d.buf), drop)
	d.stats.Discarded += uint64(drop)
	d.consume(drop)
}

func (d *Demuxer) skip(n int, reason string) {
	d.logger.Debugf("[demuxer] skipping %d bytes: %s", n, reason)
	d.stats.Anomalies++
	d.stats.Discarded += uint64(n)
	d.consume(n)
}

// consume drops the first n bytes, keeping the backing array.
func (d *Demuxer) consume(n int) {
	remaining := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
	d.scanFrom = 0
}

// parseContentLength returns the Content-Length declared in a header block.
// ok is false when the header is missing or not a non-negative integer; the length is then 0.
func parseContentLength(block []byte) (n int, ok bool) {
	for _, line := range bytes.Split(block, []byte("\r\n")) {
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(string(line[:colon])), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(string(line[colon+1:])))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
