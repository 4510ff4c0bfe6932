package mjpeg

// Frame is one JPEG payload extracted from a multipart part. Seq starts at 1 for each Demuxer.
// A zero-length Payload marks a part whose Content-Length was missing or invalid.
type Frame struct {
	Seq     uint64
	Payload []byte
}

func (f Frame) Empty() bool {
	return len(f.Payload) == 0
}
