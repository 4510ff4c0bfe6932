package video

import "bytes"

// JPEG markers, as defined in ITU T.81.
var (
	StartOfImage = []byte{0xFF, 0xD8}
	EndOfImage   = []byte{0xFF, 0xD9}
)

// IsJPEG reports whether payload starts with SOI and ends with EOI. Trailing CR/LF padding after
// EOI, which some cameras append, is tolerated.
func IsJPEG(payload []byte) bool {
	if !bytes.HasPrefix(payload, StartOfImage) {
		return false
	}
	trimmed := bytes.TrimRight(payload, "\r\n")
	return len(trimmed) >= len(StartOfImage)+len(EndOfImage) && bytes.HasSuffix(trimmed, EndOfImage)
}
