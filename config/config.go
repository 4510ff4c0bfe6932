package config

const DefaultPort = "8080"

const DefaultServerURL = "http://localhost:" + DefaultPort

// ServerURLEnv overrides the server URL from the config file when set.
const ServerURLEnv = "HOOTCAM_SERVER_URL"

// DefaultBoundary is used when the response Content-Type carries no boundary parameter.
const DefaultBoundary = "frame"

// ReadChunkSize is the size of the buffer handed to each Read on the response body.
const ReadChunkSize = 1024 * 32

// MaxBufferSize is the safety ceiling for the accumulation buffer while no boundary marker can be found.
// Past it only TrailingWindow bytes are retained.
const MaxBufferSize = 1024 * 1024 * 4

// TrailingWindow is the slack kept past the boundary marker length when the buffer is trimmed.
const TrailingWindow = 64

// MaxHeaderSize bounds a part's header block. Longer blocks are skipped.
const MaxHeaderSize = 1024 * 8

// MaxFrameSize bounds a declared Content-Length. Larger parts are skipped.
const MaxFrameSize = 1024 * 1024 * 16

const StreamPathFormat = "/cameras/%d/stream"
