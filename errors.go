package mjpeg

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var ErrNilWriter = errors.New("Expected io.Writer to be non-nil, but got a nil value")
var ErrNilReader = errors.New("Expected io.Reader to be non-nil, but got a nil value")

// ErrUnauthorized is returned by a Source when the server answers 401.
var ErrUnauthorized = errors.New("unauthorized")

var ErrAlreadyStarted = errors.New("controller already started")

// StatusError is returned by HTTPSource for any non-2xx response other than 401.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	if e.Code == http.StatusServiceUnavailable {
		return "No frame yet"
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}
