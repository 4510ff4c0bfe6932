package mjpeg

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Stream is an open multipart response. Body must be closed by the consumer.
type Stream struct {
	ContentType string
	Body        io.ReadCloser
}

// Source opens the long-lived connection to a camera feed. Cancelling ctx must abort both the
// open and any read on the returned Body.
type Source interface {
	Open(ctx context.Context) (*Stream, error)
}

// Credentials are sent as HTTP Basic auth when both fields are set.
type Credentials struct {
	Username string
	Password string
}

func (c *Credentials) valid() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// HTTPSource opens a GET request to URL.
type HTTPSource struct {
	URL         string
	Credentials *Credentials
	// Client defaults to a client without a timeout; the stream is expected to last indefinitely.
	Client *http.Client
}

// Open sends the request. A 401 yields ErrUnauthorized without reading the body, any other
// non-2xx status yields a *StatusError.
func (s *HTTPSource) Open(ctx context.Context) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "source: build request")
	}
	if s.Credentials.valid() {
		req.SetBasicAuth(s.Credentials.Username, s.Credentials.Password)
	}

	client := s.Client
	if client == nil {
		client = &http.Client{}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "source: open stream")
	}

	if res.StatusCode == http.StatusUnauthorized {
		res.Body.Close()
		return nil, ErrUnauthorized
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		return nil, &StatusError{Code: res.StatusCode}
	}

	return &Stream{
		ContentType: res.Header.Get("Content-Type"),
		Body:        res.Body,
	}, nil
}
