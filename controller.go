package mjpeg

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/torresjeff/mjpeg/config"
	"github.com/torresjeff/mjpeg/rand"
	"github.com/torresjeff/mjpeg/video"
	"go.uber.org/zap"
)

type ConnectionState uint8

const (
	Connecting ConnectionState = iota
	Streaming
	AuthRequired
	Failed
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case AuthRequired:
		return "auth_required"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// ControllerStats is a snapshot of a controller's connection counters.
type ControllerStats struct {
	BytesRead uint64
	Reads     uint64
	Published uint64
	// NonJPEG counts published payloads that don't carry JPEG SOI/EOI markers.
	NonJPEG uint64
	Demuxer DemuxerStats
}

// Controller drives one connection to a camera feed: it opens the Source, feeds the body to a
// Demuxer and publishes every frame. A Controller runs once; reconnecting means creating a new one.
type Controller struct {
	// Callbacks are invoked from the controller's goroutine and must not call Teardown.
	OnFrame        FrameCallback
	OnAuthRequired AuthRequiredCallback
	OnError        ErrorCallback
	OnStateChange  StateCallback

	logger    *zap.Logger
	id        string
	source    Source
	publisher *Publisher
	done      chan struct{}

	teardownOnce sync.Once

	mu       sync.Mutex
	state    ConnectionState
	message  string
	started  bool
	tornDown bool
	// aborted is the failure message set by Abort.
	aborted string
	cancel  context.CancelFunc
	stats   ControllerStats
}

func NewController(logger *zap.Logger, source Source) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := rand.GenerateUuid()
	return &Controller{
		logger:    logger.With(zap.String("controllerId", id)),
		id:        id,
		source:    source,
		publisher: NewPublisher(nil),
		done:      make(chan struct{}),
		state:     Connecting,
	}
}

func (c *Controller) ID() string {
	return c.id
}

// Publisher returns the publisher that owns this controller's current frame.
func (c *Controller) Publisher() *Publisher {
	return c.publisher
}

// Done is closed once the controller has stopped reading, or on Teardown if it never started.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current state and, for Failed, its message.
func (c *Controller) State() (ConnectionState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.message
}

func (c *Controller) Stats() ControllerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Start runs the controller on its own goroutine.
func (c *Controller) Start(ctx context.Context) error {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	go c.run(runCtx)
	return nil
}

// Run runs the controller until the connection fails, is refused, or ctx is cancelled.
// Cancellation is not an error: Run then returns nil with the controller Closed.
func (c *Controller) Run(ctx context.Context) error {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	return c.run(runCtx)
}

// Teardown aborts the connection, waits for the read loop to stop and clears the publisher.
// It is safe to call more than once, before Start, and while a read is in flight.
func (c *Controller) Teardown() {
	c.teardownOnce.Do(func() {
		c.mu.Lock()
		c.tornDown = true
		started := c.started
		cancel := c.cancel
		c.mu.Unlock()

		if started {
			cancel()
			<-c.done
		} else {
			close(c.done)
		}
		c.publisher.Clear()
		c.setState(Closed, "")
		c.logger.Debug("[controller] torn down")
	})
}

// Abort stops the connection and reports it as Failed with message, exactly as a read error would:
// OnError runs while the last frame is still live. It has no effect once the controller has stopped.
func (c *Controller) Abort(message string) {
	c.mu.Lock()
	if !c.started || c.tornDown || c.aborted != "" {
		c.mu.Unlock()
		return
	}
	c.aborted = message
	cancel := c.cancel
	c.mu.Unlock()
	cancel()
}

func (c *Controller) begin(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.tornDown {
		return nil, ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	return ctx, nil
}

func (c *Controller) run(ctx context.Context) error {
	defer close(c.done)

	c.setState(Connecting, "")
	c.logger.Info("[controller] connecting")
	stream, err := c.source.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return c.stopped()
		}
		if errors.Cause(err) == ErrUnauthorized {
			c.authRequired()
			return err
		}
		c.fail(err.Error())
		return err
	}
	defer stream.Body.Close()

	reader, err := NewReader(stream.Body)
	if err != nil {
		c.fail(err.Error())
		return err
	}
	demuxer := NewDemuxer(c.logger.Sugar(), stream.ContentType)
	c.setState(Streaming, "")
	c.logger.Info("[controller] streaming", zap.String("boundary", demuxer.Boundary()))

	buf := make([]byte, config.ReadChunkSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			for _, frame := range demuxer.Feed(buf[:n]) {
				if ctx.Err() != nil {
					break
				}
				c.deliver(frame)
			}
			c.updateStats(reader, demuxer)
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.stopped()
			}
			if err == io.EOF {
				err = errors.New("stream closed by server")
			} else {
				err = errors.Wrap(err, "read stream")
			}
			c.fail(err.Error())
			return err
		}
	}
}

func (c *Controller) deliver(frame Frame) {
	if frame.Empty() {
		c.logger.Debug("[controller] dropping empty frame", zap.Uint64("seq", frame.Seq))
		return
	}
	jpeg := video.IsJPEG(frame.Payload)
	if !jpeg {
		c.logger.Debug("[controller] payload is not a JPEG", zap.Uint64("seq", frame.Seq), zap.Int("size", len(frame.Payload)))
	}

	handle := c.publisher.Publish(frame)

	c.mu.Lock()
	c.stats.Published++
	if !jpeg {
		c.stats.NonJPEG++
	}
	c.mu.Unlock()

	if c.OnFrame != nil {
		c.OnFrame(handle)
	}
}

func (c *Controller) updateStats(reader *Reader, demuxer *Demuxer) {
	c.mu.Lock()
	c.stats.BytesRead = reader.ReadBytes()
	c.stats.Reads = reader.Reads()
	c.stats.Demuxer = demuxer.Stats()
	c.mu.Unlock()
}

func (c *Controller) authRequired() {
	c.logger.Warn("[controller] server requires authentication")
	c.setState(AuthRequired, "")
	c.publisher.Clear()
	if c.OnAuthRequired != nil {
		c.OnAuthRequired()
	}
}

// fail reports message while the last good frame is still live, then clears it.
func (c *Controller) fail(message string) {
	c.logger.Error("[controller] connection failed", zap.String("error", message))
	c.setState(Failed, message)
	if c.OnError != nil {
		c.OnError(message)
	}
	c.publisher.Clear()
}

// stopped handles a cancelled connection: Failed after Abort, Closed otherwise.
func (c *Controller) stopped() error {
	c.mu.Lock()
	message := c.aborted
	c.mu.Unlock()
	if message != "" {
		c.fail(message)
		return errors.New(message)
	}
	c.markClosed()
	return nil
}

func (c *Controller) markClosed() {
	c.logger.Info("[controller] connection closed")
	c.setState(Closed, "")
	c.publisher.Clear()
}

// setState records a transition. Closed is terminal.
func (c *Controller) setState(state ConnectionState, message string) {
	c.mu.Lock()
	if c.state == Closed || (c.state == state && c.message == message) {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.message = message
	c.mu.Unlock()

	if c.OnStateChange != nil {
		c.OnStateChange(state, message)
	}
}
