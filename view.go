package mjpeg

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/torresjeff/mjpeg/config"
	"github.com/torresjeff/mjpeg/rand"
	"go.uber.org/zap"
)

// ViewConfig describes which camera a View shows and how it connects.
type ViewConfig struct {
	ServerURL   string
	Camera      int
	Credentials *Credentials
	Client      *http.Client
	Reconnect   ReconnectConfig
	// StallTimeout tears the connection down when no frame arrives for this long. 0 disables it.
	StallTimeout time.Duration
}

// StreamURL returns the live stream endpoint of the configured camera.
func (cfg ViewConfig) StreamURL() string {
	base := strings.TrimRight(cfg.ServerURL, "/")
	if base == "" {
		base = config.DefaultServerURL
	}
	return base + fmt.Sprintf(config.StreamPathFormat, cfg.Camera)
}

// View is the live display of one camera. It runs one Controller at a time and replaces it, never
// reuses it, whenever the camera or the credentials change or a reconnection is due.
type View struct {
	logger *zap.Logger
	id     string
	sink   Sink

	// opMu serializes Start, SwitchCamera, SetCredentials, Retrigger and Teardown.
	opMu sync.Mutex

	mu      sync.Mutex
	cfg     ViewConfig
	parent  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	current *Controller
	state   ConnectionState
	message string
}

func NewView(logger *zap.Logger, cfg ViewConfig, sink Sink) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = nopSink{}
	}
	id := rand.GenerateUuid()
	return &View{
		logger: logger.With(zap.String("viewId", id)),
		id:     id,
		sink:   sink,
		cfg:    cfg,
		state:  Closed,
	}
}

func (v *View) ID() string {
	return v.id
}

func (v *View) Config() ViewConfig {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg
}

func (v *View) State() (ConnectionState, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, v.message
}

// Current returns the live handle of the running controller, or nil.
func (v *View) Current() *DisplayHandle {
	v.mu.Lock()
	ctrl := v.current
	v.mu.Unlock()
	if ctrl == nil {
		return nil
	}
	return ctrl.Publisher().Current()
}

// Start connects to the configured camera. The view stops when ctx is cancelled or on Teardown.
func (v *View) Start(ctx context.Context) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil || v.closed {
		return ErrAlreadyStarted
	}
	v.parent = ctx
	v.launch()
	return nil
}

// SwitchCamera tears down the current connection and connects to camera.
func (v *View) SwitchCamera(camera int) {
	v.restart(func(cfg *ViewConfig) {
		cfg.Camera = camera
	})
}

// SetCredentials tears down the current connection and reconnects with creds.
func (v *View) SetCredentials(creds *Credentials) {
	v.restart(func(cfg *ViewConfig) {
		cfg.Credentials = creds
	})
}

// Retrigger reconnects with the current settings, typically after AuthRequired or Failed.
func (v *View) Retrigger() {
	v.restart(func(*ViewConfig) {})
}

// Teardown stops the view for good and clears its frame.
func (v *View) Teardown() {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	v.closed = true
	cancel, done := v.cancel, v.done
	v.cancel, v.done = nil, nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	v.setState(Closed, "")
}

// restart applies update and, when the view is running, replaces its controller.
func (v *View) restart(update func(cfg *ViewConfig)) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	update(&v.cfg)
	cancel, done := v.cancel, v.done
	v.cancel, v.done = nil, nil
	v.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed && v.parent.Err() == nil {
		v.launch()
	}
}

// launch must be called with v.mu held.
func (v *View) launch() {
	ctx, cancel := context.WithCancel(v.parent)
	done := make(chan struct{})
	v.cancel, v.done = cancel, done
	go v.supervise(ctx, v.cfg, done)
}

func (v *View) supervise(ctx context.Context, cfg ViewConfig, done chan struct{}) {
	defer close(done)

	logger := v.logger.With(zap.Int("camera", cfg.Camera))
	attempt := 0
	for {
		ctrl := v.newController(logger, cfg)
		frames := make(chan struct{}, 1)
		ctrl.OnFrame = func(handle *DisplayHandle) {
			select {
			case frames <- struct{}{}:
			default:
			}
			v.sink.OnFrame(handle)
		}

		v.mu.Lock()
		v.current = ctrl
		v.mu.Unlock()
		v.setState(Connecting, "")

		ctrl.Start(ctx)
		if v.watch(ctx, ctrl, frames, cfg.StallTimeout) {
			logger.Warn("[view] stream stalled", zap.Duration("timeout", cfg.StallTimeout))
			ctrl.Abort(fmt.Sprintf("no frame received in %s", cfg.StallTimeout))
			<-ctrl.Done()
		}
		outcome, _ := ctrl.State()
		ctrl.Teardown()

		v.mu.Lock()
		v.current = nil
		v.mu.Unlock()

		if ctx.Err() != nil {
			v.setState(Closed, "")
			return
		}
		if outcome != Failed {
			return
		}

		if ctrl.Stats().Published > 0 {
			attempt = 0
		}
		if attempt >= cfg.Reconnect.MaxRetries {
			if cfg.Reconnect.MaxRetries > 0 {
				logger.Error("[view] giving up reconnecting", zap.Int("attempts", attempt))
			}
			return
		}
		attempt++
		delay := calculateBackoff(attempt, cfg.Reconnect)
		logger.Info("[view] reconnecting", zap.Int("attempt", attempt), zap.Int("maxRetries", cfg.Reconnect.MaxRetries), zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (v *View) newController(logger *zap.Logger, cfg ViewConfig) *Controller {
	source := &HTTPSource{
		URL:         cfg.StreamURL(),
		Credentials: cfg.Credentials,
		Client:      cfg.Client,
	}
	ctrl := NewController(logger, source)
	ctrl.OnAuthRequired = v.sink.OnAuthRequired
	ctrl.OnError = v.sink.OnError
	ctrl.OnStateChange = func(state ConnectionState, message string) {
		// the view decides when it is closed
		if state != Closed {
			v.setState(state, message)
		}
	}
	return ctrl
}

// watch waits until the controller stops or ctx is cancelled. It reports true when no frame
// arrived within stall instead.
func (v *View) watch(ctx context.Context, ctrl *Controller, frames <-chan struct{}, stall time.Duration) bool {
	var stallC <-chan time.Time
	var timer *time.Timer
	if stall > 0 {
		timer = time.NewTimer(stall)
		defer timer.Stop()
		stallC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ctrl.Done():
			return false
		case <-frames:
			if timer != nil {
				timer.Reset(stall)
			}
		case <-stallC:
			return true
		}
	}
}

func (v *View) setState(state ConnectionState, message string) {
	v.mu.Lock()
	v.state = state
	v.message = message
	v.mu.Unlock()
	v.logger.Debug("[view] state changed", zap.Stringer("state", state), zap.String("message", message))
}

type nopSink struct{}

func (nopSink) OnFrame(*DisplayHandle) {}
func (nopSink) OnAuthRequired() {}
func (nopSink) OnError(string) {}
