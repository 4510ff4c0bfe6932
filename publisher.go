package mjpeg

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/torresjeff/mjpeg/rand"
)

// ReleaseCallback is called exactly once for every DisplayHandle, when it is superseded or cleared.
type ReleaseCallback func(handle *DisplayHandle)

// DisplayHandle is the displayable wrapper around a published frame. Its payload must not be used
// after the handle has been released.
type DisplayHandle struct {
	ID        string
	Frame     Frame
	CreatedAt time.Time
	released  atomic.Bool
}

func (h *DisplayHandle) Released() bool {
	return h.released.Load()
}

// Publisher owns the current DisplayHandle of one camera view. At most one handle is live at a time.
type Publisher struct {
	// OnRelease is called after a handle has been marked as released. Set it before the first Publish.
	OnRelease ReleaseCallback

	mu        sync.Mutex
	current   *DisplayHandle
	published uint64
	released  uint64
}

func NewPublisher(onRelease ReleaseCallback) *Publisher {
	return &Publisher{OnRelease: onRelease}
}

// Publish installs a handle for frame and releases the one it replaces before returning.
func (p *Publisher) Publish(frame Frame) *DisplayHandle {
	handle := &DisplayHandle{
		ID:        rand.GenerateUuid(),
		Frame:     frame,
		CreatedAt: time.Now(),
	}

	p.mu.Lock()
	previous := p.current
	p.current = handle
	p.published++
	released := p.markReleased(previous)
	p.mu.Unlock()

	if released {
		p.notify(previous)
	}
	return handle
}

// Clear releases the current handle, if any, without installing a new one.
func (p *Publisher) Clear() {
	p.mu.Lock()
	previous := p.current
	p.current = nil
	released := p.markReleased(previous)
	p.mu.Unlock()

	if released {
		p.notify(previous)
	}
}

// Current returns the live handle, or nil.
func (p *Publisher) Current() *DisplayHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Live returns the number of handles published but not yet released: 0 or 1.
func (p *Publisher) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.published - p.released)
}

// markReleased must be called with p.mu held.
func (p *Publisher) markReleased(handle *DisplayHandle) bool {
	if handle == nil || !handle.released.CompareAndSwap(false, true) {
		return false
	}
	p.released++
	return true
}

func (p *Publisher) notify(handle *DisplayHandle) {
	if p.OnRelease != nil {
		p.OnRelease(handle)
	}
}
