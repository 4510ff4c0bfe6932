// Package filesink keeps the latest frame of every camera on disk, so other tools can pick up a
// current snapshot without holding a stream open.
package filesink

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/mjpeg"
	"github.com/torresjeff/mjpeg/rand"
	"go.uber.org/zap"
)

// Saver is a mjpeg.Subscriber writing <dir>/camera-<key>.jpg. It is safe for concurrent use.
type Saver struct {
	logger      *zap.Logger
	id          string
	dir         string
	minInterval time.Duration

	mu        sync.Mutex
	lastWrite map[string]time.Time

	saved   atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

// NewSaver creates dir if needed. Frames arriving less than minInterval after the previous write
// for the same camera are skipped.
func NewSaver(logger *zap.Logger, dir string, minInterval time.Duration) (*Saver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "filesink: create output directory")
	}
	return &Saver{
		logger:      logger,
		id:          rand.GenerateUuid(),
		dir:         dir,
		minInterval: minInterval,
		lastWrite:   make(map[string]time.Time),
	}, nil
}

func (s *Saver) GetID() string {
	return s.id
}

// Path returns the snapshot file of camera key.
func (s *Saver) Path(key string) string {
	return filepath.Join(s.dir, "camera-"+key+".jpg")
}

func (s *Saver) SendFrame(key string, handle *mjpeg.DisplayHandle) {
	now := time.Now()
	s.mu.Lock()
	if last, ok := s.lastWrite[key]; ok && now.Sub(last) < s.minInterval {
		s.mu.Unlock()
		s.skipped.Add(1)
		return
	}
	s.lastWrite[key] = now
	s.mu.Unlock()

	if err := s.write(key, handle.Frame.Payload); err != nil {
		s.failed.Add(1)
		s.logger.Error("[filesink] Error saving snapshot", zap.String("camera", key), zap.Error(err))
		return
	}
	s.saved.Add(1)
}

// SendAuthRequired and SendError remove the snapshot so a stale frame isn't mistaken for a live one.
func (s *Saver) SendAuthRequired(key string) {
	s.remove(key)
}

func (s *Saver) SendError(key string, message string) {
	s.remove(key)
}

// Stats returns the number of saved, throttled and failed writes.
func (s *Saver) Stats() (saved, skipped, failed uint64) {
	return s.saved.Load(), s.skipped.Load(), s.failed.Load()
}

// write replaces the snapshot atomically through a temp file in the same directory.
func (s *Saver) write(key string, payload []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".camera-"+key+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.Path(key)), "rename snapshot")
}

func (s *Saver) remove(key string) {
	s.mu.Lock()
	delete(s.lastWrite, key)
	s.mu.Unlock()
	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("[filesink] Error removing snapshot", zap.String("camera", key), zap.Error(err))
	}
}
