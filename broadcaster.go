package mjpeg

import (
	"go.uber.org/zap"
)

// A Subscriber gets the events of the cameras it registered for. Calls for one camera are made in
// order from that camera's goroutine; a subscriber registered for several cameras must be safe
// for concurrent use. The handle passed to SendFrame must not be retained after the call returns.
type Subscriber interface {
	SendFrame(key string, handle *DisplayHandle)
	SendAuthRequired(key string)
	SendError(key string, message string)
	GetID() string
}

// Broadcaster fans the events of every camera view out to the camera's subscribers.
type Broadcaster struct {
	logger *zap.Logger
	store  SubscriberStore
}

func NewBroadcaster(logger *zap.Logger, store SubscriberStore) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		logger: logger,
		store:  store,
	}
}

func (b *Broadcaster) RegisterCamera(key string) error {
	return b.store.RegisterCamera(key)
}

func (b *Broadcaster) DestroyCamera(key string) error {
	return b.store.DestroyCamera(key)
}

func (b *Broadcaster) RegisterSubscriber(key string, subscriber Subscriber) error {
	return b.store.RegisterSubscriber(key, subscriber)
}

func (b *Broadcaster) DestroySubscriber(key string, subscriberID string) error {
	return b.store.DestroySubscriber(key, subscriberID)
}

func (b *Broadcaster) CameraExists(key string) bool {
	return b.store.CameraExists(key)
}

func (b *Broadcaster) BroadcastFrame(key string, handle *DisplayHandle) error {
	subscribers, err := b.store.GetSubscribersForCamera(key)
	if err != nil {
		b.logger.Debug("[broadcaster] BroadcastFrame: error getting subscribers for camera", zap.String("camera", key), zap.Error(err))
		return err
	}
	for _, sub := range subscribers {
		sub.SendFrame(key, handle)
	}
	return nil
}

func (b *Broadcaster) BroadcastAuthRequired(key string) error {
	subscribers, err := b.store.GetSubscribersForCamera(key)
	if err != nil {
		b.logger.Debug("[broadcaster] BroadcastAuthRequired: error getting subscribers for camera", zap.String("camera", key), zap.Error(err))
		return err
	}
	for _, sub := range subscribers {
		sub.SendAuthRequired(key)
	}
	return nil
}

func (b *Broadcaster) BroadcastError(key string, message string) error {
	subscribers, err := b.store.GetSubscribersForCamera(key)
	if err != nil {
		b.logger.Debug("[broadcaster] BroadcastError: error getting subscribers for camera", zap.String("camera", key), zap.Error(err))
		return err
	}
	for _, sub := range subscribers {
		sub.SendError(key, message)
	}
	return nil
}

// Sink returns a Sink that broadcasts the events of one camera view under key.
func (b *Broadcaster) Sink(key string) Sink {
	return &cameraSink{key: key, broadcaster: b}
}

type cameraSink struct {
	key         string
	broadcaster *Broadcaster
}

func (s *cameraSink) OnFrame(handle *DisplayHandle) {
	s.broadcaster.BroadcastFrame(s.key, handle)
}

func (s *cameraSink) OnAuthRequired() {
	s.broadcaster.BroadcastAuthRequired(s.key)
}

func (s *cameraSink) OnError(message string) {
	s.broadcaster.BroadcastError(s.key, message)
}
