package mjpeg

import (
	"sync"

	"github.com/pkg/errors"
)

// SubscriberStore keeps the subscribers of every camera key.
type SubscriberStore interface {
	RegisterCamera(key string) error
	DestroyCamera(key string) error
	RegisterSubscriber(key string, subscriber Subscriber) error
	GetSubscribersForCamera(key string) ([]Subscriber, error)
	DestroySubscriber(key string, subscriberID string) error
	CameraExists(key string) bool
	Cameras() []string
}

type InMemoryStore struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
}

var StreamNotFound = errors.New("StreamNotFound")

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subscribers: make(map[string][]Subscriber),
	}
}

// RegisterCamera makes key available for subscription. Registering an existing key keeps its subscribers.
func (s *InMemoryStore) RegisterCamera(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subscribers[key]; !exists {
		// a camera typically has a relay, a snapshot saver and an event emitter
		s.subscribers[key] = make([]Subscriber, 0, 4)
	}
	return nil
}

func (s *InMemoryStore) DestroyCamera(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, key)
	return nil
}

func (s *InMemoryStore) RegisterSubscriber(key string, subscriber Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subscribers[key]; exists {
		s.subscribers[key] = append(s.subscribers[key], subscriber)
		return nil
	}
	return StreamNotFound
}

func (s *InMemoryStore) CameraExists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.subscribers[key]
	return exists
}

// GetSubscribersForCamera returns a copy of the camera's subscribers, so callers may iterate
// without holding the lock.
func (s *InMemoryStore) GetSubscribersForCamera(key string) ([]Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if subscribers, exists := s.subscribers[key]; exists {
		out := make([]Subscriber, len(subscribers))
		copy(out, subscribers)
		return out, nil
	}
	return nil, StreamNotFound
}

func (s *InMemoryStore) DestroySubscriber(key string, subscriberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscribers, exists := s.subscribers[key]
	if !exists {
		return nil
	}
	for i, sub := range subscribers {
		if sub.GetID() == subscriberID {
			// swap with the last element instead of shifting
			last := len(subscribers) - 1
			subscribers[i] = subscribers[last]
			subscribers[last] = nil
			s.subscribers[key] = subscribers[:last]
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) Cameras() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.subscribers))
	for key := range s.subscribers {
		keys = append(keys, key)
	}
	return keys
}
