package mjpeg

import (
	"testing"
)

type fakeSubscriber struct {
	id     string
	frames []uint64
	auth   []string
	errors []string
}

func (s *fakeSubscriber) SendFrame(key string, handle *DisplayHandle) {
	s.frames = append(s.frames, handle.Frame.Seq)
}

func (s *fakeSubscriber) SendAuthRequired(key string) {
	s.auth = append(s.auth, key)
}

func (s *fakeSubscriber) SendError(key string, message string) {
	s.errors = append(s.errors, key+": "+message)
}

func (s *fakeSubscriber) GetID() string {
	return s.id
}

func TestInMemoryStore(t *testing.T) {
	store := NewInMemoryStore()
	sub := &fakeSubscriber{id: "a"}

	if err := store.RegisterSubscriber("0", sub); err != StreamNotFound {
		t.Errorf("expected StreamNotFound for an unknown camera, but got %v", err)
	}
	if _, err := store.GetSubscribersForCamera("0"); err != StreamNotFound {
		t.Errorf("expected StreamNotFound for an unknown camera, but got %v", err)
	}

	store.RegisterCamera("0")
	store.RegisterSubscriber("0", sub)
	store.RegisterSubscriber("0", &fakeSubscriber{id: "b"})
	store.RegisterSubscriber("0", &fakeSubscriber{id: "c"})
	store.RegisterCamera("0")

	subs, _ := store.GetSubscribersForCamera("0")
	if len(subs) != 3 {
		t.Fatalf("expected re-registering a camera to keep its 3 subscribers, but got %d", len(subs))
	}

	store.DestroySubscriber("0", "a")
	store.DestroySubscriber("0", "missing")
	subs, _ = store.GetSubscribersForCamera("0")
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, but got %d", len(subs))
	}
	for _, s := range subs {
		if s.GetID() == "a" {
			t.Errorf("expected subscriber a to be removed")
		}
	}

	if !store.CameraExists("0") || len(store.Cameras()) != 1 {
		t.Errorf("expected camera 0 to be the only camera")
	}
	store.DestroyCamera("0")
	if store.CameraExists("0") {
		t.Errorf("expected camera 0 to be destroyed")
	}
}

func TestBroadcaster_Sink(t *testing.T) {
	b := NewBroadcaster(nil, NewInMemoryStore())
	b.RegisterCamera("0")
	b.RegisterCamera("1")

	zero := &fakeSubscriber{id: "zero"}
	one := &fakeSubscriber{id: "one"}
	b.RegisterSubscriber("0", zero)
	b.RegisterSubscriber("1", one)

	p := NewPublisher(nil)
	sink := b.Sink("0")
	sink.OnFrame(p.Publish(Frame{Seq: 1, Payload: []byte{1}}))
	sink.OnFrame(p.Publish(Frame{Seq: 2, Payload: []byte{2}}))
	sink.OnError("HTTP 500")
	sink.OnAuthRequired()

	if len(zero.frames) != 2 || zero.frames[1] != 2 {
		t.Errorf("expected frames 1 and 2, but got %v", zero.frames)
	}
	if len(zero.errors) != 1 || zero.errors[0] != "0: HTTP 500" {
		t.Errorf("unexpected errors %v", zero.errors)
	}
	if len(zero.auth) != 1 {
		t.Errorf("expected one auth event, but got %d", len(zero.auth))
	}
	if len(one.frames)+len(one.errors)+len(one.auth) != 0 {
		t.Errorf("expected camera 1 to receive nothing")
	}

	b.DestroySubscriber("0", "zero")
	sink.OnFrame(p.Publish(Frame{Seq: 3, Payload: []byte{3}}))
	if len(zero.frames) != 2 {
		t.Errorf("expected no frames after unsubscribing")
	}

	if err := b.BroadcastFrame("missing", p.Current()); err != StreamNotFound {
		t.Errorf("expected StreamNotFound, but got %v", err)
	}
}
