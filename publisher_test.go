package mjpeg

import (
	"sync"
	"testing"
)

func TestPublisher_ReleasesPreviousHandle(t *testing.T) {
	var released []*DisplayHandle
	p := NewPublisher(func(h *DisplayHandle) {
		released = append(released, h)
	})

	first := p.Publish(Frame{Seq: 1, Payload: []byte{1}})
	if p.Live() != 1 || p.Current() != first {
		t.Fatalf("expected the first handle to be live")
	}

	second := p.Publish(Frame{Seq: 2, Payload: []byte{2}})
	if !first.Released() {
		t.Errorf("expected the first handle to be released")
	}
	if second.Released() {
		t.Errorf("expected the second handle to be live")
	}
	if p.Live() != 1 {
		t.Errorf("expected 1 live handle, but got %d", p.Live())
	}
	if len(released) != 1 || released[0] != first {
		t.Errorf("expected exactly the first handle to be reported, got %d releases", len(released))
	}
	if first.ID == second.ID {
		t.Errorf("expected distinct handle ids")
	}
}

func TestPublisher_Clear(t *testing.T) {
	releases := 0
	p := NewPublisher(func(*DisplayHandle) { releases++ })

	p.Clear()
	if releases != 0 {
		t.Fatalf("expected Clear on an empty publisher to release nothing")
	}

	h := p.Publish(Frame{Seq: 1, Payload: []byte{1}})
	p.Clear()
	p.Clear()
	if !h.Released() || releases != 1 {
		t.Errorf("expected one release, but got %d", releases)
	}
	if p.Current() != nil || p.Live() != 0 {
		t.Errorf("expected no live handle after Clear")
	}
}

func TestPublisher_ConcurrentPublish(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	p := NewPublisher(func(h *DisplayHandle) {
		mu.Lock()
		seen[h.ID]++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p.Publish(Frame{Seq: uint64(i + 1), Payload: []byte{byte(i)}})
				if live := p.Live(); live > 1 {
					t.Errorf("expected at most 1 live handle, but got %d", live)
				}
				if i%50 == 0 {
					p.Clear()
				}
			}
		}()
	}
	wg.Wait()
	p.Clear()

	if p.Live() != 0 {
		t.Errorf("expected no live handle, but got %d", p.Live())
	}
	if len(seen) != 8*200 {
		t.Errorf("expected %d released handles, but got %d", 8*200, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("handle %s released %d times", id, n)
		}
	}
}
