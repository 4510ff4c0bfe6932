package mqttsink

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/torresjeff/mjpeg"
)

type fakeToken struct {
	mqtt.Token
	err     error
	timeout bool
}

func (t *fakeToken) WaitTimeout(time.Duration) bool {
	return !t.timeout
}

func (t *fakeToken) Error() error {
	return t.err
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	messages     []message
	token        *fakeToken
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic, qos, retained, payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func (c *fakeClient) IsConnected() bool {
	return true
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) sent() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func waitForStats(t *testing.T, e *Emitter, published, failures uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		p, f := e.Stats()
		if p == published && f == failures {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d published and %d failures, got %d and %d", published, failures, p, f)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmitter_PublishesStateChanges(t *testing.T) {
	client := &fakeClient{}
	e := NewEmitter(nil, client, "hootcam/cameras")
	p := mjpeg.NewPublisher(nil)

	e.SendFrame("0", p.Publish(mjpeg.Frame{Seq: 1, Payload: []byte{1}}))
	e.SendFrame("0", p.Publish(mjpeg.Frame{Seq: 2, Payload: []byte{2}}))
	e.SendError("0", "HTTP 500")
	e.SendFrame("0", p.Publish(mjpeg.Frame{Seq: 1, Payload: []byte{1}}))
	e.SendAuthRequired("1")

	waitForStats(t, e, 4, 0)
	sent := client.sent()
	want := []struct {
		topic   string
		state   string
		message string
	}{
		{"hootcam/cameras/0/state", "streaming", ""},
		{"hootcam/cameras/0/state", "failed", "HTTP 500"},
		{"hootcam/cameras/0/state", "streaming", ""},
		{"hootcam/cameras/1/state", "auth_required", ""},
	}
	if len(sent) != len(want) {
		t.Fatalf("expected %d messages, but got %d", len(want), len(sent))
	}
	for i, w := range want {
		var event StateEvent
		if err := json.Unmarshal(sent[i].payload, &event); err != nil {
			t.Fatal(err)
		}
		if sent[i].topic != w.topic || event.State != w.state || event.Message != w.message {
			t.Errorf("message %d: got %s %+v, want %s %s %q", i, sent[i].topic, event, w.topic, w.state, w.message)
		}
		if !sent[i].retained || sent[i].qos != 1 || event.Timestamp == 0 {
			t.Errorf("message %d: expected a retained qos 1 event with a timestamp", i)
		}
	}
}

func TestEmitter_CountsFailures(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"error", &fakeToken{err: errors.New("not connected")}},
		{"timeout", &fakeToken{timeout: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter(nil, &fakeClient{token: tt.token}, "cams")
			e.SendError("0", "boom")
			waitForStats(t, e, 0, 1)
		})
	}
}

func TestEmitter_Disconnect(t *testing.T) {
	client := &fakeClient{}
	e := NewEmitter(nil, client, "cams")
	e.Disconnect()
	if !client.disconnected {
		t.Errorf("expected the client to be disconnected")
	}
	if e.GetID() == "" {
		t.Errorf("expected an emitter id")
	}
}
