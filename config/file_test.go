package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv(ServerURLEnv, "")
	f, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if f.ServerURL != DefaultServerURL {
		t.Errorf("expected %q, but got %q", DefaultServerURL, f.ServerURL)
	}
	if len(f.Cameras) != 1 || f.Cameras[0] != 0 {
		t.Errorf("expected camera 0, but got %v", f.Cameras)
	}
	if f.RetryDelay() != time.Second || f.MaxRetryDelay() != 30*time.Second {
		t.Errorf("unexpected retry delays %v %v", f.RetryDelay(), f.MaxRetryDelay())
	}
	if f.StallTimeout() != 0 || f.Reconnect.MaxRetries != 0 {
		t.Errorf("expected the watchdog and reconnection to be off by default")
	}
	if f.MQTT.Topic != "hootcam/cameras" || f.Log.Level != "info" {
		t.Errorf("unexpected defaults %+v %+v", f.MQTT, f.Log)
	}
}

func TestParse_File(t *testing.T) {
	t.Setenv(ServerURLEnv, "")
	data := `
server_url: http://owl.local:8080/
username: owl
password: hoot
cameras: [0, 2]
stall_timeout_s: 10
reconnect:
  max_retries: 3
  retry_delay_ms: 500
  max_retry_delay_ms: 4000
relay:
  addr: ":8090"
snapshots:
  dir: /tmp/snapshots
  min_interval_ms: 1000
mqtt:
  broker: localhost:1883
log:
  level: debug
  development: true
`
	f, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if f.ServerURL != "http://owl.local:8080" {
		t.Errorf("expected the trailing slash to be trimmed, got %q", f.ServerURL)
	}
	if len(f.Cameras) != 2 || f.Cameras[1] != 2 {
		t.Errorf("unexpected cameras %v", f.Cameras)
	}
	if f.StallTimeout() != 10*time.Second || f.RetryDelay() != 500*time.Millisecond || f.SnapshotInterval() != time.Second {
		t.Errorf("unexpected durations")
	}
	if f.Relay.Addr != ":8090" || f.MQTT.Broker != "localhost:1883" || !f.Log.Development {
		t.Errorf("unexpected nested sections %+v %+v %+v", f.Relay, f.MQTT, f.Log)
	}
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv(ServerURLEnv, "https://cams.example.org/")
	f, err := Parse([]byte("server_url: http://ignored:8080"))
	if err != nil {
		t.Fatal(err)
	}
	if f.ServerURL != "https://cams.example.org" {
		t.Errorf("expected the env value to win, got %q", f.ServerURL)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv(ServerURLEnv, "")
	tests := []struct {
		name string
		data string
		want string
	}{
		{"badYaml", "cameras: [", "parse yaml"},
		{"scheme", "server_url: ftp://owl", "server_url"},
		{"halfCredentials", "username: owl", "username and password"},
		{"negativeCamera", "cameras: [-1]", "invalid camera"},
		{"duplicateCamera", "cameras: [1, 1]", "duplicate camera"},
		{"negativeStall", "stall_timeout_s: -1", "negative"},
		{"delays", "reconnect: {retry_delay_ms: 5000, max_retry_delay_ms: 100}", "max_retry_delay_ms"},
		{"logLevel", "log: {level: loud}", "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected an error mentioning %q, but got %v", tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(ServerURLEnv, "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "mjpegview.yaml")
	if err := os.WriteFile(path, []byte("cameras: [4]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Cameras[0] != 4 {
		t.Errorf("expected camera 4, but got %v", f.Cameras)
	}
}
