package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the viewer configuration loaded from YAML.
type File struct {
	ServerURL string        `yaml:"server_url"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Cameras   []int         `yaml:"cameras"`
	StallS    int           `yaml:"stall_timeout_s"` // 0 disables the watchdog
	Reconnect ReconnectFile `yaml:"reconnect"`
	Relay     RelayFile     `yaml:"relay"`
	Snapshots SnapshotsFile `yaml:"snapshots"`
	MQTT      MQTTFile      `yaml:"mqtt"`
	Log       LogFile       `yaml:"log"`
}

type ReconnectFile struct {
	MaxRetries      int `yaml:"max_retries"` // 0 disables reconnection
	RetryDelayMs    int `yaml:"retry_delay_ms"`
	MaxRetryDelayMs int `yaml:"max_retry_delay_ms"`
}

type RelayFile struct {
	Addr string `yaml:"addr"` // empty disables the websocket relay
}

type SnapshotsFile struct {
	Dir           string `yaml:"dir"` // empty disables snapshots
	MinIntervalMs int    `yaml:"min_interval_ms"`
}

type MQTTFile struct {
	Broker   string `yaml:"broker"` // host:port, empty disables MQTT
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type LogFile struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads and validates the YAML config at path. Defaults are applied before validation.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read file")
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a File, applying defaults and the server URL env override.
func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) applyDefaults() {
	if url := strings.TrimSpace(os.Getenv(ServerURLEnv)); url != "" {
		f.ServerURL = url
	}
	if strings.TrimSpace(f.ServerURL) == "" {
		f.ServerURL = DefaultServerURL
	}
	f.ServerURL = strings.TrimRight(strings.TrimSpace(f.ServerURL), "/")
	if len(f.Cameras) == 0 {
		f.Cameras = []int{0}
	}
	if f.Reconnect.RetryDelayMs == 0 {
		f.Reconnect.RetryDelayMs = 1000
	}
	if f.Reconnect.MaxRetryDelayMs == 0 {
		f.Reconnect.MaxRetryDelayMs = 30000
	}
	if f.MQTT.Topic == "" {
		f.MQTT.Topic = "hootcam/cameras"
	}
	if f.Log.Level == "" {
		f.Log.Level = "info"
	}
}

// Validate reports the first invalid setting.
func (f *File) Validate() error {
	if !strings.HasPrefix(f.ServerURL, "http://") && !strings.HasPrefix(f.ServerURL, "https://") {
		return errors.Errorf("config: server_url must be http or https, got %q", f.ServerURL)
	}
	if (f.Username == "") != (f.Password == "") {
		return errors.New("config: username and password must be set together")
	}
	seen := make(map[int]bool, len(f.Cameras))
	for _, c := range f.Cameras {
		if c < 0 {
			return errors.Errorf("config: invalid camera index %d", c)
		}
		if seen[c] {
			return errors.Errorf("config: duplicate camera index %d", c)
		}
		seen[c] = true
	}
	if f.StallS < 0 || f.Reconnect.MaxRetries < 0 || f.Snapshots.MinIntervalMs < 0 {
		return errors.New("config: negative durations and retry counts are not allowed")
	}
	if f.Reconnect.MaxRetryDelayMs < f.Reconnect.RetryDelayMs {
		return errors.New("config: reconnect max_retry_delay_ms is lower than retry_delay_ms")
	}
	switch f.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("config: unknown log level %q", f.Log.Level)
	}
	return nil
}

func (f *File) StallTimeout() time.Duration {
	return time.Duration(f.StallS) * time.Second
}

func (f *File) RetryDelay() time.Duration {
	return time.Duration(f.Reconnect.RetryDelayMs) * time.Millisecond
}

func (f *File) MaxRetryDelay() time.Duration {
	return time.Duration(f.Reconnect.MaxRetryDelayMs) * time.Millisecond
}

func (f *File) SnapshotInterval() time.Duration {
	return time.Duration(f.Snapshots.MinIntervalMs) * time.Millisecond
}
