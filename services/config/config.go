// Package config resolves the device configuration and publishes each
// section as a retained message on config/<section>.
//
// Configuration is YAML. A per-device default is compiled in; host builds
// may overlay a file on top of it.
package config

import (
	"context"
	"errors"
	"os"

	"quizcam-go/bus"
	"quizcam-go/errcode"
	"quizcam-go/x/mathx"

	"gopkg.in/yaml.v3"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// ---- schema ----

type Config struct {
	Device    string          `yaml:"device"`
	Board     BoardConfig     `yaml:"board"`
	Camera    CameraConfig    `yaml:"camera"`
	Questions QuestionsConfig `yaml:"questions"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Storage   StorageConfig   `yaml:"storage"`
	Button    ButtonConfig    `yaml:"button"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

type BoardConfig struct {
	Serial SerialConfig `yaml:"serial"`
	Pins   PinsConfig   `yaml:"pins"`
	I2CHz  uint32       `yaml:"i2c_hz"`
	XCLKHz uint32       `yaml:"xclk_hz"`
	// TestFrame is a JPEG file the simulated sensor streams; empty selects
	// a generated test pattern.
	TestFrame       string `yaml:"test_frame"`
	FrameIntervalMs int    `yaml:"frame_interval_ms"`
}

type SerialConfig struct {
	// Address is a device path, or "stdio" for the process's own streams.
	Address   string `yaml:"address"`
	Baud      int    `yaml:"baud"`
	DataBits  int    `yaml:"data_bits"`
	StopBits  int    `yaml:"stop_bits"`
	Parity    string `yaml:"parity"` // "N", "E", "O"
	TimeoutMs int    `yaml:"timeout_ms"`
}

type PinsConfig struct {
	Reset     int `yaml:"reset"`
	PowerDown int `yaml:"power_down"`
	XCLK      int `yaml:"xclk"`
	SDA       int `yaml:"sda"`
	SCL       int `yaml:"scl"`
	UartTX    int `yaml:"uart_tx"`
	UartRX    int `yaml:"uart_rx"`
	Button    int `yaml:"button"`
	StatusLED int `yaml:"status_led"`
	SaveLED   int `yaml:"save_led"`
	CardDet   int `yaml:"card_detect"`
}

type CameraConfig struct {
	FrameStoreSize  int    `yaml:"frame_store_size"`
	Resolution      string `yaml:"resolution"`
	ResetSettleMs   int    `yaml:"reset_settle_ms"`
	JPEGSettleMs    int    `yaml:"jpeg_settle_ms"`
	StreamSettleMs  int    `yaml:"stream_settle_ms"`
	TransferWaitMs  int    `yaml:"transfer_wait_ms"`
	IndicatorHoldMs int    `yaml:"indicator_hold_ms"`
}

type QuestionsConfig struct {
	File string `yaml:"file"`
}

type ProtocolConfig struct {
	PowerSettleMs int `yaml:"power_settle_ms"`
	MarkDelayMs   int `yaml:"mark_delay_ms"`
}

type StorageConfig struct {
	// Dir is the media root on host builds.
	Dir         string `yaml:"dir"`
	PollMs      int    `yaml:"poll_ms"`
	StablePolls int    `yaml:"stable_polls"`
}

type ButtonConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DebounceMs int    `yaml:"debounce_ms"`
	Prefix     string `yaml:"prefix"`
}

type HeartbeatConfig struct {
	MountedMs   int `yaml:"mounted_ms"`
	UnmountedMs int `yaml:"unmounted_ms"`
}

type BridgeConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Broker   string   `yaml:"broker"`
	ClientID string   `yaml:"client_id"`
	Prefix   string   `yaml:"prefix"`
	QoS      byte     `yaml:"qos"`
	Topics   []string `yaml:"topics"`
	// PublishImages forwards every saved JPEG, base64 encoded.
	PublishImages bool `yaml:"publish_images"`
}

// ---- loading ----

// Parse decodes raw over a copy of base.
func Parse(base Config, raw []byte) (Config, error) {
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errcode.Wrap(errcode.InvalidParams, "config.parse", err)
	}
	cfg.normalise()
	return cfg, nil
}

// Embedded returns the compiled-in configuration for device.
func Embedded(device string) (Config, error) {
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return Config{}, &errcode.E{C: errcode.InvalidParams, Op: "config.embedded", Msg: "no embedded config for device: " + device}
	}
	cfg, err := Parse(Config{}, raw)
	if err != nil {
		return Config{}, err
	}
	if cfg.Device == "" {
		cfg.Device = device
	}
	return cfg, nil
}

// Load resolves device's embedded config and overlays the YAML file at
// path when path is non-empty.
func Load(device, path string) (Config, error) {
	cfg, err := Embedded(device)
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errcode.Wrap(errcode.OpenFailed, "config.load", err)
	}
	return Parse(cfg, raw)
}

func (c *Config) normalise() {
	c.Board.Serial.Baud = mathx.OrDefault(c.Board.Serial.Baud, 38400)
	c.Board.Serial.DataBits = mathx.Clamp(mathx.OrDefault(c.Board.Serial.DataBits, 8), 5, 8)
	c.Board.Serial.StopBits = mathx.Clamp(mathx.OrDefault(c.Board.Serial.StopBits, 1), 1, 2)
	c.Board.Serial.Parity = mathx.OrDefault(c.Board.Serial.Parity, "N")
	c.Board.I2CHz = mathx.OrDefault(c.Board.I2CHz, uint32(100_000))
	c.Board.XCLKHz = mathx.OrDefault(c.Board.XCLKHz, uint32(20_000_000))

	c.Camera.FrameStoreSize = mathx.Clamp(mathx.OrDefault(c.Camera.FrameStoreSize, 100000), 1024, 1<<20)
	c.Camera.Resolution = mathx.OrDefault(c.Camera.Resolution, "1024x768")

	c.Questions.File = mathx.OrDefault(c.Questions.File, "q.txt")

	c.Storage.Dir = mathx.OrDefault(c.Storage.Dir, "media")
	c.Storage.PollMs = mathx.Clamp(mathx.OrDefault(c.Storage.PollMs, 10), 1, 1000)
	c.Storage.StablePolls = mathx.Clamp(mathx.OrDefault(c.Storage.StablePolls, 10), 1, 100)

	c.Button.DebounceMs = mathx.Clamp(mathx.OrDefault(c.Button.DebounceMs, 50), 0, 1000)
	c.Button.Prefix = mathx.OrDefault(c.Button.Prefix, "IMG")

	c.Heartbeat.MountedMs = mathx.Clamp(mathx.OrDefault(c.Heartbeat.MountedMs, 125), 10, 10000)
	c.Heartbeat.UnmountedMs = mathx.Clamp(mathx.OrDefault(c.Heartbeat.UnmountedMs, 500), 10, 10000)

	c.Bridge.Prefix = mathx.OrDefault(c.Bridge.Prefix, "quizcam")
	c.Bridge.QoS = mathx.Clamp(c.Bridge.QoS, 0, 2)
	if len(c.Bridge.Topics) == 0 {
		c.Bridge.Topics = []string{"camera/#", "storage/#", "questions/#"}
	}
}

// ---- publishing ----

// Publish emits every section as a retained message.
func Publish(conn *bus.Connection, cfg Config) {
	sections := []struct {
		name string
		v    any
	}{
		{"board", cfg.Board},
		{"camera", cfg.Camera},
		{"questions", cfg.Questions},
		{"protocol", cfg.Protocol},
		{"storage", cfg.Storage},
		{"button", cfg.Button},
		{"heartbeat", cfg.Heartbeat},
		{"bridge", cfg.Bridge},
	}
	for _, s := range sections {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, s.name), s.v, true))
	}
}

// ConfigService publishes the configuration of the device named in ctx.
type ConfigService struct {
	Name string
	Path string // optional overlay file
}

func NewConfigService(path string) *ConfigService {
	return &ConfigService{Name: serviceName, Path: path}
}

func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) (Config, error) {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return Config{}, errors.New("missing device ID in context")
	}
	cfg, err := Load(device, s.Path)
	if err != nil {
		return Config{}, err
	}
	Publish(conn, cfg)
	return cfg, nil
}

// Start resolves and publishes the configuration. It returns the resolved
// config so callers can wire services synchronously.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) (Config, error) {
	cfg, err := s.publishConfig(ctx, conn)
	if err != nil {
		println("[config] " + err.Error())
	}
	return cfg, err
}
