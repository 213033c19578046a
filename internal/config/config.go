// Package config loads the powerctl configuration file.
// A missing file yields the defaults; fields left out of the file keep theirs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/powerctl/internal/ble"
	"github.com/sweeney/powerctl/internal/debounce"
	"github.com/sweeney/powerctl/internal/device"
	"github.com/sweeney/powerctl/internal/event"
	"github.com/sweeney/powerctl/internal/gpio"
	"github.com/sweeney/powerctl/internal/platform"
	"github.com/sweeney/powerctl/internal/power"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/powerctl/config.yaml"

// Config is the whole configuration file.
type Config struct {
	GPIO     GPIOConfig     `yaml:"gpio"`
	Debounce DebounceConfig `yaml:"debounce"`
	Power    PowerConfig    `yaml:"power"`
	BLE      BLEConfig      `yaml:"ble"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// GPIOConfig holds the line assignments (BCM numbering).
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	Button    int    `yaml:"button"`
	Indicator int    `yaml:"indicator"`
	Controls  []int  `yaml:"controls"`
}

// DebounceConfig holds the sampling timer settings.
type DebounceConfig struct {
	Period      time.Duration `yaml:"period"`
	Ticks       int           `yaml:"ticks"`
	MaxArmTicks int           `yaml:"max_arm_ticks"`
}

// PowerConfig holds the hold thresholds and the platform options.
type PowerConfig struct {
	SystemOnThreshold time.Duration `yaml:"system_on_threshold"`
	PairingThreshold  time.Duration `yaml:"pairing_threshold"`
	PowerOffHold      time.Duration `yaml:"power_off_hold"`
	DryRun            bool          `yaml:"dry_run"`
	Clock             string        `yaml:"clock"`
}

// BLEConfig holds the service identity and advertising payload.
type BLEConfig struct {
	LocalName         string   `yaml:"local_name"`
	ManufacturerID    uint16   `yaml:"manufacturer_id"`
	Features          []int    `yaml:"features"`
	ServiceUUID       string   `yaml:"service_uuid"`
	ControlPointUUIDs []string `yaml:"control_point_uuids"`
}

// MQTTConfig holds the telemetry settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	Heartbeat string `yaml:"heartbeat"`
}

// HTTPConfig holds the status server settings. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the stock configuration.
func Default() *Config {
	features := make([]int, ble.NumFeatures)
	for i, b := range ble.DefaultAdvertisement.Features {
		features[i] = int(b)
	}
	cps := make([]string, ble.NumControlPoints)
	for i, u := range ble.ControlPointUUIDs {
		cps[i] = u.String()
	}
	return &Config{
		GPIO: GPIOConfig{
			Chip:      gpio.DefaultChip,
			Button:    gpio.DefaultPinButton,
			Indicator: gpio.DefaultPinIndicator,
			Controls:  append([]int(nil), gpio.DefaultPinsControl...),
		},
		Debounce: DebounceConfig{
			Period: debounce.DefaultPeriod,
			Ticks:  debounce.DefaultTicks,
		},
		Power: PowerConfig{
			SystemOnThreshold: power.DefaultThresholds.SystemOn,
			PairingThreshold:  power.DefaultThresholds.Pairing,
			PowerOffHold:      power.DefaultThresholds.PowerOffHold,
			Clock:             platform.ClockProcess,
		},
		BLE: BLEConfig{
			ManufacturerID:    ble.DefaultAdvertisement.ManufacturerID,
			Features:          features,
			ServiceUUID:       ble.ServiceUUID.String(),
			ControlPointUUIDs: cps,
		},
		MQTT: MQTTConfig{
			Broker:    "tcp://localhost:1883",
			ClientID:  "powerctl",
			Heartbeat: "@every 15m",
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
	}
}

// Load reads path over the defaults and validates the result. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.GPIO.Chip == "" {
		add("gpio.chip: must be set")
	}
	if len(c.GPIO.Controls) != ble.NumControlPoints {
		add("gpio.controls: want %d pins, got %d", ble.NumControlPoints, len(c.GPIO.Controls))
	}

	if c.Debounce.Period <= 0 {
		add("debounce.period: must be positive, got %v", c.Debounce.Period)
	}
	if c.Debounce.Ticks <= 0 {
		add("debounce.ticks: must be positive, got %d", c.Debounce.Ticks)
	}
	if c.Debounce.MaxArmTicks < 0 {
		add("debounce.max_arm_ticks: must not be negative, got %d", c.Debounce.MaxArmTicks)
	}

	if c.Power.SystemOnThreshold <= 0 {
		add("power.system_on_threshold: must be positive, got %v", c.Power.SystemOnThreshold)
	}
	if c.Power.PairingThreshold < c.Power.SystemOnThreshold {
		add("power.pairing_threshold: %v is below system_on_threshold %v", c.Power.PairingThreshold, c.Power.SystemOnThreshold)
	}
	if c.Power.PowerOffHold <= 0 {
		add("power.power_off_hold: must be positive, got %v", c.Power.PowerOffHold)
	}
	if _, err := platform.NewClock(c.Power.Clock); err != nil {
		add("power.clock: %w", err)
	}

	if len(c.BLE.Features) != ble.NumFeatures {
		add("ble.features: want %d bytes, got %d", ble.NumFeatures, len(c.BLE.Features))
	}
	for i, f := range c.BLE.Features {
		if f < 0 || f > 0xFF {
			add("ble.features[%d]: %d is not a byte", i, f)
		}
	}
	if _, err := uuid.Parse(c.BLE.ServiceUUID); err != nil {
		add("ble.service_uuid: %w", err)
	}
	if len(c.BLE.ControlPointUUIDs) != ble.NumControlPoints {
		add("ble.control_point_uuids: want %d, got %d", ble.NumControlPoints, len(c.BLE.ControlPointUUIDs))
	}
	for i, s := range c.BLE.ControlPointUUIDs {
		if _, err := uuid.Parse(s); err != nil {
			add("ble.control_point_uuids[%d]: %w", i, err)
		}
	}

	if c.MQTT.Heartbeat != "" {
		if _, err := cron.ParseStandard(c.MQTT.Heartbeat); err != nil {
			add("mqtt.heartbeat: %w", err)
		}
	}

	return errors.Join(errs...)
}

// Device converts the validated config into the device settings.
func (c *Config) Device() device.Config {
	adv := ble.Advertisement{
		LocalName:      c.BLE.LocalName,
		ManufacturerID: c.BLE.ManufacturerID,
	}
	for i := 0; i < ble.NumFeatures && i < len(c.BLE.Features); i++ {
		adv.Features[i] = byte(c.BLE.Features[i])
	}

	// Validate has checked the UUIDs; a zero UUID falls back to the default.
	bc := ble.Config{Advertisement: adv}
	bc.ServiceUUID, _ = uuid.Parse(c.BLE.ServiceUUID)
	for i := 0; i < ble.NumControlPoints && i < len(c.BLE.ControlPointUUIDs); i++ {
		bc.ControlPointUUIDs[i], _ = uuid.Parse(c.BLE.ControlPointUUIDs[i])
	}

	return device.Config{
		PoolSize: event.DefaultPoolSize,
		Debounce: debounce.Config{
			Period:      c.Debounce.Period,
			Ticks:       c.Debounce.Ticks,
			MaxArmTicks: c.Debounce.MaxArmTicks,
		},
		Thresholds: power.Thresholds{
			SystemOn:     c.Power.SystemOnThreshold,
			Pairing:      c.Power.PairingThreshold,
			PowerOffHold: c.Power.PowerOffHold,
		},
		BLE: bc,
	}
}
