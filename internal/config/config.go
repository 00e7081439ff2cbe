// Package config loads turretd's on-disk configuration. The wire format
// is TOML via BurntSushi/toml rather than the teacher's flag+env
// appConfig (cmd/can-server/config.go) — the deployed binary takes no
// flags, so there is nothing for env overrides to take precedence over;
// everything lives in one file read once at startup. validate() keeps
// the teacher's range-checking style.
package config

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the configuration file turretd reads when none is
// embedded in the working directory convention documented in the
// deployment unit; there is no flag to override it.
const DefaultPath = "turretd.toml"

type ServerConfig struct {
	Host string `toml:"host"`
	Port uint16 `toml:"port"`
}

type VideoConfig struct {
	Host    string `toml:"host"`
	Encoder string `toml:"encoder"`
	Decoder string `toml:"decoder"`
}

type ArduinoConfig struct {
	Device           string `toml:"device"`
	Baud             uint32 `toml:"baud"`
	PitchMaxSpeed    uint32 `toml:"pitch_max_speed"`
	YawMaxSpeed      uint32 `toml:"yaw_max_speed"`
	PitchHomingSpeed uint32 `toml:"pitch_homing_speed"`
	YawHomingSpeed   uint32 `toml:"yaw_homing_speed"`
}

// Config is the full recognized key set from §6 of the external
// interfaces documentation.
type Config struct {
	Server  ServerConfig      `toml:"server"`
	Video   VideoConfig       `toml:"video"`
	Arduino ArduinoConfig     `toml:"arduino"`
	Camera  map[string]string `toml:"camera"`
}

// Load decodes path into a Config and validates it.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate performs range/presence checks only; it never opens devices
// or listeners, mirroring the teacher's appConfig.validate in
// cmd/can-server/config.go.
func (c *Config) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.Server.Port == 0 {
		return errors.New("server.port must be set")
	}
	if c.Video.Host == "" {
		return errors.New("video.host must be set")
	}
	if c.Video.Encoder == "" {
		return errors.New("video.encoder must be set")
	}
	if c.Arduino.Device == "" {
		return errors.New("arduino.device must be set")
	}
	if c.Arduino.Baud == 0 {
		return errors.New("arduino.baud must be > 0")
	}
	if c.Arduino.PitchMaxSpeed == 0 {
		return errors.New("arduino.pitch_max_speed must be > 0")
	}
	if c.Arduino.YawMaxSpeed == 0 {
		return errors.New("arduino.yaw_max_speed must be > 0")
	}
	if c.Arduino.PitchHomingSpeed == 0 {
		return errors.New("arduino.pitch_homing_speed must be > 0")
	}
	if c.Arduino.YawHomingSpeed == 0 {
		return errors.New("arduino.yaw_homing_speed must be > 0")
	}
	return nil
}
