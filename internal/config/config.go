package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"show-controller/internal/logger"
)

type Config struct {
	Redis      RedisConfig      `yaml:"redis"`
	Loop       LoopConfig       `yaml:"loop"`
	Show       Params           `yaml:"show"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Log        LogConfig        `yaml:"log"`
	Sim        SimConfig        `yaml:"sim"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoopConfig struct {
	// Control loop frequency; the mode's Run is called once per period.
	RateHz int `yaml:"rate_hz"`
}

// Period returns the control period derived from RateHz.
func (l LoopConfig) Period() time.Duration {
	return time.Second / time.Duration(l.RateHz)
}

type TrajectoryConfig struct {
	Path string `yaml:"path"`
}

type HardwareConfig struct {
	Enable bool `yaml:"enable"`
	// evdev device exposing the abort switch as a key
	InputDevice string `yaml:"input_device"`
	AbortKey    int    `yaml:"abort_key"`
	// status output line driven high while the motors are armed for a show
	StatusChip int `yaml:"status_chip"`
	StatusLine int `yaml:"status_line"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type SimConfig struct {
	HomeLat   float64 `yaml:"home_lat"`
	HomeLng   float64 `yaml:"home_lng"`
	HomeAlt   float64 `yaml:"home_alt"`
	ClimbRate float64 `yaml:"climb_rate"` // m/s
	Speed     float64 `yaml:"speed"`      // m/s horizontal
}

// Default returns a configuration with every default applied.
func Default() Config {
	return Config{
		Redis: RedisConfig{Host: "127.0.0.1", Port: 6379},
		Loop:  LoopConfig{RateHz: 50},
		Show:  DefaultParams(),
		Hardware: HardwareConfig{
			InputDevice: "/dev/input/by-path/platform-gpio-keys-event",
			AbortKey:    30, // KEY_A
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3},
		Sim: SimConfig{
			HomeLat:   47.4979,
			HomeLng:   19.0402,
			HomeAlt:   110,
			ClimbRate: 1.5,
			Speed:     5,
		},
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Redis.Host == "" {
		return Config{}, fmt.Errorf("redis.host is required")
	}
	if cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535 {
		return Config{}, fmt.Errorf("redis.port must be in 1..65535")
	}
	if cfg.Loop.RateHz <= 0 || cfg.Loop.RateHz > 1000 {
		return Config{}, fmt.Errorf("loop.rate_hz must be in 1..1000")
	}
	if err := cfg.Show.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Hardware.Enable && cfg.Hardware.InputDevice == "" {
		return Config{}, fmt.Errorf("hardware.input_device is required when hardware.enable is true")
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return Config{}, fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Sim.ClimbRate <= 0 {
		cfg.Sim.ClimbRate = 1.5
	}
	if cfg.Sim.Speed <= 0 {
		cfg.Sim.Speed = 5
	}

	return cfg, nil
}
