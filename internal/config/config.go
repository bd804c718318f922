package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Session Session `yaml:"session"`
}

// Session holds the live-session limits. Zero values mean "use the default".
type Session struct {
	Countdown        string `yaml:"countdown"`
	MaxActivePerQuiz int    `yaml:"maxActivePerQuiz"`
	MaxAutoStart     int    `yaml:"maxAutoStart"`
	ScorePrecision   *int   `yaml:"scorePrecision"`
}

// Precision returns the configured score precision or fallback when unset.
func (s Session) Precision(fallback int) int {
	if s.ScorePrecision == nil || *s.ScorePrecision < 0 {
		return fallback
	}
	return *s.ScorePrecision
}

// Load reads YAML config from path. An empty path yields the zero Config so
// the server can run on flags and environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
