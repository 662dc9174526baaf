// Package config loads analyzer configuration from a YAML file and
// RTSA_-prefixed environment variables, and resolves named analysis
// profiles into the engine's configuration types.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/realtime-session-analyzer/internal/cycle"
	"github.com/tjfontaine/realtime-session-analyzer/internal/event"
	"github.com/tjfontaine/realtime-session-analyzer/internal/trend"
)

type Config struct {
	Profile   string          `koanf:"profile"`
	Storage   StorageConfig   `koanf:"storage"`
	Server    ServerConfig    `koanf:"server"`
	Telemetry TelemetryConfig `koanf:"telemetry"`

	// Profiles holds user-defined profiles or overrides of the built-in
	// ones, keyed by name.
	Profiles map[string]ProfileConfig `koanf:"profiles"`
}

type StorageConfig struct {
	// DSN is the sqlite database path. Empty disables persistence.
	DSN string `koanf:"dsn"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type TelemetryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Service string `koanf:"service"`
}

// ProfileConfig is the on-disk shape of an analysis profile. Event kinds
// are named by their wire-level type strings, the same way they appear in
// the logs.
type ProfileConfig struct {
	Anchor    string   `koanf:"anchor"`
	Terminals []string `koanf:"terminals"`
	Required  []string `koanf:"required"`
	MatchByID bool     `koanf:"match_by_id"`
	Split     string   `koanf:"split"`
}

// Load reads configuration from path (optional) and the environment.
// Environment keys use the RTSA_ prefix with underscores as separators,
// e.g. RTSA_SERVER_PORT=9090.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("RTSA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RTSA_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Default values
	if !k.Exists("profile") {
		k.Set("profile", "incomplete-translations")
	}
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("telemetry.service") {
		k.Set("telemetry.service", "realtime-session-analyzer")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// builtins mirror the analysis variants the tool grew out of. They can
// be overridden or extended from the config file.
var builtins = map[string]ProfileConfig{
	"delay-accumulation": {
		Anchor:    string(event.KindResponseCreated),
		Terminals: []string{string(event.KindResponseDone), string(event.KindAudioDone)},
		Required:  []string{string(event.KindResponseDone)},
		MatchByID: true,
		Split:     string(trend.SplitThirds),
	},
	"incomplete-translations": {
		Anchor:    string(event.KindSpeechStarted),
		Terminals: []string{string(event.KindResponseDone)},
		Required: []string{
			string(event.KindSpeechStarted),
			string(event.KindSpeechStopped),
			string(event.KindResponseCreated),
			string(event.KindResponseDone),
		},
		MatchByID: false,
		Split:     string(trend.SplitHalves),
	},
	"api-performance": {
		Anchor:    string(event.KindResponseCreated),
		Terminals: []string{string(event.KindResponseDone)},
		Required:  []string{string(event.KindResponseDone)},
		MatchByID: true,
		Split:     string(trend.SplitThirds),
	},
	"speech-timing": {
		Anchor:    string(event.KindSpeechStarted),
		Terminals: []string{string(event.KindResponseDone)},
		Required: []string{
			string(event.KindSpeechStarted),
			string(event.KindSpeechStopped),
			string(event.KindResponseCreated),
			string(event.KindResponseDone),
		},
		MatchByID: false,
		Split:     string(trend.SplitThirds),
	},
	"interruptions": {
		Anchor:    string(event.KindSpeechStarted),
		Terminals: []string{string(event.KindResponseDone)},
		Required:  []string{string(event.KindResponseCreated), string(event.KindResponseDone)},
		MatchByID: true,
		Split:     string(trend.SplitHalves),
	},
	"raw-events": {
		Anchor:    string(event.KindResponseCreated),
		Terminals: []string{string(event.KindResponseDone), string(event.KindAudioDone)},
		MatchByID: true,
		Split:     string(trend.SplitThirds),
	},
}

// ProfileNames returns the built-in profile names.
func ProfileNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

// ResolveProfile looks up name among the config's profiles and the
// built-ins and converts it to engine configuration. Config-file entries
// shadow built-ins of the same name.
func (c *Config) ResolveProfile(name string) (cycle.Profile, trend.Split, error) {
	pc, ok := c.Profiles[name]
	if !ok {
		pc, ok = builtins[name]
	}
	if !ok {
		return cycle.Profile{}, "", fmt.Errorf("unknown analysis profile %q", name)
	}

	anchor := event.Kind(pc.Anchor)
	if !event.Known(anchor) {
		return cycle.Profile{}, "", fmt.Errorf("profile %s: unknown anchor kind %q", name, pc.Anchor)
	}

	p := cycle.Profile{
		Name:      name,
		Anchor:    anchor,
		MatchByID: pc.MatchByID,
	}
	for _, t := range pc.Terminals {
		k := event.Kind(t)
		if !event.Known(k) {
			return cycle.Profile{}, "", fmt.Errorf("profile %s: unknown terminal kind %q", name, t)
		}
		p.Terminals = append(p.Terminals, k)
	}
	for _, req := range pc.Required {
		k := event.Kind(req)
		if !event.Known(k) {
			return cycle.Profile{}, "", fmt.Errorf("profile %s: unknown required kind %q", name, req)
		}
		p.Required = append(p.Required, k)
	}

	split := trend.Split(pc.Split)
	switch split {
	case trend.SplitThirds, trend.SplitHalves:
	case "":
		split = trend.SplitThirds
	default:
		return cycle.Profile{}, "", fmt.Errorf("profile %s: unknown split %q", name, pc.Split)
	}
	return p, split, nil
}
