package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "FRAMESTREAM_"

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "FRAMESTREAM_CONFIG"

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"framestream.yaml",
	"framestream.yml",
	"/etc/framestream/config.yaml",
}

// Load reads configuration with koanf from three layers:
//  1. Defaults from Default()
//  2. YAML file at path, or the first of DefaultConfigPaths found (optional)
//  3. FRAMESTREAM_* environment variables
//
// Environment names map to keys by splitting on the first underscore after
// the prefix: FRAMESTREAM_STREAM_TARGET_WIDTH -> stream.target_width.
func Load(path string) (*Config, error) {
	k, err := newKoanf(path)
	if err != nil {
		return nil, err
	}
	return unmarshal(k)
}

// LoadWithOverrides is Load followed by explicit key overrides, typically
// command line flags the user actually set.
func LoadWithOverrides(path string, overrides map[string]any) (*Config, error) {
	k, err := newKoanf(path)
	if err != nil {
		return nil, err
	}
	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("config: set %s: %w", key, err)
		}
	}
	return unmarshal(k)
}

func newKoanf(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	return k, nil
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc maps FRAMESTREAM_SECTION_KEY to section.key.
// Variables without a section (FRAMESTREAM_SERVER, FRAMESTREAM_CONFIG) are dropped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" {
		return ""
	}
	switch section {
	case "channel", "capture", "stream", "dashboard", "loopback", "logging":
		return section + "." + rest
	}
	return ""
}
