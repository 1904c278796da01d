package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset720p    = "720p"
	PresetLow     = "low"
	PresetZoom2x  = "zoom2x"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLegacy:  LegacyConfig(),
		Preset720p:    HD720Config(),
		PresetLow:     LowConfig(),
		PresetZoom2x:  Zoom2xConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset720p,
		PresetLow,
		PresetZoom2x,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LegacyConfig matches the detection page: any camera, paced at 10 fps.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Facing = ""
	cfg.Framerate = 10
	return cfg
}

// HD720Config returns 720p HD configuration.
// More detail for the detector at roughly twice the bandwidth.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	cfg.Quality = 85
	return cfg
}

// LowConfig is for slow links.
func LowConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 15
	cfg.Quality = 60
	return cfg
}

// Zoom2xConfig returns 2x digital zoom configuration.
func Zoom2xConfig() Config {
	cfg := DefaultConfig()
	cfg.ZoomLevel = 2.0
	return cfg
}
