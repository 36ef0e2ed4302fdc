package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig     `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Timing   TimingConfig   `mapstructure:"timing" yaml:"timing"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Waveform WaveformConfig `mapstructure:"waveform" yaml:"waveform"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// InheritanceInfo records, per setting, "inherited" or "profile-specific"
type InheritanceInfo struct {
	Timing struct {
		MaxDuration  string
		TickInterval string
	}
	Audio struct {
		Backend    string
		Output     string
		SampleRate string
	}
	Waveform struct {
		Geometry string
		Scale    string
	}
	Output struct {
		Directory string
		FileName  string
	}
}

// TimingConfig holds the only two tunable timing knobs of the engine
type TimingConfig struct {
	MaxDurationMs  int `mapstructure:"max_duration_ms" yaml:"max_duration_ms"`
	TickIntervalMs int `mapstructure:"tick_interval_ms" yaml:"tick_interval_ms"`
}

func (t TimingConfig) MaxDuration() time.Duration {
	return time.Duration(t.MaxDurationMs) * time.Millisecond
}

func (t TimingConfig) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMs) * time.Millisecond
}

type AudioConfig struct {
	Backend    string  `mapstructure:"backend" yaml:"backend"` // "tone", "portaudio", "auto"
	Output     string  `mapstructure:"output" yaml:"output"`   // "portaudio", "external", "silent", "auto"
	SampleRate int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	ToneHz     float64 `mapstructure:"tone_hz" yaml:"tone_hz"`
}

type WaveformConfig struct {
	BarWidth               float64 `mapstructure:"bar_width" yaml:"bar_width"`
	BarSpacing             float64 `mapstructure:"bar_spacing" yaml:"bar_spacing"`
	ViewportWidth          float64 `mapstructure:"viewport_width" yaml:"viewport_width"`
	MaxReportableAmplitude uint32  `mapstructure:"max_reportable_amplitude" yaml:"max_reportable_amplitude"`
	MaxBarHeight           int     `mapstructure:"max_bar_height" yaml:"max_bar_height"`
	MinBarHeight           int     `mapstructure:"min_bar_height" yaml:"min_bar_height"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	FileName  string `mapstructure:"file_name" yaml:"file_name"`
}

// WorkingFile is the single file recordings are written to and played from
func (o OutputConfig) WorkingFile() string {
	return filepath.Join(o.Directory, o.FileName)
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a copy of the built-in configuration
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

var defaultConfig = Config{
	Timing: TimingConfig{
		MaxDurationMs:  20000,
		TickIntervalMs: 100,
	},
	Audio: AudioConfig{
		Backend:    "auto",
		Output:     "auto",
		SampleRate: 44100,
		ToneHz:     440,
	},
	Waveform: WaveformConfig{
		BarWidth:               8,
		BarSpacing:             4,
		ViewportWidth:          360,
		MaxReportableAmplitude: 22760,
		MaxBarHeight:           120,
		MinBarHeight:           12,
	},
	Output: OutputConfig{
		Directory: filepath.Join(os.TempDir(), "tapedeck"),
		FileName:  "recording.wav",
	},
	Log: LogConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
	},
}

// LoadWithProfile reads configFile, resolves the requested profile (or the
// active one) over the "default" profile and the built-in defaults, and
// validates the result. A missing file yields the built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// .env is optional; it only feeds TAPEDECK_* overrides
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Could not load .env file", "error", err)
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Config file not found, using defaults", "file", configFile)
		cfg := mergeConfigs(Default(), &Config{})
		applyEnvOverrides(cfg)
		cfg.Output.Directory = expandPath(cfg.Output.Directory)
		return cfg, validateConfig(cfg)
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Built-in defaults, then the file's default profile, then the selected one
	base := Default()
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists && defaultProfile != nil {
			base = overlay(base, defaultProfile)
		}
	}
	selectedConfig := mergeConfigs(base, selectedProfile)

	// Global output directory takes priority over profile-specific directory
	if rootConfig.Globals != nil && rootConfig.Globals.Output.Directory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.Directory
	}

	applyEnvOverrides(selectedConfig)
	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	if selectedConfig.Log.File != "" {
		selectedConfig.Log.File = expandPath(selectedConfig.Log.File)
	}

	if err := validateConfig(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// overlay copies every non-zero field of profile onto a copy of base, without
// tracking inheritance
func overlay(base, profile *Config) *Config {
	merged := mergeConfigs(base, profile)
	merged.Inheritance = nil
	return merged
}

// mergeConfigs implements the fallback model: every zero-valued setting of the
// profile falls back to base, and the origin of each group is recorded.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	result.Inheritance = &InheritanceInfo{}

	if base != nil {
		result.Timing = base.Timing
		result.Audio = base.Audio
		result.Waveform = base.Waveform
		result.Output = base.Output
		result.Log = base.Log

		result.Inheritance.Timing.MaxDuration = "inherited"
		result.Inheritance.Timing.TickInterval = "inherited"
		result.Inheritance.Audio.Backend = "inherited"
		result.Inheritance.Audio.Output = "inherited"
		result.Inheritance.Audio.SampleRate = "inherited"
		result.Inheritance.Waveform.Geometry = "inherited"
		result.Inheritance.Waveform.Scale = "inherited"
		result.Inheritance.Output.Directory = "inherited"
		result.Inheritance.Output.FileName = "inherited"
	}

	if profile == nil {
		return result
	}

	if profile.Timing.MaxDurationMs != 0 {
		result.Timing.MaxDurationMs = profile.Timing.MaxDurationMs
		result.Inheritance.Timing.MaxDuration = "profile-specific"
	}
	if profile.Timing.TickIntervalMs != 0 {
		result.Timing.TickIntervalMs = profile.Timing.TickIntervalMs
		result.Inheritance.Timing.TickInterval = "profile-specific"
	}

	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
		result.Inheritance.Audio.Backend = "profile-specific"
	}
	if profile.Audio.Output != "" {
		result.Audio.Output = profile.Audio.Output
		result.Inheritance.Audio.Output = "profile-specific"
	}
	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
		result.Inheritance.Audio.SampleRate = "profile-specific"
	}
	if profile.Audio.ToneHz != 0 {
		result.Audio.ToneHz = profile.Audio.ToneHz
	}

	w := profile.Waveform
	if w.BarWidth != 0 || w.BarSpacing != 0 || w.ViewportWidth != 0 {
		result.Inheritance.Waveform.Geometry = "profile-specific"
	}
	if w.BarWidth != 0 {
		result.Waveform.BarWidth = w.BarWidth
	}
	if w.BarSpacing != 0 {
		result.Waveform.BarSpacing = w.BarSpacing
	}
	if w.ViewportWidth != 0 {
		result.Waveform.ViewportWidth = w.ViewportWidth
	}
	if w.MaxReportableAmplitude != 0 || w.MaxBarHeight != 0 || w.MinBarHeight != 0 {
		result.Inheritance.Waveform.Scale = "profile-specific"
	}
	if w.MaxReportableAmplitude != 0 {
		result.Waveform.MaxReportableAmplitude = w.MaxReportableAmplitude
	}
	if w.MaxBarHeight != 0 {
		result.Waveform.MaxBarHeight = w.MaxBarHeight
	}
	if w.MinBarHeight != 0 {
		result.Waveform.MinBarHeight = w.MinBarHeight
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		result.Inheritance.Output.Directory = "profile-specific"
	}
	if profile.Output.FileName != "" {
		result.Output.FileName = profile.Output.FileName
		result.Inheritance.Output.FileName = "profile-specific"
	}

	if profile.Log.File != "" {
		result.Log.File = profile.Log.File
	}
	if profile.Log.MaxSizeMB != 0 {
		result.Log.MaxSizeMB = profile.Log.MaxSizeMB
	}
	if profile.Log.MaxBackups != 0 {
		result.Log.MaxBackups = profile.Log.MaxBackups
	}

	return result
}

// applyEnvOverrides lets TAPEDECK_TIMING_MAX_DURATION_MS and friends win over the file
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("TAPEDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.IsSet("timing.max_duration_ms") {
		cfg.Timing.MaxDurationMs = v.GetInt("timing.max_duration_ms")
	}
	if v.IsSet("timing.tick_interval_ms") {
		cfg.Timing.TickIntervalMs = v.GetInt("timing.tick_interval_ms")
	}
	if v.IsSet("audio.backend") {
		cfg.Audio.Backend = v.GetString("audio.backend")
	}
	if v.IsSet("audio.output") {
		cfg.Audio.Output = v.GetString("audio.output")
	}
	if v.IsSet("output.directory") {
		cfg.Output.Directory = v.GetString("output.directory")
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// validateConfig checks a resolved configuration
func validateConfig(cfg *Config) error {
	if err := validateTiming(cfg.Timing, "timing"); err != nil {
		return err
	}

	switch strings.ToLower(cfg.Audio.Backend) {
	case "tone", "portaudio", "auto":
	default:
		return fmt.Errorf("audio.backend must be 'tone', 'portaudio' or 'auto', got: %s", cfg.Audio.Backend)
	}
	switch strings.ToLower(cfg.Audio.Output) {
	case "portaudio", "external", "silent", "auto":
	default:
		return fmt.Errorf("audio.output must be 'portaudio', 'external', 'silent' or 'auto', got: %s", cfg.Audio.Output)
	}
	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0, got: %d", cfg.Audio.SampleRate)
	}

	if cfg.Waveform.BarWidth <= 0 {
		return fmt.Errorf("waveform.bar_width must be > 0, got: %.2f", cfg.Waveform.BarWidth)
	}
	if cfg.Waveform.BarSpacing < 0 {
		return fmt.Errorf("waveform.bar_spacing must be >= 0, got: %.2f", cfg.Waveform.BarSpacing)
	}
	if cfg.Waveform.ViewportWidth <= 0 {
		return fmt.Errorf("waveform.viewport_width must be > 0, got: %.2f", cfg.Waveform.ViewportWidth)
	}
	if cfg.Waveform.MinBarHeight > cfg.Waveform.MaxBarHeight {
		return fmt.Errorf("waveform.min_bar_height (%d) must not exceed max_bar_height (%d)",
			cfg.Waveform.MinBarHeight, cfg.Waveform.MaxBarHeight)
	}

	if cfg.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	if cfg.Output.FileName == "" || strings.ContainsRune(cfg.Output.FileName, filepath.Separator) {
		return fmt.Errorf("output.file_name must be a plain file name, got: %q", cfg.Output.FileName)
	}

	return nil
}

// validateTiming validates the timing knobs
func validateTiming(t TimingConfig, prefix string) error {
	if t.TickIntervalMs <= 0 {
		return fmt.Errorf("%s.tick_interval_ms must be > 0, got: %d", prefix, t.TickIntervalMs)
	}
	if t.MaxDurationMs <= 0 {
		return fmt.Errorf("%s.max_duration_ms must be > 0, got: %d", prefix, t.MaxDurationMs)
	}
	if t.TickIntervalMs > t.MaxDurationMs {
		return fmt.Errorf("%s.tick_interval_ms (%d) must not exceed max_duration_ms (%d)",
			prefix, t.TickIntervalMs, t.MaxDurationMs)
	}
	return nil
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required")
	}

	for configName, profile := range rootConfig.Configs {
		if profile == nil {
			return nil, fmt.Errorf("invalid config '%s': profile is empty", configName)
		}
		if err := validateProfile(profile, configName); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateProfile rejects values that are set but out of range; zero values
// mean "inherit" and are accepted
func validateProfile(p *Config, configName string) error {
	prefix := fmt.Sprintf("configs.%s", configName)

	if p.Timing.TickIntervalMs < 0 {
		return fmt.Errorf("%s.timing.tick_interval_ms must be >= 0, got: %d", prefix, p.Timing.TickIntervalMs)
	}
	if p.Timing.MaxDurationMs < 0 {
		return fmt.Errorf("%s.timing.max_duration_ms must be >= 0, got: %d", prefix, p.Timing.MaxDurationMs)
	}
	if p.Timing.TickIntervalMs > 0 && p.Timing.MaxDurationMs > 0 {
		if err := validateTiming(p.Timing, prefix+".timing"); err != nil {
			return err
		}
	}
	if p.Audio.Backend != "" {
		switch strings.ToLower(p.Audio.Backend) {
		case "tone", "portaudio", "auto":
		default:
			return fmt.Errorf("%s.audio.backend must be 'tone', 'portaudio' or 'auto', got: %s", prefix, p.Audio.Backend)
		}
	}
	if p.Audio.Output != "" {
		switch strings.ToLower(p.Audio.Output) {
		case "portaudio", "external", "silent", "auto":
		default:
			return fmt.Errorf("%s.audio.output must be 'portaudio', 'external', 'silent' or 'auto', got: %s", prefix, p.Audio.Output)
		}
	}
	if p.Waveform.BarWidth < 0 || p.Waveform.BarSpacing < 0 || p.Waveform.ViewportWidth < 0 {
		return fmt.Errorf("%s.waveform geometry must not be negative", prefix)
	}
	return nil
}
