package config

import (
	"os"
	"strings"
	"testing"
)

func TestValidateConfigurationFormat_ValidConfig(t *testing.T) {
	validConfig := `
active_config: studio

configs:
  default:
    timing:
      max_duration_ms: 20000
      tick_interval_ms: 100
  studio:
    audio:
      backend: tone
      sample_rate: 48000
    waveform:
      bar_width: 6
      bar_spacing: 2
      max_reportable_amplitude: 30000
    output:
      directory: ~/Audio/Test
`

	configFile := createTempConfig(t, validConfig)

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if rootConfig.ActiveConfig != "studio" {
		t.Errorf("Expected active config 'studio', got %s", rootConfig.ActiveConfig)
	}
	if len(rootConfig.Configs) != 2 {
		t.Errorf("Expected 2 profiles, got %d", len(rootConfig.Configs))
	}

	studio := rootConfig.Configs["studio"]
	if studio == nil {
		t.Fatal("Expected studio config")
	}
	if studio.Audio.Backend != "tone" || studio.Audio.SampleRate != 48000 {
		t.Errorf("Invalid studio audio: %+v", studio.Audio)
	}
	if studio.Waveform.MaxReportableAmplitude != 30000 {
		t.Errorf("Expected max reportable amplitude 30000, got %d", studio.Waveform.MaxReportableAmplitude)
	}
}

func TestValidateConfigurationFormat_MissingConfigs(t *testing.T) {
	configFile := createTempConfig(t, "active_config: x\n")

	_, err := ValidateConfigurationFormat(configFile)
	if err == nil {
		t.Fatal("Expected error for missing configs section")
	}
	if !strings.Contains(err.Error(), "configs section is required") {
		t.Errorf("Expected 'configs section is required' error, got: %v", err)
	}
}

func TestValidateConfigurationFormat_InvalidProfiles(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedError string
	}{
		{
			name: "negative tick",
			content: `
configs:
  default:
    timing:
      tick_interval_ms: -1
`,
			expectedError: "tick_interval_ms must be >= 0",
		},
		{
			name: "tick longer than cap",
			content: `
configs:
  default:
    timing:
      max_duration_ms: 100
      tick_interval_ms: 500
`,
			expectedError: "must not exceed max_duration_ms",
		},
		{
			name: "unknown backend",
			content: `
configs:
  default:
    audio:
      backend: jack
`,
			expectedError: "audio.backend must be",
		},
		{
			name: "unknown output",
			content: `
configs:
  default:
    audio:
      output: speakers
`,
			expectedError: "audio.output must be",
		},
		{
			name: "negative geometry",
			content: `
configs:
  default:
    waveform:
      bar_width: -4
`,
			expectedError: "geometry must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := createTempConfig(t, tt.content)

			_, err := ValidateConfigurationFormat(configFile)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.expectedError)
			}
			if !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("Expected error containing %q, got: %v", tt.expectedError, err)
			}
		})
	}
}

func TestValidateConfig_ResolvedValues(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedError string
	}{
		{"zero tick", func(c *Config) { c.Timing.TickIntervalMs = 0 }, "tick_interval_ms must be > 0"},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "sample_rate must be > 0"},
		{"zero viewport", func(c *Config) { c.Waveform.ViewportWidth = 0 }, "viewport_width must be > 0"},
		{"inverted bar heights", func(c *Config) { c.Waveform.MinBarHeight = 200 }, "must not exceed max_bar_height"},
		{"nested file name", func(c *Config) { c.Output.FileName = "a/b.wav" }, "plain file name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("Expected error containing %q, got: %v", tt.expectedError, err)
			}
		})
	}

	if err := validateConfig(Default()); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}
}

// Helper function to create temporary config file for testing
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "tapedeck-test-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	if err := tmpfile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}

	return tmpfile.Name()
}
