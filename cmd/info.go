package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/tapedeck/internal/audio"
	"github.com/audiolibrelab/tapedeck/internal/play"
	"github.com/audiolibrelab/tapedeck/internal/service"
	"github.com/audiolibrelab/tapedeck/internal/waveform"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and the working file",
	Long:  `Display the resolved configuration with inheritance indicators, the available capture backends and details of the working file.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Display file paths
		fmt.Printf("=== WORKING FILE ===\n")
		fmt.Printf("path: %s\n", cfg.Output.WorkingFile())

		svc := service.New(cfg)
		defer svc.Close()
		if info, err := svc.GetFileInfo(); err == nil {
			fmt.Printf("size: %s\n", info.SizeHuman)
			fmt.Printf("modified: %s\n", info.ModTimeHuman)
			fmt.Printf("duration: %s\n", waveform.TimerLabel(info.DurationMs))
		} else {
			fmt.Printf("status: no recording yet\n")
		}

		backends := audio.GetAvailableBackends()
		names := make([]string, len(backends))
		for i, b := range backends {
			names[i] = string(b)
		}
		var outputs []string
		for _, o := range play.GetAvailableOutputs() {
			outputs = append(outputs, string(o))
		}

		// Display resolved configuration with inheritance indicators
		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")
		inh := cfg.Inheritance

		fmt.Printf("\n[Timing]\n")
		fmt.Printf("max_duration_ms: %d %s\n", cfg.Timing.MaxDurationMs, indicator(inh != nil, func() string { return inh.Timing.MaxDuration }))
		fmt.Printf("tick_interval_ms: %d %s\n", cfg.Timing.TickIntervalMs, indicator(inh != nil, func() string { return inh.Timing.TickInterval }))

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s %s\n", cfg.Audio.Backend, indicator(inh != nil, func() string { return inh.Audio.Backend }))
		fmt.Printf("available: %s\n", strings.Join(names, ", "))
		fmt.Printf("sample_rate: %d %s\n", cfg.Audio.SampleRate, indicator(inh != nil, func() string { return inh.Audio.SampleRate }))
		fmt.Printf("output: %s %s\n", cfg.Audio.Output, indicator(inh != nil, func() string { return inh.Audio.Output }))
		fmt.Printf("available outputs: %s\n", strings.Join(outputs, ", "))

		fmt.Printf("\n[Waveform]\n")
		fmt.Printf("bar: width=%.0f spacing=%.0f viewport=%.0f %s\n",
			cfg.Waveform.BarWidth, cfg.Waveform.BarSpacing, cfg.Waveform.ViewportWidth,
			indicator(inh != nil, func() string { return inh.Waveform.Geometry }))
		fmt.Printf("height: %d..%d for amplitude <= %d %s\n",
			cfg.Waveform.MinBarHeight, cfg.Waveform.MaxBarHeight, cfg.Waveform.MaxReportableAmplitude,
			indicator(inh != nil, func() string { return inh.Waveform.Scale }))

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, indicator(inh != nil, func() string { return inh.Output.Directory }))
		fmt.Printf("file_name: %s %s\n", cfg.Output.FileName, indicator(inh != nil, func() string { return inh.Output.FileName }))

		return nil
	},
}

func indicator(known bool, status func() string) string {
	if !known {
		return getInheritanceIndicator("")
	}
	return getInheritanceIndicator(status())
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}
