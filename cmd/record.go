package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/service"
	"github.com/audiolibrelab/tapedeck/internal/waveform"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a new take into the working file",
	Long: `Record from the configured capture backend into the working file.
Recording stops on Enter, on Ctrl+C or when the maximum duration is reached.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Output.Directory = dir
		}

		svc := service.New(cfg)
		defer svc.Close()

		// Closed once the session leaves Recording on its own
		capped := make(chan struct{})
		unwatch := svc.Subscribe(func(snap service.Snapshot) {
			if snap.State == media.StateStoppedRecording {
				select {
				case <-capped:
				default:
					close(capped)
				}
			}
		})
		defer unwatch()

		if err := svc.Record(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording started", "session", svc.SessionID(), "file", cfg.Output.WorkingFile(),
			"max_duration", cfg.Timing.MaxDuration())
		fmt.Println("Recording... press Enter or Ctrl+C to stop")

		// Handle interruption
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		enter := make(chan struct{})
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()

		select {
		case <-sigChan:
		case <-enter:
		case <-capped:
			slog.Info("Maximum duration reached")
		}

		if err := svc.StopRecording(); err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}

		snap := svc.Snapshot()
		fmt.Printf("Recorded %s (%d samples)\n", waveform.TimerLabel(lastTime(snap)), len(snap.Samples))
		if info, err := svc.GetFileInfo(); err == nil {
			fmt.Printf("Saved %s (%s)\n", info.Path, info.SizeHuman)
		}
		return nil
	},
}

func lastTime(snap service.Snapshot) uint64 {
	if len(snap.Samples) == 0 {
		return 0
	}
	return snap.Samples[len(snap.Samples)-1].TimeMs
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
}
