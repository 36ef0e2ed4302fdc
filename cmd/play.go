package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/play"
	"github.com/audiolibrelab/tapedeck/internal/ticker"
	"github.com/audiolibrelab/tapedeck/internal/waveform"
)

// finishSignal closes done when playback reaches the end
type finishSignal struct {
	done chan struct{}
}

func (f *finishSignal) MediaEvent(ev media.Event) {
	if ev != media.EventFinishPlaying {
		return
	}
	select {
	case <-f.done:
	default:
		close(f.done)
	}
}

var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "Play the working file or another audio file",
	Long: `Play a WAV, MP3 or Ogg Vorbis file with the elapsed time shown on one line.
Without an argument the working file of the last recording is played.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := cfg.Output.WorkingFile()
		if len(args) == 1 {
			source = args[0]
		}

		duration, err := play.ReadDuration(source)
		if err != nil {
			return fmt.Errorf("cannot play %s: %w", source, err)
		}

		finished := &finishSignal{done: make(chan struct{})}
		player := play.New(cfg.Timing.TickInterval(), play.NewFactory(cfg.Audio.Output, ticker.RealClock{}),
			play.WithListener(finished),
			play.WithElapsedCallback(func(elapsed time.Duration) {
				fmt.Printf("\r%s / %s", waveform.TimerLabel(uint64(elapsed.Milliseconds())),
					waveform.TimerLabel(uint64(duration.Milliseconds())))
			}),
		)
		player.SetDuration(duration)

		fmt.Printf("Playing %s\n", source)
		if err := player.Play(source); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case <-finished.done:
		case <-sigChan:
			player.Stop()
		}
		fmt.Println()
		return nil
	},
}
