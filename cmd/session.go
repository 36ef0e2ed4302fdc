package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/tapedeck/internal/service"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Drive a recording session from the terminal",
	Long: `Start an interactive session. Each line is one action:

  record        start a new take
  stop          stop recording
  play          play, pause or resume
  dragstart     begin scrubbing
  drag <dx>     move the waveform by dx pixels
  dragend       release the scrub
  status        print the current snapshot
  quit          leave the session`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg)
		defer svc.Close()
		return runSession(svc, os.Stdin, cmd.OutOrStdout())
	},
}

// runSession reads actions from in until quit or EOF
func runSession(svc service.Service, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if quit := runAction(svc, fields, out); quit {
				return nil
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func runAction(svc service.Service, fields []string, out io.Writer) bool {
	var err error
	switch fields[0] {
	case "record":
		err = svc.Record()
	case "stop":
		err = svc.StopRecording()
	case "play":
		err = svc.TogglePlay()
	case "dragstart":
		svc.DragStart()
	case "drag":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: drag <dx>")
			return false
		}
		dx, perr := strconv.ParseFloat(fields[1], 64)
		if perr != nil {
			fmt.Fprintf(out, "invalid dx %q\n", fields[1])
			return false
		}
		fmt.Fprintf(out, "offset %.1f\n", svc.Drag(dx))
		return false
	case "dragend":
		svc.DragEnd()
	case "status":
		printSnapshot(out, svc.Snapshot())
		return false
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(out, "unknown action %q\n", fields[0])
		return false
	}

	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return false
	}
	fmt.Fprintln(out, svc.Snapshot().State)
	return false
}

func printSnapshot(out io.Writer, snap service.Snapshot) {
	fmt.Fprintf(out, "state:    %s\n", snap.State)
	if snap.SessionID != "" {
		fmt.Fprintf(out, "session:  %s\n", snap.SessionID)
	}
	fmt.Fprintf(out, "timer:    %s\n", snap.Timer)
	fmt.Fprintf(out, "samples:  %d\n", len(snap.Samples))
	fmt.Fprintf(out, "cursor:   %d/%d ms\n", snap.Cursor.PositionMs, snap.Cursor.DurationMs)
	fmt.Fprintf(out, "offset:   %.1f of %.1f\n", snap.Offset, snap.TotalWidth)
	if snap.LastError != "" {
		fmt.Fprintf(out, "error:    %s\n", snap.LastError)
	}
}
