package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/tapedeck/internal/server"
	"github.com/audiolibrelab/tapedeck/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control server for a renderer",
	Long: `Start the tapedeck control server. A renderer drives the session with
POST requests and follows its snapshots over the /ws websocket.

The server will display the local network URL for easy access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		svc := service.New(cfg)
		defer svc.Close()
		srv := server.New(svc, port)

		slog.Info("tapedeck server starting", "port", port, "config", cfgFile)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-sigChan:
		}

		slog.Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
