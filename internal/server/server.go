package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/tapedeck/internal/config"
	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/service"
)

// Server exposes the session's actions over HTTP and streams snapshots to
// renderers over a websocket.
type Server struct {
	service    service.Service
	cfg        *config.Config
	port       string
	httpServer *http.Server
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message,omitempty"`
	Snapshot service.Snapshot `json:"snapshot"`
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// DragResponse reports the offset after a drag
type DragResponse struct {
	Success bool    `json:"success"`
	Offset  float64 `json:"offset"`
}

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsQueue      = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// New creates a new web server instance
func New(svc service.Service, port string) *Server {
	return &Server{
		service: svc,
		cfg:     svc.GetConfig(),
		port:    port,
	}
}

// Handler returns the routes served by Start
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/record", s.handleRecord)
	mux.HandleFunc("/stop", s.handleStopRecording)
	mux.HandleFunc("/play", s.handleTogglePlay)
	mux.HandleFunc("/drag/start", s.handleDragStart)
	mux.HandleFunc("/drag", s.handleDrag)
	mux.HandleFunc("/drag/end", s.handleDragEnd)
	mux.HandleFunc("/api/recording", s.handleRecordingStream)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start starts the web server and blocks until it stops
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting tapedeck control server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleIndex serves a short description of the API
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>tapedeck</title>
</head>
<body>
    <h1>tapedeck</h1>
    <h2>API Endpoints:</h2>
    <ul>
        <li>GET /status - Current snapshot</li>
        <li>POST /record - Start a new take</li>
        <li>POST /stop - Stop recording</li>
        <li>POST /play - Play, pause or resume</li>
        <li>POST /drag/start, /drag (dx), /drag/end - Scrub the waveform</li>
        <li>GET /api/recording - The working file</li>
        <li>GET /ws - Snapshot feed</li>
    </ul>
</body>
</html>`

// handleStatus returns the current state and snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	snap := s.service.Snapshot()
	response := StatusResponse{
		Status:   snap.State.String(),
		Message:  s.generateStatusMessage(snap),
		Snapshot: snap,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRecord starts a new take
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.Record(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, media.ErrDeviceUnavailable) || errors.Is(err, media.ErrPrepareFailed) {
			status = http.StatusServiceUnavailable
		}
		s.sendErrorResponse(w, status, fmt.Sprintf("Failed to start recording: %v", err),
			"operation", "record")
		return
	}

	s.sendSuccess(w, "Recording started")
}

// handleStopRecording stops the current take
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.StopRecording(); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to stop recording: %v", err),
			"operation", "stop_recording")
		return
	}

	s.sendSuccess(w, "Recording stopped")
}

// handleTogglePlay presses the play/pause button
func (s *Server) handleTogglePlay(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.TogglePlay(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, media.ErrInvalidDuration) {
			status = http.StatusConflict
		} else if errors.Is(err, media.ErrDeviceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.sendErrorResponse(w, status, fmt.Sprintf("Failed to toggle playback: %v", err),
			"operation", "toggle_play")
		return
	}

	s.sendSuccess(w, s.service.Snapshot().State.String())
}

func (s *Server) handleDragStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.service.DragStart()
	s.sendSuccess(w, "Drag started")
}

// handleDrag moves the waveform by the dx form value
func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form data", "error", err)
		return
	}
	dx, err := strconv.ParseFloat(r.FormValue("dx"), 64)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "dx must be a number", "dx", r.FormValue("dx"))
		return
	}

	offset := s.service.Drag(dx)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DragResponse{Success: true, Offset: offset})
}

func (s *Server) handleDragEnd(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.service.DragEnd()
	s.sendSuccess(w, "Drag ended")
}

// handleRecordingStream serves the working file
func (s *Server) handleRecordingStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.service.Snapshot().State == media.StateRecording {
		http.Error(w, "Recording in progress", http.StatusConflict)
		return
	}

	filePath := s.cfg.Output.WorkingFile()
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error accessing file", http.StatusInternalServerError)
		}
		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, filepath.Base(filePath), info.ModTime(), file)
}

// handleWebSocket pushes a snapshot on connect and after every change. Slow
// readers miss intermediate snapshots rather than stalling the session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates := make(chan service.Snapshot, wsQueue)
	unsubscribe := s.service.Subscribe(func(snap service.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Debug("Renderer connected", "remote", r.RemoteAddr)

	if err := writeSnapshot(conn, s.service.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			slog.Debug("Renderer disconnected", "remote", r.RemoteAddr)
			return
		case snap := <-updates:
			if err := writeSnapshot(conn, snap); err != nil {
				slog.Debug("Websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap service.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(snap)
}

func (s *Server) generateStatusMessage(snap service.Snapshot) string {
	switch snap.State {
	case media.StateIdle:
		if errorDetails := s.service.GetLastError(); errorDetails != "" {
			return errorDetails
		}
		return ""
	case media.StateRecording:
		return fmt.Sprintf("Recording in progress - %s", snap.Timer)
	case media.StateStoppedRecording:
		return "Recording stopped"
	case media.StatePlaying:
		return fmt.Sprintf("Playing - %s", snap.Timer)
	case media.StatePausedPlaying:
		return fmt.Sprintf("Paused at %s", snap.Timer)
	case media.StateStoppedPlaying:
		return "Playback finished"
	default:
		return ""
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(GenericResponse{
		Success: false,
		Error:   "Method not allowed",
	})
	return false
}

func (s *Server) sendSuccess(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GenericResponse{
		Success: true,
		Message: message,
	})
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(GenericResponse{
		Success: false,
		Error:   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
