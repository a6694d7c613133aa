// Package widget serves today's tasks to home screen widgets over
// WebSocket.
//
// Widgets never talk to the backend. They render the mirror snapshot the
// server pushes on connect and after every redraw, and send their actions
// (toggle, add, edit, delete, reorder) back over the same socket.
package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/magicmac/myday/internal/mirror"
	"github.com/magicmac/myday/internal/schema"
)

// MessageType defines the type of widget message
type MessageType string

const (
	// MessageTypeSnapshot carries the full widget state
	MessageTypeSnapshot MessageType = "snapshot"

	// MessageTypeError reports a failed widget action to its sender
	MessageTypeError MessageType = "error"
)

// Message is a server to widget message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Snapshot is everything a widget renders.
type Snapshot struct {
	Day       string         `json:"day"`
	Tasks     []mirror.Entry `json:"tasks"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
	Quote     schema.Quote   `json:"quote"`
}

// Server manages widget connections and broadcasts snapshots
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	mirror   *mirror.Cache
	today    func() string

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Widget actions, set once the repository exists
	actions   Actions
	actionsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: 127.0.0.1)
	Host string

	// Port to listen on (default: 8787, 0 picks a free port)
	Port int

	// Mirror is the snapshot source (required)
	Mirror *mirror.Cache

	// Today returns the local day key (default: schema.TodayKey)
	Today func() string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:   "127.0.0.1",
		Port:   8787,
		Today:  schema.TodayKey,
		Logger: log.New(os.Stderr, "[widget] ", log.LstdFlags),
	}
}

// NewServer creates a new widget server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if config.Today == nil {
		config.Today = schema.TodayKey
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[widget] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		mirror:    config.Mirror,
		today:     config.Today,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// SetActions wires the handler for widget actions.
func (s *Server) SetActions(a Actions) {
	s.actionsMu.Lock()
	s.actions = a
	s.actionsMu.Unlock()
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/snapshot", s.handleSnapshot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Widget server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping widget server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Widget server stopped")
	return nil
}

// Redraw pushes a fresh snapshot to every widget.
func (s *Server) Redraw() {
	msg, err := s.snapshotMessage()
	if err != nil {
		s.logger.Printf("Failed to build snapshot: %v", err)
		return
	}
	s.Broadcast(msg)
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// Snapshot builds the current widget state from the mirror.
func (s *Server) Snapshot() Snapshot {
	day := s.today()
	entries := mirror.SortEntries(s.mirror.GetEntries())
	snap := Snapshot{
		Day:   day,
		Tasks: entries,
		Total: len(entries),
		Quote: schema.DailyQuote(day),
	}
	for _, e := range entries {
		if e.Completed {
			snap.Completed++
		}
	}
	return snap
}

func (s *Server) snapshotMessage() (Message, error) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeSnapshot, Timestamp: time.Now(), Data: data}, nil
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Printf("Failed to send to widget: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades a widget connection and sends the current
// snapshot
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Widget connected (total: %d)", clientCount)

	if msg, err := s.snapshotMessage(); err == nil {
		data, _ := json.Marshal(msg)
		_ = s.write(conn, data)
	}

	go s.readLoop(conn)
}

// readLoop dispatches widget actions until the widget disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		if err := s.dispatch(data); err != nil {
			s.logger.Printf("Widget action failed: %v", err)
			s.sendError(conn, err)
		}
	}
}

func (s *Server) sendError(conn *websocket.Conn, actionErr error) {
	payload, _ := json.Marshal(map[string]string{"error": actionErr.Error()})
	data, _ := json.Marshal(Message{Type: MessageTypeError, Timestamp: time.Now(), Data: payload})
	_ = s.write(conn, data)
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Widget disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleSnapshot serves the snapshot for widgets that poll
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Snapshot())
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
