// Package monitor serves a live view of the bridge: a websocket event
// stream, Prometheus metrics and a health endpoint.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/bridge"
)

// Config holds monitor server configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// Status is reported by /healthz.
type Status struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
	Port   string `json:"port"`
	Frames uint64 `json:"frames"`
	Uptime string `json:"uptime"`
}

// Server broadcasts bridge events to websocket clients. It implements
// bridge.Observer; Observe never blocks on a client.
type Server struct {
	addr    string
	mode    string
	port    string
	metrics http.Handler
	assets  fs.FS
	log     *zap.Logger
	started time.Time

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex
	frames    uint64
	framesMu  sync.Mutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Server. metrics may be nil.
func New(cfg Config, mode, port string, metrics http.Handler, log *zap.Logger) *Server {
	return &Server{
		addr:    cfg.ListenAddr,
		mode:    mode,
		port:    port,
		metrics: metrics,
		log:     log.Named("monitor"),
		started: time.Now(),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeAssets serves fsys at "/" alongside the API routes.
func (s *Server) ServeAssets(fsys fs.FS) {
	s.assets = fsys
}

// Handler returns the monitor's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	if s.assets != nil {
		mux.Handle("/", http.FileServer(http.FS(s.assets)))
	}
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		s.closeClients()
	}()

	s.log.Info("listening", zap.String("addr", s.addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Observe implements bridge.Observer.
func (s *Server) Observe(ev bridge.Event) {
	s.framesMu.Lock()
	s.frames++
	s.framesMu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.broadcast(data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.Info("client connected", zap.Int("clients", n))

	// writer
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// reader: only used to notice the client going away
	go func() {
		defer s.removeClient(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.Info("client disconnected", zap.Int("clients", n))
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.framesMu.Lock()
	frames := s.frames
	s.framesMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Status{
		Status: "ok",
		Mode:   s.mode,
		Port:   s.port,
		Frames: frames,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) broadcast(data []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// client too slow, skip
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
