// Package wssink relays camera views to browsers over websockets. Binary messages carry the
// latest JPEG, text messages carry JSON state events. A slow client skips frames instead of
// queueing them.
package wssink

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/torresjeff/mjpeg"
	"go.uber.org/zap"
)

const DefaultAddr = ":8090"

const (
	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server accepts websocket clients on GET /cameras/{key} and subscribes them to that camera.
type Server struct {
	Addr        string
	Logger      *zap.Logger
	Broadcaster *mjpeg.Broadcaster

	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[string]*client
	dropped  atomic.Uint64
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Handler returns the relay's routes, for use with an existing http.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cameras/{key}", s.serveCamera)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then closes every client.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	srv := &http.Server{Addr: s.Addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	s.logger().Info(fmt.Sprint("[relay] Listening on ", s.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns how many frames were replaced before a client could receive them.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Server) serveCamera(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !s.Broadcaster.CameraExists(key) {
		http.Error(w, "camera not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger().Debug("[relay] Error upgrading connection", zap.Error(err))
		return
	}

	c := newClient(conn, &s.dropped)
	if err := s.Broadcaster.RegisterSubscriber(key, c); err != nil {
		conn.Close()
		return
	}
	s.track(c)
	s.logger().Info(fmt.Sprint("[relay] Client ", c.id, " subscribed to camera ", key), zap.String("remote", r.RemoteAddr))

	defer func() {
		s.Broadcaster.DestroySubscriber(key, c.id)
		s.untrack(c)
		conn.Close()
		s.logger().Info(fmt.Sprint("[relay] Client ", c.id, " left camera ", key))
	}()

	go c.readLoop()
	if err := c.writeLoop(); err != nil {
		s.logger().Debug("[relay] Error writing to client", zap.String("client", c.id), zap.Error(err))
	}
}

func (s *Server) track(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients == nil {
		s.clients = make(map[string]*client)
	}
	s.clients[c.id] = c
}

func (s *Server) untrack(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}

// closeClients closes hijacked connections, which http.Server.Shutdown leaves alone.
func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.conn.Close()
	}
}
