// Package server is the live preview server: it serves the bound page and
// pushes a fresh render to every browser when bindings change.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/zot/modbind/internal/config"
	"golang.org/x/sync/errgroup"
)

// renderDebounce is how long changes settle before a render is pushed.
const renderDebounce = 10 * time.Millisecond

// Server is the live preview server.
type Server struct {
	config       *config.Config
	page         Page
	wsEndpoint   *WebSocketEndpoint
	httpEndpoint *HTTPEndpoint
	batcher      *RenderBatcher
}

// New creates a server for page. Renders are pushed after every change the
// page reports through OnChange.
func New(cfg *config.Config, page Page) *Server {
	s := &Server{
		config: cfg,
		page:   page,
	}
	s.wsEndpoint = NewWebSocketEndpoint(cfg, page.Set)
	s.wsEndpoint.SetOnConnect(s.sendRender)
	s.httpEndpoint = NewHTTPEndpoint(page, s.wsEndpoint)
	s.batcher = NewRenderBatcher(renderDebounce, s.broadcastRender)
	page.OnChange(s.batcher.Trigger)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpEndpoint
}

// WebSocket returns the socket endpoint.
func (s *Server) WebSocket() *WebSocketEndpoint {
	return s.wsEndpoint
}

func (s *Server) render() (*Message, error) {
	body, err := s.page.BodyHTML()
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgRender, HTML: body}, nil
}

func (s *Server) sendRender(connectionID string) {
	msg, err := s.render()
	if err != nil {
		s.config.Log(0, "render failed: %v", err)
		return
	}
	s.wsEndpoint.Send(connectionID, msg)
}

func (s *Server) broadcastRender() {
	msg, err := s.render()
	if err != nil {
		s.config.Log(0, "render failed: %v", err)
		return
	}
	s.wsEndpoint.Broadcast(msg)
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.httpEndpoint,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.config.Log(0, "modbind preview on http://%s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.batcher.Stop()
		s.wsEndpoint.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
