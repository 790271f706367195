package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"weatherdine/internal/domain"
)

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error)

// Method clients call to narrow the events they receive.
const subscribeMethod = "events.subscribe"

const defaultReadLimit = 1 << 20

var loopbackOrigins = []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", "[::1]", "[::1]:*"}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins replaces the loopback-only origin patterns accepted on
// WebSocket upgrade.
func WithAllowedOrigins(patterns ...string) Option {
	return func(s *Server) {
		if len(patterns) > 0 {
			s.origins = patterns
		}
	}
}

// WithReadLimit caps the size of a single inbound frame.
func WithReadLimit(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// Server exposes RPC methods and REST routes, and streams bus events to
// connected WebSocket clients.
type Server struct {
	bus    domain.EventBus
	auth   Authenticator
	addr   string
	logger *slog.Logger

	origins   []string
	readLimit int64

	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler
	routes     []httpRoute

	clientsMu sync.RWMutex
	clients   map[uint64]*clientConn
	nextID    atomic.Uint64

	httpSrv  *http.Server
	bound    atomic.Value // string
	unsubAll func()
	stopOnce sync.Once
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// NewServer creates a gateway server listening on addr once started.
func NewServer(bus domain.EventBus, auth Authenticator, addr string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		bus:       bus,
		auth:      auth,
		addr:      addr,
		logger:    logger,
		origins:   loopbackOrigins,
		readLimit: defaultReadLimit,
		handlers:  make(map[string]RPCHandler),
		clients:   make(map[uint64]*clientConn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandler adds an RPC handler. Safe to call while clients are connected.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// RegisterHTTPRoute adds an HTTP route. Must be called before Start.
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, httpRoute{pattern: pattern, handler: handler})
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	for _, r := range s.routes {
		mux.HandleFunc(r.pattern, r.handler)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.unsubAll = s.bus.SubscribeAll(s.broadcast)
	s.bound.Store(ln.Addr().String())
	s.logger.Info("gateway started", "addr", ln.Addr().String(), "origins", strings.Join(s.origins, ","))

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop disconnects every client and shuts the HTTP server down. Only the
// first call has any effect.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.unsubAll != nil {
			s.unsubAll()
		}
		s.clientsMu.Lock()
		for id, cc := range s.clients {
			cc.close()
			cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
			delete(s.clients, id)
		}
		s.clientsMu.Unlock()

		if s.httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err = s.httpSrv.Shutdown(shutdownCtx)
		}
	})
	return err
}

// BoundAddr returns the listening address, or "" before Start has bound.
func (s *Server) BoundAddr() string {
	addr, _ := s.bound.Load().(string)
	return addr
}

// ClientCount reports the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// broadcast forwards an event to every client whose filter accepts it.
func (s *Server) broadcast(_ context.Context, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	frame := Frame{Type: FrameTypeEvent, Event: event.Type, Payload: payload}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, cc := range s.clients {
		if !cc.wants(event.Type) {
			continue
		}
		if !cc.enqueue(frame) {
			s.logger.Warn("gateway: dropped event for slow client", "conn_id", cc.id, "event", event.Type)
		}
	}
}

// handleUpgrade authenticates the caller and upgrades the connection. An
// optional ?events= list sets the initial event filter.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	info, err := s.auth.Authenticate(requestToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(s.readLimit)

	var filter eventFilter
	if ev := q.Get("events"); ev != "" {
		filter = parseEventFilter(strings.Split(ev, ","))
	}
	cc := newClientConn(s.nextID.Add(1), info, ws, filter)

	s.clientsMu.Lock()
	s.clients[cc.id] = cc
	s.clientsMu.Unlock()
	s.logger.Info("gateway client connected", "conn_id", cc.id, "client", info.Name)

	go cc.writeLoop()
	cc.readLoop(r.Context(), func(req Frame) { s.dispatch(r.Context(), cc, req) })

	cc.close()
	s.clientsMu.Lock()
	delete(s.clients, cc.id)
	s.clientsMu.Unlock()
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", cc.id)
}

// SubscribeRequest replaces a client's event filter. Patterns are exact event
// types or "prefix.*"; an empty list restores every event.
type SubscribeRequest struct {
	Events []string `json:"events"`
}

func (s *Server) dispatch(ctx context.Context, cc *clientConn, req Frame) {
	if req.Method == subscribeMethod {
		var sub SubscribeRequest
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &sub); err != nil {
				s.respond(cc, req.ID, nil, domain.NewDomainError("gateway.subscribe", domain.ErrRPCInvalidPayload, err.Error()))
				return
			}
		}
		cc.setFilter(parseEventFilter(sub.Events))
		s.respond(cc, req.ID, json.RawMessage(`{"ok":true}`), nil)
		return
	}

	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.respond(cc, req.ID, nil, domain.ErrRPCMethodNotFound)
		return
	}
	result, err := handler(ctx, cc.info, req.Payload)
	s.respond(cc, req.ID, result, err)
}

func (s *Server) respond(cc *clientConn, id uint64, result json.RawMessage, err error) {
	if !cc.enqueue(responseFrame(id, result, err)) {
		s.logger.Warn("gateway: dropped RPC response for slow client", "conn_id", cc.id, "frame_id", id)
	}
}
