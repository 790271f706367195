package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"weatherdine/internal/domain"
)

type testBus struct {
	mu       sync.Mutex
	handlers []domain.EventHandler
}

func (b *testBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	hs := append([]domain.EventHandler(nil), b.handlers...)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *testBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }

func (b *testBus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.handlers = nil
		b.mu.Unlock()
	}
}

func (b *testBus) Close() {}

func newTestAuth() Authenticator {
	return NewStaticTokenAuth([]TokenEntry{{Token: "test-token", Name: "tester"}})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// startTestServer runs a gateway on a random port. setup hooks run before
// Start so they can register HTTP routes.
func startTestServer(t *testing.T, bus domain.EventBus, setup ...func(*Server)) *Server {
	t.Helper()
	return startTestServerWith(t, bus, nil, setup...)
}

func startTestServerWith(t *testing.T, bus domain.EventBus, opts []Option, setup ...func(*Server)) *Server {
	t.Helper()
	srv := NewServer(bus, newTestAuth(), "127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	for _, fn := range setup {
		fn(srv)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Start(ctx)
	waitFor(t, "server bind", func() bool { return srv.BoundAddr() != "" })
	t.Cleanup(func() {
		cancel()
		srv.Stop(context.Background())
	})
	return srv
}

func dialWS(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	before := srv.ClientCount()
	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=test-token"+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	waitFor(t, "client registration", func() bool { return srv.ClientCount() > before })
	return ws
}

func call(t *testing.T, ws *websocket.Conn, req Frame) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req.Type = FrameTypeRequest
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp Frame
	if err := wsjson.Read(ctx, ws, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != FrameTypeResponse || resp.ID != req.ID {
		t.Fatalf("response = %+v, want response to %d", resp, req.ID)
	}
	return resp
}

func readEvent(t *testing.T, ws *websocket.Conn) domain.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if frame.Type != FrameTypeEvent {
		t.Fatalf("frame type = %q, want event", frame.Type)
	}
	var event domain.Event
	if err := json.Unmarshal(frame.Payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if frame.Event != event.Type {
		t.Errorf("frame.Event = %q, payload type %q", frame.Event, event.Type)
	}
	return event
}

func publish(bus domain.EventBus, types ...domain.EventType) {
	for _, et := range types {
		bus.Publish(context.Background(), domain.Event{Type: et, Timestamp: time.Now(), ThreadID: "thread-1"})
	}
}

func TestServerHealthz(t *testing.T) {
	srv := startTestServer(t, &testBus{})

	resp, err := http.Get("http://" + srv.BoundAddr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServerAuthReject(t *testing.T) {
	srv := startTestServer(t, &testBus{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=bad-token", nil); err == nil {
		t.Fatal("expected auth rejection")
	}
}

func TestServerRPC(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	srv.RegisterHandler("echo", func(_ context.Context, c *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		if c.Name != "tester" {
			t.Errorf("client = %q", c.Name)
		}
		return payload, nil
	})
	srv.RegisterHandler("fail", func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"ignored"`), domain.ErrRPCInvalidPayload
	})
	ws := dialWS(t, srv, "")

	resp := call(t, ws, Frame{ID: 1, Method: "echo", Payload: json.RawMessage(`{"city":"Oslo"}`)})
	if resp.Error != "" || string(resp.Payload) != `{"city":"Oslo"}` {
		t.Errorf("echo = %+v", resp)
	}

	resp = call(t, ws, Frame{ID: 2, Method: "fail"})
	if resp.Error == "" || resp.Payload != nil {
		t.Errorf("fail = %+v, want error without payload", resp)
	}
	if resp.Code != string(domain.CodeRPCInvalid) {
		t.Errorf("code = %q, want %q", resp.Code, domain.CodeRPCInvalid)
	}

	resp = call(t, ws, Frame{ID: 3, Method: "nonexistent"})
	if resp.Error == "" {
		t.Error("expected error for unknown method")
	}
}

func TestServerEventForwarding(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	ws := dialWS(t, srv, "")

	publish(bus, domain.EventWorkflowStarted)

	event := readEvent(t, ws)
	if event.Type != domain.EventWorkflowStarted || event.ThreadID != "thread-1" {
		t.Errorf("event = %+v", event)
	}
}

func TestServerEventFilterFromQuery(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	ws := dialWS(t, srv, "&events=workflow.*")

	publish(bus, domain.EventToolCallCompleted, domain.EventLLMCallStarted, domain.EventWorkflowCompleted)

	if got := readEvent(t, ws).Type; got != domain.EventWorkflowCompleted {
		t.Errorf("first event = %q, want workflow.completed", got)
	}
}

func TestServerSubscribeRPC(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	ws := dialWS(t, srv, "")

	resp := call(t, ws, Frame{ID: 7, Method: subscribeMethod, Payload: json.RawMessage(`{"events":["schedule.fired"]}`)})
	if resp.Error != "" {
		t.Fatalf("subscribe: %s", resp.Error)
	}
	publish(bus, domain.EventWorkflowStarted, domain.EventScheduleFired)
	if got := readEvent(t, ws).Type; got != domain.EventScheduleFired {
		t.Errorf("event = %q, want schedule.fired", got)
	}

	resp = call(t, ws, Frame{ID: 8, Method: subscribeMethod, Payload: json.RawMessage(`{"events":"schedule.fired"}`)})
	if resp.Code != string(domain.CodeRPCInvalid) {
		t.Errorf("bad payload code = %q", resp.Code)
	}

	// An empty list goes back to every event.
	call(t, ws, Frame{ID: 9, Method: subscribeMethod, Payload: json.RawMessage(`{"events":[]}`)})
	publish(bus, domain.EventAgentStarted)
	if got := readEvent(t, ws).Type; got != domain.EventAgentStarted {
		t.Errorf("event = %q, want agent.started", got)
	}
}

func TestServerSlowClient(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	dialWS(t, srv, "") // never reads

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4*sendQueueSize; i++ {
			publish(bus, domain.EventToolCallCompleted)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("publishing blocked on a slow client")
	}
}

func TestServerConcurrentClients(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	srv.RegisterHandler("ping", func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"pong"`), nil
	})

	conns := make([]*websocket.Conn, 5)
	for i := range conns {
		conns[i] = dialWS(t, srv, "")
	}
	if n := srv.ClientCount(); n != len(conns) {
		t.Errorf("ClientCount = %d, want %d", n, len(conns))
	}

	var wg sync.WaitGroup
	for i, ws := range conns {
		wg.Add(1)
		go func(id uint64, ws *websocket.Conn) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := wsjson.Write(ctx, ws, Frame{Type: FrameTypeRequest, ID: id, Method: "ping"}); err != nil {
				t.Errorf("write: %v", err)
				return
			}
			var resp Frame
			if err := wsjson.Read(ctx, ws, &resp); err != nil || string(resp.Payload) != `"pong"` {
				t.Errorf("client %d: %+v, %v", id, resp, err)
			}
		}(uint64(i+1), ws)
	}
	wg.Wait()
}

func TestServerDisconnect(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	ws := dialWS(t, srv, "")

	ws.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, "client removal", func() bool { return srv.ClientCount() == 0 })

	publish(bus, domain.EventToolCallCompleted)
}

func TestServerOrigins(t *testing.T) {
	dial := func(srv *Server, origin string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=test-token", &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": {origin}},
		})
		if err == nil {
			ws.Close(websocket.StatusNormalClosure, "")
		}
		return err
	}

	def := startTestServer(t, &testBus{})
	if err := dial(def, "http://localhost:3000"); err != nil {
		t.Errorf("loopback origin rejected: %v", err)
	}
	if err := dial(def, "https://app.example.com"); err == nil {
		t.Error("foreign origin accepted by default")
	}

	custom := startTestServerWith(t, &testBus{}, []Option{WithAllowedOrigins("app.example.com")})
	if err := dial(custom, "https://app.example.com"); err != nil {
		t.Errorf("configured origin rejected: %v", err)
	}
}

func TestServerReadLimit(t *testing.T) {
	srv := startTestServerWith(t, &testBus{}, []Option{WithReadLimit(128)})
	ws := dialWS(t, srv, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	big := Frame{Type: FrameTypeRequest, ID: 1, Method: "echo", Payload: json.RawMessage(`"` + strings.Repeat("x", 512) + `"`)}
	if err := wsjson.Write(ctx, ws, big); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp Frame
	if err := wsjson.Read(ctx, ws, &resp); err == nil {
		t.Errorf("oversized frame got a reply: %+v", resp)
	}
}

func TestParseEventFilter(t *testing.T) {
	tests := []struct {
		patterns []string
		event    domain.EventType
		want     bool
	}{
		{nil, domain.EventToolCallStarted, true},
		{[]string{"*"}, domain.EventScheduleFired, true},
		{[]string{"workflow.*"}, domain.EventWorkflowStepCompleted, true},
		{[]string{"workflow.*"}, domain.EventToolCallStarted, false},
		{[]string{"tool.call.*", "schedule.fired"}, domain.EventScheduleFired, true},
		{[]string{" agent.error "}, domain.EventAgentError, true},
		{[]string{"agent.error"}, domain.EventAgentCompleted, false},
		{[]string{"", " "}, domain.EventSessionSaved, true},
	}
	for _, tt := range tests {
		if got := parseEventFilter(tt.patterns).match(tt.event); got != tt.want {
			t.Errorf("filter %q match %q = %v, want %v", tt.patterns, tt.event, got, tt.want)
		}
	}
}
