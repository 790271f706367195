package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"weatherdine/internal/domain"
)

const (
	sendQueueSize = 64
	writeTimeout  = 5 * time.Second
)

// eventFilter matches event types against exact names or "prefix.*" patterns.
// An empty filter matches everything.
type eventFilter struct {
	exact    map[domain.EventType]bool
	prefixes []string
}

func parseEventFilter(patterns []string) eventFilter {
	f := eventFilter{exact: make(map[domain.EventType]bool)}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "*":
			return eventFilter{}
		case strings.HasSuffix(p, ".*"):
			f.prefixes = append(f.prefixes, strings.TrimSuffix(p, "*"))
		default:
			f.exact[domain.EventType(p)] = true
		}
	}
	return f
}

func (f eventFilter) empty() bool {
	return len(f.exact) == 0 && len(f.prefixes) == 0
}

func (f eventFilter) match(t domain.EventType) bool {
	if f.empty() || f.exact[t] {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(string(t), p) {
			return true
		}
	}
	return false
}

// clientConn is one connected WebSocket client.
type clientConn struct {
	id     uint64
	info   *ClientInfo
	ws     *websocket.Conn
	sendCh chan Frame

	filterMu sync.RWMutex
	filter   eventFilter

	done      chan struct{}
	closeOnce sync.Once
}

func newClientConn(id uint64, info *ClientInfo, ws *websocket.Conn, filter eventFilter) *clientConn {
	return &clientConn{
		id:     id,
		info:   info,
		ws:     ws,
		sendCh: make(chan Frame, sendQueueSize),
		filter: filter,
		done:   make(chan struct{}),
	}
}

func (c *clientConn) setFilter(f eventFilter) {
	c.filterMu.Lock()
	c.filter = f
	c.filterMu.Unlock()
}

func (c *clientConn) wants(t domain.EventType) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter.match(t)
}

// enqueue queues a frame without blocking. It reports false when the
// client's queue is full or the client is gone.
func (c *clientConn) enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.sendCh <- f:
		return true
	default:
		return false
	}
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writeLoop drains the send queue until the client closes.
func (c *clientConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.ws, frame)
			cancel()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop hands request frames to dispatch until the connection fails.
// Non-request frames are ignored.
func (c *clientConn) readLoop(ctx context.Context, dispatch func(Frame)) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
			return
		}
		if frame.Type == FrameTypeRequest {
			go dispatch(frame)
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}
