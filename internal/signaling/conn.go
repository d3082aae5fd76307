package signaling

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/rooms"
)

const (
	wsWriteWait = 1 * time.Second
	drainWait   = 250 * time.Millisecond
)

// conn is one signaling WebSocket. The goroutine in run is the only reader
// and owns the join state; writePump is the only writer of data frames.
type conn struct {
	id  uuid.UUID
	ws  *websocket.Conn
	srv *Server
	log *slog.Logger

	limiter *rate.Limiter
	out     chan rooms.Frame
	done    chan struct{}

	stopOnce sync.Once

	// Touched only by the run goroutine.
	joined      bool
	room        string
	participant string
	drainOnExit bool
}

var _ rooms.Peer = (*conn)(nil)

func newConn(srv *Server, ws *websocket.Conn, remoteAddr string) *conn {
	id := uuid.New()
	return &conn{
		id:      id,
		ws:      ws,
		srv:     srv,
		log:     srv.log.With("conn_id", id.String(), "remote_addr", remoteAddr),
		limiter: rate.NewLimiter(rate.Limit(srv.cfg.MaxMessagesPerSecond), srv.cfg.MaxMessagesPerSecond),
		out:     make(chan rooms.Frame, srv.cfg.SendQueueSize),
		done:    make(chan struct{}),
	}
}

func (c *conn) ConnID() string { return c.id.String() }

// Send implements rooms.Peer. It never blocks.
func (c *conn) Send(f rooms.Frame) error {
	select {
	case <-c.done:
		return rooms.ErrPeerClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	default:
		return rooms.ErrQueueFull
	}
}

func (c *conn) run() {
	defer c.cleanup()
	go c.writePump()

	idle := c.srv.cfg.IdleTimeout
	c.ws.SetReadLimit(c.srv.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(idle))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))

		// Rate limit after reading so the client reliably sees the close frame
		// instead of a reset caused by unread data.
		if !c.limiter.Allow() {
			c.srv.metrics.FrameDropped(metrics.DropReasonRateLimited)
			c.log.Warn("signaling rate limit exceeded", "participant", c.participant)
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			c.drainOnExit = true
			return
		}
		if msgType != websocket.TextMessage {
			c.skip("expected text message", nil)
			continue
		}

		f, err := parseFrame(data)
		if err != nil {
			c.skip("invalid frame", err)
			continue
		}
		c.srv.metrics.FrameReceived(f.Type)
		c.handle(f)
	}
}

func (c *conn) handle(f inboundFrame) {
	reg := c.srv.registry
	switch f.Type {
	case TypeJoin:
		if c.joined {
			reg.Leave(c.room, c.participant, c)
			c.log.Debug("re-join evicted previous membership", "room", c.room, "participant", c.participant)
		}
		reg.Join(f.Room, f.ID, c)
		c.joined, c.room, c.participant = true, f.Room, f.ID
		c.log.Info("participant joined", "room", f.Room, "participant", f.ID)

	case TypeSignal:
		if !c.joined {
			c.skip("signal before join", nil)
			return
		}
		reg.Signal(c.room, f.To, f.From, f.Payload)

	case TypeChat:
		if !c.joined {
			c.skip("chat before join", nil)
			return
		}
		reg.Chat(c.room, f.From, f.Message, c)
	}
}

func (c *conn) skip(reason string, err error) {
	c.srv.metrics.FrameDropped(metrics.DropReasonInvalid)
	c.log.Debug("skipping signaling frame", "reason", reason, "participant", c.participant, "err", err)
}

func (c *conn) readFailed(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		// gorilla has already sent 1009.
		c.log.Warn("signaling message too large", "participant", c.participant)
		c.drainOnExit = true
	case isTimeout(err):
		c.log.Info("signaling connection idle", "participant", c.participant)
		c.closeWith(websocket.CloseNormalClosure, "idle timeout")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug("signaling connection closed", "participant", c.participant)
	default:
		c.log.Debug("signaling read failed", "participant", c.participant, "err", err)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.srv.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			data, err := json.Marshal(f)
			if err != nil {
				c.log.Error("failed to encode signaling frame", "type", f.FrameType(), "err", err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("signaling write failed", "err", err)
				c.shutdown()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// closeWith sends a close frame. It may run concurrently with writePump.
func (c *conn) closeWith(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func (c *conn) stopWriter() {
	c.stopOnce.Do(func() { close(c.done) })
}

// shutdown stops the writer and unblocks the reader. Safe to call from any
// goroutine, any number of times.
func (c *conn) shutdown() {
	c.stopWriter()
	_ = c.ws.Close()
}

// cleanup runs exactly once, on the reader goroutine, however run exits.
func (c *conn) cleanup() {
	c.stopWriter()
	if c.joined {
		c.srv.registry.Leave(c.room, c.participant, c)
		c.log.Info("participant left", "room", c.room, "participant", c.participant)
	}
	c.srv.untrack(c)
	if c.drainOnExit {
		c.drain()
	}
	_ = c.ws.Close()
}

// drain discards unread client bytes for a moment after we sent a close
// frame. Closing a socket with unread data makes the kernel send RST, which
// can cost the client our close code.
func (c *conn) drain() {
	nc := c.ws.NetConn()
	_ = nc.SetReadDeadline(time.Now().Add(drainWait))
	_, _ = io.Copy(io.Discard, nc)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
