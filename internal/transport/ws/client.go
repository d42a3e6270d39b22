package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"outbreak/internal/doc"
	"outbreak/internal/store"
	"outbreak/internal/store/memstore"
)

const tracerName = "outbreak/internal/transport/ws"

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Size of the send channel buffer
	sendBufferSize = 256
)

// Frames queued together share one websocket message, separated by newlines.
var newline = []byte{'\n'}

// Client is the server side of one relay socket. It owns one store
// connection; when the socket drops the connection closes and the client's
// disconnect hooks fire.
type Client struct {
	conn   *websocket.Conn
	store  *memstore.Conn
	send   chan []byte
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
	subs   map[uint64]*store.Subscription
}

// NewClient creates a relay client over conn
func NewClient(conn *websocket.Conn, st *memstore.Conn, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:   conn,
		store:  st,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("clientID", st.ID()),
		subs:   make(map[uint64]*store.Subscription),
	}
}

// Send queues a frame, waiting while the buffer is full
func (c *Client) Send(frame *Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
	case <-c.done:
	}
	return nil
}

// Close ends the socket
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()
	close(c.done)
	return c.conn.Close()
}

// Run starts the client's read and write pumps
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump pumps messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.mu.Lock()
		for id, sub := range c.subs {
			sub.Close()
			delete(c.subs, id)
		}
		c.mu.Unlock()
		c.store.Close()
		c.logger.Info("relay client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			break
		}

		for _, frame := range bytes.Split(message, newline) {
			if len(bytes.TrimSpace(frame)) > 0 {
				c.handleMessage(frame)
			}
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming frame from the client
func (c *Client) handleMessage(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.Send(&Frame{Type: FrameResult, Error: &ErrorPayload{Code: ErrCodeInvalidMessage, Message: "invalid frame"}})
		return
	}

	var err error
	reply := &Frame{ID: frame.ID, Type: FrameResult}
	switch frame.Type {
	case FrameUpdate:
		err = c.update(frame.Patch)
	case FrameGet:
		reply.Value, err = c.store.Get(c.ctx, frame.Path)
	case FrameObserve:
		err = c.observe(frame.SubID, frame.Path)
		reply.SubID = frame.SubID
	case FrameUnobserve:
		c.unobserve(frame.SubID)
	case FrameOnDisconnect:
		err = c.store.OnDisconnect(c.ctx, frame.Patch)
	case FrameCancelDisconnect:
		err = c.store.CancelDisconnect(c.ctx)
	default:
		reply.Error = &ErrorPayload{Code: ErrCodeInvalidMessage, Message: "unknown frame type"}
	}
	if err != nil {
		c.logger.Debug("relay request failed", "type", frame.Type, "error", err)
		reply.Error = errorPayload(err)
	}
	c.Send(reply)
}

// update commits a client's patch inside a span.
func (c *Client) update(p doc.Patch) error {
	ctx, span := otel.Tracer(tracerName).Start(c.ctx, "relay.update",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("client.id", c.store.ID()),
			attribute.Int("patch.paths", len(p)),
		))
	defer span.End()

	if err := c.store.Update(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// observe subscribes to path and forwards every event under subID.
func (c *Client) observe(subID uint64, path string) error {
	sub, err := c.store.Observe(c.ctx, path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if old, ok := c.subs[subID]; ok {
		old.Close()
	}
	c.subs[subID] = sub
	c.mu.Unlock()

	go func() {
		for ev := range sub.C {
			c.Send(&Frame{Type: FrameEvent, SubID: subID, Path: ev.Path, Value: ev.Value})
		}
	}()
	return nil
}

func (c *Client) unobserve(subID uint64) {
	c.mu.Lock()
	sub, ok := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}
