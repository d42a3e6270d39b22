package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"outbreak/internal/doc"
	"outbreak/internal/store"
)

// Remote is a store.Store served by a relay over one websocket. Closing it,
// or losing the socket, fires the hooks registered with OnDisconnect on the
// relay side.
type Remote struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *Frame
	feeds   map[uint64]*store.Feed
	err     error
}

var _ store.Store = (*Remote)(nil)

// Dial connects to the relay at addr (a ws:// or wss:// URL of the /ws
// endpoint) as clientID.
func Dial(ctx context.Context, addr, clientID string, logger *slog.Logger) (*Remote, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse relay address: %w", err)
	}
	if clientID != "" {
		q := u.Query()
		q.Set("clientId", clientID)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w: %v", store.ErrUnavailable, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Remote{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		logger:  logger,
		pending: make(map[uint64]chan *Frame),
		feeds:   make(map[uint64]*store.Feed),
	}
	go r.writePump()
	go r.readPump()
	return r, nil
}

// Close drops the connection.
func (r *Remote) Close() error {
	r.shutdown(store.ErrClosed)
	return nil
}

// Done is closed once the connection is gone.
func (r *Remote) Done() <-chan struct{} {
	return r.done
}

// shutdown fails every pending request with err and ends every
// subscription. The first cause wins.
func (r *Remote) shutdown(err error) {
	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return
	}
	r.err = err
	close(r.done)
	pending, feeds := r.pending, r.feeds
	r.pending, r.feeds = nil, nil
	r.mu.Unlock()

	r.conn.Close()
	for _, ch := range pending {
		close(ch)
	}
	for _, feed := range feeds {
		feed.Close()
	}
}

func (r *Remote) readPump() {
	defer r.shutdown(store.ErrUnavailable)

	for {
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug("relay read error", "error", err)
			}
			return
		}
		for _, data := range bytes.Split(message, newline) {
			if len(bytes.TrimSpace(data)) == 0 {
				continue
			}
			var frame Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				r.logger.Warn("dropping malformed relay frame", "error", err)
				continue
			}
			r.dispatch(&frame)
		}
	}
}

func (r *Remote) dispatch(frame *Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch frame.Type {
	case FrameEvent:
		if feed, ok := r.feeds[frame.SubID]; ok {
			feed.Publish(frame.Value)
		}
	case FrameResult:
		if ch, ok := r.pending[frame.ID]; ok {
			delete(r.pending, frame.ID)
			ch <- frame
		}
	}
}

func (r *Remote) writePump() {
	for {
		select {
		case <-r.done:
			return
		case message := <-r.send:
			r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := r.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				r.shutdown(store.ErrUnavailable)
				return
			}
		}
	}
}

// call sends a request and waits for its result.
func (r *Remote) call(ctx context.Context, frame *Frame) (*Frame, error) {
	ch := make(chan *Frame, 1)

	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return nil, err
	}
	r.nextID++
	frame.ID = r.nextID
	r.pending[frame.ID] = ch
	r.mu.Unlock()

	forget := func() {
		r.mu.Lock()
		if r.pending != nil {
			delete(r.pending, frame.ID)
		}
		r.mu.Unlock()
	}

	data, err := json.Marshal(frame)
	if err != nil {
		forget()
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	select {
	case r.send <- data:
	case <-r.done:
		return nil, r.cause()
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, r.cause()
		}
		if reply.Error != nil {
			return nil, reply.Error.Err()
		}
		return reply, nil
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

func (r *Remote) cause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Update implements store.Store.
func (r *Remote) Update(ctx context.Context, patch doc.Patch) error {
	_, err := r.call(ctx, &Frame{Type: FrameUpdate, Patch: patch})
	return err
}

// Get implements store.Store.
func (r *Remote) Get(ctx context.Context, path string) (any, error) {
	reply, err := r.call(ctx, &Frame{Type: FrameGet, Path: path})
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// Observe implements store.Store.
func (r *Remote) Observe(ctx context.Context, path string) (*store.Subscription, error) {
	feed := store.NewFeed(doc.Join(path))

	// The feed is registered before asking so no event is missed.
	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		feed.Close()
		return nil, err
	}
	r.nextID++
	subID := r.nextID
	r.feeds[subID] = feed
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			live := r.feeds != nil
			if live {
				delete(r.feeds, subID)
			}
			r.mu.Unlock()
			if live {
				ctx, cancel := context.WithTimeout(context.Background(), writeWait)
				defer cancel()
				r.call(ctx, &Frame{Type: FrameUnobserve, SubID: subID})
			}
		})
	}
	sub := feed.Subscription(cancel)

	if _, err := r.call(ctx, &Frame{Type: FrameObserve, Path: path, SubID: subID}); err != nil {
		sub.Close()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-feed.Done():
		}
	}()
	return sub, nil
}

// OnDisconnect implements store.Store.
func (r *Remote) OnDisconnect(ctx context.Context, patch doc.Patch) error {
	_, err := r.call(ctx, &Frame{Type: FrameOnDisconnect, Patch: patch})
	return err
}

// CancelDisconnect implements store.Store.
func (r *Remote) CancelDisconnect(ctx context.Context) error {
	_, err := r.call(ctx, &Frame{Type: FrameCancelDisconnect})
	return err
}
