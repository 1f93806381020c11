// Package transport is the bidirectional named-event channel to the chat
// server: JSON frames {"event": name, "data": payload} over a WebSocket.
// Delivery is fire-and-forget; events on one connection are dispatched in
// arrival order.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chatsphere/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	maxMessageSize     = 4096
	sendBufSize        = 256
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Handler consumes one inbound event's payload. Handlers run on the read
// pump goroutine, so events are processed in arrival order and run to
// completion before the next.
type Handler func(data json.RawMessage)

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Options tune the connection; zero values take the defaults above.
type Options struct {
	SendBufferSize int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

// Conn maintains the event channel: it dials, pumps frames both ways, and
// redials with backoff when the connection drops. OnConnect fires after
// every successful dial so the sync layer can run its rejoin handshake.
type Conn struct {
	url  string
	opts Options

	mu        sync.RWMutex
	handlers  map[string]Handler
	onConnect func()

	send chan outFrame
}

func New(url string, opts Options) *Conn {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = sendBufSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = writeWait
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = pongWait
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = maxMessageSize
	}
	return &Conn{
		url:      url,
		opts:     opts,
		handlers: make(map[string]Handler),
		send:     make(chan outFrame, opts.SendBufferSize),
	}
}

// Handle registers the handler for a named event. Must be called before Run.
func (c *Conn) Handle(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// OnConnect registers the callback invoked after each successful dial.
func (c *Conn) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// Emit queues a named event for delivery. Fire-and-forget: no ack, no retry;
// if the send buffer is full the frame is dropped with an error log.
func (c *Conn) Emit(event string, data any) {
	select {
	case c.send <- outFrame{Event: event, Data: data}:
	default:
		logger.Errorf("transport: send buffer full, dropping %s", event)
	}
}

// Run dials the server and serves the connection, redialing with exponential
// backoff until ctx is cancelled.
func (c *Conn) Run(ctx context.Context) {
	delay := reconnectBaseDelay
	for {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("transport: dial %s: %v (retry in %s)", c.url, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		logger.Infof("transport: connected to %s", c.url)
		delay = reconnectBaseDelay
		c.serve(ctx, ws)
		if ctx.Err() != nil {
			return
		}
		logger.Info("transport: connection lost, reconnecting")
	}
}

func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		c.writePump(connCtx, ws)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.readPump(connCtx, ws)
	}()

	c.mu.RLock()
	onConnect := c.onConnect
	c.mu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	wg.Wait()
	ws.Close()
}

// readPump reads frames and dispatches them to the registered handlers.
// Exits on read error or context cancellation.
func (c *Conn) readPump(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()

	ws.SetReadLimit(c.opts.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout)); err != nil {
		logger.Errorf("transport: set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("transport: read: %v", err)
			}
			return
		}

		var f inFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Errorf("transport: bad frame: %v", err)
			continue
		}

		c.mu.RLock()
		h, ok := c.handlers[f.Event]
		c.mu.RUnlock()
		if !ok {
			logger.Infof("transport: unhandled event %q", f.Event)
			continue
		}
		h(f.Data)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
// On shutdown it drains whatever is already queued (the teardown refresh
// rides on this, best effort) before the close handshake.
func (c *Conn) writePump(ctx context.Context, ws *websocket.Conn) {
	pingPeriod := (c.opts.PongTimeout * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	writeFrame := func(f outFrame) error {
		if err := ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
		return ws.WriteJSON(f)
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case f := <-c.send:
					if err := writeFrame(f); err != nil {
						return
					}
				default:
					ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
					ws.WriteMessage(websocket.CloseMessage, nil)
					return
				}
			}
		case f := <-c.send:
			if err := writeFrame(f); err != nil {
				logger.Errorf("transport: write %s: %v", f.Event, err)
				return
			}
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
