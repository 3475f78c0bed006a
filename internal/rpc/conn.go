package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handlers receive everything that is not a response to one of our requests.
// Notification is called from the read goroutine, one frame at a time and in
// arrival order. Close is called exactly once.
type Handlers struct {
	Notification func(Frame)
	Close        func(error)
}

// Conn is a websocket connection that multiplexes concurrent requests and
// server notifications.
type Conn struct {
	ws       *websocket.Conn
	corr     *Correlator
	handlers Handlers

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial opens a websocket to url, offering the given subprotocols, and starts
// reading frames. Handlers must be fully set up before calling Dial since the
// first notification can arrive immediately.
func Dial(ctx context.Context, url string, handlers Handlers, subprotocols ...string) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		Subprotocols:     subprotocols,
	}

	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %s): %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Conn{
		ws:       ws,
		corr:     NewCorrelator(),
		handlers: handlers,
		done:     make(chan struct{}),
	}
	go c.readMessages()

	return c, nil
}

func (c *Conn) readMessages() {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		var frame Frame
		switch messageType {
		case websocket.BinaryMessage:
			frame, err = DecodeFrame(true, data)
		case websocket.TextMessage:
			frame, err = DecodeFrame(false, data)
		default:
			continue
		}
		if err != nil {
			slog.Warn("dropping malformed frame", "error", err)
			continue
		}

		if frame.HasID {
			if !c.corr.Resolve(frame) {
				slog.Debug("dropping response with no outstanding request", "id", frame.ID)
			}
			continue
		}

		if c.handlers.Notification != nil {
			c.handlers.Notification(frame)
		}
	}
}

// Invoke sends a request and waits for its response. When result is non-nil
// the response's result is decoded into it. Cancelling ctx abandons the wait;
// the request itself has already been sent.
func (c *Conn) Invoke(ctx context.Context, method string, params any, result any) error {
	id, ch, err := c.corr.Register(method)
	if err != nil {
		return err
	}

	data, err := EncodeRequest(id, method, params)
	if err != nil {
		c.corr.Cancel(id)
		return err
	}

	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.corr.Cancel(id)
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return resp.Err
		}
		if result == nil {
			return nil
		}
		return DecodeValue(resp.Result, result)
	case <-ctx.Done():
		c.corr.Cancel(id)
		return ctx.Err()
	}
}

// Pending returns the number of requests still waiting for a response.
func (c *Conn) Pending() int {
	return c.corr.Pending()
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection shut down, or nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close sends a normal close frame and tears the connection down.
// Outstanding requests fail with ErrClosed.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	err := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	c.shutdown(ErrClosed)

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to send close frame: %w", err)
	}
	return nil
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		err := ErrClosed
		if cause != nil && !errors.Is(cause, ErrClosed) {
			err = fmt.Errorf("%w: %w", ErrClosed, cause)
		}

		c.err = err
		c.corr.Fail(err)
		c.ws.Close()
		close(c.done)

		if c.handlers.Close != nil {
			c.handlers.Close(err)
		}
	})
}
