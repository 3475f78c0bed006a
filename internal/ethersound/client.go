package ethersound

import (
	"context"
	"fmt"

	"github.com/glizzus/aether/internal/rpc"
	"github.com/glizzus/aether/internal/util"
)

// Subprotocol is the websocket subprotocol the mixing service speaks.
const Subprotocol = "ethersound"

// Client talks to a mixing service and keeps a mirror of its object graph.
//
// The transport (rpc.Conn) knows nothing about sessions or channels; the
// mirror (State) only ever changes in response to notifications the
// transport hands it.
type Client struct {
	*State
	conn *rpc.Conn
}

// Dial connects to the service at url and waits until the initial
// permissions and session list have arrived.
func Dial(ctx context.Context, url string) (*Client, error) {
	state := NewState()

	conn, err := rpc.Dial(ctx, url, rpc.Handlers{
		Notification: func(f rpc.Frame) { state.Apply(f.Method, f.Params) },
		Close:        func(err error) { state.Events.Closed.Publish(err) },
	}, Subprotocol)
	if err != nil {
		return nil, err
	}

	select {
	case <-state.Ready():
		return &Client{State: state, conn: conn}, nil
	case <-conn.Done():
		return nil, fmt.Errorf("connection ended before the initial state arrived: %w", conn.Err())
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

// Close disconnects. Outstanding calls fail with rpc.ErrClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Err reports why the connection went away.
func (c *Client) Err() error {
	return c.conn.Err()
}

// FindSession returns the first session, in service order, matching pred.
func (c *Client) FindSession(pred func(Session) bool) (Session, bool) {
	return util.FindFirst(c.Sessions(), pred)
}

// Authenticate presents the shared secret. It reports whether the service
// accepted it.
func (c *Client) Authenticate(ctx context.Context, secret string) (bool, error) {
	var ok bool
	if err := c.conn.Invoke(ctx, "Authenticate", map[string]any{"Secret": secret}, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (c *Client) WatchRootProperty(ctx context.Context, p RootProperty) error {
	if !p.Known() {
		return fmt.Errorf("%w: root property %q", ErrUnknownProperty, p)
	}
	return c.conn.Invoke(ctx, "WatchRootProperty", map[string]any{"Property": Capitalize(string(p))}, nil)
}

func (c *Client) UnwatchRootProperty(ctx context.Context, p RootProperty) error {
	if !p.Known() {
		return fmt.Errorf("%w: root property %q", ErrUnknownProperty, p)
	}
	return c.conn.Invoke(ctx, "UnwatchRootProperty", map[string]any{"Property": Capitalize(string(p))}, nil)
}

// WatchSessionProperty asks for changes of p on one session. The current
// value is pushed as a notification before the call returns.
func (c *Client) WatchSessionProperty(ctx context.Context, session int64, p SessionProperty) error {
	return c.sessionWatch(ctx, "WatchSessionProperty", session, p)
}

// WatchSessionPropertyAll watches p on every session, including ones created later.
func (c *Client) WatchSessionPropertyAll(ctx context.Context, p SessionProperty) error {
	return c.sessionWatch(ctx, "WatchSessionProperty", nil, p)
}

func (c *Client) UnwatchSessionProperty(ctx context.Context, session int64, p SessionProperty) error {
	return c.sessionWatch(ctx, "UnwatchSessionProperty", session, p)
}

func (c *Client) UnwatchSessionPropertyAll(ctx context.Context, p SessionProperty) error {
	return c.sessionWatch(ctx, "UnwatchSessionProperty", nil, p)
}

func (c *Client) sessionWatch(ctx context.Context, method string, session any, p SessionProperty) error {
	if !p.Known() {
		return fmt.Errorf("%w: session property %q", ErrUnknownProperty, p)
	}
	return c.conn.Invoke(ctx, method, map[string]any{"Session": session, "Property": Capitalize(string(p))}, nil)
}

func (c *Client) WatchChannelProperty(ctx context.Context, session int64, p ChannelProperty) error {
	return c.channelWatch(ctx, "WatchChannelProperty", session, p)
}

func (c *Client) WatchChannelPropertyAll(ctx context.Context, p ChannelProperty) error {
	return c.channelWatch(ctx, "WatchChannelProperty", nil, p)
}

func (c *Client) UnwatchChannelProperty(ctx context.Context, session int64, p ChannelProperty) error {
	return c.channelWatch(ctx, "UnwatchChannelProperty", session, p)
}

func (c *Client) UnwatchChannelPropertyAll(ctx context.Context, p ChannelProperty) error {
	return c.channelWatch(ctx, "UnwatchChannelProperty", nil, p)
}

func (c *Client) channelWatch(ctx context.Context, method string, session any, p ChannelProperty) error {
	if !p.Known() {
		return fmt.Errorf("%w: channel property %q", ErrUnknownProperty, p)
	}
	return c.conn.Invoke(ctx, method, map[string]any{"Session": session, "Property": Capitalize(string(p))}, nil)
}

func (c *Client) SetRootProperty(ctx context.Context, p RootProperty, value any) error {
	if !p.Known() {
		return fmt.Errorf("%w: root property %q", ErrUnknownProperty, p)
	}
	if !p.Writable() {
		return fmt.Errorf("%w: root property %q", ErrReadOnlyProperty, p)
	}
	return c.conn.Invoke(ctx, "SetRootProperty", map[string]any{
		"Property": Capitalize(string(p)),
		"Value":    value,
	}, nil)
}

func (c *Client) SetSessionProperty(ctx context.Context, session int64, p SessionProperty, value any) error {
	if !p.Known() {
		return fmt.Errorf("%w: session property %q", ErrUnknownProperty, p)
	}
	if !p.Writable() {
		return fmt.Errorf("%w: session property %q", ErrReadOnlyProperty, p)
	}
	return c.conn.Invoke(ctx, "SetSessionProperty", map[string]any{
		"Session":  session,
		"Property": Capitalize(string(p)),
		"Value":    value,
	}, nil)
}

func (c *Client) SetChannelProperty(ctx context.Context, session int64, channel uint32, p ChannelProperty, value any) error {
	if !p.Known() {
		return fmt.Errorf("%w: channel property %q", ErrUnknownProperty, p)
	}
	if !p.Writable() {
		return fmt.Errorf("%w: channel property %q", ErrReadOnlyProperty, p)
	}
	return c.conn.Invoke(ctx, "SetChannelProperty", map[string]any{
		"Session":  session,
		"Channel":  channel,
		"Property": Capitalize(string(p)),
		"Value":    value,
	}, nil)
}

// AddSession creates a session and returns its id.
func (c *Client) AddSession(ctx context.Context, cfg SessionConfiguration) (int64, error) {
	var id int64
	if err := c.conn.Invoke(ctx, "AddSession", cfg, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) RemoveSession(ctx context.Context, session int64) error {
	return c.conn.Invoke(ctx, "RemoveSession", map[string]any{"Session": session}, nil)
}

func (c *Client) QuerySessionConfiguration(ctx context.Context, session int64) (SessionConfiguration, error) {
	var cfg SessionConfiguration
	if err := c.conn.Invoke(ctx, "QuerySessionConfiguration", map[string]any{"Session": session}, &cfg); err != nil {
		return SessionConfiguration{}, err
	}
	return cfg, nil
}

func (c *Client) ConfigureSession(ctx context.Context, session int64, cfg SessionConfiguration) error {
	params := struct {
		SessionConfiguration
		Session int64 `json:"Session"`
	}{cfg, session}
	return c.conn.Invoke(ctx, "ConfigureSession", params, nil)
}

// SetSessionPosition moves a session within the service's ordering.
func (c *Client) SetSessionPosition(ctx context.Context, session int64, position int) error {
	return c.conn.Invoke(ctx, "SetSessionPosition", map[string]any{"Session": session, "Position": position}, nil)
}

func (c *Client) RestartSession(ctx context.Context, session int64) error {
	return c.conn.Invoke(ctx, "RestartSession", map[string]any{"Session": session}, nil)
}

func (c *Client) RestartAllSessions(ctx context.Context) error {
	return c.conn.Invoke(ctx, "RestartAllSessions", map[string]any{}, nil)
}

func (c *Client) EnumerateDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := c.conn.Invoke(ctx, "EnumerateDevices", map[string]any{}, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// OpenTapStream starts TapData notifications for a session.
func (c *Client) OpenTapStream(ctx context.Context, session int64) error {
	return c.conn.Invoke(ctx, "OpenTapStream", map[string]any{"Session": session}, nil)
}

func (c *Client) CloseTapStream(ctx context.Context, session int64) error {
	return c.conn.Invoke(ctx, "CloseTapStream", map[string]any{"Session": session}, nil)
}
