package ethersound

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// State is the local mirror of the service's object graph. It changes only in
// response to notifications passed to Apply, and announces every change on
// Events after the change is visible through its accessors.
type State struct {
	Events *Events

	mu              sync.RWMutex
	permissions     int64
	canAuthenticate bool
	root            Root
	sessions        map[int64]*Session

	sawPermissions bool
	sawSessions    bool
	readyOnce      sync.Once
	ready          chan struct{}
}

func NewState() *State {
	return &State{
		Events:   &Events{},
		sessions: make(map[int64]*Session),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once both the initial permissions and the initial session
// list have been received.
func (st *State) Ready() <-chan struct{} {
	return st.ready
}

// Apply interprets one server notification.
func (st *State) Apply(method string, params map[string]any) {
	var err error
	switch method {
	case "PermissionsChanged":
		err = st.applyPermissions(params)
	case "SessionsChanged":
		err = st.applySessions(params)
	case "RootPropertyChanged":
		err = st.applyRootProperty(params)
	case "SessionPropertyChanged":
		err = st.applySessionProperty(params)
	case "ChannelPropertyChanged":
		err = st.applyChannelProperty(params)
	case "TapData":
		err = st.applyTapData(params)
	default:
		st.Events.Notification.Publish(Notification{Method: method, Params: params})
	}
	if err != nil {
		slog.Warn("ignoring notification", "method", method, "error", err)
	}
}

func (st *State) applyPermissions(params map[string]any) error {
	permissions, err := param(params, "Permissions", asInt64)
	if err != nil {
		return err
	}
	canAuthenticate, err := param(params, "CanAuthenticate", asBool)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.permissions = permissions
	st.canAuthenticate = canAuthenticate
	st.sawPermissions = true
	ready := st.sawSessions
	st.mu.Unlock()

	st.Events.PermissionsChanged.Publish(PermissionsChanged{
		Permissions:     permissions,
		CanAuthenticate: canAuthenticate,
	})
	if ready {
		st.markReady()
	}
	return nil
}

func (st *State) applySessions(params map[string]any) error {
	raw, ok := params["Ids"].([]any)
	if !ok && params["Ids"] != nil {
		return fmt.Errorf("expected Ids to be a list, got %T", params["Ids"])
	}
	ids := make([]int64, 0, len(raw))
	next := make(map[int64]struct{}, len(raw))
	for _, v := range raw {
		id, err := asInt64(v)
		if err != nil {
			return fmt.Errorf("bad session id: %w", err)
		}
		// A repeated id keeps its first position.
		if _, dup := next[id]; dup {
			continue
		}
		next[id] = struct{}{}
		ids = append(ids, id)
	}

	st.mu.Lock()

	var removed, added []int64
	for id := range st.sessions {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(st.sessions, id)
	}
	for _, id := range ids {
		if _, ok := st.sessions[id]; !ok {
			st.sessions[id] = &Session{ID: id, Channels: make(map[uint32]*Channel)}
			added = append(added, id)
		}
	}
	st.root.Sessions = slices.Clone(ids)
	st.sawSessions = true
	ready := st.sawPermissions
	st.mu.Unlock()

	slices.Sort(removed)
	st.Events.SessionsChanged.Publish(SessionsChanged{
		IDs:     slices.Clone(ids),
		Added:   added,
		Removed: removed,
	})
	if ready {
		st.markReady()
	}
	return nil
}

func (st *State) markReady() {
	st.readyOnce.Do(func() { close(st.ready) })
}

func (st *State) applyRootProperty(params map[string]any) error {
	name, err := param(params, "Property", asString)
	if err != nil {
		return err
	}
	prop := RootProperty(Uncapitalize(name))

	st.mu.Lock()
	prev, value, err := st.root.set(prop, params["Value"])
	st.mu.Unlock()
	if err != nil {
		return err
	}

	st.Events.RootPropertyChanged.Publish(RootPropertyChanged{Property: prop, Value: value, Previous: prev})
	return nil
}

func (st *State) applySessionProperty(params map[string]any) error {
	id, err := param(params, "Session", asInt64)
	if err != nil {
		return err
	}
	name, err := param(params, "Property", asString)
	if err != nil {
		return err
	}
	prop := SessionProperty(Uncapitalize(name))

	st.mu.Lock()
	session, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		slog.Debug("property change for unknown session", "session", id, "property", prop)
		return nil
	}
	prev, value, err := session.set(prop, params["Value"])
	st.mu.Unlock()
	if err != nil {
		return err
	}

	st.Events.SessionPropertyChanged.Publish(SessionPropertyChanged{
		Session:  id,
		Property: prop,
		Value:    value,
		Previous: prev,
	})
	return nil
}

func (st *State) applyChannelProperty(params map[string]any) error {
	id, err := param(params, "Session", asInt64)
	if err != nil {
		return err
	}
	channelID, err := param(params, "Channel", asMask)
	if err != nil {
		return err
	}
	name, err := param(params, "Property", asString)
	if err != nil {
		return err
	}
	prop := ChannelProperty(Uncapitalize(name))
	if !prop.Known() {
		return fmt.Errorf("%w: channel property %q", ErrUnknownProperty, name)
	}

	st.mu.Lock()
	session, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		slog.Debug("channel property change for unknown session", "session", id, "channel", channelID)
		return nil
	}
	channel, ok := session.Channels[channelID]
	if !ok {
		// The mask update that announces this channel may still be in flight.
		channel = &Channel{ID: channelID}
		session.Channels[channelID] = channel
	}
	prev, value, err := channel.set(prop, params["Value"])
	st.mu.Unlock()
	if err != nil {
		return err
	}

	st.Events.ChannelPropertyChanged.Publish(ChannelPropertyChanged{
		Session:  id,
		Channel:  channelID,
		Property: prop,
		Value:    value,
		Previous: prev,
	})
	return nil
}

func (st *State) applyTapData(params map[string]any) error {
	id, err := param(params, "Session", asInt64)
	if err != nil {
		return err
	}

	var data []byte
	switch v := params["Data"].(type) {
	case []byte:
		data = v
	case string:
		// Text frames can only carry the payload as base64.
		data, err = base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("bad tap payload: %w", err)
		}
	default:
		return fmt.Errorf("expected Data to be binary, got %T", v)
	}

	st.Events.TapData.Publish(TapData{Session: id, Data: data})
	return nil
}

// Permissions returns the last reported permission bits and whether the
// service accepts authentication.
func (st *State) Permissions() (int64, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.permissions, st.canAuthenticate
}

// Root returns a snapshot of the root.
func (st *State) Root() Root {
	st.mu.RLock()
	defer st.mu.RUnlock()
	root := st.root
	root.Sessions = slices.Clone(st.root.Sessions)
	return root
}

// Session returns a snapshot of the session with the given id.
func (st *State) Session(id int64) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Sessions returns snapshots of every session in the service's order.
func (st *State) Sessions() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Session, 0, len(st.root.Sessions))
	for _, id := range st.root.Sessions {
		if s, ok := st.sessions[id]; ok {
			out = append(out, s.clone())
		}
	}
	return out
}

func param[T any](params map[string]any, key string, convert func(any) (T, error)) (T, error) {
	v, ok := params[key]
	if !ok {
		var zero T
		return zero, fmt.Errorf("missing %s", key)
	}
	out, err := convert(v)
	if err != nil {
		return out, fmt.Errorf("bad %s: %w", key, err)
	}
	return out, nil
}
