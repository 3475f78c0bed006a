// Package ethersoundtest provides an in-process mixing service for tests.
package ethersoundtest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"

	"github.com/glizzus/aether/internal/rpc"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Session is the server-side view of a session.
type Session struct {
	ID           int64
	PersistentID string
	Name         string
	SampleRate   int64
	ChannelMask  uint32
}

// Server speaks enough of the mixing service protocol to drive a client:
// it sends the initial permissions and session list, answers watches with
// the current value, and pushes tap data as BSON frames.
type Server struct {
	URL string

	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	secret   string
	sessions []*Session
	nextID   int64
	conns    []*conn
	requests []rpc.Request
	taps     map[int64]bool
	silent   map[string]bool
}

type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) write(messageType int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		slog.Debug("fake service write failed", "error", err)
	}
}

// NewServer starts a server with the given sessions. Call Close when done.
func NewServer(sessions ...Session) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{Subprotocols: []string{"ethersound"}},
		taps:     make(map[int64]bool),
		silent:   make(map[string]bool),
	}
	for i := range sessions {
		session := sessions[i]
		s.sessions = append(s.sessions, &session)
		s.nextID = max(s.nextID, session.ID)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

func (s *Server) Close() {
	s.CloseConnections()
	s.srv.Close()
}

// CloseConnections drops every client connection without a close handshake.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

// SetSecret makes the server offer authentication and accept only secret.
func (s *Server) SetSecret(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
}

// Ignore makes the server never answer the named method.
func (s *Server) Ignore(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[method] = true
}

// Requests returns every request received so far.
func (s *Server) Requests() []rpc.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// TapOpen reports whether a client opened the tap of session.
func (s *Server) TapOpen(session int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taps[session]
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	s.mu.Lock()
	s.conns = append(s.conns, c)
	ids := s.sessionIDs()
	secret := s.secret
	s.mu.Unlock()

	c.write(websocket.TextMessage, notification("PermissionsChanged", map[string]any{
		"Permissions":     0,
		"CanAuthenticate": secret != "",
	}))
	c.write(websocket.TextMessage, notification("SessionsChanged", map[string]any{"Ids": ids}))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
			ID     uint64         `json:"id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		s.handle(c, rpc.Request{Method: req.Method, Params: req.Params, ID: req.ID}, req.Params)
	}
}

func (s *Server) sessionIDs() []int64 {
	ids := make([]int64, len(s.sessions))
	for i, session := range s.sessions {
		ids[i] = session.ID
	}
	return ids
}

func (s *Server) find(id int64) *Session {
	for _, session := range s.sessions {
		if session.ID == id {
			return session
		}
	}
	return nil
}

func (s *Server) handle(c *conn, req rpc.Request, params map[string]any) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	silent := s.silent[req.Method]
	secret := s.secret
	s.mu.Unlock()
	if silent {
		return
	}

	var (
		result any
		failed any
	)

	switch req.Method {
	case "Authenticate":
		result = secret != "" && params["Secret"] == secret
	case "WatchSessionProperty":
		property, _ := params["Property"].(string)
		s.mu.Lock()
		var targets []*Session
		if id, ok := params["Session"].(float64); ok {
			if session := s.find(int64(id)); session != nil {
				targets = append(targets, session)
			}
		} else {
			targets = s.sessions
		}
		var frames [][]byte
		for _, session := range targets {
			if value, ok := sessionValue(session, property); ok {
				frames = append(frames, notification("SessionPropertyChanged", map[string]any{
					"Session":  session.ID,
					"Property": property,
					"Value":    value,
				}))
			}
		}
		s.mu.Unlock()
		for _, frame := range frames {
			c.write(websocket.TextMessage, frame)
		}
	case "OpenTapStream", "CloseTapStream":
		id, _ := params["Session"].(float64)
		s.mu.Lock()
		s.taps[int64(id)] = req.Method == "OpenTapStream"
		s.mu.Unlock()
	case "EnumerateDevices":
		result = []map[string]any{{
			"Id":           "{0.0.0.00000000}.{speakers}",
			"FriendlyName": "Speakers",
			"Flow":         0,
			"State":        1,
			"SampleRate":   48000,
			"Channels":     2,
			"DefaultFor":   0,
		}}
	case "AddSession":
		s.mu.Lock()
		s.nextID++
		id := s.nextID
		s.sessions = append(s.sessions, &Session{ID: id})
		ids := s.sessionIDs()
		s.mu.Unlock()
		s.broadcast(websocket.TextMessage, notification("SessionsChanged", map[string]any{"Ids": ids}))
		result = id
	case "RemoveSession":
		id, _ := params["Session"].(float64)
		s.mu.Lock()
		s.sessions = slices.DeleteFunc(s.sessions, func(session *Session) bool { return session.ID == int64(id) })
		ids := s.sessionIDs()
		s.mu.Unlock()
		s.broadcast(websocket.TextMessage, notification("SessionsChanged", map[string]any{"Ids": ids}))
	case "QuerySessionConfiguration":
		result = map[string]any{"SampleRate": 48000, "Channels": 2}
	case "WatchRootProperty", "UnwatchRootProperty", "UnwatchSessionProperty",
		"WatchChannelProperty", "UnwatchChannelProperty",
		"SetRootProperty", "SetSessionProperty", "SetChannelProperty",
		"ConfigureSession", "SetSessionPosition", "RestartSession", "RestartAllSessions":
	default:
		failed = map[string]any{"Message": "unknown method " + req.Method}
	}

	response := map[string]any{"id": req.ID}
	if failed != nil {
		response["error"] = failed
	} else {
		response["result"] = result
	}
	data, _ := json.Marshal(response)
	c.write(websocket.TextMessage, data)
}

func sessionValue(s *Session, property string) (any, bool) {
	switch property {
	case "PersistentId":
		return s.PersistentID, true
	case "Name":
		return s.Name, true
	case "SampleRate":
		return s.SampleRate, true
	case "ChannelMask":
		return s.ChannelMask, true
	}
	return nil, false
}

func notification(method string, params map[string]any) []byte {
	data, _ := json.Marshal(map[string]any{"method": method, "params": params})
	return data
}

func (s *Server) broadcast(messageType int, data []byte) {
	s.mu.Lock()
	conns := slices.Clone(s.conns)
	s.mu.Unlock()

	for _, c := range conns {
		c.write(messageType, data)
	}
}

// SetChannelMask changes a session's mask and notifies every client.
func (s *Server) SetChannelMask(session int64, mask uint32) {
	s.mu.Lock()
	if target := s.find(session); target != nil {
		target.ChannelMask = mask
	}
	s.mu.Unlock()

	s.broadcast(websocket.TextMessage, notification("SessionPropertyChanged", map[string]any{
		"Session":  session,
		"Property": "ChannelMask",
		"Value":    mask,
	}))
}

// SendTap pushes one chunk of tap data for session to every client.
func (s *Server) SendTap(session int64, data []byte) {
	frame, err := bson.Marshal(bson.D{
		{Key: "method", Value: "TapData"},
		{Key: "params", Value: bson.D{
			{Key: "Session", Value: session},
			{Key: "Data", Value: bson.Binary{Data: data}},
		}},
	})
	if err != nil {
		panic(err)
	}
	s.broadcast(websocket.BinaryMessage, frame)
}

// Notify sends an arbitrary notification to every client.
func (s *Server) Notify(method string, params map[string]any) {
	s.broadcast(websocket.TextMessage, notification(method, params))
}
