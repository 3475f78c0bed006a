package ethersound

import "github.com/glizzus/aether/internal/pubsub"

// PermissionsChanged reports the client's current permission bits.
type PermissionsChanged struct {
	Permissions     int64
	CanAuthenticate bool
}

// SessionsChanged reports the authoritative, ordered list of session ids.
type SessionsChanged struct {
	IDs     []int64
	Added   []int64
	Removed []int64
}

type RootPropertyChanged struct {
	Property RootProperty
	Value    any
	Previous any
}

type SessionPropertyChanged struct {
	Session  int64
	Property SessionProperty
	Value    any
	Previous any
}

type ChannelPropertyChanged struct {
	Session  int64
	Channel  uint32
	Property ChannelProperty
	Value    any
	Previous any
}

// TapData is one chunk of raw PCM pushed for an open tap.
type TapData struct {
	Session int64
	Data    []byte
}

// Notification is any server notification this package does not interpret.
type Notification struct {
	Method string
	Params map[string]any
}

// Events holds one topic per kind of change. Listeners run synchronously on
// the connection's read goroutine and must not block.
type Events struct {
	PermissionsChanged     pubsub.Topic[PermissionsChanged]
	SessionsChanged        pubsub.Topic[SessionsChanged]
	RootPropertyChanged    pubsub.Topic[RootPropertyChanged]
	SessionPropertyChanged pubsub.Topic[SessionPropertyChanged]
	ChannelPropertyChanged pubsub.Topic[ChannelPropertyChanged]
	TapData                pubsub.Topic[TapData]
	Notification           pubsub.Topic[Notification]
	// Closed fires once when the connection is gone for good.
	Closed pubsub.Topic[error]
}
