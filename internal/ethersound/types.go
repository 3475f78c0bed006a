package ethersound

// Flow is the direction of an audio endpoint.
type Flow int

const (
	FlowRender Flow = iota
	FlowCapture
	FlowAll
)

func (f Flow) String() string {
	switch f {
	case FlowRender:
		return "render"
	case FlowCapture:
		return "capture"
	case FlowAll:
		return "all"
	default:
		return "unknown"
	}
}

// Role is the default-device role an endpoint may be selected by.
type Role int

const (
	RoleConsole Role = iota
	RoleMultimedia
	RoleCommunications
)

// DeviceState is a bit set describing endpoint availability.
type DeviceState int

const (
	DeviceActive     DeviceState = 0x1
	DeviceDisabled   DeviceState = 0x2
	DeviceNotPresent DeviceState = 0x4
	DeviceUnplugged  DeviceState = 0x8
)

func (s DeviceState) String() string {
	switch {
	case s&DeviceActive != 0:
		return "active"
	case s&DeviceDisabled != 0:
		return "disabled"
	case s&DeviceNotPresent != 0:
		return "not present"
	case s&DeviceUnplugged != 0:
		return "unplugged"
	default:
		return "unknown"
	}
}

// Device is an audio endpoint known to the mixing service.
type Device struct {
	ID           string      `json:"Id"`
	FriendlyName string      `json:"FriendlyName"`
	Flow         Flow        `json:"Flow"`
	State        DeviceState `json:"State"`
	SampleRate   int         `json:"SampleRate"`
	Channels     int         `json:"Channels"`
	DefaultFor   int         `json:"DefaultFor"`
}

// SourceConfiguration selects the endpoint a session captures from.
type SourceConfiguration struct {
	ID           *string `json:"Id,omitempty"`
	FriendlyName *string `json:"FriendlyName,omitempty"`
	Flow         *Flow   `json:"Flow,omitempty"`
	Role         *Role   `json:"Role,omitempty"`
}

// SinkConfiguration selects a local endpoint a session renders to.
type SinkConfiguration struct {
	ID           *string `json:"Id,omitempty"`
	FriendlyName *string `json:"FriendlyName,omitempty"`
	Role         *Role   `json:"Role,omitempty"`
}

// NetworkSinkConfiguration sends a session's output to a network peer.
type NetworkSinkConfiguration struct {
	BindAddress *string `json:"BindAddress,omitempty"`
	PeerAddress *string `json:"PeerAddress,omitempty"`
	PeerService *string `json:"PeerService,omitempty"`
}

// SessionConfiguration describes how a session is wired. Nil fields are left
// to the service's defaults.
type SessionConfiguration struct {
	SampleRate  *int                      `json:"SampleRate,omitempty"`
	Channels    *int                      `json:"Channels,omitempty"`
	Source      *SourceConfiguration      `json:"Source,omitempty"`
	WASSink     *SinkConfiguration        `json:"WASSink,omitempty"`
	NetworkSink *NetworkSinkConfiguration `json:"NetworkSink,omitempty"`
}
