package ethersound

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrUnknownProperty is returned for property names outside the closed
	// set an entity exposes.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrReadOnlyProperty is returned when setting a property the service
	// does not accept writes for.
	ErrReadOnlyProperty = errors.New("property is read-only")
)

// RootProperty names a property of the service root.
type RootProperty string

const (
	RootMasterVolume RootProperty = "masterVolume"
	RootMuted        RootProperty = "muted"
)

// SessionProperty names a property of a session.
type SessionProperty string

const (
	SessionPersistentID             SessionProperty = "persistentId"
	SessionName                     SessionProperty = "name"
	SessionValid                    SessionProperty = "valid"
	SessionColor                    SessionProperty = "color"
	SessionMasterVolume             SessionProperty = "masterVolume"
	SessionMuted                    SessionProperty = "muted"
	SessionSampleRate               SessionProperty = "sampleRate"
	SessionChannelMask              SessionProperty = "channelMask"
	SessionMaxMasterVolume          SessionProperty = "maxMasterVolume"
	SessionSilenceThreshold         SessionProperty = "silenceThreshold"
	SessionAveragingWeight          SessionProperty = "averagingWeight"
	SessionSaturationThreshold      SessionProperty = "saturationThreshold"
	SessionSaturationDebounceFactor SessionProperty = "saturationDebounceFactor"
	SessionSaturationRecoveryFactor SessionProperty = "saturationRecoveryFactor"
	SessionMonitorVolume            SessionProperty = "monitorVolume"
	SessionTapWriteCursorDelta      SessionProperty = "tapWriteCursorDelta"
)

// ChannelProperty names a property of a channel.
type ChannelProperty string

const (
	ChannelVolume ChannelProperty = "volume"
)

// The value records whether the property is writable.
var rootProperties = map[RootProperty]bool{
	RootMasterVolume: false,
	RootMuted:        true,
}

var sessionProperties = map[SessionProperty]bool{
	SessionPersistentID:             false,
	SessionName:                     false,
	SessionValid:                    false,
	SessionSampleRate:               false,
	SessionChannelMask:              false,
	SessionMonitorVolume:            false,
	SessionTapWriteCursorDelta:      false,
	SessionColor:                    true,
	SessionMasterVolume:             true,
	SessionMuted:                    true,
	SessionMaxMasterVolume:          true,
	SessionSilenceThreshold:         true,
	SessionAveragingWeight:          true,
	SessionSaturationThreshold:      true,
	SessionSaturationDebounceFactor: true,
	SessionSaturationRecoveryFactor: true,
}

var channelProperties = map[ChannelProperty]bool{
	ChannelVolume: true,
}

func (p RootProperty) Known() bool    { _, ok := rootProperties[p]; return ok }
func (p RootProperty) Writable() bool { return rootProperties[p] }

func (p SessionProperty) Known() bool    { _, ok := sessionProperties[p]; return ok }
func (p SessionProperty) Writable() bool { return sessionProperties[p] }

func (p ChannelProperty) Known() bool    { _, ok := channelProperties[p]; return ok }
func (p ChannelProperty) Writable() bool { return channelProperties[p] }

// Capitalize converts a local property name to its wire form by upper-casing
// the first character.
func Capitalize(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if size == 0 {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// Uncapitalize converts a wire property name to its local form by
// lower-casing the first character.
func Uncapitalize(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if size == 0 {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

// ParseSessionProperty accepts either the local or the wire form of a
// session property name.
func ParseSessionProperty(name string) (SessionProperty, error) {
	p := SessionProperty(Uncapitalize(strings.TrimSpace(name)))
	if !p.Known() {
		return "", fmt.Errorf("%w: session property %q", ErrUnknownProperty, name)
	}
	return p, nil
}

// ParseRootProperty accepts either the local or the wire form of a root
// property name.
func ParseRootProperty(name string) (RootProperty, error) {
	p := RootProperty(Uncapitalize(strings.TrimSpace(name)))
	if !p.Known() {
		return "", fmt.Errorf("%w: root property %q", ErrUnknownProperty, name)
	}
	return p, nil
}

// ParseChannelProperty accepts either the local or the wire form of a
// channel property name.
func ParseChannelProperty(name string) (ChannelProperty, error) {
	p := ChannelProperty(Uncapitalize(strings.TrimSpace(name)))
	if !p.Known() {
		return "", fmt.Errorf("%w: channel property %q", ErrUnknownProperty, name)
	}
	return p, nil
}

// SessionProperties lists every session property name in lexical order.
func SessionProperties() []SessionProperty {
	out := make([]SessionProperty, 0, len(sessionProperties))
	for p := range sessionProperties {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
