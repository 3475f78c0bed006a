package ethersound

import (
	"fmt"
	"maps"
	"math"
	"math/bits"
	"slices"
)

// Root is the singleton at the top of the mirrored graph. Nil fields have not
// been reported by the service yet.
type Root struct {
	Sessions     []int64
	MasterVolume *float64
	Muted        *bool
}

// Session mirrors one mixing session. Nil fields are unknown until watched.
type Session struct {
	ID int64

	PersistentID             *string
	Name                     *string
	Valid                    *bool
	Color                    *int64
	MasterVolume             *float64
	Muted                    *bool
	SampleRate               *int64
	ChannelMask              *uint32
	MaxMasterVolume          *float64
	SilenceThreshold         *float64
	AveragingWeight          *float64
	SaturationThreshold      *float64
	SaturationDebounceFactor *float64
	SaturationRecoveryFactor *float64
	MonitorVolume            *float64
	TapWriteCursorDelta      *int64

	Channels map[uint32]*Channel
}

// Channel mirrors one channel of a session. Its id is a single mask bit.
type Channel struct {
	ID     uint32
	Volume *float64
}

// ChannelIDs returns the ids of the session's channels in ascending order.
func (s Session) ChannelIDs() []uint32 {
	return slices.Sorted(maps.Keys(s.Channels))
}

// MaskBits returns every set bit of mask as its own value, lowest first.
func MaskBits(mask uint32) []uint32 {
	out := make([]uint32, 0, bits.OnesCount32(mask))
	for mask != 0 {
		low := mask & -mask
		out = append(out, low)
		mask &= mask - 1
	}
	return out
}

func (s *Session) clone() Session {
	out := *s
	out.Channels = make(map[uint32]*Channel, len(s.Channels))
	for id, c := range s.Channels {
		ch := *c
		out.Channels[id] = &ch
	}
	return out
}

// set applies one property update. Pointers are always replaced, never
// written through, so snapshots can share them.
func (s *Session) set(p SessionProperty, v any) (prev, next any, err error) {
	switch p {
	case SessionPersistentID:
		return update(&s.PersistentID, v, asString)
	case SessionName:
		return update(&s.Name, v, asString)
	case SessionValid:
		return update(&s.Valid, v, asBool)
	case SessionColor:
		return update(&s.Color, v, asInt64)
	case SessionMasterVolume:
		return update(&s.MasterVolume, v, asFloat64)
	case SessionMuted:
		return update(&s.Muted, v, asBool)
	case SessionSampleRate:
		return update(&s.SampleRate, v, asInt64)
	case SessionChannelMask:
		prev, next, err := update(&s.ChannelMask, v, asMask)
		if err == nil && s.ChannelMask != nil {
			s.reconcileChannels(*s.ChannelMask)
		}
		return prev, next, err
	case SessionMaxMasterVolume:
		return update(&s.MaxMasterVolume, v, asFloat64)
	case SessionSilenceThreshold:
		return update(&s.SilenceThreshold, v, asFloat64)
	case SessionAveragingWeight:
		return update(&s.AveragingWeight, v, asFloat64)
	case SessionSaturationThreshold:
		return update(&s.SaturationThreshold, v, asFloat64)
	case SessionSaturationDebounceFactor:
		return update(&s.SaturationDebounceFactor, v, asFloat64)
	case SessionSaturationRecoveryFactor:
		return update(&s.SaturationRecoveryFactor, v, asFloat64)
	case SessionMonitorVolume:
		return update(&s.MonitorVolume, v, asFloat64)
	case SessionTapWriteCursorDelta:
		return update(&s.TapWriteCursorDelta, v, asInt64)
	default:
		return nil, nil, fmt.Errorf("%w: session property %q", ErrUnknownProperty, p)
	}
}

// reconcileChannels makes the channel map hold exactly the bits of mask.
// Channels that survive keep their properties.
func (s *Session) reconcileChannels(mask uint32) {
	for id := range s.Channels {
		if mask&id == 0 || bits.OnesCount32(id) != 1 {
			delete(s.Channels, id)
		}
	}
	for _, id := range MaskBits(mask) {
		if _, ok := s.Channels[id]; !ok {
			s.Channels[id] = &Channel{ID: id}
		}
	}
}

func (c *Channel) set(p ChannelProperty, v any) (prev, next any, err error) {
	switch p {
	case ChannelVolume:
		return update(&c.Volume, v, asFloat64)
	default:
		return nil, nil, fmt.Errorf("%w: channel property %q", ErrUnknownProperty, p)
	}
}

func (r *Root) set(p RootProperty, v any) (prev, next any, err error) {
	switch p {
	case RootMasterVolume:
		return update(&r.MasterVolume, v, asFloat64)
	case RootMuted:
		return update(&r.Muted, v, asBool)
	default:
		return nil, nil, fmt.Errorf("%w: root property %q", ErrUnknownProperty, p)
	}
}

// update overwrites field with v. A null v makes the value unknown again.
func update[T any](field **T, v any, convert func(any) (T, error)) (prev, next any, err error) {
	if *field != nil {
		prev = **field
	}
	if v == nil {
		*field = nil
		return prev, nil, nil
	}
	value, err := convert(v)
	if err != nil {
		return nil, nil, err
	}
	*field = &value
	return prev, value, nil
}

func asString(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("expected a string, got %T", v)
}

func asBool(v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("expected a boolean, got %T", v)
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt64 && n <= math.MaxInt64 {
			return int64(n), nil
		}
		return 0, fmt.Errorf("expected an integer, got %v", n)
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func asMask(v any) (uint32, error) {
	n, err := asInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("channel mask %d out of range", n)
	}
	return uint32(n), nil
}
