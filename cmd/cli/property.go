package main

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"time"

	"github.com/glizzus/aether/internal/ethersound"
)

// unwatchTimeout bounds the cleanup request sent when watch is interrupted.
const unwatchTimeout = 5 * time.Second

// propertyClient is the part of ethersound.Client the property commands use.
type propertyClient interface {
	WatchRootProperty(ctx context.Context, p ethersound.RootProperty) error
	UnwatchRootProperty(ctx context.Context, p ethersound.RootProperty) error
	SetRootProperty(ctx context.Context, p ethersound.RootProperty, value any) error

	WatchSessionProperty(ctx context.Context, session int64, p ethersound.SessionProperty) error
	UnwatchSessionProperty(ctx context.Context, session int64, p ethersound.SessionProperty) error
	SetSessionProperty(ctx context.Context, session int64, p ethersound.SessionProperty, value any) error

	WatchChannelProperty(ctx context.Context, session int64, p ethersound.ChannelProperty) error
	UnwatchChannelProperty(ctx context.Context, session int64, p ethersound.ChannelProperty) error
	SetChannelProperty(ctx context.Context, session int64, channel uint32, p ethersound.ChannelProperty, value any) error
}

var _ propertyClient = (*ethersound.Client)(nil)

type scope int

const (
	scopeSession scope = iota
	scopeChannel
	scopeRoot
)

// target names one property of the root, a session or a session's channel.
type target struct {
	scope   scope
	session int64
	channel uint32

	root        ethersound.RootProperty
	sess        ethersound.SessionProperty
	channelProp ethersound.ChannelProperty
}

// parseTarget reads "<property>" for the root, or "<session> <property>"
// otherwise, and returns the arguments left over. A non-zero channel selects
// that channel of the session.
func parseTarget(args []string, root bool, channel uint64) (target, []string, error) {
	if root && channel != 0 {
		return target{}, nil, errors.New("--root and --channel cannot be combined")
	}

	if root {
		if len(args) < 1 {
			return target{}, nil, errors.New("missing property")
		}
		p, err := ethersound.ParseRootProperty(args[0])
		if err != nil {
			return target{}, nil, err
		}
		return target{scope: scopeRoot, root: p}, args[1:], nil
	}

	if len(args) < 1 {
		return target{}, nil, errors.New("missing session id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return target{}, nil, fmt.Errorf("invalid session id: %w", err)
	}
	if len(args) < 2 {
		return target{}, nil, errors.New("missing property")
	}

	if channel != 0 {
		if channel > 1<<31 || bits.OnesCount64(channel) != 1 {
			return target{}, nil, fmt.Errorf("channel %#x is not a single speaker bit", channel)
		}
		p, err := ethersound.ParseChannelProperty(args[1])
		if err != nil {
			return target{}, nil, err
		}
		return target{scope: scopeChannel, session: id, channel: uint32(channel), channelProp: p}, args[2:], nil
	}

	p, err := ethersound.ParseSessionProperty(args[1])
	if err != nil {
		return target{}, nil, err
	}
	return target{scope: scopeSession, session: id, sess: p}, args[2:], nil
}

func (t target) String() string {
	switch t.scope {
	case scopeRoot:
		return string(t.root) + " of root"
	case scopeChannel:
		return fmt.Sprintf("%s of channel %#x in session %d", t.channelProp, t.channel, t.session)
	default:
		return fmt.Sprintf("%s of session %d", t.sess, t.session)
	}
}

func (t target) watch(ctx context.Context, client propertyClient) error {
	switch t.scope {
	case scopeRoot:
		return client.WatchRootProperty(ctx, t.root)
	case scopeChannel:
		return client.WatchChannelProperty(ctx, t.session, t.channelProp)
	default:
		return client.WatchSessionProperty(ctx, t.session, t.sess)
	}
}

// unwatch drops the watch without waiting longer than timeout, so an
// unresponsive service cannot hold the process open after an interrupt.
func (t target) unwatch(client propertyClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch t.scope {
	case scopeRoot:
		return client.UnwatchRootProperty(ctx, t.root)
	case scopeChannel:
		return client.UnwatchChannelProperty(ctx, t.session, t.channelProp)
	default:
		return client.UnwatchSessionProperty(ctx, t.session, t.sess)
	}
}

func (t target) set(ctx context.Context, client propertyClient, value any) error {
	switch t.scope {
	case scopeRoot:
		return client.SetRootProperty(ctx, t.root, value)
	case scopeChannel:
		return client.SetChannelProperty(ctx, t.session, t.channel, t.channelProp, value)
	default:
		return client.SetSessionProperty(ctx, t.session, t.sess, value)
	}
}

// subscribe calls fn with the previous and new value of every change to the
// target, and returns the function that stops it.
func (t target) subscribe(events *ethersound.Events, fn func(prev, next any)) func() {
	switch t.scope {
	case scopeRoot:
		return events.RootPropertyChanged.Subscribe(func(e ethersound.RootPropertyChanged) {
			if e.Property == t.root {
				fn(e.Previous, e.Value)
			}
		}).Unsubscribe
	case scopeChannel:
		return events.ChannelPropertyChanged.Subscribe(func(e ethersound.ChannelPropertyChanged) {
			if e.Session == t.session && e.Channel == t.channel && e.Property == t.channelProp {
				fn(e.Previous, e.Value)
			}
		}).Unsubscribe
	default:
		return events.SessionPropertyChanged.Subscribe(func(e ethersound.SessionPropertyChanged) {
			if e.Session == t.session && e.Property == t.sess {
				fn(e.Previous, e.Value)
			}
		}).Unsubscribe
	}
}
