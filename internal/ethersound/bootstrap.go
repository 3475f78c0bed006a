package ethersound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrSessionNotFound = errors.New("session not found")

// AuthenticationError is returned when the service rejects the shared secret.
type AuthenticationError struct {
	URL string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication with %s was rejected", e.URL)
}

var _ error = (*AuthenticationError)(nil)

type BootstrapOptions struct {
	URL string
	// Secret is presented only when the service says it can authenticate.
	Secret string
	// PersistentID selects the session to tap.
	PersistentID string
}

// Bootstrap connects, authenticates if configured, finds the session with the
// configured persistent id, watches the properties its stream format depends
// on and opens its tap. The client is closed on any failure.
func Bootstrap(ctx context.Context, opts BootstrapOptions) (*Client, *Tap, error) {
	client, err := Dial(ctx, opts.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", opts.URL, err)
	}

	tap, err := bootstrap(ctx, client, opts)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, tap, nil
}

func bootstrap(ctx context.Context, client *Client, opts BootstrapOptions) (*Tap, error) {
	if _, canAuthenticate := client.Permissions(); opts.Secret != "" && canAuthenticate {
		ok, err := client.Authenticate(ctx, opts.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
		if !ok {
			return nil, &AuthenticationError{URL: opts.URL}
		}
		slog.Info("Authenticated with EtherSound", "url", opts.URL)
	}

	if err := client.WatchSessionPropertyAll(ctx, SessionPersistentID); err != nil {
		return nil, fmt.Errorf("failed to watch session persistent ids: %w", err)
	}

	session, ok := client.FindSession(func(s Session) bool {
		return s.PersistentID != nil && *s.PersistentID == opts.PersistentID
	})
	if !ok {
		return nil, fmt.Errorf("%w: no session has persistent id %q", ErrSessionNotFound, opts.PersistentID)
	}

	for _, p := range []SessionProperty{SessionSampleRate, SessionChannelMask} {
		if err := client.WatchSessionProperty(ctx, session.ID, p); err != nil {
			return nil, fmt.Errorf("failed to watch %s of session %d: %w", p, session.ID, err)
		}
	}

	tap := client.Tap(session.ID)
	if err := tap.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open tap of session %d: %w", session.ID, err)
	}

	slog.Info("Tapping EtherSound session", "session", session.ID, "persistentId", opts.PersistentID)
	return tap, nil
}
