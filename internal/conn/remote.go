package conn

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/sgcache/internal/client"
	"github.com/alfredjeanlab/sgcache/internal/config"
)

// DialFunc opens a connection to the remote store.
type DialFunc func(settings config.Connection) (Connection, error)

// DialClient is the default DialFunc, backed by the JSON API client.
func DialClient(settings config.Connection) (Connection, error) {
	return client.New(settings)
}

// Remote is a Connection to the live remote store. It opens nothing until the
// first call, when settings are validated and the connection is dialed.
// Invalid settings fail every call with a *config.ValidationError.
type Remote struct {
	*Forwarder

	settings config.Connection
	dial     DialFunc
	logger   *slog.Logger

	mu   sync.Mutex
	conn Connection
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithConnection uses c instead of dialing.
func WithConnection(c Connection) RemoteOption {
	return func(r *Remote) { r.conn = c }
}

// WithDial replaces DialClient.
func WithDial(d DialFunc) RemoteOption {
	return func(r *Remote) { r.dial = d }
}

func WithLogger(l *slog.Logger) RemoteOption {
	return func(r *Remote) { r.logger = l }
}

// NewRemote returns a Remote for settings.
func NewRemote(settings config.Connection, opts ...RemoteOption) *Remote {
	r := &Remote{settings: settings, dial: DialClient, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	r.Forwarder = &Forwarder{resolver: r}
	return r
}

var (
	_ Connection = (*Remote)(nil)
	_ Connection = (*client.Client)(nil)
)

// Resolve returns the underlying connection, dialing it on first use.
func (r *Remote) Resolve(ctx context.Context) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	if err := r.settings.Validate(); err != nil {
		return nil, err
	}
	c, err := r.dial(r.settings)
	if err != nil {
		return nil, err
	}
	r.logger.Info("connected to remote store", "host", r.settings.Host, "script", r.settings.APIScript)
	r.conn = c
	return c, nil
}

// Settings returns the connection settings.
func (r *Remote) Settings() config.Connection { return r.settings }
