package realtime

import (
	"context"
	"net/http"

	"github.com/aminofox/zenclient/pkg/backoff"
	"github.com/aminofox/zenclient/pkg/clock"
	"github.com/aminofox/zenclient/pkg/config"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/metrics"
	"github.com/aminofox/zenclient/pkg/transport"
)

// Socket is the capability a channel exposes to its consumers
type Socket interface {
	Connect(ctx context.Context) error
	Disconnect()
	Emit(event EventName, args ...interface{}) error
	On(event EventName, h Handler) *Subscription
	Attach(event EventName, sub *Subscription) error
	Off(event EventName, sub *Subscription)
	IsConnected() bool
	State() ConnectionState
	OnStateChange(fn func(ConnectionState)) (cancel func())
}

var _ Socket = (*Channel)(nil)

// RegistryOptions configures a Registry
type RegistryOptions struct {
	Config *config.Config
	Dialer transport.Dialer

	// Header is sent with every upgrade request
	Header http.Header

	// AuthGate reports whether a session is active; the auth channel
	// never dials while it returns false
	AuthGate func() bool

	Clock   clock.Clock
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Registry owns the process-wide pair of channels. Consumers share the
// registry rather than creating their own channels.
type Registry struct {
	public *Channel
	auth   *Channel
}

// NewRegistry creates both channels, disconnected
func NewRegistry(opts RegistryOptions) *Registry {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	url := cfg.Backend.SocketURL()

	newChannel := func(kind ChannelKind, namespace string, policy backoff.Policy, gate func() bool) *Channel {
		return NewChannel(ChannelOptions{
			Kind: kind,
			Endpoint: transport.Endpoint{
				URL:       url,
				Namespace: namespace,
				Header:    opts.Header,
			},
			Dialer:      opts.Dialer,
			Policy:      policy,
			DialTimeout: cfg.Socket.DialTimeout,
			Dedup:       cfg.Dedup,
			Gate:        gate,
			Clock:       opts.Clock,
			Logger:      opts.Logger,
			Metrics:     opts.Metrics,
		})
	}

	gate := opts.AuthGate
	if gate == nil {
		gate = func() bool { return false }
	}

	return &Registry{
		public: newChannel(ChannelPublic, cfg.Backend.PublicNamespace, cfg.Socket.Public, nil),
		auth:   newChannel(ChannelAuth, cfg.Backend.AuthNamespace, cfg.Socket.Auth, gate),
	}
}

// Public returns the anonymous channel
func (r *Registry) Public() *Channel {
	return r.public
}

// Auth returns the per-user channel
func (r *Registry) Auth() *Channel {
	return r.auth
}

// Close disconnects both channels
func (r *Registry) Close() {
	r.auth.Disconnect()
	r.public.Disconnect()
}
