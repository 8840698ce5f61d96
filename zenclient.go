// Package zenclient is the client SDK for the ZenLive streaming backend. It
// wires the REST API, the public and authenticated socket channels, the
// session binding between them, client-side stores and media players.
package zenclient

import (
	"context"
	"net/http"
	"sync"

	"github.com/aminofox/zenclient/pkg/api"
	"github.com/aminofox/zenclient/pkg/clock"
	"github.com/aminofox/zenclient/pkg/config"
	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/metrics"
	"github.com/aminofox/zenclient/pkg/player"
	"github.com/aminofox/zenclient/pkg/realtime"
	"github.com/aminofox/zenclient/pkg/session"
	"github.com/aminofox/zenclient/pkg/store"
	"github.com/aminofox/zenclient/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is the SDK version
const Version = "0.3.0"

// Options overrides the collaborators New builds by default
type Options struct {
	// Dialer replaces the websocket transport
	Dialer transport.Dialer

	// HTTPTransport is the innermost round tripper of the API client
	HTTPTransport http.RoundTripper

	// Registerer receives client metrics when metrics are enabled;
	// prometheus.DefaultRegisterer when nil
	Registerer prometheus.Registerer

	Clock  clock.Clock
	Logger logger.Logger
}

// Client is one SDK instance
type Client struct {
	config  *config.Config
	logger  logger.Logger
	metrics *metrics.Metrics
	clock   clock.Clock

	api      *api.Client
	registry *realtime.Registry
	binding  *session.Binding

	public *realtime.PublicSocket
	auth   *realtime.AuthSocket

	authStore     *store.AuthStore
	streams       *store.StreamsStore
	notifications *store.NotificationsStore

	mu        sync.Mutex
	isRunning bool
	cleanup   []func()
}

// New creates a client from cfg, which defaults to config.DefaultConfig
func New(cfg *config.Config, opts ...Options) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	log := o.Logger
	if log == nil {
		log = logger.New(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := o.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		m = metrics.New(cfg.Metrics.Namespace, reg)
	}

	apiClient, err := api.New(api.Options{
		BaseURL:   cfg.Backend.BaseURL(),
		Timeout:   cfg.Backend.RequestTimeout,
		Transport: o.HTTPTransport,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	dialer := o.Dialer
	if dialer == nil {
		dialer = transport.NewWebSocketDialer(transport.WebSocketOptions{
			HandshakeTimeout: cfg.Socket.DialTimeout,
			PingTimeout:      cfg.Socket.PingTimeout,
			Jar:              apiClient.Jar(),
			Logger:           log,
		})
	}

	binding := session.NewBinding(nil, log)
	registry := realtime.NewRegistry(realtime.RegistryOptions{
		Config:   cfg,
		Dialer:   dialer,
		AuthGate: binding.Authenticated,
		Clock:    o.Clock,
		Logger:   log,
		Metrics:  m,
	})
	binding.Bind(registry.Auth())

	authStore := store.NewAuthStore(apiClient, log)

	c := &Client{
		config:   cfg,
		logger:   log,
		metrics:  m,
		clock:    o.Clock,
		api:      apiClient,
		registry: registry,
		binding:  binding,
		public:   realtime.NewPublicSocket(registry.Public(), log),
		auth: realtime.NewAuthSocket(registry.Auth(), realtime.AuthSocketOptions{
			ChatRatePerSecond: cfg.Socket.ChatRatePerSecond,
			ChatBurst:         cfg.Socket.ChatBurst,
			Logger:            log,
			Metrics:           m,
		}),
		authStore:     authStore,
		streams:       store.NewStreamsStore(apiClient, authStore.Username, log),
		notifications: store.NewNotificationsStore(apiClient, log),
	}
	return c, nil
}

// Start connects the public channel, binds the stores and settles the
// session. A missing session is not an error.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeInvalidState, "client is already running")
	}
	c.isRunning = true
	bg := context.WithoutCancel(ctx)
	c.cleanup = append(c.cleanup,
		c.authStore.Subscribe(func(s session.AuthState) { c.binding.Update(bg, s) }),
		c.notifications.TrackSession(bg, c.authStore),
		c.streams.BindPublic(c.public),
		c.notifications.BindAuth(c.auth, c.authStore.Username),
	)
	c.mu.Unlock()

	c.logger.Info("Starting zenclient",
		logger.String("version", Version),
		logger.String("backend", c.config.Backend.BaseURL()),
	)

	if err := c.registry.Public().Connect(ctx); err != nil {
		c.logger.Warn("Public channel not connected yet", logger.Err(err))
	}
	if err := c.authStore.FetchUser(ctx); err != nil {
		c.logger.Info("Starting without a session")
	}
	if err := c.streams.Fetch(ctx); err != nil {
		c.logger.Warn("Fetching streams failed", logger.Err(err))
	}
	return nil
}

// Stop disconnects both channels and unbinds the stores
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeInvalidState, "client is not running")
	}
	c.isRunning = false
	cleanup := c.cleanup
	c.cleanup = nil
	c.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	// The next Start replays the stored session into the binding
	c.binding.Update(context.Background(), session.AuthUnknown)
	c.registry.Close()
	c.logger.Info("zenclient stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop
func (c *Client) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning
}

// Login signs in with a plain password, hashed with the configured salt and
// pepper, and connects the authenticated channel
func (c *Client) Login(ctx context.Context, username, password string) error {
	hash := api.PasswordHash(password, c.config.Auth.Salt, c.config.Auth.Pepper)
	if hash == "" {
		return errors.New(errors.ErrCodeMissingConfig, "auth salt and pepper are required to log in")
	}
	if _, err := c.api.Login(ctx, username, hash); err != nil {
		return err
	}
	return c.authStore.FetchUser(ctx)
}

// Logout ends the session and disconnects the authenticated channel
func (c *Client) Logout(ctx context.Context) error {
	return c.authStore.Logout(ctx)
}

// NewPlayer builds a player controller with the configured defaults.
// Fields left zero in opts are filled in.
func (c *Client) NewPlayer(opts player.Options) (*player.Controller, error) {
	if opts.Config == (config.PlayerConfig{}) {
		opts.Config = c.config.Player
	}
	if opts.Clock == nil {
		opts.Clock = c.clock
	}
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	if opts.Metrics == nil {
		opts.Metrics = c.metrics
	}
	return player.New(opts)
}

// PlayerForStream builds a player for a stream record, using its quality
// variants and live flag
func (c *Client) PlayerForStream(st realtime.Stream, engine player.EngineFactory, surface player.Surface) (*player.Controller, error) {
	qualities := make([]player.Quality, 0, len(st.StreamURLs))
	for _, u := range st.StreamURLs {
		qualities = append(qualities, player.Quality{Name: u.Name, URL: u.Dash})
	}
	base := ""
	if st.Path != nil {
		base = *st.Path
	}
	return c.NewPlayer(player.Options{
		Engine:    engine,
		Surface:   surface,
		URL:       base,
		Qualities: qualities,
		Live:      st.IsLive,
	})
}

// Config returns the active configuration
func (c *Client) Config() *config.Config { return c.config }

// Logger returns the client logger
func (c *Client) Logger() logger.Logger { return c.logger }

// API returns the REST client
func (c *Client) API() *api.Client { return c.api }

// Public returns the typed public channel facade
func (c *Client) Public() *realtime.PublicSocket { return c.public }

// Auth returns the typed authenticated channel facade
func (c *Client) Auth() *realtime.AuthSocket { return c.auth }

// Registry returns the channel pair
func (c *Client) Registry() *realtime.Registry { return c.registry }

// Session returns the binding between login state and the auth channel
func (c *Client) Session() *session.Binding { return c.binding }

// AuthStore returns the signed-in user store
func (c *Client) AuthStore() *store.AuthStore { return c.authStore }

// Streams returns the stream directory
func (c *Client) Streams() *store.StreamsStore { return c.streams }

// Notifications returns the notification store
func (c *Client) Notifications() *store.NotificationsStore { return c.notifications }
