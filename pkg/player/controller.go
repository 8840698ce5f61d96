// Package player binds one playback surface to one logical stream and keeps
// an adaptive engine alive across manifest failures, quality switches and
// live/offline flips.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aminofox/zenclient/pkg/backoff"
	"github.com/aminofox/zenclient/pkg/clock"
	"github.com/aminofox/zenclient/pkg/config"
	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/metrics"
)

// Options configures a Controller
type Options struct {
	// Engine builds a fresh engine for every initialization. Required.
	Engine EngineFactory

	// Config holds retry policy and engine defaults
	Config config.PlayerConfig

	// Surface, URL, Qualities and Live seed the source before the first InitPlayer
	Surface   Surface
	URL       string
	Qualities []Quality
	Live      bool

	Clock   clock.Clock
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Controller drives one engine through the player lifecycle
type Controller struct {
	factory EngineFactory
	cfg     config.PlayerConfig
	clock   clock.Clock
	logger  logger.Logger
	metrics *metrics.Metrics
	retry   *backoff.Backoff

	mu sync.Mutex

	state     State
	destroyed chan struct{}

	surface         Surface
	surfaceReady    chan struct{}
	surfaceSignaled bool
	visible         bool

	url       string
	qualities []Quality
	selected  string
	live      bool

	engine   Engine
	gen      uint64
	srcGen   uint64
	busy     bool
	detached bool
	pending  *EngineError

	retryTimer   clock.Timer
	restoreTimer clock.Timer
	settleTimer  clock.Timer
	sourceTimer  clock.Timer
}

// New creates a controller in StateUninitialized
func New(opts Options) (*Controller, error) {
	if opts.Engine == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "player requires an engine factory")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	c := &Controller{
		factory:      opts.Engine,
		cfg:          opts.Config,
		clock:        opts.Clock,
		logger:       opts.Logger.With(logger.String("component", "player")),
		metrics:      opts.Metrics,
		retry:        backoff.NewWithRand(opts.Config.Retry, func() float64 { return 0 }),
		state:        StateUninitialized,
		destroyed:    make(chan struct{}),
		surfaceReady: make(chan struct{}),
		visible:      true,
		url:          opts.URL,
		qualities:    cloneQualities(opts.Qualities),
		live:         opts.Live,
	}
	if len(c.qualities) > 0 {
		c.selected = c.qualities[0].Name
	}
	if opts.Surface != nil {
		c.setSurfaceLocked(opts.Surface)
	}
	c.metrics.PlayerTransition("", string(StateUninitialized))
	return c, nil
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Quality returns the selected quality name
func (c *Controller) Quality() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Qualities returns a copy of the known renditions
func (c *Controller) Qualities() []Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneQualities(c.qualities)
}

// RetryAttempts returns how many retries the current budget has used
func (c *Controller) RetryAttempts() int {
	return c.retry.Attempts()
}

// SetSurface provides the playback surface. An InitPlayer blocked waiting
// for a surface proceeds once this is called.
func (c *Controller) SetSurface(s Surface) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return
	}
	c.setSurfaceLocked(s)
}

// InitPlayer builds a fresh engine and starts playback. It blocks until a
// surface is available, the controller is destroyed, or ctx is done.
// Calling it restarts the retry budget.
//
// Engine failures are not returned; they move the controller to the retry
// path. An error is returned only for usage problems.
func (c *Controller) InitPlayer(ctx context.Context) error {
	return c.init(ctx, true)
}

func (c *Controller) init(ctx context.Context, manual bool) error {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return nil
	}
	if manual {
		c.retry.Reset()
		stopTimer(&c.retryTimer)
	}

	for c.surface == nil {
		ready := c.surfaceReady
		c.mu.Unlock()
		c.logger.Debug("Waiting for playback surface")
		select {
		case <-ready:
		case <-c.destroyed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		if c.state == StateDestroyed {
			c.mu.Unlock()
			return nil
		}
	}

	if c.busy {
		c.mu.Unlock()
		return nil
	}
	if !c.visible && c.state == StateUninitialized {
		c.mu.Unlock()
		c.logger.Debug("Surface not visible, deferring initialization")
		return nil
	}
	url := c.sourceURLLocked()
	if url == "" {
		c.mu.Unlock()
		return errors.NewInvalidArgumentError("source", "no stream URL to play")
	}

	c.busy = true
	c.pending = nil
	c.teardownLocked()
	gen := c.gen
	srcGen := c.srcGen
	c.setStateLocked(StateInitializing)
	settings := c.settingsLocked()
	surface := c.surface
	c.mu.Unlock()

	c.logger.Info("Initializing player",
		logger.String("surface", surface.ID()),
		logger.String("url", url),
		logger.Int("attempt", c.retry.Attempts()),
	)

	eng, err := c.factory()
	if err == nil {
		eng.Configure(settings)
		eng.OnError(func(e EngineError) { c.handleEngineError(gen, e) })
		err = initialize(eng, surface, url)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if gen != c.gen || c.state == StateDestroyed {
		if eng != nil {
			eng.Destroy()
		}
		return nil
	}
	if err == nil && c.pending != nil {
		err = *c.pending
	}
	c.pending = nil

	if err != nil {
		if eng != nil {
			eng.Destroy()
		}
		c.logger.Warn("Player initialization failed", logger.Err(err))
		c.failLocked()
		return nil
	}

	// UpdateSource calls made while the engine was being built only
	// recorded the new source
	if c.srcGen != srcGen {
		c.logger.Debug("Source changed during initialization, re-attaching",
			logger.String("url", c.sourceURLLocked()))
		err = eng.AttachView(c.surface)
		if err == nil {
			err = eng.AttachSource(c.sourceURLLocked())
		}
		if err != nil {
			eng.Destroy()
			c.logger.Warn("Attaching updated source failed", logger.Err(err))
			c.failLocked()
			return nil
		}
	}

	c.engine = eng
	c.detached = false
	c.setStateLocked(StateReady)
	return nil
}

// initialize converts an engine panic into an error
func initialize(eng Engine, view Surface, url string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodeEngineInit, fmt.Sprintf("engine panicked: %v", r))
		}
	}()
	if err := eng.Initialize(view, url, true); err != nil {
		return errors.Wrap(errors.ErrCodeEngineInit, "engine initialize", err)
	}
	return nil
}

func (c *Controller) handleEngineError(gen uint64, e EngineError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state == StateDestroyed {
		return
	}
	if e.Kind != ErrorManifestLoad {
		c.logger.Warn("Engine error", logger.String("kind", string(e.Kind)), logger.String("message", e.Message))
		return
	}
	if c.busy {
		c.pending = &e
		return
	}
	if c.state != StateReady {
		return
	}

	c.logger.Error("Manifest load failed", logger.String("message", e.Message))
	c.failLocked()
}

// failLocked records a failure and schedules a retry while budget remains
func (c *Controller) failLocked() {
	c.setStateLocked(StateError)

	delay, ok := c.retry.Next()
	if !ok {
		c.metrics.PlayerRetry("exhausted")
		c.logger.Error("Player retry budget exhausted", logger.Int("attempts", c.retry.Attempts()))
		return
	}

	c.metrics.PlayerRetry("scheduled")
	c.logger.Info("Scheduling player retry",
		logger.Int("attempt", c.retry.Attempts()),
		logger.Duration("delay", delay),
	)
	c.setStateLocked(StateRetrying)
	gen := c.gen
	stopTimer(&c.retryTimer)
	c.retryTimer = c.clock.AfterFunc(delay, func() { c.retryFired(gen) })
}

func (c *Controller) retryFired(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateRetrying {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.mu.Unlock()

	_ = c.init(context.Background(), false)
}

// ChangeQuality re-attaches the engine to another rendition. Outside of
// live playback the position is captured and restored shortly after.
func (c *Controller) ChangeQuality(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDestroyed {
		return nil
	}
	if c.state != StateReady || c.engine == nil {
		err := errors.New(errors.ErrCodeInvalidState, fmt.Sprintf("cannot change quality while %s", c.state))
		c.logger.Warn("Quality change rejected", logger.String("quality", name), logger.Err(err))
		return err
	}
	q, ok := findQuality(c.qualities, name)
	if !ok {
		err := errors.NewUnknownQualityError(name)
		c.logger.Error("Quality change failed", logger.Err(err))
		return err
	}

	c.selected = q.Name
	if c.detached {
		return nil
	}

	var pos time.Duration
	restore := !c.live
	if restore {
		pos = c.engine.Position()
	}

	if err := c.engine.AttachSource(q.URL); err != nil {
		c.logger.Warn("Attaching quality source failed", logger.String("quality", name), logger.Err(err))
		c.failLocked()
		return nil
	}
	c.logger.Info("Quality changed", logger.String("quality", name))

	stopTimer(&c.restoreTimer)
	if restore {
		gen := c.gen
		c.restoreTimer = c.clock.AfterFunc(c.cfg.QualityRestoreDelay, func() { c.restorePosition(gen, pos) })
	}
	return nil
}

func (c *Controller) restorePosition(gen uint64, pos time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateReady || c.engine == nil || c.live {
		return
	}
	c.restoreTimer = nil
	c.engine.Seek(pos)
}

// LoadCurrentQuality re-attaches the selected rendition
func (c *Controller) LoadCurrentQuality() error {
	return c.loadCurrent(0, false)
}

// LoadCurrentQualityAt re-attaches the selected rendition and seeks to pos
func (c *Controller) LoadCurrentQualityAt(pos time.Duration) error {
	return c.loadCurrent(pos, true)
}

func (c *Controller) loadCurrent(pos time.Duration, seek bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDestroyed {
		return nil
	}
	if c.state != StateReady || c.engine == nil {
		return errors.New(errors.ErrCodeInvalidState, fmt.Sprintf("cannot load quality while %s", c.state))
	}

	c.engine.Configure(c.settingsLocked())
	if c.detached {
		if err := c.engine.AttachView(c.surface); err != nil {
			c.logger.Warn("Re-attaching view failed", logger.Err(err))
			c.failLocked()
			return nil
		}
	}
	if err := c.engine.AttachSource(c.sourceURLLocked()); err != nil {
		c.logger.Warn("Re-attaching source failed", logger.Err(err))
		c.failLocked()
		return nil
	}
	c.detached = false
	if seek {
		c.engine.Seek(pos)
	}
	return nil
}

// SetLive applies the externally observed live flag. Going offline detaches
// and resets the engine without destroying it; coming back reloads the
// selected quality after a settle delay.
func (c *Controller) SetLive(live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDestroyed || c.live == live {
		return
	}
	c.live = live
	stopTimer(&c.settleTimer)

	if c.state != StateReady || c.engine == nil {
		return
	}

	if !live {
		stopTimer(&c.restoreTimer)
		c.engine.Reset()
		c.detached = true
		c.logger.Info("Stream went offline, engine detached")
		return
	}

	gen := c.gen
	c.settleTimer = c.clock.AfterFunc(c.cfg.LiveSettleDelay, func() {
		c.mu.Lock()
		ok := gen == c.gen && c.live
		c.settleTimer = nil
		c.mu.Unlock()
		if ok {
			c.logger.Info("Stream is live again, reloading")
			_ = c.LoadCurrentQuality()
		}
	})
}

// SetVisible records surface visibility. Becoming visible while still
// uninitialized starts initialization.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	c.visible = visible
	start := visible &&
		c.state == StateUninitialized &&
		!c.busy &&
		c.surface != nil &&
		c.sourceURLLocked() != ""
	c.mu.Unlock()

	if start {
		_ = c.init(context.Background(), false)
	}
}

// UpdateSource points the controller at a new surface and source. With no
// engine it behaves like InitPlayer; otherwise it re-attaches in place and
// falls back to a full re-initialization when that fails.
func (c *Controller) UpdateSource(ctx context.Context, surface Surface, url string, qualities []Quality) error {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return nil
	}
	if surface != nil {
		c.setSurfaceLocked(surface)
	}
	c.setSourceLocked(url, qualities)

	if c.engine == nil || c.state != StateReady {
		c.mu.Unlock()
		return c.init(ctx, true)
	}
	c.retry.Reset()
	if c.detached {
		c.mu.Unlock()
		return nil
	}

	err := c.engine.AttachView(c.surface)
	if err == nil {
		err = c.engine.AttachSource(c.sourceURLLocked())
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("In-place source update failed, reinitializing", logger.Err(err))
		return c.init(ctx, true)
	}
	c.logger.Debug("Source updated in place", logger.String("url", url))
	return nil
}

// ChangeSource coalesces rapid source changes; only the last one within the
// debounce window is applied.
func (c *Controller) ChangeSource(url string, qualities []Quality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return
	}

	qs := cloneQualities(qualities)
	stopTimer(&c.sourceTimer)
	c.sourceTimer = c.clock.AfterFunc(c.cfg.SourceDebounce, func() {
		c.mu.Lock()
		c.sourceTimer = nil
		if c.state == StateDestroyed {
			c.mu.Unlock()
			return
		}
		if c.surface == nil {
			c.setSourceLocked(url, qs)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		_ = c.UpdateSource(context.Background(), nil, url, qs)
	})
}

// DestroyPlayer releases the engine and cancels every timer. It is terminal.
func (c *Controller) DestroyPlayer() {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	stopTimer(&c.retryTimer)
	stopTimer(&c.restoreTimer)
	stopTimer(&c.settleTimer)
	stopTimer(&c.sourceTimer)
	eng := c.engine
	c.engine = nil
	c.gen++
	c.setStateLocked(StateDestroyed)
	close(c.destroyed)
	c.mu.Unlock()

	if eng != nil {
		eng.Destroy()
	}
	c.logger.Info("Player destroyed")
}

func (c *Controller) setSurfaceLocked(s Surface) {
	if c.surface != nil && c.surface != s {
		c.srcGen++
	}
	c.surface = s
	if !c.surfaceSignaled {
		c.surfaceSignaled = true
		close(c.surfaceReady)
	}
}

func (c *Controller) setSourceLocked(url string, qualities []Quality) {
	c.srcGen++
	c.url = url
	c.qualities = cloneQualities(qualities)
	if _, ok := findQuality(c.qualities, c.selected); !ok {
		c.selected = ""
		if len(c.qualities) > 0 {
			c.selected = c.qualities[0].Name
		}
	}
}

// sourceURLLocked resolves the selected quality, falling back to the base URL
func (c *Controller) sourceURLLocked() string {
	if q, ok := findQuality(c.qualities, c.selected); ok && q.URL != "" {
		return q.URL
	}
	return c.url
}

func (c *Controller) settingsLocked() Settings {
	s := Settings{
		InitialBitrateKbps:    c.cfg.InitialBitrateKbps,
		AutoSwitchBitrate:     true,
		ManifestRetryAttempts: c.cfg.ManifestRetryAttempts,
	}
	if c.live {
		s.LiveDelay = c.cfg.LiveDelay
		s.LiveDelayFragmentCount = c.cfg.LiveDelayFragmentCount
	}
	return s
}

// teardownLocked destroys the current engine and invalidates its callbacks
func (c *Controller) teardownLocked() {
	stopTimer(&c.restoreTimer)
	stopTimer(&c.settleTimer)
	if c.engine != nil {
		c.engine.Destroy()
		c.engine = nil
	}
	c.detached = false
	c.gen++
}

func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		c.logger.Error("Invalid player state transition",
			logger.String("from", string(from)),
			logger.String("to", string(to)),
		)
		return
	}
	c.state = to
	c.metrics.PlayerTransition(string(from), string(to))
	c.logger.Debug("Player state changed",
		logger.String("from", string(from)),
		logger.String("to", string(to)),
	)
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func findQuality(qs []Quality, name string) (Quality, bool) {
	if name == "" {
		return Quality{}, false
	}
	for _, q := range qs {
		if q.Name == name {
			return q, true
		}
	}
	return Quality{}, false
}

func cloneQualities(qs []Quality) []Quality {
	if len(qs) == 0 {
		return nil
	}
	out := make([]Quality, len(qs))
	copy(out, qs)
	return out
}
