// Package playertest provides an in-memory engine for player tests.
package playertest

import (
	"sync"
	"time"

	"github.com/aminofox/zenclient/pkg/player"
)

// Surface is a named test surface
type Surface string

// ID returns the surface name
func (s Surface) ID() string { return string(s) }

// Factory hands out Engines and keeps every one it built
type Factory struct {
	mu       sync.Mutex
	engines  []*Engine
	initErrs []error
}

// NewFactory creates an empty factory
func NewFactory() *Factory {
	return &Factory{}
}

// FailInit queues errors returned by Initialize on the next engines, one per engine
func (f *Factory) FailInit(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initErrs = append(f.initErrs, errs...)
}

// New implements player.EngineFactory
func (f *Factory) New() (player.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &Engine{}
	if len(f.initErrs) > 0 {
		e.initErr = f.initErrs[0]
		f.initErrs = f.initErrs[1:]
	}
	f.engines = append(f.engines, e)
	return e, nil
}

// Engines returns every engine built so far
func (f *Factory) Engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Engine, len(f.engines))
	copy(out, f.engines)
	return out
}

// Last returns the most recent engine, or nil
func (f *Factory) Last() *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// Engine records the calls a controller makes
type Engine struct {
	mu sync.Mutex

	initErr         error
	attachViewErr   error
	attachSourceErr error

	onError   func(player.EngineError)
	settings  []player.Settings
	view      player.Surface
	sources   []string
	views     []player.Surface
	position  time.Duration
	seeks     []time.Duration
	resets    int
	destroyed bool
}

// Configure records settings
func (e *Engine) Configure(s player.Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = append(e.settings, s)
}

// OnError stores the listener
func (e *Engine) OnError(fn func(player.EngineError)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = fn
}

// Initialize fails with the queued error or records view and source
func (e *Engine) Initialize(view player.Surface, url string, autoplay bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initErr != nil {
		return e.initErr
	}
	e.view = view
	e.views = append(e.views, view)
	e.sources = append(e.sources, url)
	return nil
}

// AttachView rebinds the view
func (e *Engine) AttachView(view player.Surface) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attachViewErr != nil {
		return e.attachViewErr
	}
	e.view = view
	e.views = append(e.views, view)
	return nil
}

// AttachSource switches the source
func (e *Engine) AttachSource(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attachSourceErr != nil {
		return e.attachSourceErr
	}
	e.sources = append(e.sources, url)
	return nil
}

// Reset detaches view and source
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
	e.view = nil
}

// Destroy marks the engine dead
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
}

// Position returns the position set by SetPosition
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Seek records the seek
func (e *Engine) Seek(pos time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeks = append(e.seeks, pos)
	e.position = pos
}

// Fail reports an error through the installed listener
func (e *Engine) Fail(kind player.ErrorKind, msg string) {
	e.mu.Lock()
	fn := e.onError
	e.mu.Unlock()
	if fn != nil {
		fn(player.EngineError{Kind: kind, Message: msg})
	}
}

// FailAttach makes later AttachView / AttachSource calls fail
func (e *Engine) FailAttach(view, source error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attachViewErr = view
	e.attachSourceErr = source
}

// SetPosition sets the value returned by Position
func (e *Engine) SetPosition(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = d
}

// Source returns the last attached source
func (e *Engine) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sources) == 0 {
		return ""
	}
	return e.sources[len(e.sources)-1]
}

// Sources returns every attached source in order
func (e *Engine) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sources...)
}

// View returns the attached surface, nil after Reset
func (e *Engine) View() player.Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Settings returns the last applied settings
func (e *Engine) Settings() player.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.settings) == 0 {
		return player.Settings{}
	}
	return e.settings[len(e.settings)-1]
}

// Seeks returns every seek in order
func (e *Engine) Seeks() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.seeks...)
}

// Resets returns how many times Reset was called
func (e *Engine) Resets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

// Destroyed reports whether Destroy was called
func (e *Engine) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}
