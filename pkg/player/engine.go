package player

import (
	"time"
)

// Quality is one selectable rendition of a stream
type Quality struct {
	// Name is the label shown to viewers, e.g. "720p"
	Name string `json:"name"`

	// URL is the DASH manifest for this rendition
	URL string `json:"dash"`
}

// Surface is the view an engine renders into.
type Surface interface {
	// ID identifies the surface in logs
	ID() string
}

// ErrorKind classifies an engine error
type ErrorKind string

const (
	// ErrorManifestLoad means the manifest could not be fetched or parsed.
	// It is the only kind that triggers a re-initialization.
	ErrorManifestLoad ErrorKind = "manifest_load"

	// ErrorSegment is a media segment failure the engine recovers from itself
	ErrorSegment ErrorKind = "segment"

	// ErrorOther covers everything else
	ErrorOther ErrorKind = "other"
)

// EngineError is reported by an engine through its error listener
type EngineError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface
func (e EngineError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Settings configures an engine before playback starts
type Settings struct {
	// InitialBitrateKbps seeds adaptive bitrate selection
	InitialBitrateKbps int

	// AutoSwitchBitrate lets the engine pick renditions on its own
	AutoSwitchBitrate bool

	// ManifestRetryAttempts is the engine's own manifest retry budget
	ManifestRetryAttempts int

	// LiveDelay and LiveDelayFragmentCount are only set for live sources
	LiveDelay              time.Duration
	LiveDelayFragmentCount int
}

// Engine is an adaptive streaming engine bound to one surface.
//
// Error listeners must be invoked asynchronously, never from inside a call
// the controller made into the engine.
type Engine interface {
	// Configure applies settings; called before Initialize and when the live flag changes
	Configure(s Settings)

	// OnError installs the error listener
	OnError(fn func(EngineError))

	// Initialize binds the engine to a surface and starts loading url
	Initialize(view Surface, url string, autoplay bool) error

	// AttachView rebinds the engine to a surface
	AttachView(view Surface) error

	// AttachSource switches the manifest in place
	AttachSource(url string) error

	// Reset detaches view and source and stops segment loading
	Reset()

	// Destroy releases the engine; it is not reusable afterwards
	Destroy()

	// Position returns the current playback position
	Position() time.Duration

	// Seek moves playback to the given position
	Seek(pos time.Duration)
}

// EngineFactory constructs a fresh engine for each initialization
type EngineFactory func() (Engine, error)
