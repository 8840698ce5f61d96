package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/google/uuid"
)

// Handler handles one inbound event
type Handler func(msg Message)

// Subscription is the registration token for a handler. Attaching the same
// token twice to one event is a no-op; Off with the token removes exactly
// that registration.
type Subscription struct {
	id      string
	handler Handler
}

// NewSubscription wraps h in a fresh token
func NewSubscription(h Handler) *Subscription {
	return &Subscription{
		id:      uuid.NewString(),
		handler: h,
	}
}

// ID returns the token id
func (s *Subscription) ID() string {
	return s.id
}

// registration is one (event, subscription) binding. removed is checked
// right before invocation so Off from inside a handler takes effect for the
// rest of the current dispatch.
type registration struct {
	sub     *Subscription
	removed atomic.Bool
}

// handlerSet maps wire event names to registrations in registration order
type handlerSet struct {
	mu     sync.RWMutex
	byName map[string][]*registration
}

func newHandlerSet() *handlerSet {
	return &handlerSet{byName: make(map[string][]*registration)}
}

// add registers sub for name and reports whether it was newly added
func (hs *handlerSet) add(name string, sub *Subscription) bool {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	for _, reg := range hs.byName[name] {
		if reg.sub == sub {
			return false
		}
	}
	hs.byName[name] = append(hs.byName[name], &registration{sub: sub})
	return true
}

// remove drops sub from name, or every registration when sub is nil.
// It returns how many registrations were removed.
func (hs *handlerSet) remove(name string, sub *Subscription) int {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	regs := hs.byName[name]
	if sub == nil {
		for _, reg := range regs {
			reg.removed.Store(true)
		}
		delete(hs.byName, name)
		return len(regs)
	}

	for i, reg := range regs {
		if reg.sub != sub {
			continue
		}
		reg.removed.Store(true)
		kept := make([]*registration, 0, len(regs)-1)
		kept = append(kept, regs[:i]...)
		kept = append(kept, regs[i+1:]...)
		if len(kept) == 0 {
			delete(hs.byName, name)
		} else {
			hs.byName[name] = kept
		}
		return 1
	}
	return 0
}

// snapshot returns the registrations for name at this instant
func (hs *handlerSet) snapshot(name string) []*registration {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.byName[name]
}

// count returns how many registrations name has
func (hs *handlerSet) count(name string) int {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return len(hs.byName[name])
}

// names returns every event with at least one registration
func (hs *handlerSet) names() []string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	names := make([]string, 0, len(hs.byName))
	for name := range hs.byName {
		names = append(names, name)
	}
	return names
}

// invoke runs every live registration in order. A panicking handler is
// logged and does not stop the others. It returns how many handlers panicked.
func (hs *handlerSet) invoke(msg Message, log logger.Logger) (panics int) {
	for _, reg := range hs.snapshot(msg.Name.String()) {
		if reg.removed.Load() {
			continue
		}
		if !safeCall(reg.sub, msg, log) {
			panics++
		}
	}
	return panics
}

func safeCall(sub *Subscription, msg Message, log logger.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Event handler panic",
				logger.String("event", msg.Name.String()),
				logger.String("subscription_id", sub.id),
				logger.String("panic", fmt.Sprint(r)),
			)
			ok = false
		}
	}()
	sub.handler(msg)
	return true
}
