package realtime

import (
	"encoding/json"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
)

// typed decodes the first argument into T before calling h. Payloads that
// do not decode are logged and skipped.
func typed[T any](log logger.Logger, h func(T)) Handler {
	return func(m Message) {
		var v T
		if err := m.Decode(&v); err != nil {
			log.Warn("Dropping malformed payload",
				logger.String("event", m.Name.String()),
				logger.Err(err),
			)
			return
		}
		h(v)
	}
}

// statsHandler normalises stats payloads of either shape
func statsHandler(log logger.Logger, h func(StreamStatsSnapshot)) Handler {
	return func(m Message) {
		var raw json.RawMessage
		if len(m.Args) > 0 {
			raw = m.Args[0]
		}
		snap, ok := NormalizeStats(raw)
		if !ok {
			log.Warn("Stats payload is not an object, using zero values", logger.String("event", m.Name.String()))
		}
		h(snap)
	}
}

// requireArg logs and returns a usage error when value is empty
func requireArg(log logger.Logger, event EventKind, arg, value string) error {
	if value != "" {
		return nil
	}
	err := errors.NewInvalidArgumentError(arg, "must not be empty")
	log.Error("Emit rejected", logger.String("event", string(event)), logger.Err(err))
	return err
}
