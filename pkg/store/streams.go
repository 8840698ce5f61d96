package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/realtime"
)

// maxHistoryPoints bounds each per-stream stats series
const maxHistoryPoints = 360

// StreamAPI is the part of the backend client StreamsStore needs
type StreamAPI interface {
	ListStreams(ctx context.Context) ([]realtime.Stream, error)
}

// History holds the audience series of one stream
type History struct {
	StreamID    string
	Viewers     []realtime.StatsPoint
	Followers   []realtime.StatsPoint
	Subscribers []realtime.StatsPoint
}

func (h *History) clone() History {
	return History{
		StreamID:    h.StreamID,
		Viewers:     append([]realtime.StatsPoint(nil), h.Viewers...),
		Followers:   append([]realtime.StatsPoint(nil), h.Followers...),
		Subscribers: append([]realtime.StatsPoint(nil), h.Subscribers...),
	}
}

// StreamsStore is the live stream directory. Private streams are only
// visible to their owner.
type StreamsStore struct {
	api    StreamAPI
	viewer func() string
	logger logger.Logger

	mu      sync.RWMutex
	streams []realtime.Stream
	history map[string]*History
}

// NewStreamsStore creates an empty store. viewer returns the signed-in
// username and may be nil for anonymous use.
func NewStreamsStore(client StreamAPI, viewer func() string, log logger.Logger) *StreamsStore {
	if viewer == nil {
		viewer = func() string { return "" }
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &StreamsStore{
		api:     client,
		viewer:  viewer,
		logger:  log.With(logger.String("store", "streams")),
		history: make(map[string]*History),
	}
}

// Fetch replaces the directory with the backend's list and resets history
func (s *StreamsStore) Fetch(ctx context.Context) error {
	list, err := s.api.ListStreams(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append([]realtime.Stream(nil), list...)
	s.history = make(map[string]*History, len(list))
	for _, st := range list {
		id := st.ID.String()
		s.history[id] = &History{StreamID: id}
	}
	s.logger.Debug("Fetched streams", logger.Int("count", len(list)))
	return nil
}

// Add inserts a stream unless one with the same id exists
func (s *StreamsStore) Add(st realtime.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(st)
}

func (s *StreamsStore) addLocked(st realtime.Stream) bool {
	if s.indexLocked(st.ID.String()) >= 0 {
		return false
	}
	s.streams = append(s.streams, st)
	id := st.ID.String()
	if _, ok := s.history[id]; !ok {
		s.history[id] = &History{StreamID: id}
	}
	return true
}

// Update merges the fields present in patch into the stored stream, or adds
// the stream when it is unknown
func (s *StreamsStore) Update(patch realtime.StreamPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(patch.ID.String())
	if i < 0 {
		s.addLocked(patch.Stream)
		s.logger.Debug("Patched unknown stream, added instead", logger.String("stream", patch.ID.String()))
		return nil
	}
	if len(patch.Raw) == 0 {
		s.streams[i] = patch.Stream
		return nil
	}

	merged, err := mergeStream(s.streams[i], patch.Raw)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidArgument, "merge stream patch", err)
	}
	s.streams[i] = merged
	return nil
}

// mergeStream overlays the JSON fields of raw onto base
func mergeStream(base realtime.Stream, raw json.RawMessage) (realtime.Stream, error) {
	data, err := json.Marshal(base)
	if err != nil {
		return base, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return base, err
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(raw, &patch); err != nil {
		return base, err
	}
	for k, v := range patch {
		fields[k] = v
	}
	data, err = json.Marshal(fields)
	if err != nil {
		return base, err
	}
	var out realtime.Stream
	if err := json.Unmarshal(data, &out); err != nil {
		return base, err
	}
	return out, nil
}

// Remove drops a stream and its history. Ended events may reference either
// the stream id or its options id.
func (s *StreamsStore) Remove(streamID string) error {
	if streamID == "" {
		return errors.NewInvalidArgumentError("streamID", "required to remove a stream")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range s.streams {
		if st.ID.String() == streamID || st.OptionsID.String() == streamID {
			s.streams = append(s.streams[:i], s.streams[i+1:]...)
			delete(s.history, st.ID.String())
			s.logger.Debug("Removed stream", logger.String("stream", streamID))
			return nil
		}
	}
	return nil
}

// RecordStats appends a stats sample to the stream's history. Snapshots that
// carry full series replace the stored ones.
func (s *StreamsStore) RecordStats(snap realtime.StreamStatsSnapshot) {
	id := snap.StreamID.String()
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[id]
	if !ok {
		h = &History{StreamID: id}
		s.history[id] = h
	}

	if len(snap.ViewerHistory) > 0 || len(snap.FollowerHistory) > 0 || len(snap.SubscriberHistory) > 0 {
		h.Viewers = trim(append([]realtime.StatsPoint(nil), snap.ViewerHistory...))
		h.Followers = trim(append([]realtime.StatsPoint(nil), snap.FollowerHistory...))
		h.Subscribers = trim(append([]realtime.StatsPoint(nil), snap.SubscriberHistory...))
		return
	}

	ts := snap.Timestamp
	h.Viewers = trim(append(h.Viewers, realtime.StatsPoint{Timestamp: ts, Value: snap.Current.Viewers}))
	h.Followers = trim(append(h.Followers, realtime.StatsPoint{Timestamp: ts, Value: snap.Current.Followers}))
	h.Subscribers = trim(append(h.Subscribers, realtime.StatsPoint{Timestamp: ts, Value: snap.Current.Subscribers}))
}

func trim(points []realtime.StatsPoint) []realtime.StatsPoint {
	if len(points) > maxHistoryPoints {
		return points[len(points)-maxHistoryPoints:]
	}
	return points
}

// All returns the streams visible to the current viewer
func (s *StreamsStore) All() []realtime.Stream {
	viewer := s.viewer()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]realtime.Stream, 0, len(s.streams))
	for _, st := range s.streams {
		if visible(st, viewer) {
			out = append(out, st)
		}
	}
	return out
}

// ByID returns a visible stream by id
func (s *StreamsStore) ByID(streamID string) (realtime.Stream, bool) {
	viewer := s.viewer()
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(streamID)
	if i < 0 || !visible(s.streams[i], viewer) {
		return realtime.Stream{}, false
	}
	return s.streams[i], true
}

// ByStreamer returns a visible stream by its streamer's username
func (s *StreamsStore) ByStreamer(username string) (realtime.Stream, bool) {
	viewer := s.viewer()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.streams {
		if st.Username == username {
			if !visible(st, viewer) {
				return realtime.Stream{}, false
			}
			return st, true
		}
	}
	return realtime.Stream{}, false
}

// IsStreamerLive reports whether the streamer has a stream visible to the viewer
func (s *StreamsStore) IsStreamerLive(username string) bool {
	_, ok := s.ByStreamer(username)
	return ok
}

// IsOwner reports whether the current viewer owns any stream
func (s *StreamsStore) IsOwner() bool {
	viewer := s.viewer()
	if viewer == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.streams {
		if st.Username == viewer {
			return true
		}
	}
	return false
}

// History returns a copy of a stream's audience series
func (s *StreamsStore) History(streamID string) (History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[streamID]
	if !ok {
		return History{}, false
	}
	return h.clone(), true
}

// HistoryByStreamer returns the series of a streamer's visible stream
func (s *StreamsStore) HistoryByStreamer(username string) (History, bool) {
	st, ok := s.ByStreamer(username)
	if !ok {
		return History{}, false
	}
	return s.History(st.ID.String())
}

// BindPublic keeps the store in sync with the public channel's broadcasts.
// The returned function removes the handlers.
func (s *StreamsStore) BindPublic(p *realtime.PublicSocket) func() {
	started := p.OnStreamStarted(func(st realtime.Stream) {
		s.Add(st)
	})
	patched := p.OnPatchStream(func(patch realtime.StreamPatch) {
		if err := s.Update(patch); err != nil {
			s.logger.Warn("Dropping stream patch", logger.Err(err))
		}
	})
	ended := p.OnStreamEnded(func(ev realtime.StreamEndedEvent) {
		if err := s.Remove(ev.StreamID.String()); err != nil {
			s.logger.Warn("Stream ended without id", logger.String("streamer", ev.Streamer))
		}
	})
	stats := p.OnStreamStats(s.RecordStats)

	return func() {
		p.Off(realtime.Event(realtime.KindStreamStarted), started)
		p.Off(realtime.Event(realtime.KindPatchStream), patched)
		p.Off(realtime.Event(realtime.KindStreamEnded), ended)
		p.Off(realtime.Event(realtime.KindStreamStats), stats)
	}
}

func (s *StreamsStore) indexLocked(streamID string) int {
	if streamID == "" {
		return -1
	}
	for i, st := range s.streams {
		if st.ID.String() == streamID {
			return i
		}
	}
	return -1
}

func visible(st realtime.Stream, viewer string) bool {
	return st.IsPublic || (viewer != "" && st.Username == viewer)
}
