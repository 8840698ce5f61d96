package realtime

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ID is an identifier the backend sends either as a JSON number or string
type ID string

// UnmarshalJSON accepts numbers, strings and null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as text
func (id ID) String() string {
	return string(id)
}

// StreamURL is one quality variant of a stream
type StreamURL struct {
	Name string `json:"name"`
	Dash string `json:"dash"`
}

// Stream is a stream record as broadcast by the backend
type Stream struct {
	ID                ID              `json:"id"`
	StreamerID        ID              `json:"streamer_id"`
	OptionsID         ID              `json:"options_id,omitempty"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	StreamDescription string          `json:"stream_description,omitempty"`
	Thumbnail         *string         `json:"thumbnail"`
	IsDeleted         bool            `json:"isDeleted"`
	IsLive            bool            `json:"isLive"`
	Path              *string         `json:"path"`
	IsPublic          bool            `json:"isPublic"`
	CategoryName      *string         `json:"category_name"`
	Username          string          `json:"username"`
	ProfilePicture    string          `json:"profile_picture"`
	IsBanned          bool            `json:"isBanned"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	UserRole          string          `json:"userRole"`
	Tags              json.RawMessage `json:"tags,omitempty"`
	StreamURLs        []StreamURL     `json:"stream_urls"`
}

// StreamPatch is a partial stream update. Raw holds exactly the fields the
// server sent so callers can merge without clobbering absent ones.
type StreamPatch struct {
	Stream
	Raw json.RawMessage
}

// StreamEndedEvent announces the end of a broadcast
type StreamEndedEvent struct {
	StreamID         ID     `json:"streamId"`
	Streamer         string `json:"streamer"`
	FinalViewerCount int    `json:"finalViewerCount"`
	StreamerID       ID     `json:"streamerId"`
}

// StreamData describes a stream being started
type StreamData struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// StreamStats holds audience counters
type StreamStats struct {
	Viewers     int `json:"viewers"`
	Followers   int `json:"followers"`
	Subscribers int `json:"subscribers"`
}

// StatsPoint is one sample of a history series
type StatsPoint struct {
	Timestamp int64 `json:"timestamp"`
	Value     int   `json:"value"`
}

// StreamStatsSnapshot is a stats update. The public channel sends flat
// counters; the authenticated channel nests them under currentStats and
// adds history series. Both shapes decode into this type, and counters
// of unexpected type decode as zero.
type StreamStatsSnapshot struct {
	StreamID          ID           `json:"streamId"`
	Timestamp         int64        `json:"timestamp"`
	Current           StreamStats  `json:"currentStats"`
	ViewerHistory     []StatsPoint `json:"viewerHistory"`
	FollowerHistory   []StatsPoint `json:"followerHistory"`
	SubscriberHistory []StatsPoint `json:"subscriberHistory"`
}

// ChatMessage is one chat line
type ChatMessage struct {
	ChatMessageID int64   `json:"chatMessageId"`
	StreamID      ID      `json:"streamId"`
	UserID        int64   `json:"userId"`
	Message       string  `json:"message"`
	CreatedAt     string  `json:"createdAt"`
	IsDeleted     bool    `json:"isDeleted"`
	Username      string  `json:"username"`
	Avatar        *string `json:"avatar"`
	Type          string  `json:"type,omitempty"`
}

// ChatAction is a moderation action sent with manageChat
type ChatAction string

const (
	ChatActionBan    ChatAction = "ban"
	ChatActionUnban  ChatAction = "unban"
	ChatActionDelete ChatAction = "delete"
	ChatActionEdit   ChatAction = "edit"
)

// BanOptions qualifies a ban
type BanOptions struct {
	Reason      string     `json:"reason,omitempty"`
	BannedBy    int64      `json:"bannedBy"`
	BannedUntil *time.Time `json:"bannedUntil,omitempty"`
	IsPermanent bool       `json:"isPermanent,omitempty"`
}

// ChatSend is the body of sendChatMessage
type ChatSend struct {
	StreamID string `json:"streamId"`
	Message  string `json:"message"`
}

// Notification is a per-user notification
type Notification struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id,omitempty"`
	StreamID     ID     `json:"streamId,omitempty"`
	Message      string `json:"message"`
	CreatedAt    string `json:"created_at"`
	IsRead       bool   `json:"isRead"`
	Type         string `json:"type,omitempty"`
	Streamer     string `json:"streamer,omitempty"`
	StreamerName string `json:"streamerName,omitempty"`
	Title        string `json:"title,omitempty"`
}

// NotificationDismissable marks notifications the backend does not persist
const NotificationDismissable = "dismissable"

// StreamerNotification tells followers a streamer did something
type StreamerNotification struct {
	ID           int64  `json:"id,omitempty"`
	Type         string `json:"type,omitempty"`
	StreamerID   ID     `json:"streamerId"`
	Message      string `json:"message"`
	StreamerName string `json:"streamerName"`
	CreatedAt    string `json:"createdAt"`
	IsRead       bool   `json:"isRead"`
}

// StatusReply answers a moderation request
type StatusReply struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ChatError reports a rejected chat message
type ChatError struct {
	Message string `json:"message"`
}

// NormalizeStats decodes a stats payload of either shape. Anything it
// cannot read becomes a zero value; ok is false when raw was not an object.
func NormalizeStats(raw json.RawMessage) (snap StreamStatsSnapshot, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return snap, false
	}

	if v, found := fields["streamId"]; found {
		var id ID
		if json.Unmarshal(v, &id) == nil {
			snap.StreamID = id
		}
	}
	snap.Timestamp = int64(number(fields["timestamp"]))

	counters := fields
	if nested, found := fields["currentStats"]; found {
		var inner map[string]json.RawMessage
		if json.Unmarshal(nested, &inner) == nil && inner != nil {
			counters = inner
		}
	}
	snap.Current = StreamStats{
		Viewers:     int(number(counters["viewers"])),
		Followers:   int(number(counters["followers"])),
		Subscribers: int(number(counters["subscribers"])),
	}

	snap.ViewerHistory = series(fields["viewerHistory"])
	snap.FollowerHistory = series(fields["followerHistory"])
	snap.SubscriberHistory = series(fields["subscriberHistory"])
	return snap, true
}

// number reads a JSON number or numeric string, returning 0 otherwise
func number(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return 0
}

// series reads a history array, skipping entries that are not objects
func series(raw json.RawMessage) []StatsPoint {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	points := make([]StatsPoint, 0, len(items))
	for _, item := range items {
		var p map[string]json.RawMessage
		if json.Unmarshal(item, &p) != nil || p == nil {
			continue
		}
		points = append(points, StatsPoint{
			Timestamp: int64(number(p["timestamp"])),
			Value:     int(number(p["value"])),
		})
	}
	return points
}
