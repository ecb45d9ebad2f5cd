package websocket

import (
	"encoding/json"
	"strconv"
	"time"
)

// Message types for WebSocket communication
const (
	MessageTypeConnection   = "connection"
	MessageTypeHeartbeat    = "heartbeat"
	MessageTypeNotification = "notification"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	data, _ := json.Marshal(m)
	return data
}

// UnmarshalJSON accepts RFC3339 timestamps as well as Unix seconds or
// milliseconds, either as numbers or strings. Browser clients send all three.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string                 `json:"type"`
		Data      map[string]interface{} `json:"data"`
		Timestamp interface{}            `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Type = raw.Type
	m.Data = raw.Data
	m.Timestamp = parseTimestamp(raw.Timestamp)
	return nil
}

// parseTimestamp falls back to now for missing or unreadable values
func parseTimestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return unixTime(n)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	case float64:
		return unixTime(int64(t))
	case int64:
		return unixTime(t)
	case int:
		return unixTime(int64(t))
	}
	return time.Now().UTC()
}

// values past 1e12 are milliseconds
func unixTime(n int64) time.Time {
	if n > 1e12 {
		return time.Unix(0, n*int64(time.Millisecond))
	}
	return time.Unix(n, 0)
}

// NotificationMessage wraps an in-app notification for push delivery
func NotificationMessage(id, kind, severity, title, message string, context map[string]interface{}) Message {
	data := map[string]interface{}{
		"id":      id,
		"kind":    kind,
		"title":   title,
		"message": message,
	}
	if severity != "" {
		data["severity"] = severity
	}
	if len(context) > 0 {
		data["context"] = context
	}
	return Message{Type: MessageTypeNotification, Data: data}
}
