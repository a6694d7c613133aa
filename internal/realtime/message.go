package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Phoenix channel events used by the realtime service.
const (
	EventJoin            = "phx_join"
	EventReply           = "phx_reply"
	EventError           = "phx_error"
	EventClose           = "phx_close"
	EventHeartbeat       = "heartbeat"
	EventAccessToken     = "access_token"
	EventPostgresChanges = "postgres_changes"
	EventSystem          = "system"

	// heartbeatTopic is the reserved topic for keepalive messages.
	heartbeatTopic = "phoenix"
)

// Message is one frame of the channel protocol. On the wire it is the array
// [joinRef, ref, topic, event, payload]; empty refs are encoded as null.
type Message struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// MarshalJSON encodes m in array form.
func (m Message) MarshalJSON() ([]byte, error) {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{nullable(m.JoinRef), nullable(m.Ref), m.Topic, m.Event, payload})
}

// UnmarshalJSON decodes the array form and rejects anything that is not a
// five element array with string topic and event.
func (m *Message) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message is not an array: %w", err)
	}
	if len(parts) != 5 {
		return fmt.Errorf("message has %d elements, want 5", len(parts))
	}

	var (
		joinRef, ref *string
		out          Message
	)
	if err := json.Unmarshal(parts[0], &joinRef); err != nil {
		return fmt.Errorf("invalid join ref: %w", err)
	}
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return fmt.Errorf("invalid ref: %w", err)
	}
	if err := json.Unmarshal(parts[2], &out.Topic); err != nil {
		return fmt.Errorf("invalid topic: %w", err)
	}
	if err := json.Unmarshal(parts[3], &out.Event); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if joinRef != nil {
		out.JoinRef = *joinRef
	}
	if ref != nil {
		out.Ref = *ref
	}
	if p := bytes.TrimSpace(parts[4]); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		out.Payload = append(json.RawMessage(nil), p...)
	}

	*m = out
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// postgresChange is one subscription in the join config.
type postgresChange struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter"`
}

type joinPayload struct {
	Config struct {
		Broadcast struct {
			Self bool `json:"self"`
		} `json:"broadcast"`
		Presence struct {
			Key string `json:"key"`
		} `json:"presence"`
		PostgresChanges []postgresChange `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token"`
}

// newJoinPayload subscribes to every change of the user's rows in the
// public.tasks table.
func newJoinPayload(userID, accessToken string) joinPayload {
	var p joinPayload
	p.Config.PostgresChanges = []postgresChange{{
		Event:  "*",
		Schema: "public",
		Table:  "tasks",
		Filter: "user_id=eq." + userID,
	}}
	p.AccessToken = accessToken
	return p
}

type replyPayload struct {
	Status   string `json:"status"`
	Response struct {
		PostgresChanges json.RawMessage `json:"postgres_changes"`
	} `json:"response"`
}

// joined reports whether the reply acknowledges a successful channel join.
func (r replyPayload) joined() bool {
	pc := bytes.TrimSpace(r.Response.PostgresChanges)
	return r.Status == "ok" && len(pc) > 0 && !bytes.Equal(pc, []byte("null"))
}

// Topic returns the channel topic for a user's task changes.
func Topic(userID string) string {
	return "realtime:tasks-" + userID
}
