package hermes

import "fmt"

// Subjects are the lifecycle subjects for one environment, e.g.
// "cmp.prod.chat.done".
type Subjects struct {
	ActionCreated   string
	ChatTurn        string
	ChatDone        string
	ActionExtracted string
}

func NewSubjects(env string) Subjects {
	prefix := fmt.Sprintf("cmp.%s.", env)
	return Subjects{
		ActionCreated:   prefix + "action.created",
		ChatTurn:        prefix + "chat.turn",
		ChatDone:        prefix + "chat.done",
		ActionExtracted: prefix + "action.extracted",
	}
}

type ActionCreated struct {
	ActionUUID string `json:"action_uuid"`
	UserID     int64  `json:"user_id"`
	Title      string `json:"title"`
}

// ChatTurn is published after a turn pair is persisted.
type ChatTurn struct {
	ActionUUID string `json:"action_uuid"`
	Mode       string `json:"mode"`
	IsDone     bool   `json:"is_done"`
}

// ChatDone is published when the coach closes a conversation.
type ChatDone struct {
	ActionUUID string `json:"action_uuid"`
	Mode       string `json:"mode"`
}

type ActionExtracted struct {
	ActionUUID string   `json:"action_uuid"`
	Type       string   `json:"type"`
	Category   string   `json:"category"`
	Skills     []string `json:"skills"`
	HasChanged bool     `json:"has_changed"`
}
