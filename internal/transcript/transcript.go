// Package transcript models a conversation's stored chat turns and turns them
// into prompt context.
package transcript

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleAnalysis marks structural turns that never reach a prompt.
	RoleAnalysis Role = "analysis"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleAnalysis:
		return true
	}
	return false
}

// Mode is the chat phase a turn was recorded in.
type Mode string

const (
	ModeBasic  Mode = "basic"
	ModeDetail Mode = "detail"
)

func (m Mode) Valid() bool {
	return m == ModeBasic || m == ModeDetail
}

// Turn is one persisted chat message. Turns are append-only.
type Turn struct {
	ID           int64     `json:"id"`
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	ResponseType string    `json:"response_type"`
	Mode         Mode      `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is a turn reduced to what a model sees.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Segment merges a two-mode transcript into prompt context.
//
// Turns before the first non-basic turn are basic-mode. Their user messages
// collapse into one synthetic user turn, each line carrying a back-reference
// to the assistant message just before it. Detail-mode turns follow
// unchanged. The synthetic turn is always first, even when empty.
func Segment(turns []Turn) []Message {
	boundary := len(turns)
	for i, t := range turns {
		if t.Mode != ModeBasic {
			boundary = i
			break
		}
	}

	var lines []string
	var lastAssistant *Turn
	for i := 0; i < boundary; i++ {
		t := &turns[i]
		switch t.Role {
		case RoleAssistant:
			lastAssistant = t
		case RoleUser:
			if lastAssistant != nil {
				lines = append(lines, fmt.Sprintf(`%s (response to "%s")`, t.Content, lastAssistant.Content))
			} else {
				lines = append(lines, t.Content)
			}
		}
	}

	out := make([]Message, 0, 1+len(turns)-boundary)
	out = append(out, Message{Role: RoleUser, Content: strings.Join(lines, "\n")})
	for _, t := range turns[boundary:] {
		out = append(out, Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// WithoutAnalysis drops analysis marker turns.
func WithoutAnalysis(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role != RoleAnalysis {
			out = append(out, t)
		}
	}
	return out
}

// Messages reduces turns to role and content, skipping analysis turns.
func Messages(turns []Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range WithoutAnalysis(turns) {
		out = append(out, Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// Flatten renders turns as "User: ..." / "Assistant: ..." lines.
func Flatten(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		role := string(t.Role)
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		lines = append(lines, role+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}
