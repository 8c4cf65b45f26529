package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID derives a session ID from the creation time. The random suffix
// keeps IDs unique when several sessions open within the same second.
func NewSessionID(now time.Time) SessionID {
	return SessionID(fmt.Sprintf("session-%d-%s", now.Unix(), uuid.New().String()[:8]))
}

func (x SessionID) String() string {
	return string(x)
}

// Role is the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry of a session history
type Turn struct {
	Role      Role      `json:"role"`
	Name      string    `json:"name,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Perception is the structured reading of a raw user input
type Perception struct {
	Intent   string   `json:"intent"`
	ToolHint string   `json:"tool_hint,omitempty"`
	Entities []string `json:"entities,omitempty"`
}

// WantsStop reports whether the intent asks to stop searching and conclude
func (p *Perception) WantsStop() bool {
	if p == nil {
		return false
	}
	intent := strings.ToLower(p.Intent)
	return strings.Contains(intent, "stop") || strings.Contains(intent, "finish")
}
