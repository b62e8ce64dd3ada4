// Package llm holds the chat-completion providers the orchestrator talks to.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged entry of a chat transcript.
type Turn struct {
	Role    Role
	Content string
}

type Request struct {
	Model string // empty selects the provider default
	Turns []Turn
}

// Completion is the provider reply with its reported token usage.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider is a chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}
