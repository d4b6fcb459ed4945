// Package store holds conversation state: per-conversation message history
// and the manager that tracks which conversation is current.
package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/sidekick/internal/strutil"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// titleMaxLen is how many characters of the first user message become the
// conversation title.
const titleMaxLen = 50

// Source attributes a retrieved document that informed an answer.
type Source struct {
	Source    string  `json:"source"`
	Relevance float32 `json:"relevance"`
}

// Message is a single conversation turn. Immutable once appended.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
}

// Conversation is an append-only, time-ordered message history. All state
// mutation goes through its own lock, so concurrent appends to the same
// conversation never lose updates.
type Conversation struct {
	createdAt time.Time
	id        string
	title     string
	messages  []Message
	mu        sync.Mutex
}

func newConversation(id string) *Conversation {
	return &Conversation{
		id:        id,
		createdAt: time.Now(),
	}
}

// RestoreConversation rebuilds a conversation from persisted state. Used by
// persistence drivers on startup.
func RestoreConversation(id, title string, createdAt time.Time, messages []Message) *Conversation {
	return &Conversation{
		id:        id,
		title:     title,
		createdAt: createdAt,
		messages:  messages,
	}
}

func (c *Conversation) ID() string { return c.id }

func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// Title returns the conversation title, empty until the first user message.
func (c *Conversation) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Messages returns a copy of the message history in append order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// append adds a message and derives the title from the first user message,
// once. Reports whether the title was set by this call.
func (c *Conversation) append(role Role, content string, sources []Source) (Message, bool) {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Sources:   sources,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)

	titleSet := false
	if c.title == "" && role == RoleUser {
		c.title = strutil.Truncate(content, titleMaxLen)
		titleSet = true
	}
	return msg, titleSet
}

// ContextString renders the last maxMessages messages as a transcript for
// prompt conditioning: "Human:"/"Assistant:" lines joined by blank lines,
// most recent last.
func (c *Conversation) ContextString(maxMessages int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := c.messages
	if maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}

	parts := make([]string, len(messages))
	for i, msg := range messages {
		prefix := "Human"
		if msg.Role == RoleAssistant {
			prefix = "Assistant"
		}
		parts[i] = fmt.Sprintf("%s: %s", prefix, msg.Content)
	}
	return strings.Join(parts, "\n\n")
}
