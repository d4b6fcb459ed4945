package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/lithammer/shortuuid/v4"
)

// ErrConversationNotFound is returned when an operation names an unknown
// conversation id.
var ErrConversationNotFound = errors.New("conversation not found")

// Driver persists conversations across restarts. Persistence is write-through
// and best-effort: the in-memory state stays authoritative and a failing
// driver call is logged, never surfaced to the chat path.
type Driver interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	UpdateTitle(ctx context.Context, id, title string) error
	AddMessage(ctx context.Context, conversationID string, msg *Message) error
	DeleteConversation(ctx context.Context, id string) error
	LoadConversations(ctx context.Context) ([]*Conversation, error)
	Close() error
}

// Manager tracks all conversations and which one is current. At most one
// conversation is current at a time; deleting it reverts to none-selected.
type Manager struct {
	conversations map[string]*Conversation
	driver        Driver
	currentID     string
	mu            sync.RWMutex
}

// NewManager creates a Manager. A nil driver keeps history in memory only;
// otherwise previously persisted conversations are loaded on startup.
func NewManager(ctx context.Context, driver Driver) *Manager {
	m := &Manager{
		conversations: make(map[string]*Conversation),
		driver:        driver,
	}

	if driver != nil {
		loaded, err := driver.LoadConversations(ctx)
		if err != nil {
			slog.Warn("failed to load persisted conversations", "error", err)
			return m
		}
		for _, conv := range loaded {
			m.conversations[conv.ID()] = conv
		}
		slog.Info("loaded persisted conversations", "count", len(loaded))
	}
	return m
}

// Create starts a new conversation and makes it current.
func (m *Manager) Create(ctx context.Context) *Conversation {
	conv := newConversation(shortuuid.New())

	m.mu.Lock()
	m.conversations[conv.ID()] = conv
	m.currentID = conv.ID()
	m.mu.Unlock()

	if m.driver != nil {
		if err := m.driver.CreateConversation(ctx, conv); err != nil {
			slog.Warn("failed to persist conversation", "id", conv.ID(), "error", err)
		}
	}
	return conv
}

// Get returns a conversation by id.
func (m *Manager) Get(id string) (*Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	return conv, ok
}

// Current returns the current conversation, if one is selected.
func (m *Manager) Current() (*Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentID == "" {
		return nil, false
	}
	conv, ok := m.conversations[m.currentID]
	return conv, ok
}

// CurrentOrCreate returns the current conversation, creating one when none
// is selected.
func (m *Manager) CurrentOrCreate(ctx context.Context) *Conversation {
	if conv, ok := m.Current(); ok {
		return conv
	}
	return m.Create(ctx)
}

// Switch makes the named conversation current. Unknown ids leave the current
// selection unchanged.
func (m *Manager) Switch(id string) (*Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, false
	}
	m.currentID = id
	return conv, true
}

// Delete removes a conversation. If it was current, no conversation is
// current afterwards.
func (m *Manager) Delete(ctx context.Context, id string) bool {
	m.mu.Lock()
	_, ok := m.conversations[id]
	if ok {
		delete(m.conversations, id)
		if m.currentID == id {
			m.currentID = ""
		}
	}
	m.mu.Unlock()

	if ok && m.driver != nil {
		if err := m.driver.DeleteConversation(ctx, id); err != nil {
			slog.Warn("failed to delete persisted conversation", "id", id, "error", err)
		}
	}
	return ok
}

// List returns all conversations, most recently created first.
func (m *Manager) List() []*Conversation {
	m.mu.RLock()
	out := make([]*Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, conv)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out
}

// AppendMessage appends a message to the named conversation.
func (m *Manager) AppendMessage(ctx context.Context, id string, role Role, content string, sources []Source) (Message, error) {
	conv, ok := m.Get(id)
	if !ok {
		return Message{}, ErrConversationNotFound
	}

	msg, titleSet := conv.append(role, content, sources)

	if m.driver != nil {
		if err := m.driver.AddMessage(ctx, id, &msg); err != nil {
			slog.Warn("failed to persist message", "conversation_id", id, "error", err)
		}
		if titleSet {
			if err := m.driver.UpdateTitle(ctx, id, conv.Title()); err != nil {
				slog.Warn("failed to persist conversation title", "conversation_id", id, "error", err)
			}
		}
	}
	return msg, nil
}

// ClearAll drops every conversation and the current selection.
func (m *Manager) ClearAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	m.conversations = make(map[string]*Conversation)
	m.currentID = ""
	m.mu.Unlock()

	if m.driver != nil {
		for _, id := range ids {
			if err := m.driver.DeleteConversation(ctx, id); err != nil {
				slog.Warn("failed to delete persisted conversation", "id", id, "error", err)
			}
		}
	}
}
