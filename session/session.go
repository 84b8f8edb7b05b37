package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ixlab/aibox/internal/llm"
)

// ErrNotFound is returned when a session does not exist or is owned by a
// different user.
var ErrNotFound = errors.New("session not found")

// Turn is one persisted conversation entry. Attachments are stored as typed
// file references, not file contents.
type Turn struct {
	Role        llm.Role         `json:"role" dynamodbav:"role"`
	Text        string           `json:"text" dynamodbav:"text"`
	Attachments []llm.Attachment `json:"attachments,omitempty" dynamodbav:"attachments,omitempty"`
	Files       []string         `json:"files,omitempty" dynamodbav:"files,omitempty"`
	Timestamp   time.Time        `json:"timestamp" dynamodbav:"timestamp"`
}

// Context carries per-session settings that ride along with the history.
type Context struct {
	TotalInteractions int    `json:"total_interactions" dynamodbav:"total_interactions"`
	SystemPrompt      string `json:"system_prompt,omitempty" dynamodbav:"system_prompt,omitempty"`
}

// Session is one persisted conversation, scoped to a user and a module.
type Session struct {
	SessionID   string    `json:"session_id" dynamodbav:"session_id"`
	SessionName string    `json:"session_name" dynamodbav:"session_name"`
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	Module      string    `json:"module" dynamodbav:"module"`
	ModelID     string    `json:"model_id" dynamodbav:"model_id"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
	History     []Turn    `json:"history" dynamodbav:"history"`
	Context     Context   `json:"context" dynamodbav:"context"`

	// ExpiresAt is the TTL epoch the backend enforces. Every write refreshes
	// it to now plus the retention window; it never moves backwards.
	ExpiresAt int64 `json:"expires_at" dynamodbav:"expiration_time"`
}

// New creates a fresh session for a user and module.
func New(userID, module, modelID, name string) *Session {
	now := time.Now().UTC()
	if name == "" {
		name = "Session " + now.Format("2006-01-02 15:04")
	}
	return &Session{
		SessionID:   uuid.NewString(),
		SessionName: name,
		UserID:      userID,
		Module:      module,
		ModelID:     modelID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AddTurn appends to the history. History is append-only; entries are never
// rewritten.
func (s *Session) AddTurn(turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	s.History = append(s.History, turn)
	s.Context.TotalInteractions++
	s.UpdatedAt = time.Now().UTC()
}

// Touch refreshes the TTL to now plus retention. The expiry only moves
// forward, so a write can never shorten a session's remaining life.
func (s *Session) Touch(retention time.Duration) {
	expires := time.Now().Add(retention).Unix()
	if expires > s.ExpiresAt {
		s.ExpiresAt = expires
	}
}

// Messages converts the history into normalized provider messages.
func (s *Session) Messages() []llm.Message {
	out := make([]llm.Message, 0, len(s.History))
	for _, t := range s.History {
		out = append(out, llm.Message{
			Role:        t.Role,
			Text:        t.Text,
			Attachments: t.Attachments,
			Timestamp:   t.Timestamp,
		})
	}
	return out
}

// Summary is the listing view of a session, without history.
type Summary struct {
	SessionID   string    `json:"session_id"`
	SessionName string    `json:"session_name"`
	Module      string    `json:"module"`
	ModelID     string    `json:"model_id"`
	UpdatedAt   time.Time `json:"updated_at"`
	Turns       int       `json:"turns"`
}

func (s *Session) Summary() Summary {
	return Summary{
		SessionID:   s.SessionID,
		SessionName: s.SessionName,
		Module:      s.Module,
		ModelID:     s.ModelID,
		UpdatedAt:   s.UpdatedAt,
		Turns:       len(s.History),
	}
}

// Store persists sessions with TTL semantics. Get scopes by user; a session
// belonging to another user reads as not found. Put refreshes the TTL.
type Store interface {
	Get(ctx context.Context, userID, sessionID string) (*Session, error)
	Put(ctx context.Context, sess *Session) error
	List(ctx context.Context, userID string) ([]Summary, error)
	Delete(ctx context.Context, userID, sessionID string) error
}

// AppendTurns appends the turns to a session and writes it back through the
// store. Callers hold the session from a prior Get (or a fresh New); the
// read-modify-write is not atomic, so concurrent writers are
// last-writer-wins.
func AppendTurns(ctx context.Context, store Store, sess *Session, turns ...Turn) error {
	for _, t := range turns {
		sess.AddTurn(t)
	}
	return store.Put(ctx, sess)
}

// StoreType names a persistence backend.
type StoreType string

const (
	DynamoStore   StoreType = "dynamodb"
	RedisStore    StoreType = "redis"
	InMemoryStore StoreType = "inmemory"
)
