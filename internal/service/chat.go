package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/settings"
	"github.com/ixlab/aibox/session"
)

const defaultSystemPrompt = "You are a helpful assistant. Answer precisely and admit uncertainty."

// ChatService runs the streaming conversation flow: load history, flatten and
// trim it, stream the provider, then persist the completed exchange.
type ChatService struct {
	factory *Factory
	store   session.Store
	catalog *settings.Catalog
	budget  int
	timeout time.Duration
	logger  *log.Logger

	// newProvider is swappable for tests.
	newProvider func(ctx context.Context, model settings.Model) (llm.Provider, error)
}

// ChatRequest is one user turn. SessionID empty means start a new session.
type ChatRequest struct {
	UserID      string
	SessionID   string
	Model       string
	Text        string
	Attachments []string
	SessionName string
}

// ChatResult is returned after the stream completed and the session was
// persisted.
type ChatResult struct {
	Session    *session.Session
	Text       string
	Files      []string
	StopReason string
	Usage      llm.Usage
}

// EmitFunc receives fragments as they arrive. Returning an error aborts the
// stream; nothing is persisted in that case.
type EmitFunc func(llm.Fragment) error

// Stream executes one chat turn. The user and assistant turns are appended
// only after the provider stream finished cleanly, so an abandoned or failed
// stream leaves the history exactly as it was.
func (s *ChatService) Stream(ctx context.Context, req ChatRequest, emit EmitFunc) (*ChatResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, llm.NewError(llm.CodeInvalidInput, "message text is empty")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	attachments, err := llm.DetectAttachments(req.Attachments)
	if err != nil {
		return nil, err
	}

	sess, err := s.loadOrCreate(ctx, req)
	if err != nil {
		return nil, err
	}
	modelName := req.Model
	if modelName == "" {
		modelName = sess.ModelID
	}
	model, err := s.catalog.Find(ctx, modelName)
	if err != nil {
		return nil, llm.NewError(llm.CodeInvalidInput, err.Error())
	}
	sess.ModelID = model.Name

	userMsg := llm.Message{
		Role:        llm.RoleUser,
		Text:        req.Text,
		Attachments: attachments,
		Timestamp:   time.Now(),
	}
	messages := append(flattenHistory(sess.History), userMsg)
	messages = llm.TrimToBudget(messages, s.budget)

	provider, err := s.provider(ctx, model)
	if err != nil {
		return nil, err
	}

	stream, err := provider.GenerateStream(ctx, llm.Request{
		System:   s.systemPrompt(sess),
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	result := &ChatResult{Session: sess}
	for frag := range stream.Fragments() {
		switch frag.Type {
		case llm.FragmentText:
			result.Text += frag.Text
		case llm.FragmentFile:
			result.Files = append(result.Files, frag.FilePath)
		case llm.FragmentFinish:
			result.StopReason = frag.StopReason
			result.Usage = frag.Usage
		}
		if err := emit(frag); err != nil {
			// Client went away mid-stream; release the producer and drop the
			// partial turn.
			stream.Cancel()
			s.logger.Printf("stream aborted for session %s: %v", sess.SessionID, err)
			return nil, fmt.Errorf("stream aborted: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	err = session.AppendTurns(ctx, s.store, sess,
		session.Turn{Role: llm.RoleUser, Text: req.Text, Attachments: attachments},
		session.Turn{Role: llm.RoleAssistant, Text: result.Text, Files: result.Files},
	)
	if err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s.logger.Printf("session %s: %d tokens in, %d out",
		sess.SessionID, result.Usage.InputTokens, result.Usage.OutputTokens)
	return result, nil
}

func (s *ChatService) provider(ctx context.Context, model settings.Model) (llm.Provider, error) {
	if s.newProvider != nil {
		return s.newProvider(ctx, model)
	}
	return s.factory.provider(ctx, model, s.factory.chatRegistry(ctx))
}

func (s *ChatService) loadOrCreate(ctx context.Context, req ChatRequest) (*session.Session, error) {
	if req.SessionID == "" {
		return session.New(req.UserID, "chat", req.Model, req.SessionName), nil
	}
	sess, err := s.store.Get(ctx, req.UserID, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (s *ChatService) systemPrompt(sess *session.Session) string {
	prompt := sess.Context.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return prompt + "\nCurrent local time: " + time.Now().Format("Mon, 02 Jan 2006 15:04 MST")
}

// flattenHistory converts persisted turns into provider messages. Attachments
// in past turns are replaced by text placeholders; only the current turn
// carries real bytes.
func flattenHistory(history []session.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		text := turn.Text
		var placeholders []string
		for _, att := range turn.Attachments {
			placeholders = append(placeholders, att.Describe(turn.Role))
		}
		for range turn.Files {
			placeholders = append(placeholders, llm.Attachment{Kind: llm.AttachmentImage}.Describe(turn.Role))
		}
		if len(placeholders) > 0 {
			text = strings.Join(placeholders, " ") + "\n" + text
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, llm.Message{Role: turn.Role, Text: text, Timestamp: turn.Timestamp})
	}
	return out
}
