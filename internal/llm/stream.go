package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed indicates the stream has already been closed.
var ErrStreamClosed = errors.New("stream closed")

// FragmentType enumerates normalized stream fragment types.
type FragmentType string

const (
	FragmentText     FragmentType = "text"
	FragmentThinking FragmentType = "thinking"
	FragmentToolCall FragmentType = "tool_call"
	FragmentFile     FragmentType = "file"
	FragmentFinish   FragmentType = "finish"
)

// Fragment is one normalized piece of a streamed provider response.
type Fragment struct {
	Type     FragmentType `json:"type"`
	Text     string       `json:"text,omitempty"`
	Thinking string       `json:"thinking,omitempty"`
	ToolCall *ToolCall    `json:"tool_call,omitempty"`
	FilePath string       `json:"file_path,omitempty"`

	// Finish-only fields.
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage,omitempty"`
	Model      string `json:"model,omitempty"`
}

// Stream is a lazy sequence of fragments produced by a provider adapter.
// Push and the reader side may run on different goroutines.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	fragments chan Fragment
	err       error
	closed    bool
}

// NewStream constructs a Stream with the provided fragment buffer size.
func NewStream(ctx context.Context, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	c, cancel := context.WithCancel(ctx)
	return &Stream{
		ctx:       c,
		cancel:    cancel,
		fragments: make(chan Fragment, buffer),
	}
}

// Push appends a fragment. Pushes after Close are dropped; pushes block only
// until the consumer reads or the context is cancelled.
func (s *Stream) Push(f Fragment) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}
	select {
	case s.fragments <- f:
	case <-s.ctx.Done():
	}
}

// Close terminates the stream. Safe to call once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	close(s.fragments)
	s.cancel()
	return nil
}

// Fail records the terminal error and closes the stream.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	alreadyClosed := s.closed
	s.mu.Unlock()
	if !alreadyClosed {
		_ = s.Close()
	}
}

// Cancel releases a producer blocked in Push without closing the fragment
// channel. Consumers call it when they stop reading early; the producing
// adapter still owns Close.
func (s *Stream) Cancel() {
	s.cancel()
}

// Done is closed when the stream context is cancelled, either by the request
// context or by a consumer-side Cancel. Producers check it to bail out of
// long vendor drains.
func (s *Stream) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Fragments returns the read side of the stream.
func (s *Stream) Fragments() <-chan Fragment {
	return s.fragments
}

// Err returns the terminal error, if any.
func (s *Stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
