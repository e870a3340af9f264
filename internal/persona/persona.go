// Package persona holds the scripted character the user talks to and the
// text chat conversation with it.
//
// The same persona instruction is sent as the system instruction of every
// chat request and as the setup instruction of every live voice session.
package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/pkg/provider/chat"
)

// DefaultInstructions is used when no persona instructions are configured.
const DefaultInstructions = "You are a warm, quick-witted conversational companion. " +
	"Keep replies short and natural, ask a follow-up question when it helps, " +
	"and never break character."

// ErrTurnInProgress is returned by [Conversation.Send] while the previous
// reply is still streaming.
var ErrTurnInProgress = errors.New("persona: previous turn still streaming")

// Persona is a named character with a fixed system instruction.
type Persona struct {
	Name         string
	Instructions string
}

// SystemInstruction renders the instruction sent to the model.
func (p Persona) SystemInstruction() string {
	instr := strings.TrimSpace(p.Instructions)
	if instr == "" {
		instr = DefaultInstructions
	}
	if p.Name == "" {
		return instr
	}
	return fmt.Sprintf("Your name is %s. %s", p.Name, instr)
}

// Conversation is a text chat with a persona. It keeps the turn history and
// sends it with every request. Safe for concurrent use; turns are serialised.
type Conversation struct {
	provider chat.Provider
	metrics  *observe.Metrics

	mu      sync.Mutex
	persona Persona
	history []chat.Turn
	busy    bool
}

// ConversationOption is a functional option for [NewConversation].
type ConversationOption func(*Conversation)

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ConversationOption {
	return func(c *Conversation) { c.metrics = m }
}

// NewConversation starts an empty conversation with p.
func NewConversation(provider chat.Provider, p Persona, opts ...ConversationOption) *Conversation {
	c := &Conversation{provider: provider, persona: p}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// SetPersona replaces the persona for subsequent turns. History is kept.
func (c *Conversation) SetPersona(p Persona) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persona = p
}

// Persona returns the current persona.
func (c *Conversation) Persona() Persona {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persona
}

// History returns a copy of the completed turns in order.
func (c *Conversation) History() []chat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Turn, len(c.history))
	copy(out, c.history)
	return out
}

// Reset clears the history.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// Send sends text as the next user turn and returns the streamed reply. The
// channel yields chunks in receipt order and is closed when the reply ends; a
// chunk with Err set is always the last one. The user turn and the full reply
// are added to the history only if the stream completes without error.
// Callers must drain the channel or cancel ctx.
func (c *Conversation) Send(ctx context.Context, text string) (<-chan chat.Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("persona: empty message")
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	user := chat.Turn{Role: chat.RoleUser, Text: text}
	turns := make([]chat.Turn, 0, len(c.history)+1)
	turns = append(turns, c.history...)
	turns = append(turns, user)
	req := chat.Request{SystemInstruction: c.persona.SystemInstruction(), Turns: turns}
	c.busy = true
	c.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "persona.Send")
	start := time.Now()

	upstream, err := c.provider.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.End()
		c.metrics.RecordProviderRequest(ctx, "chat", "stream", "error")
		c.release(nil)
		return nil, fmt.Errorf("persona: start reply: %w", err)
	}

	out := make(chan chat.Chunk)
	go func() {
		defer close(out)
		defer span.End()

		var reply strings.Builder
		var failed error
		for chunk := range upstream {
			if chunk.Err != nil {
				failed = chunk.Err
			} else {
				reply.WriteString(chunk.Text)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				failed = ctx.Err()
			}
			if failed != nil {
				break
			}
		}
		if failed == nil {
			failed = ctx.Err()
		}

		c.metrics.ChatTurnDuration.Record(ctx, time.Since(start).Seconds())
		if failed != nil {
			span.RecordError(failed)
			c.metrics.RecordProviderRequest(ctx, "chat", "stream", "error")
			observe.Logger(ctx).Warn("persona: reply failed", "err", failed)
			c.release(nil)
			// Let the provider goroutine finish.
			for range upstream {
			}
			return
		}
		c.metrics.RecordProviderRequest(ctx, "chat", "stream", "ok")
		c.release([]chat.Turn{user, {Role: chat.RoleModel, Text: reply.String()}})
	}()
	return out, nil
}

// release ends the in-flight turn and appends completed turns.
func (c *Conversation) release(completed []chat.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, completed...)
	c.busy = false
}
