// Package mock provides a test double for the chat.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Chunks: []chat.Chunk{{Text: "Hel"}, {Text: "lo"}}}
//	ch, _ := p.Stream(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vivavoce/pkg/provider/chat"
)

// Provider is a mock implementation of chat.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence emitted on every stream. All chunks are sent
	// before the channel is closed.
	Chunks []chat.Chunk

	// StreamErr, if non-nil, is returned from Stream instead of a channel.
	StreamErr error

	// Requests records every request passed to Stream in order.
	Requests []chat.Request
}

// Stream records req and returns a channel that emits Chunks.
func (p *Provider) Stream(ctx context.Context, req chat.Request) (<-chan chat.Chunk, error) {
	p.mu.Lock()
	turns := make([]chat.Turn, len(req.Turns))
	copy(turns, req.Turns)
	req.Turns = turns
	p.Requests = append(p.Requests, req)
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]chat.Chunk, len(p.Chunks))
	copy(chunks, p.Chunks)
	p.mu.Unlock()

	ch := make(chan chat.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Calls returns a snapshot of Requests.
func (p *Provider) Calls() []chat.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]chat.Request, len(p.Requests))
	copy(out, p.Requests)
	return out
}

var _ chat.Provider = (*Provider)(nil)
