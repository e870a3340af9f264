// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to inject inbound messages, simulate transport failures and
// inspect what the code under test sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Push(live.Message{Interrupted: true})
//	sess.Fail(errors.New("connection reset"))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vivavoce/pkg/audio"
	"github.com/MrWong99/vivavoce/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the handle returned by Connect. If nil, Connect returns a new
	// Session from NewSession.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Calls returns a snapshot of ConnectCalls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

var _ live.Provider = (*Provider)(nil)

// Session is a mock implementation of live.SessionHandle. Create one with
// NewSession; the zero value is not usable.
type Session struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error

	// SendTextErr, if non-nil, is returned by every SendText call.
	SendTextErr error

	// CloseErr is returned by every Close call.
	CloseErr error

	// Sent records every blob passed to Send in order.
	Sent []audio.EncodedBlob

	// Texts records every string passed to SendText in order.
	Texts []string

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	// OnSend, if non-nil, is called after each Send is recorded.
	OnSend func(audio.EncodedBlob)

	messages chan live.Message
	err      error
	ended    bool
}

// NewSession returns a Session with a buffered messages channel.
func NewSession() *Session {
	return &Session{messages: make(chan live.Message, 64)}
}

// Send records blob and returns SendErr.
func (s *Session) Send(_ context.Context, blob audio.EncodedBlob) error {
	s.mu.Lock()
	s.Sent = append(s.Sent, blob)
	err, cb := s.SendErr, s.OnSend
	s.mu.Unlock()
	if cb != nil {
		cb(blob)
	}
	return err
}

// SendText records text and returns SendTextErr.
func (s *Session) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Texts = append(s.Texts, text)
	return s.SendTextErr
}

// Messages returns the inbound message channel.
func (s *Session) Messages() <-chan live.Message { return s.messages }

// Err returns the error passed to Fail, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close records the call and closes the messages channel once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	s.end(nil)
	return s.CloseErr
}

// Push delivers msg as if it came from the service. It reports false if the
// session has already ended.
func (s *Session) Push(msg live.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.messages <- msg
	return true
}

// Fail ends the session with err, as a dropped connection would.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end(err)
}

// SentBlobs returns a snapshot of Sent.
func (s *Session) SentBlobs() []audio.EncodedBlob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.EncodedBlob, len(s.Sent))
	copy(out, s.Sent)
	return out
}

// SentTexts returns a snapshot of Texts.
func (s *Session) SentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Texts...)
}

// Closes returns CloseCallCount.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

func (s *Session) end(err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.messages)
}

var _ live.SessionHandle = (*Session)(nil)
