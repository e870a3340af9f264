// Package gemini provides a chat provider backed by the Gemini API through the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/MrWong99/vivavoce/pkg/provider/chat"
)

var _ chat.Provider = (*Provider)(nil)

const defaultModel = "gemini-2.5-flash"

// Provider implements chat.Provider using genai's streaming GenerateContent.
type Provider struct {
	client *genai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the Gemini API endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Gemini chat Provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini chat: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini chat: new client: %w", err)
	}
	return &Provider{client: client, model: cfg.model}, nil
}

// Model returns the model name requests are sent to.
func (p *Provider) Model() string { return p.model }

// Stream implements chat.Provider.
func (p *Provider) Stream(ctx context.Context, req chat.Request) (<-chan chat.Chunk, error) {
	if len(req.Turns) == 0 {
		return nil, errors.New("gemini chat: request has no turns")
	}
	contents := buildContents(req.Turns)
	var gc *genai.GenerateContentConfig
	if req.SystemInstruction != "" {
		gc = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: req.SystemInstruction}},
			},
		}
	}

	ch := make(chan chat.Chunk, 32)
	go func() {
		defer close(ch)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, gc) {
			var out chat.Chunk
			if err != nil {
				out.Err = fmt.Errorf("gemini chat: stream: %w", err)
			} else {
				out.Text = resp.Text()
				if out.Text == "" {
					continue
				}
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
			if out.Err != nil {
				return
			}
		}
	}()
	return ch, nil
}

// buildContents converts conversation turns to genai contents.
func buildContents(turns []chat.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := string(t.Role)
		if role == "" {
			role = string(chat.RoleUser)
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}
	return out
}
