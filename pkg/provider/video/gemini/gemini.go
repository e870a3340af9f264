// Package gemini provides a video provider backed by Veo through the
// google.golang.org/genai SDK.
//
// Jobs are genai long-running operations. The finished operation carries a
// file URI that is only downloadable with the API key attached, so Download
// issues a plain authenticated HTTP GET rather than going through the SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"google.golang.org/genai"

	"github.com/MrWong99/vivavoce/pkg/provider/video"
)

var _ video.Provider = (*Provider)(nil)

const defaultModel = "veo-2.0-generate-001"

// Provider implements video.Provider for the Gemini API.
type Provider struct {
	client     *genai.Client
	apiKey     string
	model      string
	httpClient *http.Client
}

type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the default video model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the Gemini API endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for API calls and downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Veo video Provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini video: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = http.DefaultClient
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini video: new client: %w", err)
	}
	return &Provider{client: client, apiKey: apiKey, model: cfg.model, httpClient: hc}, nil
}

// Submit implements video.Provider.
func (p *Provider) Submit(ctx context.Context, req video.Request) (*video.Job, error) {
	var img *genai.Image
	if req.Image != nil {
		img = &genai.Image{ImageBytes: req.Image.Data, MIMEType: req.Image.MIMEType}
	}
	gc := &genai.GenerateVideosConfig{
		AspectRatio:    req.AspectRatio,
		NumberOfVideos: 1,
	}
	op, err := p.client.Models.GenerateVideos(ctx, p.model, req.Prompt, img, gc)
	if err != nil {
		return nil, fmt.Errorf("gemini video: submit: %w", err)
	}
	return jobFromOperation(op), nil
}

// Poll implements video.Provider.
func (p *Provider) Poll(ctx context.Context, job *video.Job) (*video.Job, error) {
	if job == nil || job.Name == "" {
		return nil, errors.New("gemini video: poll: job has no name")
	}
	op, err := p.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: job.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini video: poll %s: %w", job.Name, err)
	}
	return jobFromOperation(op), nil
}

// Download implements video.Provider. The API key is appended to uri as the
// key query parameter.
func (p *Provider) Download(ctx context.Context, uri string, w io.Writer) error {
	u, err := withKey(uri, p.apiKey)
	if err != nil {
		return fmt.Errorf("gemini video: download: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("gemini video: download: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini video: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini video: download: unexpected status %s", resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("gemini video: download: %w", err)
	}
	return nil
}

func withKey(raw, key string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// jobFromOperation flattens a genai operation into a video.Job.
func jobFromOperation(op *genai.GenerateVideosOperation) *video.Job {
	if op == nil {
		return &video.Job{}
	}
	job := &video.Job{Name: op.Name, Done: op.Done}
	if len(op.Error) > 0 {
		if msg, ok := op.Error["message"].(string); ok && msg != "" {
			job.Failure = msg
		} else {
			job.Failure = fmt.Sprint(op.Error)
		}
	}
	if op.Response != nil {
		job.FilteredReasons = op.Response.RAIMediaFilteredReasons
		for _, gv := range op.Response.GeneratedVideos {
			if gv != nil && gv.Video != nil && gv.Video.URI != "" {
				job.VideoURI = gv.Video.URI
				break
			}
		}
	}
	return job
}
