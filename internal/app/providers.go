package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/vivavoce/internal/config"
	"github.com/MrWong99/vivavoce/pkg/provider/chat"
	chatgemini "github.com/MrWong99/vivavoce/pkg/provider/chat/gemini"
	chatmock "github.com/MrWong99/vivavoce/pkg/provider/chat/mock"
	"github.com/MrWong99/vivavoce/pkg/provider/live"
	livegemini "github.com/MrWong99/vivavoce/pkg/provider/live/gemini"
	livemock "github.com/MrWong99/vivavoce/pkg/provider/live/mock"
	"github.com/MrWong99/vivavoce/pkg/provider/video"
	videogemini "github.com/MrWong99/vivavoce/pkg/provider/video/gemini"
	videomock "github.com/MrWong99/vivavoce/pkg/provider/video/mock"
)

// Providers holds one interface value per mode. Nil means the mode is not
// configured.
type Providers struct {
	Chat  chat.Provider
	Video video.Provider
	Live  live.Provider
}

// errNoAPIKey is returned by the hosted provider factories when the entry
// carries no key.
var errNoAPIKey = errors.New("api_key is required")

// clientInitTimeout bounds the genai client construction.
const clientInitTimeout = 10 * time.Second

// NewRegistry returns a registry with the built-in providers: "gemini" for the
// hosted service and "mock" for offline runs.
func NewRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterChat("gemini", func(e config.ProviderEntry) (chat.Provider, error) {
		if e.APIKey == "" {
			return nil, errNoAPIKey
		}
		ctx, cancel := context.WithTimeout(context.Background(), clientInitTimeout)
		defer cancel()
		var opts []chatgemini.Option
		if e.Model != "" {
			opts = append(opts, chatgemini.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, chatgemini.WithBaseURL(e.BaseURL))
		}
		p, err := chatgemini.New(ctx, e.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.RegisterVideo("gemini", func(e config.ProviderEntry) (video.Provider, error) {
		if e.APIKey == "" {
			return nil, errNoAPIKey
		}
		ctx, cancel := context.WithTimeout(context.Background(), clientInitTimeout)
		defer cancel()
		var opts []videogemini.Option
		if e.Model != "" {
			opts = append(opts, videogemini.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, videogemini.WithBaseURL(e.BaseURL))
		}
		p, err := videogemini.New(ctx, e.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.RegisterLive("gemini", func(e config.ProviderEntry) (live.Provider, error) {
		if e.APIKey == "" {
			return nil, errNoAPIKey
		}
		var opts []livegemini.Option
		if e.Model != "" {
			opts = append(opts, livegemini.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(e.BaseURL))
		}
		return livegemini.New(e.APIKey, opts...), nil
	})

	reg.RegisterChat("mock", func(e config.ProviderEntry) (chat.Provider, error) {
		reply, _ := e.Options["reply"].(string)
		if reply == "" {
			reply = "(mock reply)"
		}
		return &chatmock.Provider{Chunks: []chat.Chunk{{Text: reply}}}, nil
	})
	reg.RegisterVideo("mock", func(e config.ProviderEntry) (video.Provider, error) {
		return &videomock.Provider{
			SubmitJob: &video.Job{Name: "mock", Done: true, VideoURI: "mock://video.mp4"},
		}, nil
	})
	reg.RegisterLive("mock", func(config.ProviderEntry) (live.Provider, error) {
		return &livemock.Provider{}, nil
	})

	return reg
}

// BuildProviders instantiates the provider for mode from cfg. Only the slot
// for the selected mode is filled; the others stay nil. An entry without an
// api_key receives apiKey.
func BuildProviders(reg *config.Registry, cfg *config.Config, mode Mode, apiKey string) (*Providers, error) {
	withKey := func(e config.ProviderEntry) config.ProviderEntry {
		if e.APIKey == "" {
			e.APIKey = apiKey
		}
		return e
	}

	p := &Providers{}
	var err error
	switch mode {
	case ModeChat:
		p.Chat, err = reg.CreateChat(withKey(cfg.Providers.Chat))
	case ModeVideo:
		p.Video, err = reg.CreateVideo(withKey(cfg.Providers.Video))
	case ModeLive:
		p.Live, err = reg.CreateLive(withKey(cfg.Providers.Live))
	default:
		return nil, fmt.Errorf("app: unknown mode %q", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("app: create %s provider: %w", mode, err)
	}
	return p, nil
}
