package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/vivavoce/pkg/provider/chat"
	"github.com/MrWong99/vivavoce/pkg/provider/live"
	"github.com/MrWong99/vivavoce/pkg/provider/video"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type P from its configuration entry.
type Factory[P any] func(ProviderEntry) (P, error)

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	chat  map[string]Factory[chat.Provider]
	video map[string]Factory[video.Provider]
	live  map[string]Factory[live.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		chat:  make(map[string]Factory[chat.Provider]),
		video: make(map[string]Factory[video.Provider]),
		live:  make(map[string]Factory[live.Provider]),
	}
}

// RegisterChat registers a chat provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterChat(name string, f Factory[chat.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[name] = f
}

// RegisterVideo registers a video provider factory under name.
func (r *Registry) RegisterVideo(name string, f Factory[video.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video[name] = f
}

// RegisterLive registers a live session provider factory under name.
func (r *Registry) RegisterLive(name string, f Factory[live.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = f
}

// CreateChat instantiates the chat provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Provider, error) {
	return create(&r.mu, r.chat, "chat", entry)
}

// CreateVideo instantiates the video provider registered under entry.Name.
func (r *Registry) CreateVideo(entry ProviderEntry) (video.Provider, error) {
	return create(&r.mu, r.video, "video", entry)
}

// CreateLive instantiates the live session provider registered under entry.Name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	return create(&r.mu, r.live, "live", entry)
}

// Names returns the sorted names registered for kind ("chat", "video" or "live").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "chat":
		names = keys(r.chat)
	case "video":
		names = keys(r.video)
	case "live":
		names = keys(r.live)
	}
	sort.Strings(names)
	return names
}

func create[P any](mu *sync.RWMutex, m map[string]Factory[P], kind string, entry ProviderEntry) (P, error) {
	mu.RLock()
	factory, ok := m[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
