// Package keygate resolves which hosted-API key the process uses and exposes
// the result as a capability check.
//
// Resolution happens once at startup: configured key first, then the
// GEMINI_API_KEY and API_KEY environment variables. When nothing is found and
// stdin is a terminal, [Interactive] prompts for a key without echo. Core
// components only ever ask [Gate.HasSelectedKey].
package keygate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNoKey is returned when no API key could be resolved.
var ErrNoKey = errors.New("keygate: no API key selected")

// EnvVars lists the environment variables consulted, in order.
var EnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

// Gate is the API-key capability check.
type Gate interface {
	// HasSelectedKey reports whether a key is available.
	HasSelectedKey(ctx context.Context) (bool, error)

	// SelectKey runs the grant flow. It returns [ErrNoKey] if the flow ends
	// without a key.
	SelectKey(ctx context.Context) error

	// Key returns the selected key, or "" if none.
	Key() string
}

var (
	_ Gate = (*Static)(nil)
	_ Gate = (*Interactive)(nil)
)

// Resolve returns configured if non-empty, otherwise the first non-empty value
// among [EnvVars] as read by getenv. A nil getenv uses [os.Getenv].
func Resolve(configured string, getenv func(string) string) string {
	if k := strings.TrimSpace(configured); k != "" {
		return k
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range EnvVars {
		if k := strings.TrimSpace(getenv(name)); k != "" {
			return k
		}
	}
	return ""
}

// Static is a Gate whose key is fixed at construction.
type Static struct {
	key string
}

// NewStatic returns a Gate backed by key. An empty key makes the gate closed.
func NewStatic(key string) *Static {
	return &Static{key: key}
}

// HasSelectedKey implements Gate.
func (s *Static) HasSelectedKey(context.Context) (bool, error) { return s.key != "", nil }

// SelectKey implements Gate. A static gate has no grant flow.
func (s *Static) SelectKey(context.Context) error {
	if s.key == "" {
		return ErrNoKey
	}
	return nil
}

// Key implements Gate.
func (s *Static) Key() string { return s.key }

// Interactive is a Gate that prompts on the terminal when no key was
// configured.
type Interactive struct {
	in  *os.File
	out io.Writer

	mu  sync.Mutex
	key string
}

// NewInteractive returns a Gate seeded with key that prompts on in/out when
// SelectKey is called without one.
func NewInteractive(key string, in *os.File, out io.Writer) *Interactive {
	return &Interactive{in: in, out: out, key: key}
}

// HasSelectedKey implements Gate.
func (g *Interactive) HasSelectedKey(context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.key != "", nil
}

// Key implements Gate.
func (g *Interactive) Key() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.key
}

// SelectKey prompts for a key unless one is already selected. Input is read
// without echo when in is a terminal.
func (g *Interactive) SelectKey(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.key != "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprint(g.out, "Gemini API key: ")
	key, err := g.readKey()
	fmt.Fprintln(g.out)
	if err != nil {
		return fmt.Errorf("keygate: read key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNoKey
	}
	g.key = key
	return nil
}

func (g *Interactive) readKey() (string, error) {
	fd := int(g.in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return string(b), err
	}
	line, err := bufio.NewReader(g.in).ReadString('\n')
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return line, err
}
