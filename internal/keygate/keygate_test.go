package keygate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}

	tests := []struct {
		name       string
		configured string
		env        map[string]string
		want       string
	}{
		{"configured wins", "cfg", map[string]string{"GEMINI_API_KEY": "env"}, "cfg"},
		{"gemini env", "", map[string]string{"GEMINI_API_KEY": "g", "API_KEY": "a"}, "g"},
		{"api key fallback", "", map[string]string{"API_KEY": "a"}, "a"},
		{"whitespace ignored", "  ", map[string]string{"API_KEY": " a "}, "a"},
		{"nothing", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Resolve(tt.configured, env(tt.env)); got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	open := NewStatic("k")
	if ok, _ := open.HasSelectedKey(ctx); !ok {
		t.Error("HasSelectedKey = false with key")
	}
	if err := open.SelectKey(ctx); err != nil {
		t.Errorf("SelectKey: %v", err)
	}

	closed := NewStatic("")
	if ok, _ := closed.HasSelectedKey(ctx); ok {
		t.Error("HasSelectedKey = true without key")
	}
	if err := closed.SelectKey(ctx); !errors.Is(err, ErrNoKey) {
		t.Errorf("SelectKey err = %v, want ErrNoKey", err)
	}
}

// pipeWith returns a read end that yields input then EOF.
func pipeWith(t *testing.T, input string) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	go func() {
		_, _ = w.WriteString(input)
		w.Close()
	}()
	return r
}

func TestInteractive_ReadsKeyFromNonTerminal(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	g := NewInteractive("", pipeWith(t, "  secret\n"), &out)
	if err := g.SelectKey(context.Background()); err != nil {
		t.Fatalf("SelectKey: %v", err)
	}
	if g.Key() != "secret" {
		t.Errorf("Key = %q, want secret", g.Key())
	}
	if !strings.Contains(out.String(), "API key") {
		t.Errorf("prompt = %q", out.String())
	}
	if ok, _ := g.HasSelectedKey(context.Background()); !ok {
		t.Error("HasSelectedKey = false after selection")
	}
}

func TestInteractive_EmptyInput(t *testing.T) {
	t.Parallel()

	g := NewInteractive("", pipeWith(t, "\n"), &bytes.Buffer{})
	if err := g.SelectKey(context.Background()); !errors.Is(err, ErrNoKey) {
		t.Errorf("SelectKey err = %v, want ErrNoKey", err)
	}
}

func TestInteractive_PreselectedSkipsPrompt(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	g := NewInteractive("have", pipeWith(t, ""), &out)
	if err := g.SelectKey(context.Background()); err != nil {
		t.Fatalf("SelectKey: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("prompted despite preselected key: %q", out.String())
	}
}
