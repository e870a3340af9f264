package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/vivavoce/pkg/provider/chat"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()
	p, err := New(context.Background(), "key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Model() != "gemini-2.5-flash" {
		t.Errorf("model = %q, want gemini-2.5-flash", p.Model())
	}
}

func TestBuildContents_PreservesOrderAndRoles(t *testing.T) {
	t.Parallel()
	got := buildContents([]chat.Turn{
		{Role: chat.RoleUser, Text: "hi"},
		{Role: chat.RoleModel, Text: "hello"},
		{Text: "again"},
	})
	want := []struct{ role, text string }{
		{"user", "hi"},
		{"model", "hello"},
		{"user", "again"},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Role != w.role || got[i].Parts[0].Text != w.text {
			t.Errorf("content[%d] = %s/%q, want %s/%q", i, got[i].Role, got[i].Parts[0].Text, w.role, w.text)
		}
	}
}

// sseServer serves a streamGenerateContent response that emits one event per
// fragment.
func sseServer(t *testing.T, fragments []string, gotBody chan<- map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if gotBody != nil {
			gotBody <- body
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range fragments {
			ev := map[string]any{
				"candidates": []any{map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": f}},
					},
				}},
			}
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStream_EmitsChunksInOrder(t *testing.T) {
	t.Parallel()

	bodies := make(chan map[string]any, 1)
	srv := sseServer(t, []string{"Hel", "lo", "!"}, bodies)

	p, err := New(context.Background(), "key", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Stream(context.Background(), chat.Request{
		SystemInstruction: "Be brief.",
		Turns:             []chat.Turn{{Role: chat.RoleUser, Text: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var sb strings.Builder
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		sb.WriteString(c.Text)
	}
	if sb.String() != "Hello!" {
		t.Errorf("reply = %q, want %q", sb.String(), "Hello!")
	}

	body := <-bodies
	si, ok := body["systemInstruction"].(map[string]any)
	if !ok {
		t.Fatalf("systemInstruction missing from request body: %v", body)
	}
	parts := si["parts"].([]any)
	if parts[0].(map[string]any)["text"] != "Be brief." {
		t.Errorf("system instruction = %v", parts)
	}
}

func TestStream_ServerErrorBecomesErrChunk(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"boom"}}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, err := New(context.Background(), "key", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Stream(context.Background(), chat.Request{Turns: []chat.Turn{{Text: "hi"}}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var gotErr error
	for c := range ch {
		if c.Err != nil {
			gotErr = c.Err
		}
	}
	if gotErr == nil {
		t.Fatal("expected an error chunk")
	}
}

func TestStream_RejectsEmptyRequest(t *testing.T) {
	t.Parallel()
	p, err := New(context.Background(), "key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Stream(context.Background(), chat.Request{}); err == nil {
		t.Fatal("expected error for request without turns")
	}
}
