package videogen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/pkg/provider/video"
	"github.com/MrWong99/vivavoce/pkg/provider/video/mock"
)

// instant fires immediately so polling tests don't sleep.
func instant(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func newGenerator(t *testing.T, p video.Provider, opts ...Option) (*Generator, string) {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	dir := t.TempDir()
	opts = append([]Option{WithMetrics(m), WithOutputDir(dir), WithClock(instant)}, opts...)
	return New(p, opts...), dir
}

type progressLog struct {
	mu   sync.Mutex
	msgs []string
}

func (l *progressLog) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func TestGenerate_PollsUntilDoneAndDownloads(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		SubmitJob: &video.Job{Name: "models/veo/operations/abc"},
		PollJobs: []*video.Job{
			{Name: "models/veo/operations/abc"},
			{Name: "models/veo/operations/abc"},
			{Name: "models/veo/operations/abc", Done: true, VideoURI: "https://files.example/v.mp4"},
		},
		Content: []byte("mp4-bytes"),
	}
	g, dir := newGenerator(t, p)
	var progress progressLog

	res, err := g.Generate(context.Background(), Request{Prompt: "a cat surfing"}, progress.record)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Polls != 3 {
		t.Errorf("Polls = %d, want 3", res.Polls)
	}
	if filepath.Dir(res.Path) != dir {
		t.Errorf("Path = %q, want it under %q", res.Path, dir)
	}
	if !strings.HasPrefix(filepath.Base(res.Path), "video-abc-") {
		t.Errorf("file name = %q", filepath.Base(res.Path))
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read video: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Errorf("video content = %q", data)
	}
	if p.DownloadURIs[0] != "https://files.example/v.mp4" {
		t.Errorf("downloaded %q", p.DownloadURIs[0])
	}
	if got := p.Requests[0].AspectRatio; got != AspectPortrait {
		t.Errorf("submitted aspect = %q, want %q", got, AspectPortrait)
	}

	want := []string{
		"Submitting request…",
		"Generating video… (poll 1)",
		"Generating video… (poll 2)",
		"Generating video… (poll 3)",
		"Downloading video…",
		"Done",
	}
	if strings.Join(progress.msgs, "|") != strings.Join(want, "|") {
		t.Errorf("progress = %q, want %q", progress.msgs, want)
	}
}

func TestGenerate_AlreadyDoneSkipsPolling(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		SubmitJob: &video.Job{Name: "j", Done: true, VideoURI: "https://files.example/v.mp4"},
	}
	g, _ := newGenerator(t, p)

	res, err := g.Generate(context.Background(), Request{Prompt: "x"}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Polls != 0 || p.Polls() != 0 {
		t.Errorf("polls = %d/%d, want 0", res.Polls, p.Polls())
	}
}

func TestGenerate_ForwardsImage(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{SubmitJob: &video.Job{Name: "j", Done: true, VideoURI: "u"}}
	g, _ := newGenerator(t, p)
	img := &video.Image{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}

	if _, err := g.Generate(context.Background(), Request{Prompt: "x", Image: img}, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if p.Requests[0].Image != img {
		t.Error("image was not forwarded to the provider")
	}
}

func TestGenerate_RejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"empty prompt", Request{Prompt: "  "}, nil},
		{"landscape", Request{Prompt: "x", AspectRatio: "16:9"}, ErrUnsupportedAspect},
		{"square", Request{Prompt: "x", AspectRatio: "1:1"}, ErrUnsupportedAspect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Provider{}
			g, _ := newGenerator(t, p)
			_, err := g.Generate(context.Background(), tt.req, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if len(p.Requests) != 0 {
				t.Error("invalid request reached the provider")
			}
		})
	}
}

func TestGenerate_DoneWithoutLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		job        *video.Job
		wantReason string
	}{
		{"no link", &video.Job{Name: "j", Done: true}, "no link"},
		{"filtered", &video.Job{Name: "j", Done: true, FilteredReasons: []string{"unsafe content"}}, "no link: unsafe content"},
		{"failed", &video.Job{Name: "j", Done: true, Failure: "quota exceeded"}, "quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Provider{PollJobs: []*video.Job{tt.job}}
			g, dir := newGenerator(t, p)

			_, err := g.Generate(context.Background(), Request{Prompt: "x"}, nil)
			var jobErr *UpstreamJobError
			if !errors.As(err, &jobErr) {
				t.Fatalf("err = %v, want *UpstreamJobError", err)
			}
			if jobErr.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", jobErr.Reason, tt.wantReason)
			}
			if len(p.DownloadURIs) != 0 {
				t.Error("download attempted for failed job")
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("output dir has %d entries, want 0", len(entries))
			}
		})
	}
}

func TestGenerate_SubmitError(t *testing.T) {
	t.Parallel()
	boom := errors.New("quota")
	g, _ := newGenerator(t, &mock.Provider{SubmitErr: boom})

	if _, err := g.Generate(context.Background(), Request{Prompt: "x"}, nil); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped quota error", err)
	}
}

func TestGenerate_PollError(t *testing.T) {
	t.Parallel()
	boom := errors.New("503")
	g, _ := newGenerator(t, &mock.Provider{PollErr: boom})

	if _, err := g.Generate(context.Background(), Request{Prompt: "x"}, nil); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped poll error", err)
	}
}

func TestGenerate_DownloadErrorRemovesPartialFile(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	p := &mock.Provider{
		SubmitJob:   &video.Job{Name: "j", Done: true, VideoURI: "u"},
		DownloadErr: boom,
	}
	g, dir := newGenerator(t, p)

	_, err := g.Generate(context.Background(), Request{Prompt: "x"}, nil)
	var jobErr *UpstreamJobError
	if !errors.As(err, &jobErr) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want *UpstreamJobError wrapping download error", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("output dir has %d entries, want 0", len(entries))
	}
}

func TestGenerate_CancelBetweenPolls(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{}
	never := func(time.Duration) <-chan time.Time { return nil }
	g, _ := newGenerator(t, p, WithClock(never))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, Request{Prompt: "x"}, nil)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Generate did not return after cancel")
	}
	if p.Polls() != 0 {
		t.Errorf("polls = %d, want 0", p.Polls())
	}
}

func TestLoadImage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	png := filepath.Join(dir, "seed.png")
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	if err := os.WriteFile(png, pngHeader, 0o600); err != nil {
		t.Fatal(err)
	}
	img, err := LoadImage(png)
	if err != nil {
		t.Fatalf("LoadImage(png): %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", img.MIMEType)
	}

	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImage(txt); err == nil {
		t.Error("LoadImage(txt) succeeded, want error")
	}
	if _, err := LoadImage(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("LoadImage(missing) succeeded, want error")
	}
}

func TestFileStem(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"models/veo/operations/abc", "video-abc"},
		{"abc", "video-abc"},
		{"", "video"},
		{"ops/xyz/", "video-xyz"},
	}
	for _, tt := range tests {
		if got := fileStem(tt.in); got != tt.want {
			t.Errorf("fileStem(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
