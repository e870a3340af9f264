// Package videogen orchestrates a video generation job end to end: submit,
// poll until the service finishes, download the artifact.
package videogen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/pkg/provider/video"
)

// AspectPortrait is the only aspect ratio the service accepts.
const AspectPortrait = "9:16"

// DefaultPollInterval is the delay between job status checks.
const DefaultPollInterval = 10 * time.Second

// ErrUnsupportedAspect is returned for any aspect ratio other than
// [AspectPortrait].
var ErrUnsupportedAspect = errors.New("videogen: unsupported aspect ratio")

// UpstreamJobError reports that the service failed the job or finished it
// without producing a downloadable video. The user may resubmit.
type UpstreamJobError struct {
	// Reason is a short human-readable cause, e.g. "no link".
	Reason string
	Err    error
}

func (e *UpstreamJobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("videogen: job failed: %s: %v", e.Reason, e.Err)
	}
	return "videogen: job failed: " + e.Reason
}

func (e *UpstreamJobError) Unwrap() error { return e.Err }

// Request describes the video to generate.
type Request struct {
	Prompt string

	// AspectRatio defaults to [AspectPortrait] when empty.
	AspectRatio string

	// Image optionally seeds the first frame.
	Image *video.Image
}

// Result is a finished, downloaded video.
type Result struct {
	// Path is the local file the video was written to.
	Path string

	// URI is the service's download link, without credentials.
	URI string

	// Polls is the number of status checks it took.
	Polls int
}

// ProgressFunc receives coarse human-readable progress messages.
type ProgressFunc func(msg string)

// Option is a functional option for [New].
type Option func(*Generator)

// WithPollInterval overrides [DefaultPollInterval].
func WithPollInterval(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithOutputDir sets where videos are written. Default: the working directory.
func WithOutputDir(dir string) Option {
	return func(g *Generator) { g.outDir = dir }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithClock overrides the wait between polls. Used in tests.
func WithClock(after func(time.Duration) <-chan time.Time) Option {
	return func(g *Generator) { g.after = after }
}

// Generator runs video generation jobs. Safe for concurrent use; each
// Generate call runs its own job.
type Generator struct {
	provider video.Provider
	interval time.Duration
	outDir   string
	metrics  *observe.Metrics
	after    func(time.Duration) <-chan time.Time
}

// New creates a Generator backed by provider.
func New(provider video.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		interval: DefaultPollInterval,
		outDir:   ".",
		after:    time.After,
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// LoadImage reads a seed image from path and sniffs its MIME type.
func LoadImage(path string) (*video.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("videogen: read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("videogen: %s is not an image (detected %s)", path, mime)
	}
	return &video.Image{Data: data, MIMEType: mime}, nil
}

// Generate submits req, polls until the job is done, and downloads the video
// into the output directory. progress may be nil. Cancelling ctx abandons the
// job between polls and returns ctx.Err(); the service-side job keeps running.
func (g *Generator) Generate(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("videogen: prompt must not be empty")
	}
	if req.AspectRatio == "" {
		req.AspectRatio = AspectPortrait
	}
	if req.AspectRatio != AspectPortrait {
		return nil, fmt.Errorf("%w: %q (want %s)", ErrUnsupportedAspect, req.AspectRatio, AspectPortrait)
	}

	ctx, span := observe.StartSpan(ctx, "videogen.Generate")
	defer span.End()
	log := observe.Logger(ctx)
	start := time.Now()

	progress("Submitting request…")
	job, err := g.provider.Submit(ctx, video.Request{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Image:       req.Image,
	})
	if err != nil {
		g.metrics.RecordProviderRequest(ctx, "video", "submit", "error")
		span.RecordError(err)
		return nil, fmt.Errorf("videogen: submit: %w", err)
	}
	g.metrics.RecordProviderRequest(ctx, "video", "submit", "ok")
	log.Info("video job submitted", "job", job.Name)

	polls := 0
	for !job.Done {
		select {
		case <-ctx.Done():
			log.Info("video job abandoned", "job", job.Name, "polls", polls)
			return nil, ctx.Err()
		case <-g.after(g.interval):
		}
		polls++
		progress(fmt.Sprintf("Generating video… (poll %d)", polls))
		job, err = g.provider.Poll(ctx, job)
		if err != nil {
			g.metrics.RecordProviderRequest(ctx, "video", "poll", "error")
			span.RecordError(err)
			return nil, fmt.Errorf("videogen: poll: %w", err)
		}
	}

	if job.Failure != "" {
		g.metrics.RecordProviderError(ctx, "video", "job")
		return nil, &UpstreamJobError{Reason: job.Failure}
	}
	if job.VideoURI == "" {
		g.metrics.RecordProviderError(ctx, "video", "job")
		reason := "no link"
		if len(job.FilteredReasons) > 0 {
			reason = "no link: " + strings.Join(job.FilteredReasons, "; ")
		}
		return nil, &UpstreamJobError{Reason: reason}
	}

	progress("Downloading video…")
	path, err := g.download(ctx, job)
	if err != nil {
		g.metrics.RecordProviderRequest(ctx, "video", "download", "error")
		span.RecordError(err)
		return nil, err
	}
	g.metrics.RecordProviderRequest(ctx, "video", "download", "ok")
	g.metrics.VideoJobDuration.Record(ctx, time.Since(start).Seconds())

	progress("Done")
	log.Info("video ready", "path", path, "polls", polls, "elapsed", time.Since(start))
	return &Result{Path: path, URI: job.VideoURI, Polls: polls}, nil
}

func (g *Generator) download(ctx context.Context, job *video.Job) (string, error) {
	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return "", fmt.Errorf("videogen: create output dir: %w", err)
	}
	f, err := os.CreateTemp(g.outDir, fileStem(job.Name)+"-*.mp4")
	if err != nil {
		return "", fmt.Errorf("videogen: create output file: %w", err)
	}
	if err := g.provider.Download(ctx, job.VideoURI, f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", &UpstreamJobError{Reason: "download failed", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("videogen: write video: %w", err)
	}
	return f.Name(), nil
}

// fileStem turns a job name like "models/veo/operations/abc" into "video-abc".
func fileStem(name string) string {
	base := filepath.Base(strings.TrimRight(name, "/"))
	if base == "" || base == "." || base == "/" {
		return "video"
	}
	return "video-" + base
}
