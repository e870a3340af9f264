// Package video defines the Provider interface for hosted video generation
// backends.
//
// Video generation is a long-running job: the caller submits a request, polls
// the job until the service reports it done, then downloads the artifact from
// the link the service returns. The orchestration (poll cadence, progress
// reporting, error classification) lives with the caller; providers translate
// single calls to the hosted API.
package video

import (
	"context"
	"io"
)

// Image is an optional seed frame for generation.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request describes one video generation job.
type Request struct {
	// Prompt is the text description of the video.
	Prompt string

	// AspectRatio is the requested frame shape, e.g. "9:16".
	AspectRatio string

	// Image optionally seeds the first frame. Nil means text-only generation.
	Image *Image
}

// Job is a snapshot of a generation job's state.
type Job struct {
	// Name identifies the job with the service. Poll uses it to refresh state.
	Name string

	// Done reports whether the service has finished the job, successfully or
	// not.
	Done bool

	// VideoURI is the download link of the first generated video. Empty until
	// Done, and may stay empty when the service produced nothing.
	VideoURI string

	// Failure is the service's description of why a finished job failed.
	Failure string

	// FilteredReasons lists content filter reasons reported for a finished job
	// that produced no video.
	FilteredReasons []string
}

// Provider is the abstraction over any video generation backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Submit starts a job and returns its initial state.
	Submit(ctx context.Context, req Request) (*Job, error)

	// Poll fetches the current state of job.
	Poll(ctx context.Context, job *Job) (*Job, error)

	// Download streams the artifact at uri into w. Implementations add any
	// credentials the hosted service requires on the download link.
	Download(ctx context.Context, uri string, w io.Writer) error
}
