// Package mock provides a test double for the video.Provider interface.
//
// Poll returns the entries of PollJobs in order, repeating the last one once
// the list is exhausted, so a test can script a job that stays pending for a
// few polls and then completes.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/vivavoce/pkg/provider/video"
)

// Provider is a mock implementation of video.Provider.
type Provider struct {
	mu sync.Mutex

	// SubmitJob is returned by Submit. Defaults to a pending job named "job".
	SubmitJob *video.Job

	// SubmitErr, if non-nil, is returned by Submit.
	SubmitErr error

	// PollJobs is the scripted sequence of Poll results.
	PollJobs []*video.Job

	// PollErr, if non-nil, is returned by Poll.
	PollErr error

	// Content is written to w by Download.
	Content []byte

	// DownloadErr, if non-nil, is returned by Download.
	DownloadErr error

	// Requests records every Submit request.
	Requests []video.Request

	// PollCount is the number of Poll calls.
	PollCount int

	// DownloadURIs records every uri passed to Download.
	DownloadURIs []string
}

// Submit implements video.Provider.
func (p *Provider) Submit(_ context.Context, req video.Request) (*video.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.SubmitErr != nil {
		return nil, p.SubmitErr
	}
	if p.SubmitJob != nil {
		return p.SubmitJob, nil
	}
	return &video.Job{Name: "job"}, nil
}

// Poll implements video.Provider.
func (p *Provider) Poll(_ context.Context, job *video.Job) (*video.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PollCount++
	if p.PollErr != nil {
		return nil, p.PollErr
	}
	if len(p.PollJobs) == 0 {
		return job, nil
	}
	i := min(p.PollCount, len(p.PollJobs)) - 1
	return p.PollJobs[i], nil
}

// Download implements video.Provider.
func (p *Provider) Download(_ context.Context, uri string, w io.Writer) error {
	p.mu.Lock()
	p.DownloadURIs = append(p.DownloadURIs, uri)
	err, content := p.DownloadErr, p.Content
	p.mu.Unlock()
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}

// Polls returns PollCount.
func (p *Provider) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PollCount
}

var _ video.Provider = (*Provider)(nil)
