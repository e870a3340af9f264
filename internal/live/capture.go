package live

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/pkg/audio"
	provlive "github.com/MrWong99/vivavoce/pkg/provider/live"
)

// capture turns microphone frames into encoded blobs and ships them to the
// session. Encoding happens on the event loop; sending happens on a dedicated
// goroutine fed by a bounded queue. Nothing here ever blocks the device or
// the event loop: a full queue drops the blob.
type capture struct {
	rate    int
	sess    provlive.SessionHandle
	metrics *observe.Metrics
	queue   chan audio.EncodedBlob

	// failing is set after a send error and cleared by the next success, so a
	// burst of failures logs once.
	failing atomic.Bool
}

func newCapture(sess provlive.SessionHandle, rate, queueSize int, m *observe.Metrics) *capture {
	return &capture{
		rate:    rate,
		sess:    sess,
		metrics: m,
		queue:   make(chan audio.EncodedBlob, queueSize),
	}
}

// handleFrame encodes frame and enqueues it for sending.
func (c *capture) handleFrame(ctx context.Context, frame audio.Frame) {
	blob := audio.NewPCMBlob(frame, c.rate)
	select {
	case c.queue <- blob:
	default:
		c.metrics.RecordFrameDropped(ctx, "send_queue_full")
		slog.Debug("live: send queue full, dropping frame")
	}
}

// run sends queued blobs until ctx is cancelled. Send errors are logged and
// the blob is dropped; there are no retries.
func (c *capture) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case blob := <-c.queue:
			if err := c.sess.Send(ctx, blob); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.metrics.RecordProviderError(ctx, "live", "send")
				if !c.failing.Swap(true) {
					observe.Logger(ctx).Warn("live: failed to send audio, dropping frames", slog.Any("err", err))
				}
				continue
			}
			c.failing.Store(false)
			c.metrics.BlobsSent.Add(ctx, 1)
		}
	}
}
