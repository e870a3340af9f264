package live

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/pkg/audio"
	provlive "github.com/MrWong99/vivavoce/pkg/provider/live"
)

// PlaybackSchedule is the gapless playback state: where the next segment
// starts and which scheduled sources have not finished yet.
type PlaybackSchedule struct {
	NextStartTime time.Duration
	ActiveSources map[uint64]audio.Source
}

// playback schedules inbound audio segments back to back on the output clock.
// It is owned by the controller's event loop and is not safe for concurrent
// use.
type playback struct {
	out      audio.OutputContext
	rate     int
	metrics  *observe.Metrics
	onEnded  func(id uint64)
	schedule PlaybackSchedule
	nextID   uint64
}

func newPlayback(out audio.OutputContext, rate int, m *observe.Metrics, onEnded func(uint64)) *playback {
	return &playback{
		out:      out,
		rate:     rate,
		metrics:  m,
		onEnded:  onEnded,
		schedule: PlaybackSchedule{ActiveSources: make(map[uint64]audio.Source)},
	}
}

// handleSegment decodes seg and schedules it to start exactly when the
// previous segment ends, or now if the schedule has fallen behind the clock.
// Malformed segments are dropped and reported.
func (p *playback) handleSegment(ctx context.Context, seg provlive.Segment) error {
	raw, err := audio.Decode(seg.Data)
	if err != nil {
		p.metrics.SegmentsMalformed.Add(ctx, 1)
		return err
	}
	buf, err := audio.BytesToPCM16Float(raw, p.rate, 1)
	if err != nil {
		p.metrics.SegmentsMalformed.Add(ctx, 1)
		return err
	}

	startAt := max(p.schedule.NextStartTime, p.out.Now())
	p.nextID++
	id := p.nextID
	src, err := p.out.Schedule(buf, startAt, func() { p.onEnded(id) })
	if err != nil {
		return fmt.Errorf("live: schedule segment: %w", err)
	}
	p.schedule.ActiveSources[id] = src
	p.schedule.NextStartTime = startAt + buf.Duration()
	p.metrics.SegmentsScheduled.Add(ctx, 1)
	return nil
}

// ended forgets a source that finished playing.
func (p *playback) ended(id uint64) {
	delete(p.schedule.ActiveSources, id)
}

// interrupt stops every queued source and resets the schedule so the next
// segment plays immediately.
func (p *playback) interrupt() {
	for _, src := range p.schedule.ActiveSources {
		src.Stop()
	}
	clear(p.schedule.ActiveSources)
	p.schedule.NextStartTime = 0
}

// snapshot returns a copy of the schedule.
func (p *playback) snapshot() PlaybackSchedule {
	return PlaybackSchedule{
		NextStartTime: p.schedule.NextStartTime,
		ActiveSources: maps.Clone(p.schedule.ActiveSources),
	}
}

func (p *playback) logDrop(ctx context.Context, err error) {
	observe.Logger(ctx).Warn("live: dropping audio segment", slog.Any("err", err))
}
