// Package metrics implements the per-worker, per-stream processing
// metrics of spec.md §4.7: a bounded FIFO of recent processing times
// driving the adaptive frame-skip decision, plus the cached inference
// result carried across skipped frames.
package metrics

import (
	"math"
	"time"
)

// fifoSize is the bounded history length, per spec.md §4.7.
const fifoSize = 4

// Processing tracks one stream's recent processing durations and
// frame-skip bookkeeping. The zero value is ready to use.
type Processing struct {
	times    [fifoSize]time.Duration
	n        int // number of valid entries, caps at fifoSize
	next     int // ring cursor
	nSkipped int

	cachedInference any
}

// Record appends a processing duration (spec.md §4.7 step 9: "if the
// frame was processed, record elapsed time into the metrics FIFO") and
// resets the consecutive-skip counter.
func (p *Processing) Record(d time.Duration) {
	p.times[p.next] = d
	p.next = (p.next + 1) % fifoSize
	if p.n < fifoSize {
		p.n++
	}
	p.nSkipped = 0
}

// RecordSkip increments the consecutive-skip counter (spec.md §4.6 step
// 6: "If the frame was skipped [...] count the skip").
func (p *Processing) RecordSkip() {
	p.nSkipped++
}

// mean returns the average of the recorded processing times, or 0 with
// no history.
func (p *Processing) mean() time.Duration {
	if p.n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < p.n; i++ {
		sum += p.times[i]
	}
	return sum / time.Duration(p.n)
}

// ShouldSkip implements spec.md §4.7's should_skip(fps): with no
// processing history yet, never skip (there is nothing to pace
// against). Otherwise skip while the number of consecutive skips stays
// below ceil(avg_time / (1/fps)); once that threshold is reached,
// process to keep the processed/skipped ratio tracking the source fps.
func (p *Processing) ShouldSkip(fps float64) bool {
	if p.n == 0 || fps <= 0 {
		return false
	}
	interval := time.Duration(float64(time.Second) / fps)
	if interval <= 0 {
		return false
	}
	threshold := int(math.Ceil(float64(p.mean()) / float64(interval)))
	return p.nSkipped < threshold
}

// CachedInference returns the last non-skipped inference result, or nil
// if none has been set yet.
func (p *Processing) CachedInference() any {
	return p.cachedInference
}

// SetCachedInference stores result, to be reused by subsequently skipped
// frames (spec.md §4.6 step 6: "updated only on non-skipped frames").
func (p *Processing) SetCachedInference(result any) {
	p.cachedInference = result
}

// Reset clears all state, for the stream-boundary reset of spec.md
// §4.6 ("Reset metrics and cached inference at stream boundary").
func (p *Processing) Reset() {
	*p = Processing{}
}
