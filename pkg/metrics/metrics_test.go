package metrics

import (
	"testing"
	"time"
)

func TestProcessing_ShouldSkip_NoHistoryNeverSkips(t *testing.T) {
	var p Processing
	if p.ShouldSkip(30) {
		t.Fatal("ShouldSkip() with no history = true, want false")
	}
}

func TestProcessing_ShouldSkip_ThresholdBehavior(t *testing.T) {
	var p Processing
	// avg processing time 40ms, fps 30 -> interval ~33.3ms
	// ceil(40ms/33.3ms) = 2: skip while n_skipped < 2, then process.
	p.Record(40 * time.Millisecond)

	if !p.ShouldSkip(30) {
		t.Fatal("ShouldSkip() at nSkipped=0 = false, want true")
	}
	p.RecordSkip()
	if !p.ShouldSkip(30) {
		t.Fatal("ShouldSkip() at nSkipped=1 = false, want true")
	}
	p.RecordSkip()
	if p.ShouldSkip(30) {
		t.Fatal("ShouldSkip() at nSkipped=2 = true, want false (process)")
	}
}

func TestProcessing_Record_ResetsSkipCounter(t *testing.T) {
	var p Processing
	p.Record(10 * time.Millisecond)
	p.RecordSkip()
	p.RecordSkip()
	p.Record(10 * time.Millisecond)
	if p.nSkipped != 0 {
		t.Fatalf("nSkipped after Record = %d, want 0", p.nSkipped)
	}
}

func TestProcessing_FIFO_BoundedAtFour(t *testing.T) {
	var p Processing
	for i := 1; i <= 6; i++ {
		p.Record(time.Duration(i) * time.Millisecond)
	}
	// last 4 recorded: 3,4,5,6ms -> mean = 4.5ms
	got := p.mean()
	want := 4500 * time.Microsecond
	if got != want {
		t.Fatalf("mean() = %v, want %v", got, want)
	}
}

func TestProcessing_CachedInference(t *testing.T) {
	var p Processing
	if p.CachedInference() != nil {
		t.Fatal("CachedInference() initial != nil")
	}
	p.SetCachedInference("result-1")
	if p.CachedInference() != "result-1" {
		t.Fatalf("CachedInference() = %v, want result-1", p.CachedInference())
	}
}

func TestProcessing_Reset(t *testing.T) {
	var p Processing
	p.Record(5 * time.Millisecond)
	p.RecordSkip()
	p.SetCachedInference("x")
	p.Reset()

	if p.n != 0 || p.nSkipped != 0 || p.CachedInference() != nil {
		t.Fatal("Reset() did not clear all state")
	}
}
