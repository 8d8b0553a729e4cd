package transport

import (
	"context"
	"testing"
	"time"

	"github.com/pipeless-go/pipeless/pkg/message"
)

func TestPairSocket_InputOutputRoundTrip(t *testing.T) {
	// Output listens, Input dials, per spec.md §4.1.
	listener, err := ListenPair("127.0.0.1:0", 8, testLogger())
	if err != nil {
		t.Fatalf("ListenPair: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dialer, err := DialPair(ctx, listener.Addr().String(), 8, testLogger())
	if err != nil {
		t.Fatalf("DialPair: %v", err)
	}
	defer dialer.Close()

	deadline := time.Now().Add(time.Second)
	for listener.NPeers() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if listener.NPeers() != 1 {
		t.Fatalf("listener has %d peers, want 1", listener.NPeers())
	}

	caps := message.Caps{Value: "video/x-raw,format=RGB"}
	if err := dialer.EnsureSend(caps, time.Second); err != nil {
		t.Fatalf("EnsureSend: %v", err)
	}

	got := pollRecv(t, listener)
	if c, ok := got.(message.Caps); !ok || c.Value != caps.Value {
		t.Fatalf("got %#v, want %#v", got, caps)
	}

	if err := dialer.EnsureSend(message.Eos{}, time.Second); err != nil {
		t.Fatalf("EnsureSend Eos: %v", err)
	}
	got = pollRecv(t, listener)
	if _, ok := got.(message.Eos); !ok {
		t.Fatalf("got %T, want Eos", got)
	}
}

func TestPairSocket_WorkerReadyBarrier(t *testing.T) {
	// Input listens, each Worker dials in and sends one ready marker.
	listener, err := ListenPair("127.0.0.1:0", 4, testLogger())
	if err != nil {
		t.Fatalf("ListenPair: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const nWorkers = 2
	for i := 0; i < nWorkers; i++ {
		d, err := DialPair(ctx, listener.Addr().String(), 4, testLogger())
		if err != nil {
			t.Fatalf("worker %d DialPair: %v", i, err)
		}
		defer d.Close()
		if err := d.EnsureSend(message.Tags{Entries: []message.TagEntry{{Name: "worker-ready", Value: "1"}}}, time.Second); err != nil {
			t.Fatalf("worker %d ready send: %v", i, err)
		}
	}

	received := 0
	deadline := time.Now().Add(2 * time.Second)
	for received < nWorkers && time.Now().Before(deadline) {
		if _, ok := listener.Recv(); ok {
			received++
			continue
		}
		time.Sleep(5 * time.Millisecond)
	}
	if received != nWorkers {
		t.Fatalf("received %d ready markers, want %d", received, nWorkers)
	}
}

func pollRecv(t *testing.T, l *PairListener) message.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m, ok := l.Recv(); ok {
			return m
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for message")
	return nil
}
