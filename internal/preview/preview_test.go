package preview

import (
	"context"
	"testing"
	"time"

	"github.com/meloseed/meloseed/internal/audio"
)

func melody(frames int) []int16 {
	samples := make([]int16, frames*audio.FrameSamples)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	return samples
}

func TestRegistryCreateAndGet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(0)
	s := r.Create(ctx, melody(10))
	if s.ID == "" {
		t.Fatal("session must get an id")
	}
	if got := r.Get(s.ID); got != s {
		t.Error("Get did not return the created session")
	}
	if r.Get("nope") != nil {
		t.Error("unknown id must return nil")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestSessionDeliversFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(0)
	s := r.Create(ctx, melody(10))
	l := s.Subscribe()
	defer s.Unsubscribe(l)

	select {
	case frame := <-l.C:
		if len(frame) != audio.FrameSamples {
			t.Errorf("frame length = %d, want %d", len(frame), audio.FrameSamples)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestSessionLoops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two frames survive the loop-fade passthrough (too short to fade), so
	// the third delivered frame wraps back to the first.
	r := NewRegistry(0)
	s := r.Create(ctx, melody(2))
	l := s.Subscribe()
	defer s.Unsubscribe(l)

	var frames [][]int16
	for len(frames) < 3 {
		select {
		case f := <-l.C:
			frames = append(frames, f)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for looped frames")
		}
	}
	if frames[2][0] != frames[0][0] || frames[2][1] != frames[0][1] {
		t.Error("third frame should wrap back to the first")
	}
}

func TestSessionFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(0)
	s := r.Create(ctx, melody(10))

	listeners := make([]*Listener, 5)
	for i := range listeners {
		listeners[i] = s.Subscribe()
	}
	if s.ListenerCount() != 5 {
		t.Errorf("ListenerCount = %d, want 5", s.ListenerCount())
	}

	for i, l := range listeners {
		select {
		case <-l.C:
		case <-time.After(time.Second):
			t.Errorf("listener %d timed out", i)
		}
	}

	for _, l := range listeners {
		s.Unsubscribe(l)
	}
	if s.ListenerCount() != 0 {
		t.Errorf("ListenerCount after unsubscribe = %d, want 0", s.ListenerCount())
	}
}

func TestUnsubscribeClosesDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(0)
	s := r.Create(ctx, melody(10))
	l := s.Subscribe()
	s.Unsubscribe(l)

	select {
	case <-l.Done():
	default:
		t.Error("done channel not closed after unsubscribe")
	}

	// Double unsubscribe must not panic on a closed channel.
	s.Unsubscribe(l)
}

func TestRemoveStopsSessionAndListeners(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(0)
	s := r.Create(ctx, melody(10))
	l := s.Subscribe()

	r.Remove(s.ID)

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener not released when session removed")
	}
	if r.Get(s.ID) != nil {
		t.Error("removed session still in registry")
	}
	if r.Count() != 0 {
		t.Errorf("Count = %d, want 0", r.Count())
	}

	// Removing twice is a no-op.
	r.Remove(s.ID)
}

func TestRegistryEvictsOldestPastLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(2)
	first := r.Create(ctx, melody(10))
	l := first.Subscribe()
	second := r.Create(ctx, melody(10))
	third := r.Create(ctx, melody(10))

	if r.Count() != 2 {
		t.Fatalf("Count = %d, want the limit of 2", r.Count())
	}
	if r.Get(first.ID) != nil {
		t.Error("oldest session must be evicted when the limit is exceeded")
	}
	if r.Get(second.ID) == nil || r.Get(third.ID) == nil {
		t.Error("newer sessions must survive eviction")
	}
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("eviction must release the session's listeners")
	}
}

func TestSessionDuration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(0)
	s := r.Create(ctx, melody(100))
	// 100 frames minus the 2*25-frame fade window leaves 75 frames of loop.
	if got := s.Duration(); got != 75*audio.FrameDuration {
		t.Errorf("Duration = %v, want %v", got, 75*audio.FrameDuration)
	}
}

func TestSlowListenerDoesNotStallPlayback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(0)
	s := r.Create(ctx, melody(10))
	slow := s.Subscribe() // never drained
	fast := s.Subscribe()
	defer s.Unsubscribe(slow)
	defer s.Unsubscribe(fast)

	// The fast listener keeps receiving even though the slow one is stuck.
	for i := 0; i < 3; i++ {
		select {
		case <-fast.C:
		case <-time.After(time.Second):
			t.Fatal("fast listener starved by slow listener")
		}
	}
}
