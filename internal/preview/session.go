// Package preview lets a user audition a generated melody before pinning or
// minting it. Each generation gets a session that loops the decoded melody
// in real time; listeners attach over HTTP (chunked MP3) or WebRTC (Opus).
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meloseed/meloseed/internal/audio"
)

// loopFadeFrames is the blend zone applied at the loop point, 500ms.
const loopFadeFrames = 25

// Listener receives 20ms PCM frames from a session.
type Listener struct {
	C    chan []int16
	done chan struct{}
}

// Done is closed when the listener is detached.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Session loops one melody's PCM and fans frames out to its listeners.
// Slow listeners get frames dropped rather than stalling playback.
type Session struct {
	ID      string
	samples []int16

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	cancel    context.CancelFunc
}

func newSession(samples []int16) *Session {
	return &Session{
		ID:        uuid.NewString(),
		samples:   audio.LoopFade(samples, loopFadeFrames),
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe attaches a listener to the session.
func (s *Session) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
	return l
}

// Unsubscribe detaches a listener and signals it to stop.
func (s *Session) Unsubscribe(l *Listener) {
	s.mu.Lock()
	_, ok := s.listeners[l]
	delete(s.listeners, l)
	s.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of attached listeners.
func (s *Session) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Duration returns the length of one loop pass.
func (s *Session) Duration() time.Duration {
	frames := len(s.samples) / audio.FrameSamples
	return time.Duration(frames) * audio.FrameDuration
}

// run emits frames at real-time rate, wrapping at the loop point, until the
// context is cancelled.
func (s *Session) run(ctx context.Context) {
	totalFrames := len(s.samples) / audio.FrameSamples
	if totalFrames == 0 {
		return
	}

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		chunk := s.samples[frame*audio.FrameSamples : (frame+1)*audio.FrameSamples]
		s.mu.RLock()
		for l := range s.listeners {
			select {
			case l.C <- chunk:
			default:
				// listener too slow, drop frame to keep playback moving
			}
		}
		s.mu.RUnlock()

		frame = (frame + 1) % totalFrames
	}
}

// stop cancels playback and detaches every listener.
func (s *Session) stop() {
	s.cancel()
	s.mu.Lock()
	listeners := make([]*Listener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listeners = make(map[*Listener]struct{})
	s.mu.Unlock()
	for _, l := range listeners {
		close(l.done)
	}
}

// Registry tracks live preview sessions by id. A non-zero limit caps the
// number of concurrent sessions; creating past the cap stops the oldest.
type Registry struct {
	mu       sync.Mutex
	limit    int
	order    []string
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry. A limit of zero means no
// cap.
func NewRegistry(limit int) *Registry {
	return &Registry{limit: limit, sessions: make(map[string]*Session)}
}

// Create starts a looping session for decoded PCM and returns it. The
// session plays until Remove is called, ctx is cancelled, or newer sessions
// push it past the registry limit.
func (r *Registry) Create(ctx context.Context, samples []int16) *Session {
	s := newSession(samples)
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	var evicted *Session
	if r.limit > 0 && len(r.order) > r.limit {
		oldest := r.order[0]
		r.order = r.order[1:]
		evicted = r.sessions[oldest]
		delete(r.sessions, oldest)
	}
	r.mu.Unlock()

	if evicted != nil {
		evicted.stop()
	}

	go s.run(runCtx)
	return s
}

// Get returns a session by id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Remove stops a session and detaches its listeners.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	if ok {
		for i, sid := range r.order {
			if sid == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if ok {
		s.stop()
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
