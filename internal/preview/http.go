package preview

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"

	"github.com/meloseed/meloseed/internal/audio"
)

// StreamHandler serves a session's loop as a chunked MP3 stream. Each
// connection spawns an FFmpeg process to encode PCM -> MP3 in real time.
type StreamHandler struct {
	registry   *Registry
	ffmpegPath string
}

// NewStreamHandler creates an HTTP preview handler.
func NewStreamHandler(registry *Registry, ffmpegPath string) *StreamHandler {
	return &StreamHandler{registry: registry, ffmpegPath: ffmpegPath}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := h.registry.Get(r.URL.Query().Get("session"))
	if session == nil {
		http.Error(w, "unknown preview session", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.ffmpegPath,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "128k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("preview stream: stdin pipe error: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("preview stream: stdout pipe error: %v", err)
		return
	}

	if err := cmd.Start(); err != nil {
		log.Printf("preview stream: ffmpeg start error: %v", err)
		return
	}

	listener := session.Subscribe()
	defer session.Unsubscribe(listener)

	log.Printf("preview listener connected to %s (total: %d)", session.ID, session.ListenerCount())
	defer log.Printf("preview listener disconnected from %s", session.ID)

	// Feed PCM frames to FFmpeg
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.done:
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	// Read MP3 from FFmpeg and write to the response
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("preview stream: ffmpeg read error: %v", err)
			}
			break
		}
	}

	cmd.Wait()
}
