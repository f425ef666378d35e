package musicgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- Fallback behavior ---

func TestGenerateNoTokenUsesMock(t *testing.T) {
	dir := t.TempDir()
	mockPath := filepath.Join(dir, "music_long.mp3")
	want := []byte("fake mp3 payload")
	if err := os.WriteFile(mockPath, want, 0o644); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator("", "meta/musicgen:abc", mockPath)
	audio, provider := g.Generate(context.Background(), "anything", 42, 1)

	if provider != ProviderMock {
		t.Errorf("provider = %q, want %q", provider, ProviderMock)
	}
	if string(audio) != string(want) {
		t.Errorf("audio = %q, want mock file contents", audio)
	}
}

func TestGenerateMockUnreadableUsesSilentBuffer(t *testing.T) {
	g := NewGenerator("", "meta/musicgen:abc", "/nonexistent/music_long.mp3")
	audio, provider := g.Generate(context.Background(), "", 7, 1)

	if provider != ProviderMock {
		t.Errorf("provider = %q, want %q", provider, ProviderMock)
	}
	if len(audio) == 0 {
		t.Fatal("silent fallback returned empty payload")
	}
	for i, b := range audio {
		if b != 0 {
			t.Fatalf("silent buffer has non-zero byte at %d", i)
		}
	}
}

func TestGenerateAlwaysNonEmpty(t *testing.T) {
	// Fallback correctness: for all seeds, generation without credentials
	// yields a non-empty payload.
	g := NewGenerator("", "meta/musicgen:abc", "/nonexistent.mp3")
	for _, seed := range []int64{0, 1, 42, 1 << 40} {
		audio, _ := g.Generate(context.Background(), "", seed, 1)
		if len(audio) == 0 {
			t.Errorf("seed %d: empty audio payload", seed)
		}
	}
}

// --- Remote path ---

func TestGenerateRemoteSuccess(t *testing.T) {
	audioPayload := []byte("remote audio bytes")
	var gotPrompt string
	var gotVersion string
	var gotSeed int64

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/predictions", func(w http.ResponseWriter, r *http.Request) {
		var req predictionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode prediction request: %v", err)
		}
		gotPrompt = req.Input.Prompt
		gotVersion = req.Version
		gotSeed = req.Input.Seed
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "p1", "status": "starting"})
	})
	mux.HandleFunc("/v1/predictions/p1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "p1", "status": "succeeded",
			"output": "http://" + r.Host + "/asset.mp3",
		})
	})
	mux.HandleFunc("/asset.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write(audioPayload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGenerator("tok", "meta/musicgen:v123", "/nonexistent.mp3")
	g.apiURL = srv.URL
	g.interval = time.Millisecond

	audio, provider := g.Generate(context.Background(), "dreamy piano", 42, 1)

	if provider != ProviderReplicate {
		t.Errorf("provider = %q, want %q", provider, ProviderReplicate)
	}
	if string(audio) != string(audioPayload) {
		t.Errorf("audio = %q, want remote payload", audio)
	}
	if gotSeed != 42 {
		t.Errorf("seed passed to model = %d, want 42", gotSeed)
	}
	if gotVersion != "v123" {
		t.Errorf("version = %q, want the hash after the colon", gotVersion)
	}
	if gotPrompt != StylePrefix+". dreamy piano" {
		t.Errorf("prompt = %q, want style prefix + user prompt", gotPrompt)
	}
}

func TestGenerateRemoteFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	mockPath := filepath.Join(dir, "music_long.mp3")
	if err := os.WriteFile(mockPath, []byte("mock"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator("tok", "meta/musicgen:v123", mockPath)
	g.apiURL = srv.URL
	g.interval = time.Millisecond

	audio, provider := g.Generate(context.Background(), "", 1, 1)
	if provider != ProviderMock {
		t.Errorf("provider = %q, want mock fallback after remote failure", provider)
	}
	if string(audio) != "mock" {
		t.Errorf("audio = %q, want mock contents", audio)
	}
}

func TestGenerateRemotePredictionFailedFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/predictions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "p2", "status": "starting"})
	})
	mux.HandleFunc("/v1/predictions/p2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "p2", "status": "failed", "error": "NSFW prompt"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGenerator("tok", "meta/musicgen:v123", "/nonexistent.mp3")
	g.apiURL = srv.URL
	g.interval = time.Millisecond

	audio, provider := g.Generate(context.Background(), "", 1, 1)
	if provider != ProviderMock {
		t.Errorf("provider = %q, want mock after failed prediction", provider)
	}
	if len(audio) == 0 {
		t.Error("expected non-empty silent buffer")
	}
}

// --- Output URL extraction ---

func TestExtractOutputURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"string output", `"https://x/y.mp3"`, "https://x/y.mp3", false},
		{"array output", `["https://x/a.mp3","https://x/b.mp3"]`, "https://x/a.mp3", false},
		{"empty", ``, "", true},
		{"null", `null`, "", true},
		{"empty array", `[]`, "", true},
		{"object", `{"weird":true}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractOutputURL(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Style prompts ---

func TestStylesAllHavePrompts(t *testing.T) {
	for _, s := range Styles() {
		if StylePrompt(s) == s {
			t.Errorf("style %q has no prompt mapping", s)
		}
	}
}

func TestStylePromptPassthrough(t *testing.T) {
	free := "my own weird prompt"
	if got := StylePrompt(free); got != free {
		t.Errorf("free-text prompt rewritten to %q", got)
	}
}
