package musicgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// StylePrefix is prepended to every user prompt so all melodies share one
// coherent sonic identity across the collection.
const StylePrefix = "Lo-fi chill, soft piano melody, emotional, catchy hook, rhythmic, high fidelity, 80bpm"

// Providers reported alongside generated audio.
const (
	ProviderReplicate = "replicate"
	ProviderMock      = "mock"
)

// Generator produces raw audio for a prompt and seed. It talks to the
// Replicate prediction API when a token is configured and degrades to the
// local mock asset otherwise. Generate never fails: the worst case is a
// short silent buffer.
type Generator struct {
	apiURL   string
	token    string
	model    string // "owner/name:version"
	mockPath string
	interval time.Duration // prediction poll interval
	http     *http.Client
}

// NewGenerator creates a music generator. An empty token means every request
// uses the local fallback.
func NewGenerator(token, model, mockPath string) *Generator {
	return &Generator{
		apiURL:   "https://api.replicate.com",
		token:    token,
		model:    model,
		mockPath: mockPath,
		interval: time.Second,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type predictionInput struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
	Seed     int64  `json:"seed"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"` // starting, processing, succeeded, failed, canceled
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Generate returns raw audio bytes for the prompt and seed, plus the provider
// that produced them. Remote failures of any kind fall back to the mock asset;
// the mock asset being unreadable falls back again to a silent buffer.
func (g *Generator) Generate(ctx context.Context, prompt string, seed int64, durationSec int) ([]byte, string) {
	if g.token == "" {
		log.Println("No Replicate token configured, using mock audio")
		return g.mockAudio()
	}

	audio, err := g.generateRemote(ctx, prompt, seed, durationSec)
	if err != nil {
		log.Printf("Replicate generation failed, falling back to mock audio: %v", err)
		return g.mockAudio()
	}
	return audio, ProviderReplicate
}

// generateRemote runs one synchronous prediction: create, poll, download.
func (g *Generator) generateRemote(ctx context.Context, prompt string, seed int64, durationSec int) ([]byte, error) {
	fullPrompt := StylePrefix + ". " + prompt

	version := g.model
	if idx := strings.LastIndexByte(version, ':'); idx >= 0 {
		version = version[idx+1:]
	}

	body, err := json.Marshal(predictionRequest{
		Version: version,
		Input: predictionInput{
			Prompt:   fullPrompt,
			Duration: durationSec,
			Seed:     seed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.apiURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+g.token)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit prediction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("prediction rejected (status %d): %s", resp.StatusCode, msg)
	}

	var pred predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	assetURL, err := g.pollUntilDone(ctx, pred.ID)
	if err != nil {
		return nil, err
	}

	return g.download(ctx, assetURL)
}

// pollUntilDone polls the prediction until it succeeds, returning the output
// asset URL.
func (g *Generator) pollUntilDone(ctx context.Context, id string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.interval):
		}

		req, err := http.NewRequestWithContext(ctx, "GET", g.apiURL+"/v1/predictions/"+id, nil)
		if err != nil {
			return "", fmt.Errorf("create poll request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+g.token)

		resp, err := g.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("poll prediction: %w", err)
		}

		var pred predictionResponse
		if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
			resp.Body.Close()
			return "", fmt.Errorf("decode poll response: %w", err)
		}
		resp.Body.Close()

		switch pred.Status {
		case "succeeded":
			return extractOutputURL(pred.Output)
		case "failed", "canceled":
			return "", fmt.Errorf("prediction %s %s: %s", id, pred.Status, pred.Error)
		}
	}
}

// extractOutputURL handles both output shapes the model returns: a bare URL
// string or an array of URLs.
func extractOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("prediction succeeded with no output")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}

	return "", fmt.Errorf("unrecognized prediction output: %s", raw)
}

// download fetches the generated asset.
func (g *Generator) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio asset")
	}
	return data, nil
}
