package cover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ReplicateProvider generates cover art through Replicate's prediction API.
type ReplicateProvider struct {
	apiURL string
	token  string
	model  string
	http   *http.Client
}

// NewReplicateProvider creates an image provider. Returns nil when the token
// or model is not configured, which the Generator treats as "placeholder
// only".
func NewReplicateProvider(token, model string) *ReplicateProvider {
	if token == "" || model == "" {
		return nil
	}
	return &ReplicateProvider{
		apiURL: "https://api.replicate.com",
		token:  token,
		model:  model,
		http:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *ReplicateProvider) Name() string { return "replicate" }

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
}

// GenerateImage starts a prediction and polls until it yields an image URL.
func (p *ReplicateProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"version": p.model,
		"input":   map[string]any{"prompt": prompt},
	})
	if err != nil {
		return "", fmt.Errorf("marshal prediction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("start prediction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("prediction status %d: %s", resp.StatusCode, msg)
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return "", fmt.Errorf("decode prediction: %w", err)
	}

	return p.poll(ctx, pred.ID)
}

func (p *ReplicateProvider) poll(ctx context.Context, id string) (string, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, "GET", p.apiURL+"/v1/predictions/"+id, nil)
		if err != nil {
			return "", fmt.Errorf("create poll request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+p.token)

		resp, err := p.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("poll prediction: %w", err)
		}
		var pred prediction
		err = json.NewDecoder(resp.Body).Decode(&pred)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("decode poll response: %w", err)
		}

		switch pred.Status {
		case "succeeded":
			return extractURL(pred.Output)
		case "failed", "canceled":
			return "", fmt.Errorf("prediction %s: %v", pred.Status, pred.Error)
		}
	}
}

// extractURL handles the two output shapes Replicate image models use: a
// bare URL string or a list of URLs.
func extractURL(output any) (string, error) {
	switch v := output.(type) {
	case string:
		return v, nil
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("unexpected prediction output shape %T", output)
}
