// Package ipfs pins payloads to IPFS through Pinata and rewrites
// content-addressed URIs into fetchable gateway URLs.
package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrMissingCredential means no Pinata JWT is configured. This is a
// configuration error: it is surfaced immediately and never retried.
var ErrMissingCredential = errors.New("missing Pinata credential: PINATA_JWT not set")

// UpstreamError carries the pinning service's own status code and message so
// callers can relay them verbatim.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Pinata returned %d: %s", e.StatusCode, e.Message)
}

// PinResult is the pinning service's receipt for one stored payload.
type PinResult struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int    `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// URI returns the content-addressed ipfs:// form of the pinned object.
func (r PinResult) URI() string {
	return "ipfs://" + r.IpfsHash
}

// Pinner uploads payloads to Pinata's pinFileToIPFS endpoint. Identical
// payloads hash to identical URIs upstream; the pinner itself does no
// caching or deduplication and always performs the round trip.
type Pinner struct {
	endpoint string
	jwt      string
	http     *http.Client
}

// NewPinner creates a Pinata-backed pinner. An empty jwt makes every Pin
// call fail with ErrMissingCredential.
func NewPinner(endpoint, jwt string) *Pinner {
	return &Pinner{
		endpoint: endpoint,
		jwt:      jwt,
		http:     &http.Client{Timeout: 2 * time.Minute},
	}
}

// Pin uploads one binary payload and returns its receipt. Upstream failures
// come back as *UpstreamError; retrying is the caller's decision.
func (p *Pinner) Pin(ctx context.Context, payload []byte, filename string) (PinResult, error) {
	if p.jwt == "" {
		return PinResult{}, ErrMissingCredential
	}

	// Stream the multipart body so large audio payloads never double up
	// in memory.
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("create form file: %w", err))
			return
		}
		if _, err := part.Write(payload); err != nil {
			pw.CloseWithError(fmt.Errorf("write payload: %w", err))
			return
		}
		if err := writer.Close(); err != nil {
			pw.CloseWithError(fmt.Errorf("close multipart writer: %w", err))
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/pinning/pinFileToIPFS", pr)
	if err != nil {
		return PinResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.jwt)

	resp, err := p.http.Do(req)
	if err != nil {
		return PinResult{}, fmt.Errorf("upload to Pinata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PinResult{}, fmt.Errorf("read Pinata response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return PinResult{}, &UpstreamError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var result PinResult
	if err := json.Unmarshal(body, &result); err != nil {
		return PinResult{}, fmt.Errorf("parse Pinata response: %w", err)
	}
	if result.IpfsHash == "" {
		return PinResult{}, fmt.Errorf("Pinata response missing IpfsHash")
	}
	return result, nil
}

// PinJSON serializes v and pins it as a JSON document.
func (p *Pinner) PinJSON(ctx context.Context, v any, filename string) (PinResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return PinResult{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return p.Pin(ctx, data, filename)
}
