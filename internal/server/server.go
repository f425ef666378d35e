// Package server wires the generation, pinning, and chain lookups into the
// HTTP API.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meloseed/meloseed/internal/audio"
	"github.com/meloseed/meloseed/internal/chain"
	"github.com/meloseed/meloseed/internal/config"
	"github.com/meloseed/meloseed/internal/cover"
	"github.com/meloseed/meloseed/internal/ipfs"
	"github.com/meloseed/meloseed/internal/musicgen"
	"github.com/meloseed/meloseed/internal/nft"
	"github.com/meloseed/meloseed/internal/ollama"
	"github.com/meloseed/meloseed/internal/preview"
	"github.com/meloseed/meloseed/internal/transcode"
)

// Server holds the pipeline components behind the HTTP API.
type Server struct {
	baseCtx    context.Context // outlives requests; preview sessions run on it
	cfg        config.Config
	generator  *musicgen.Generator
	transcoder *transcode.Transcoder
	pinner     *ipfs.Pinner
	covers     *cover.Generator
	scanner    chain.Scanner
	resolver   *chain.Resolver
	tracker    *chain.LookupTracker
	registry   *preview.Registry
	suggester  *ollama.Suggester
}

// New assembles a server. scanner, resolver, and suggester may be nil; the
// matching endpoints then report the capability as unavailable.
func New(ctx context.Context, cfg config.Config, generator *musicgen.Generator, transcoder *transcode.Transcoder,
	pinner *ipfs.Pinner, covers *cover.Generator, scanner chain.Scanner,
	resolver *chain.Resolver, registry *preview.Registry, suggester *ollama.Suggester) *Server {
	return &Server{
		baseCtx:    ctx,
		cfg:        cfg,
		generator:  generator,
		transcoder: transcoder,
		pinner:     pinner,
		covers:     covers,
		scanner:    scanner,
		resolver:   resolver,
		tracker:    chain.NewLookupTracker(),
		registry:   registry,
		suggester:  suggester,
	}
}

// Routes builds the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/generate-cover", s.handleGenerateCover)
	mux.HandleFunc("POST /api/ipfs/upload", s.handleUpload)
	mux.HandleFunc("POST /api/mint/prepare", s.handleMintPrepare)
	mux.HandleFunc("GET /api/collection", s.handleCollection)
	mux.HandleFunc("GET /api/token/{id}", s.handleToken)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.Handle("/preview/stream", preview.NewStreamHandler(s.registry, s.cfg.FFmpegPath))
	mux.Handle("/preview/offer", preview.NewOfferHandler(s.registry))
	mux.HandleFunc("DELETE /api/preview/{id}", s.handlePreviewStop)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// handleGenerate produces a melody for a seed: generate, compress, loop a
// preview session, and hand back the base64 payload.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		Style  string `json:"style"`
		Seed   *int64 `json:"seed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Seed == nil {
		writeError(w, http.StatusBadRequest, "Seed is required")
		return
	}
	if *req.Seed < 0 {
		writeError(w, http.StatusBadRequest, "Seed must be a non-negative integer")
		return
	}

	prompt := req.Prompt
	if prompt == "" && req.Style != "" {
		prompt = musicgen.StylePrompt(req.Style)
	}

	log.Printf("generating melody for seed %d", *req.Seed)

	raw, provider := s.generator.Generate(r.Context(), prompt, *req.Seed, s.cfg.GenerateDuration)
	compressed := s.transcoder.Transcode(raw, s.cfg.TrimSeconds)

	resp := map[string]any{
		"seed":        *req.Seed,
		"audioBase64": base64.StdEncoding.EncodeToString(compressed),
		"mimeType":    "audio/mp3",
		"provider":    provider,
		"fitsInline":  transcode.FitsInlineBudget(compressed, s.cfg.MaxInlineKB),
	}

	// A preview session is best-effort; generation succeeds without one.
	if samples, err := audio.DecodeBytes(s.cfg.FFmpegPath, compressed); err != nil {
		log.Printf("preview decode failed: %v", err)
	} else {
		session := s.registry.Create(s.baseCtx, samples)
		resp["previewSession"] = session.ID
		resp["previewUrl"] = "/preview/stream?session=" + session.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGenerateCover returns artwork for the melody. Never a hard failure:
// the placeholder always satisfies the request.
func (s *Server) handleGenerateCover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	// An empty or malformed body means the default prompt.
	_ = json.NewDecoder(r.Body).Decode(&req)

	writeJSON(w, http.StatusOK, s.covers.Generate(r.Context(), req.Prompt))
}

// handleUpload pins a multipart file to IPFS.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read file: "+err.Error())
		return
	}

	result, err := s.pinner.Pin(r.Context(), payload, header.Filename)
	if err != nil {
		if errors.Is(err, ipfs.ErrMissingCredential) {
			writeError(w, http.StatusInternalServerError, "Server configuration error: PINATA_JWT not set")
			return
		}
		var upstream *ipfs.UpstreamError
		if errors.As(err, &upstream) {
			writeError(w, upstream.StatusCode, "Pinata upload failed: "+upstream.Message)
			return
		}
		writeError(w, http.StatusBadGateway, "Pinata upload failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ipfshash":  result.IpfsHash,
		"pinSize":   result.PinSize,
		"timestamp": result.Timestamp,
	})
}

// handleMintPrepare pins the melody's assets and builds mint calldata. Pins
// run in order (audio, then metadata); the first failure stops the flow so
// no metadata ever points at unpinned content.
func (s *Server) handleMintPrepare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account     string `json:"account"`
		Seed        *int64 `json:"seed"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Style       string `json:"style"`
		AudioBase64 string `json:"audioBase64"`
		ImageBase64 string `json:"imageBase64"`
		ImageURL    string `json:"imageUrl"`
		Inline      bool   `json:"inline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Account) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	if req.Seed == nil {
		writeError(w, http.StatusBadRequest, "Seed is required")
		return
	}
	if *req.Seed < 0 {
		writeError(w, http.StatusBadRequest, "Seed must be a non-negative integer")
		return
	}
	audioBytes, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil || len(audioBytes) == 0 {
		writeError(w, http.StatusBadRequest, "audioBase64 missing or malformed")
		return
	}

	account := common.HexToAddress(req.Account)
	seed := *req.Seed

	if req.Inline {
		if !transcode.FitsInlineBudget(audioBytes, s.cfg.MaxInlineKB) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("audio exceeds the %dKB inline budget", s.cfg.MaxInlineKB))
			return
		}
		calldata, err := chain.PackInlineMint(big.NewInt(seed), req.AudioBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"inline":   true,
			"contract": s.cfg.ContractAddress,
			"calldata": "0x" + common.Bytes2Hex(calldata),
		})
		return
	}

	audioPin, err := s.pinner.Pin(r.Context(), audioBytes, fmt.Sprintf("melody-%d.mp3", seed))
	if err != nil {
		writeError(w, http.StatusBadGateway, "pin audio: "+err.Error())
		return
	}

	// Image pin runs after the audio pin and before the metadata pin. An
	// already-hosted image (or the placeholder) skips the round trip.
	imageURI := req.ImageURL
	if req.ImageBase64 != "" {
		imageBytes, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "imageBase64 malformed")
			return
		}
		imagePin, err := s.pinner.Pin(r.Context(), imageBytes, fmt.Sprintf("cover-%d.png", seed))
		if err != nil {
			writeError(w, http.StatusBadGateway, "pin image: "+err.Error())
			return
		}
		imageURI = imagePin.URI()
	}
	if imageURI == "" {
		imageURI = s.cfg.CoverPlaceholder
	}

	name := req.Name
	if name == "" {
		name = s.suggester.SuggestTitle(r.Context(), req.Style, uint64(seed))
	}
	description := req.Description
	if description == "" {
		description = s.suggester.SuggestDescription(r.Context(), req.Style, name)
	}

	meta := nft.Assemble(name, description, imageURI, audioPin.URI(), uint64(seed))
	metaPin, err := s.pinner.PinJSON(r.Context(), meta, fmt.Sprintf("metadata-%d.json", seed))
	if err != nil {
		writeError(w, http.StatusBadGateway, "pin metadata: "+err.Error())
		return
	}

	calldata, err := chain.PackMint(account, big.NewInt(1), metaPin.URI(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"inline":      false,
		"contract":    s.cfg.ContractAddress,
		"calldata":    "0x" + common.Bytes2Hex(calldata),
		"tokenUri":    metaPin.URI(),
		"audioUri":    audioPin.URI(),
		"imageUri":    imageURI,
		"name":        name,
		"description": description,
	})
}

// handleCollection lists the token ids an owner holds.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "chain access not configured")
		return
	}

	owner := r.URL.Query().Get("owner")
	if !common.IsHexAddress(owner) {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	ids, err := s.scanner.Scan(r.Context(), common.HexToAddress(owner))
	if err != nil {
		writeError(w, http.StatusBadGateway, "collection scan failed: "+err.Error())
		return
	}

	tokenIDs := make([]string, len(ids))
	for i, id := range ids {
		tokenIDs[i] = id.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":    common.HexToAddress(owner).Hex(),
		"tokenIds": tokenIDs,
		"strategy": s.cfg.ScanStrategy,
	})
}

// handleToken resolves one token's metadata. The attempt query parameter
// selects the timeout tier; timeouts come back with a retry hint.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "chain access not configured")
		return
	}

	tokenID, ok := new(big.Int).SetString(r.PathValue("id"), 10)
	if !ok || tokenID.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	attempt := 0
	if raw := r.URL.Query().Get("attempt"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid attempt")
			return
		}
		attempt = parsed
	}

	s.tracker.Start(tokenID, attempt)
	meta, err := s.resolver.Resolve(r.Context(), tokenID, attempt)
	s.tracker.Complete(tokenID, attempt, meta, err)

	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, chain.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]any{
			"error":   err.Error(),
			"attempt": attempt,
			"retry":   chain.RetryHint(err, attempt),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tokenId":  tokenID.String(),
		"attempt":  attempt,
		"state":    chain.LookupResolved.String(),
		"metadata": meta,
	})
}

// handlePreviewStop tears down a looping preview session once the client is
// done auditioning.
func (s *Server) handlePreviewStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.registry.Get(id) == nil {
		writeError(w, http.StatusNotFound, "unknown preview session")
		return
	}
	s.registry.Remove(id)
	writeJSON(w, http.StatusOK, map[string]any{"session": id, "stopped": true})
}

// handleStyles lists the built-in style presets.
func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	styles := musicgen.Styles()
	prompts := make(map[string]string, len(styles))
	for _, style := range styles {
		prompts[style] = musicgen.StylePrompt(style)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"styles":  styles,
		"prompts": prompts,
		"prefix":  musicgen.StylePrefix,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"contract":        s.cfg.ContractAddress,
		"scanStrategy":    s.cfg.ScanStrategy,
		"chainConfigured": s.scanner != nil,
		"previewSessions": s.registry.Count(),
		"gateway":         strings.TrimSuffix(s.cfg.GatewayURL, "/"),
	})
}
