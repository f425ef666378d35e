package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/meloseed/meloseed/internal/chain"
	"github.com/meloseed/meloseed/internal/config"
	"github.com/meloseed/meloseed/internal/cover"
	"github.com/meloseed/meloseed/internal/ipfs"
	"github.com/meloseed/meloseed/internal/musicgen"
	"github.com/meloseed/meloseed/internal/ollama"
	"github.com/meloseed/meloseed/internal/preview"
	"github.com/meloseed/meloseed/internal/server"
	"github.com/meloseed/meloseed/internal/transcode"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("meloseed starting up...")

	generator := musicgen.NewGenerator(cfg.ReplicateAPIToken, cfg.ReplicateModel, cfg.MockAudioPath)
	if cfg.ReplicateAPIToken == "" {
		log.Println("REPLICATE_API_TOKEN not set, serving mock audio")
	}

	transcoder := transcode.New(cfg.FFmpegPath, cfg.BitrateKbps)
	pinner := ipfs.NewPinner(cfg.PinataEndpoint, cfg.PinataJWT)
	if cfg.PinataJWT == "" {
		log.Println("PINATA_JWT not set, pinning disabled")
	}

	var coverProvider cover.Provider
	if p := cover.NewReplicateProvider(cfg.ReplicateAPIToken, cfg.CoverModel); p != nil {
		coverProvider = p
	}
	covers := cover.NewGenerator(coverProvider, cfg.CoverPlaceholder)

	// Chain access is optional; without an RPC endpoint the collection and
	// token endpoints report unavailable.
	var scanner chain.Scanner
	var resolver *chain.Resolver
	if cfg.RPCURL != "" {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			log.Fatalf("dial rpc %s: %v", cfg.RPCURL, err)
		}
		contract := common.HexToAddress(cfg.ContractAddress)

		switch cfg.ScanStrategy {
		case "logs":
			scanner = chain.NewLogScanner(client, contract, cfg.ScanBlockWindow, cfg.ScanVerify)
		default:
			scanner = chain.NewBatchScanner(client, contract, cfg.ScanRange)
		}
		resolver = chain.NewResolver(client, contract, cfg.GatewayURL,
			cfg.ResolveShortTimeout, cfg.ResolveLongTimeout)
		log.Printf("chain connected: %s (contract %s, scan strategy %s)",
			cfg.RPCURL, contract.Hex(), cfg.ScanStrategy)
	}

	// Ollama LLM (optional, fills in mint titles and descriptions)
	var suggester *ollama.Suggester
	if cfg.OllamaURL != "" {
		ollamaClient := ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel)
		if ollamaClient.Available(ctx) {
			suggester = ollama.NewSuggester(ollamaClient)
			log.Printf("Ollama connected: %s (LLM naming enabled)", cfg.OllamaModel)
		} else {
			log.Println("Ollama not available, using deterministic names")
		}
	}

	registry := preview.NewRegistry(cfg.PreviewSessions)

	srv := server.New(ctx, cfg, generator, transcoder, pinner, covers,
		scanner, resolver, registry, suggester)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.Routes()}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		httpServer.Close()
	}()

	log.Printf("meloseed live on %s", addr)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
