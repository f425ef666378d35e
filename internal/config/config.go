package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Music generation (Replicate MusicGen)
	ReplicateAPIToken string
	ReplicateModel    string // model version pinned for reproducible output
	MockAudioPath     string // local long-form asset used when no token or the API fails
	GenerateDuration  int    // seconds of audio requested from the model

	// Transcoding
	FFmpegPath  string
	BitrateKbps int // mp3 output bitrate
	TrimSeconds int // duration cap measured from the start
	MaxInlineKB int // base64 payload ceiling for on-chain inline storage

	// IPFS pinning (Pinata)
	PinataJWT      string
	PinataEndpoint string
	GatewayURL     string // gateway prefix substituted for ipfs://

	// Chain
	RPCURL          string
	ContractAddress string
	ScanStrategy    string // "batch" or "logs"
	ScanRange       int    // batch probe candidate range [0,N)
	ScanBlockWindow int64  // log scan recent-block window (RPC range cap)
	ScanVerify      bool   // re-check balances for log scan candidates

	// Token resolution timeouts
	ResolveShortTimeout time.Duration // attempts 0 and 1
	ResolveLongTimeout  time.Duration // attempt 2 and beyond

	// Cover art
	CoverModel       string // Replicate image model; empty means placeholder only
	CoverPlaceholder string

	// Naming assistance (optional)
	OllamaURL   string
	OllamaModel string

	// Server
	Port            int
	PreviewSessions int // concurrent looping previews kept alive; the oldest is evicted past this
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		ReplicateAPIToken: envStr("REPLICATE_API_TOKEN", ""),
		ReplicateModel:    envStr("MELOSEED_MUSICGEN_MODEL", "meta/musicgen:b05b1dff1d8c6dc63d14b0cdb42135378dcb87f6373b0d3d341ede46e59e2b38"),
		MockAudioPath:     envStr("MELOSEED_MOCK_AUDIO", "assets/music_long.mp3"),
		GenerateDuration:  envInt("MELOSEED_GENERATE_DURATION", 1),

		FFmpegPath:  envStr("MELOSEED_FFMPEG", "ffmpeg"),
		BitrateKbps: envInt("MELOSEED_BITRATE_KBPS", 32),
		TrimSeconds: envInt("MELOSEED_TRIM_SECONDS", 20),
		MaxInlineKB: envInt("MELOSEED_MAX_INLINE_KB", 90),

		PinataJWT:      envStr("PINATA_JWT", ""),
		PinataEndpoint: envStr("MELOSEED_PINATA_URL", "https://api.pinata.cloud"),
		GatewayURL:     envStr("MELOSEED_IPFS_GATEWAY", "https://ipfs.io/ipfs/"),

		RPCURL:          envStr("MELOSEED_RPC_URL", "https://monad-testnet.drpc.org"),
		ContractAddress: envStr("MELOSEED_CONTRACT", "0xDfF0D0b3a294e22F86A99dD2DdE1d7810ab5Ca00"),
		ScanStrategy:    envStr("MELOSEED_SCAN_STRATEGY", "batch"),
		ScanRange:       envInt("MELOSEED_SCAN_RANGE", 50),
		ScanBlockWindow: int64(envInt("MELOSEED_SCAN_BLOCK_WINDOW", 2000)),
		ScanVerify:      envBool("MELOSEED_SCAN_VERIFY", true),

		ResolveShortTimeout: time.Duration(envInt("MELOSEED_RESOLVE_SHORT_TIMEOUT", 5)) * time.Second,
		ResolveLongTimeout:  time.Duration(envInt("MELOSEED_RESOLVE_LONG_TIMEOUT", 60)) * time.Second,

		CoverModel:       envStr("MELOSEED_COVER_MODEL", ""),
		CoverPlaceholder: envStr("MELOSEED_COVER_PLACEHOLDER", "/test.png"),

		OllamaURL:   envStr("OLLAMA_URL", ""),
		OllamaModel: envStr("OLLAMA_MODEL", "qwen3:8b"),

		Port:            envInt("MELOSEED_PORT", 8080),
		PreviewSessions: envInt("MELOSEED_PREVIEW_SESSIONS", 16),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
