package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/meloseed/meloseed/internal/ipfs"
	"github.com/meloseed/meloseed/internal/nft"
)

// EscalationThreshold is the attempt count at which the resolver switches
// from the short timeout ("likely doesn't exist or network is fine") to the
// long one ("network is probably just slow").
const EscalationThreshold = 2

// ErrTimeout marks a metadata-pointer read that exceeded its attempt's
// timeout. Distinguished from other failures so callers can offer a
// "retry with a longer timeout" hint.
var ErrTimeout = errors.New("request timed out: the token may not exist or the network is congested")

// RetryHint reports whether the caller should suggest retrying the lookup:
// only timeouts benefit from escalation, and only while attempts remain
// below the threshold.
func RetryHint(err error, attempt int) bool {
	return errors.Is(err, ErrTimeout) && attempt < EscalationThreshold
}

// Resolver fetches a token's metadata pointer, dereferences it, and
// normalizes nested asset URIs to fetchable gateway URLs.
type Resolver struct {
	backend      Backend
	contract     common.Address
	gateway      string
	shortTimeout time.Duration
	longTimeout  time.Duration
	http         *http.Client
}

// NewResolver creates a resolver with per-attempt timeout escalation.
func NewResolver(backend Backend, contract common.Address, gateway string, short, long time.Duration) *Resolver {
	return &Resolver{
		backend:      backend,
		contract:     contract,
		gateway:      gateway,
		shortTimeout: short,
		longTimeout:  long,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

// Resolve looks up one token's metadata. The attempt number selects the
// timeout: attempts 0 and 1 get the short one, later attempts the long one.
// The resolver never auto-retries; the caller advances the attempt counter
// by re-issuing the lookup.
func (r *Resolver) Resolve(ctx context.Context, tokenID *big.Int, attempt int) (nft.Metadata, error) {
	timeout := r.shortTimeout
	if attempt >= EscalationThreshold {
		timeout = r.longTimeout
	}

	pointer, err := r.readURI(ctx, tokenID, timeout)
	if err != nil {
		return nft.Metadata{}, err
	}

	return r.dereference(ctx, pointer)
}

type uriResult struct {
	uri string
	err error
}

// readURI races the uri(id) call against the attempt's timeout. Losing the
// race abandons the call but does not cancel it; the design accepts wasted
// work on timeout in exchange for responsiveness.
func (r *Resolver) readURI(ctx context.Context, tokenID *big.Int, timeout time.Duration) (string, error) {
	resultCh := make(chan uriResult, 1)

	callCtx := context.WithoutCancel(ctx)
	go func() {
		uri, err := r.callURI(callCtx, tokenID)
		resultCh <- uriResult{uri: uri, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("read token %s uri: %w", tokenID, res.err)
		}
		return res.uri, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("token %s: %w", tokenID, ErrTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Resolver) callURI(ctx context.Context, tokenID *big.Int) (string, error) {
	input, err := collectionABI.Pack("uri", tokenID)
	if err != nil {
		return "", fmt.Errorf("pack uri: %w", err)
	}
	output, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: input}, nil)
	if err != nil {
		return "", err
	}
	results, err := collectionABI.Unpack("uri", output)
	if err != nil {
		return "", fmt.Errorf("unpack uri: %w", err)
	}
	return results[0].(string), nil
}

// dereference turns the metadata pointer into a normalized document.
// Content-addressed and HTTP pointers are fetched through the gateway;
// data: pointers from the legacy on-chain-inlined contract decode locally.
func (r *Resolver) dereference(ctx context.Context, pointer string) (nft.Metadata, error) {
	switch {
	case strings.HasPrefix(pointer, "ipfs://"), strings.HasPrefix(pointer, "http://"), strings.HasPrefix(pointer, "https://"):
		return r.fetchDocument(ctx, ipfs.ResolveGatewayURL(pointer, r.gateway))
	case strings.HasPrefix(pointer, "data:"):
		return r.decodeInline(pointer)
	default:
		return nft.Metadata{}, fmt.Errorf("unsupported metadata pointer %q", truncate(pointer, 64))
	}
}

func (r *Resolver) fetchDocument(ctx context.Context, url string) (nft.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nft.Metadata{}, fmt.Errorf("create metadata request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nft.Metadata{}, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nft.Metadata{}, fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nft.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}

	return r.parseDocument(body)
}

// decodeInline handles the legacy variant where the whole document rides in
// a base64 data URI and needs no network fetch.
func (r *Resolver) decodeInline(pointer string) (nft.Metadata, error) {
	idx := strings.Index(pointer, ",")
	if idx < 0 {
		return nft.Metadata{}, fmt.Errorf("malformed data URI")
	}
	raw, err := base64.StdEncoding.DecodeString(pointer[idx+1:])
	if err != nil {
		return nft.Metadata{}, fmt.Errorf("decode inline metadata: %w", err)
	}
	return r.parseDocument(raw)
}

func (r *Resolver) parseDocument(raw []byte) (nft.Metadata, error) {
	var meta nft.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nft.Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}

	// Nested asset URIs must be directly fetchable before a media element
	// sees them.
	meta.Image = ipfs.ResolveGatewayURL(meta.Image, r.gateway)
	meta.AnimationURL = ipfs.ResolveGatewayURL(meta.AnimationURL, r.gateway)
	return meta, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
