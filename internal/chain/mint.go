package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The mint transaction itself is signed and sent by the holder's wallet.
// This package only produces calldata; the pipeline's obligation ends at a
// valid, already-pinned metadata URI.

// PackMint builds calldata for mint(account, amount, tokenURI, data).
func PackMint(account common.Address, amount *big.Int, tokenURI string, data []byte) ([]byte, error) {
	if tokenURI == "" {
		return nil, fmt.Errorf("mint requires a pinned metadata URI")
	}
	input, err := collectionABI.Pack("mint", account, amount, tokenURI, data)
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}
	return input, nil
}

// PackBurn builds calldata for burn(account, id, value).
func PackBurn(account common.Address, id, value *big.Int) ([]byte, error) {
	input, err := collectionABI.Pack("burn", account, id, value)
	if err != nil {
		return nil, fmt.Errorf("pack burn: %w", err)
	}
	return input, nil
}

// PackInlineMint builds calldata for the legacy mint(seed, audioBase64)
// variant that stores the audio payload on-chain. The seed must round-trip
// through uint256; callers enforce the base64 size ceiling before packing.
func PackInlineMint(seed *big.Int, audioBase64 string) ([]byte, error) {
	if seed.Sign() < 0 {
		return nil, fmt.Errorf("seed must be non-negative")
	}
	if seed.BitLen() > 256 {
		return nil, fmt.Errorf("seed exceeds uint256")
	}
	input, err := legacyABI.Pack("mint", seed, audioBase64)
	if err != nil {
		return nil, fmt.Errorf("pack inline mint: %w", err)
	}
	return input, nil
}
