// Package chain discovers owned tokens and resolves token metadata against
// an ERC-1155 collection contract, using bounded heuristics instead of a
// full indexer: the collections this serves are small and low-throughput.
package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
)

// collectionABIJSON is the consumed surface of the MeloSeed ERC-1155
// contract. The contract itself lives elsewhere; this package only packs
// calls against it and decodes its events.
const collectionABIJSON = `[
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
    {"name":"account","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"tokenURI","type":"string"},
    {"name":"data","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"burn","stateMutability":"nonpayable","inputs":[
    {"name":"account","type":"address"},
    {"name":"id","type":"uint256"},
    {"name":"value","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"account","type":"address"},
    {"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOfBatch","stateMutability":"view","inputs":[
    {"name":"accounts","type":"address[]"},
    {"name":"ids","type":"uint256[]"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"uri","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"event","name":"TransferSingle","inputs":[
    {"name":"operator","type":"address","indexed":true},
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"id","type":"uint256","indexed":false},
    {"name":"value","type":"uint256","indexed":false}]},
  {"type":"event","name":"TransferBatch","inputs":[
    {"name":"operator","type":"address","indexed":true},
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"ids","type":"uint256[]","indexed":false},
    {"name":"values","type":"uint256[]","indexed":false}]}
]`

// legacyABIJSON is the first-generation contract that stored the audio
// payload inline on-chain instead of a pinned URI.
const legacyABIJSON = `[
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
    {"name":"seed","type":"uint256"},
    {"name":"_audioBase64","type":"string"}],"outputs":[]}
]`

var (
	collectionABI = mustParseABI(collectionABIJSON)
	legacyABI     = mustParseABI(legacyABIJSON)
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Backend is the slice of the RPC client the scanner and resolver need.
// *ethclient.Client satisfies it; tests substitute a fake.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}
