package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Scanner discovers the token ids an owner currently holds. The result is a
// heuristic lower bound, never a completeness guarantee. Errors always
// propagate: an empty set means "no tokens found", never "could not check".
type Scanner interface {
	Scan(ctx context.Context, owner common.Address) ([]*big.Int, error)
}

// BatchScanner probes a fixed candidate range [0,N) with one balanceOfBatch
// call. ERC-1155 has no enumerable extension, so with sequential ids and a
// small expected supply a single brute-force batch read covers the whole
// collection in one round trip. Ids >= N are invisible; balances are
// authoritative, so no false positives.
type BatchScanner struct {
	backend  Backend
	contract common.Address
	rangeN   int
}

// NewBatchScanner creates a batch-probe scanner over ids [0, rangeN).
func NewBatchScanner(backend Backend, contract common.Address, rangeN int) *BatchScanner {
	return &BatchScanner{backend: backend, contract: contract, rangeN: rangeN}
}

func (s *BatchScanner) Scan(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	accounts := make([]common.Address, s.rangeN)
	ids := make([]*big.Int, s.rangeN)
	for i := 0; i < s.rangeN; i++ {
		accounts[i] = owner
		ids[i] = big.NewInt(int64(i))
	}

	input, err := collectionABI.Pack("balanceOfBatch", accounts, ids)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOfBatch: %w", err)
	}

	output, err := s.backend.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOfBatch call: %w", err)
	}

	results, err := collectionABI.Unpack("balanceOfBatch", output)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOfBatch: %w", err)
	}
	balances, ok := results[0].([]*big.Int)
	if !ok || len(balances) != s.rangeN {
		return nil, fmt.Errorf("balanceOfBatch returned %d balances, want %d", len(balances), s.rangeN)
	}

	var owned []*big.Int
	for i, bal := range balances {
		if bal.Sign() > 0 {
			owned = append(owned, ids[i])
		}
	}
	return owned, nil
}

// LogScanner reads incoming TransferSingle/TransferBatch events addressed to
// the owner over a bounded recent block window (the RPC endpoint enforces a
// maximum queryable range). Ids received before the window start are missed.
// Without verification, ids later transferred away or burned are still
// reported; enabling verify closes that gap with one balanceOf call per
// candidate.
type LogScanner struct {
	backend  Backend
	contract common.Address
	window   int64
	verify   bool
}

// NewLogScanner creates a log scanner over the most recent window blocks.
func NewLogScanner(backend Backend, contract common.Address, window int64, verify bool) *LogScanner {
	return &LogScanner{backend: backend, contract: contract, window: window, verify: verify}
}

func (s *LogScanner) Scan(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	head, err := s.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}

	from := int64(head) - s.window
	if from < 0 {
		from = 0
	}

	single := collectionABI.Events["TransferSingle"]
	batch := collectionABI.Events["TransferBatch"]
	ownerTopic := common.BytesToHash(common.LeftPadBytes(owner.Bytes(), 32))

	logs, err := s.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   big.NewInt(int64(head)),
		Addresses: []common.Address{s.contract},
		Topics: [][]common.Hash{
			{single.ID, batch.ID},
			nil, // any operator
			nil, // any sender
			{ownerTopic},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("filter transfer logs: %w", err)
	}

	seen := make(map[string]*big.Int)
	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		switch lg.Topics[0] {
		case single.ID:
			vals, err := single.Inputs.NonIndexed().Unpack(lg.Data)
			if err != nil {
				return nil, fmt.Errorf("decode TransferSingle: %w", err)
			}
			id := vals[0].(*big.Int)
			seen[id.String()] = id
		case batch.ID:
			vals, err := batch.Inputs.NonIndexed().Unpack(lg.Data)
			if err != nil {
				return nil, fmt.Errorf("decode TransferBatch: %w", err)
			}
			for _, id := range vals[0].([]*big.Int) {
				seen[id.String()] = id
			}
		}
	}

	owned := make([]*big.Int, 0, len(seen))
	for _, id := range seen {
		if s.verify {
			bal, err := s.balanceOf(ctx, owner, id)
			if err != nil {
				return nil, err
			}
			if bal.Sign() == 0 {
				continue
			}
		}
		owned = append(owned, id)
	}

	sort.Slice(owned, func(i, j int) bool { return owned[i].Cmp(owned[j]) < 0 })
	return owned, nil
}

func (s *LogScanner) balanceOf(ctx context.Context, owner common.Address, id *big.Int) (*big.Int, error) {
	input, err := collectionABI.Pack("balanceOf", owner, id)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	output, err := s.backend.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call for id %s: %w", id, err)
	}
	results, err := collectionABI.Unpack("balanceOf", output)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	return results[0].(*big.Int), nil
}
