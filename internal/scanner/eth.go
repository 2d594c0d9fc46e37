package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jmerrifield20/BaseProofs/internal/digest"
)

// AnchorEventSignature is the event emitted by anchorProof(bytes32).
// creator and proofHash are indexed; timestamp is the block time in seconds.
const AnchorEventSignature = "ProofAnchored(address,bytes32,uint256)"

// AnchorTopic is topic[0] of every anchor event.
var AnchorTopic = common.Hash(digest.Bytes(AnchorEventSignature))

// EthSource is a Source backed by an Ethereum JSON-RPC endpoint.
type EthSource struct {
	client *ethclient.Client

	mu         sync.Mutex
	blockTimes map[uint64]time.Time
}

// NewEthSource wraps an existing ethclient.
func NewEthSource(client *ethclient.Client) *EthSource {
	return &EthSource{
		client:     client,
		blockTimes: make(map[uint64]time.Time),
	}
}

// DialEth connects to rpcURL and returns an EthSource.
func DialEth(ctx context.Context, rpcURL string) (*EthSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return NewEthSource(client), nil
}

// Client exposes the underlying ethclient.
func (s *EthSource) Client() *ethclient.Client {
	return s.client
}

// Close releases the RPC connection.
func (s *EthSource) Close() {
	s.client.Close()
}

// FilterAnchors implements Source.
func (s *EthSource) FilterAnchors(ctx context.Context, q Query) ([]AnchorLog, error) {
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: q.FromBlock,
		ToBlock:   q.ToBlock,
		Addresses: []common.Address{q.Contract},
		Topics:    [][]common.Hash{{AnchorTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	out := make([]AnchorLog, 0, len(logs))
	for _, l := range logs {
		a, ok := s.anchorFromLog(ctx, l)
		if !ok {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// CallData implements Source.
func (s *EthSource) CallData(ctx context.Context, txHash common.Hash) ([]byte, error) {
	tx, _, err := s.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", txHash.Hex(), err)
	}
	return tx.Data(), nil
}

// anchorFromLog converts a raw log. Reorged-out logs and logs with the
// wrong topic arity are skipped.
func (s *EthSource) anchorFromLog(ctx context.Context, l types.Log) (AnchorLog, bool) {
	if l.Removed || len(l.Topics) < 3 || l.Topics[0] != AnchorTopic {
		return AnchorLog{}, false
	}

	a := AnchorLog{
		Creator:     common.BytesToAddress(l.Topics[1].Bytes()),
		Digest:      l.Topics[2],
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
	}
	if len(l.Data) >= 32 {
		secs := new(big.Int).SetBytes(l.Data[:32])
		a.BlockTime = time.Unix(secs.Int64(), 0).UTC()
	} else {
		a.BlockTime = s.blockTime(ctx, l.BlockNumber)
	}
	return a, true
}

// blockTime looks up a block's timestamp, memoising by number. A failed
// lookup yields the zero time; ordering falls back to block number.
func (s *EthSource) blockTime(ctx context.Context, number uint64) time.Time {
	s.mu.Lock()
	t, ok := s.blockTimes[number]
	s.mu.Unlock()
	if ok {
		return t
	}

	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}
	}
	t = time.Unix(int64(header.Time), 0).UTC()

	s.mu.Lock()
	s.blockTimes[number] = t
	s.mu.Unlock()
	return t
}
