// Package submit sends anchor transactions and waits for them to be mined.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

// Submitter writes call data to the anchor contract and returns the
// transaction hash once it is mined.
type Submitter interface {
	Submit(ctx context.Context, from string, callData []byte) (string, error)
}

type rpcCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config configures an RPCSubmitter.
type Config struct {
	Contract     common.Address
	PollInterval time.Duration
}

// RPCSubmitter sends transactions through eth_sendTransaction, letting the
// node sign with an account it manages.
type RPCSubmitter struct {
	rpc      rpcCaller
	receipts receiptReader
	contract common.Address
	interval time.Duration
	logger   *zap.Logger
}

// NewRPCSubmitter builds a submitter on top of an RPC client.
func NewRPCSubmitter(client *rpc.Client, cfg Config, logger *zap.Logger) *RPCSubmitter {
	return newRPCSubmitter(client, ethclient.NewClient(client), cfg, logger)
}

func newRPCSubmitter(c rpcCaller, r receiptReader, cfg Config, logger *zap.Logger) *RPCSubmitter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &RPCSubmitter{
		rpc:      c,
		receipts: r,
		contract: cfg.Contract,
		interval: cfg.PollInterval,
		logger:   logger,
	}
}

type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

// Submit implements Submitter.
func (s *RPCSubmitter) Submit(ctx context.Context, from string, callData []byte) (string, error) {
	if !common.IsHexAddress(from) {
		return "", fmt.Errorf("invalid sender address %q", from)
	}

	var hash common.Hash
	err := s.rpc.CallContext(ctx, &hash, "eth_sendTransaction", sendTxArgs{
		From:  common.HexToAddress(from),
		To:    s.contract,
		Value: (*hexutil.Big)(common.Big0),
		Data:  callData,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	s.logger.Info("anchor transaction sent", zap.String("tx", hash.Hex()), zap.String("from", from))

	if err := s.waitMined(ctx, hash); err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func (s *RPCSubmitter) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		receipt, err := s.receipts.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
			}
			return nil
		case errors.Is(err, ethereum.NotFound):
			// pending
		default:
			s.logger.Warn("receipt lookup failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
