package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammlab/internal/amm"
	"ammlab/internal/model"
)

// ChainReader is the chain access FetchPair needs.
type ChainReader interface {
	Caller
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// PairReader reads Uniswap v2 pairs.
type PairReader struct {
	chain  ChainReader
	tokens *TokenMetaCache
	logger *zap.Logger
}

func NewPairReader(chain ChainReader, tokens *TokenMetaCache, logger *zap.Logger) *PairReader {
	if tokens == nil {
		tokens = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PairReader{chain: chain, tokens: tokens, logger: logger}
}

// FetchPair reads tokens and reserves of pair at blockNumber; zero means the
// latest block, which is resolved first so every call sees the same state.
func (r *PairReader) FetchPair(ctx context.Context, pair common.Address, blockNumber uint64) (model.PairState, error) {
	pairABI, err := v2PairABI.get()
	if err != nil {
		return model.PairState{}, fmt.Errorf("parse pair abi: %w", err)
	}

	chainID, err := r.chain.ChainID(ctx)
	if err != nil {
		return model.PairState{}, fmt.Errorf("chain id: %w", err)
	}
	if blockNumber == 0 {
		if blockNumber, err = r.chain.LatestBlockNumber(ctx); err != nil {
			return model.PairState{}, fmt.Errorf("block number: %w", err)
		}
	}
	block := new(big.Int).SetUint64(blockNumber)

	values, err := call(ctx, r.chain, pair, pairABI, "token0", block)
	if err != nil {
		return model.PairState{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return model.PairState{}, fmt.Errorf("token0: %w", err)
	}
	values, err = call(ctx, r.chain, pair, pairABI, "token1", block)
	if err != nil {
		return model.PairState{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return model.PairState{}, fmt.Errorf("token1: %w", err)
	}

	values, err = call(ctx, r.chain, pair, pairABI, "getReserves", block)
	if err != nil {
		return model.PairState{}, err
	}
	if len(values) < 3 {
		return model.PairState{}, fmt.Errorf("getReserves: %d values", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return model.PairState{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return model.PairState{}, fmt.Errorf("reserve1: %w", err)
	}
	ts, ok := values[2].(uint32)
	if !ok {
		return model.PairState{}, fmt.Errorf("blockTimestampLast: unsupported type %T", values[2])
	}

	state := model.PairState{
		ChainID:            chainID.Uint64(),
		Pair:               pair.Hex(),
		BlockNumber:        blockNumber,
		Token0:             CachedTokenMeta(ctx, r.chain, r.tokens, token0, r.logger),
		Token1:             CachedTokenMeta(ctx, r.chain, r.tokens, token1, r.logger),
		Reserve0:           reserve0.String(),
		Reserve1:           reserve1.String(),
		BlockTimestampLast: ts,
	}
	r.logger.Debug("pair fetched",
		zap.String("pair", state.Pair),
		zap.Uint64("block", blockNumber),
		zap.String("reserve0", state.Reserve0),
		zap.String("reserve1", state.Reserve1),
	)
	return state, nil
}

// Reserves returns the pair's reserves as integers.
func Reserves(state model.PairState) (reserve0, reserve1 *big.Int, err error) {
	reserve0, ok := new(big.Int).SetString(state.Reserve0, 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid reserve0 %q", state.Reserve0)
	}
	reserve1, ok = new(big.Int).SetString(state.Reserve1, 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid reserve1 %q", state.Reserve1)
	}
	return reserve0, reserve1, nil
}

// PoolFromPair seeds a local pool with the pair's reserves, token0 as asset A.
// The seeded shares belong to provider.
func PoolFromPair(state model.PairState, provider common.Address, fee amm.Fee) (*amm.Pool, error) {
	reserve0, reserve1, err := Reserves(state)
	if err != nil {
		return nil, err
	}
	return amm.NewSeededPool(provider, reserve0, reserve1, fee)
}
