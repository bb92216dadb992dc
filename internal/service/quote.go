// Package service holds the quoting logic behind the CLI and HTTP handlers.
package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammlab/internal/amm"
	"ammlab/internal/dex"
	"ammlab/internal/fixedpoint"
	"ammlab/internal/model"
)

// PairFetcher reads a pair's state from chain.
type PairFetcher interface {
	FetchPair(ctx context.Context, pair common.Address, blockNumber uint64) (model.PairState, error)
}

// QuoteService prices exact-input swaps against given or on-chain reserves.
type QuoteService struct {
	logger *zap.Logger
	pairs  PairFetcher
	fee    amm.Fee
}

// NewQuoteService returns a service charging fee on pair quotes. pairs may be
// nil, in which case QuotePair is unavailable.
func NewQuoteService(logger *zap.Logger, pairs PairFetcher, fee amm.Fee) *QuoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteService{logger: logger, pairs: pairs, fee: fee}
}

// Quote prices amountIn against the given reserves.
func (s *QuoteService) Quote(reserveIn, reserveOut, amountIn *big.Int, fee amm.Fee) (model.QuoteResult, error) {
	out, err := amm.QuoteOutputForExactInput(reserveIn, reserveOut, amountIn, fee)
	if err != nil {
		return model.QuoteResult{}, err
	}
	s.logger.Debug("quote computed",
		zap.String("reserve_in", reserveIn.String()),
		zap.String("reserve_out", reserveOut.String()),
		zap.String("in", amountIn.String()),
		zap.String("out", out.String()),
	)
	return model.QuoteResult{
		ReserveIn:  reserveIn.String(),
		ReserveOut: reserveOut.String(),
		AmountIn:   amountIn.String(),
		AmountOut:  out.String(),
		FeePaid:    fee.Charged(amountIn).String(),
		Fee:        fee.String(),
	}, nil
}

// QuotePair prices selling amountIn of src into pair at the latest block.
func (s *QuoteService) QuotePair(ctx context.Context, pair, src common.Address, amountIn *big.Int) (model.QuoteResult, error) {
	if s.pairs == nil {
		return model.QuoteResult{}, fmt.Errorf("%w: no chain configured", ErrFetchPair)
	}
	st, err := s.pairs.FetchPair(ctx, pair, 0)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("%w: %w", ErrFetchPair, err)
	}
	reserve0, reserve1, err := dex.Reserves(st)
	if err != nil {
		return model.QuoteResult{}, err
	}

	token0 := common.HexToAddress(st.Token0.Address)
	token1 := common.HexToAddress(st.Token1.Address)
	if token0 == token1 {
		return model.QuoteResult{}, ErrSameToken
	}
	var (
		reserveIn, reserveOut *big.Int
		in, out               model.TokenMeta
	)
	switch src {
	case token0:
		reserveIn, reserveOut, in, out = reserve0, reserve1, st.Token0, st.Token1
	case token1:
		reserveIn, reserveOut, in, out = reserve1, reserve0, st.Token1, st.Token0
	default:
		return model.QuoteResult{}, ErrPairMismatch
	}

	res, err := s.Quote(reserveIn, reserveOut, amountIn, s.fee)
	if err != nil {
		return model.QuoteResult{}, err
	}
	res.Pair = st.Pair
	res.TokenIn = in.Label()
	res.TokenOut = out.Label()
	amountOut, _ := new(big.Int).SetString(res.AmountOut, 10)
	res.AmountOutUnits = fixedpoint.FormatUnits(amountOut, out.Decimals)
	return res, nil
}
