package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammlab/internal/amm"
	"ammlab/internal/chain"
)

var (
	pairAddr = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	tokenA   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type callArgs struct {
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

// fakeEth answers eth_call from canned return data keyed by contract and selector.
type fakeEth struct {
	blockNumber uint64
	lastBlock   string
	returns     map[common.Address]map[string][]byte
}

func (f *fakeEth) ChainId(ctx context.Context) (*hexutil.Big, error) {
	return (*hexutil.Big)(big.NewInt(1)), nil
}

func (f *fakeEth) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	return hexutil.Uint64(f.blockNumber), nil
}

func (f *fakeEth) Call(ctx context.Context, args callArgs, block string) (hexutil.Bytes, error) {
	data := args.Input
	if len(data) == 0 {
		data = args.Data
	}
	if args.To == nil || len(data) < 4 {
		return nil, errors.New("bad call")
	}
	f.lastBlock = block
	if out, ok := f.returns[*args.To][hexutil.Encode(data[:4])]; ok {
		return out, nil
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeEth) set(t *testing.T, to common.Address, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m, ok := parsed.Methods[method]
	require.True(t, ok, method)
	out, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	if f.returns[to] == nil {
		f.returns[to] = make(map[string][]byte)
	}
	f.returns[to][hexutil.Encode(m.ID)] = out
}

func newFake(t *testing.T) *fakeEth {
	t.Helper()
	pairABI, err := V2PairABI()
	require.NoError(t, err)
	erc20, err := ERC20ABI()
	require.NoError(t, err)
	bytes32ABI, err := erc20ABIBytes32.get()
	require.NoError(t, err)

	fe := &fakeEth{blockNumber: 19_000_000, returns: make(map[common.Address]map[string][]byte)}
	fe.set(t, pairAddr, pairABI, "token0", tokenA)
	fe.set(t, pairAddr, pairABI, "token1", tokenB)
	fe.set(t, pairAddr, pairABI, "getReserves", big.NewInt(1_000_000), big.NewInt(2_000_000), uint32(1_700_000_000))

	fe.set(t, tokenA, erc20, "decimals", uint8(18))
	fe.set(t, tokenA, erc20, "symbol", "DVT")
	fe.set(t, tokenA, erc20, "name", "Damn Valuable Token")

	var sym [32]byte
	copy(sym[:], "MKR")
	fe.set(t, tokenB, erc20, "decimals", uint8(6))
	fe.set(t, tokenB, bytes32ABI, "symbol", sym)
	return fe
}

func newChain(t *testing.T, fe *fakeEth) *chain.Client {
	t.Helper()
	srv := gethrpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", fe))
	c := chain.NewClientFromRPC(gethrpc.DialInProc(srv))
	t.Cleanup(c.Close)
	return c
}

func TestFetchPair(t *testing.T) {
	fe := newFake(t)
	tokens := NewTokenMetaCache()
	reader := NewPairReader(newChain(t, fe), tokens, nil)

	st, err := reader.FetchPair(context.Background(), pairAddr, 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), st.ChainID)
	assert.Equal(t, uint64(19_000_000), st.BlockNumber)
	assert.Equal(t, hexutil.EncodeUint64(19_000_000), fe.lastBlock)
	assert.Equal(t, pairAddr.Hex(), st.Pair)
	assert.Equal(t, "1000000", st.Reserve0)
	assert.Equal(t, "2000000", st.Reserve1)
	assert.Equal(t, uint32(1_700_000_000), st.BlockTimestampLast)

	assert.Equal(t, "DVT", st.Token0.Symbol)
	assert.Equal(t, "Damn Valuable Token", st.Token0.Name)
	assert.Equal(t, uint8(18), st.Token0.Decimals)
	assert.Equal(t, "MKR", st.Token1.Symbol)
	assert.Empty(t, st.Token1.Name)
	assert.Equal(t, uint8(6), st.Token1.Decimals)

	cached, ok := tokens.Get(tokenB)
	require.True(t, ok)
	assert.Equal(t, "MKR", cached.Label())
}

func TestFetchPairAtBlock(t *testing.T) {
	fe := newFake(t)
	reader := NewPairReader(newChain(t, fe), nil, nil)

	st, err := reader.FetchPair(context.Background(), pairAddr, 123)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), st.BlockNumber)
	assert.Equal(t, "0x7b", fe.lastBlock)
}

func TestFetchPairNotAPair(t *testing.T) {
	fe := newFake(t)
	reader := NewPairReader(newChain(t, fe), nil, nil)

	_, err := reader.FetchPair(context.Background(), tokenA, 0)
	assert.ErrorContains(t, err, "token0")
}

func TestFetchTokenMetaRequiresDecimals(t *testing.T) {
	fe := newFake(t)
	_, err := FetchTokenMeta(context.Background(), newChain(t, fe), pairAddr, nil)
	assert.ErrorContains(t, err, "decimals")
}

func TestPoolFromPair(t *testing.T) {
	fe := newFake(t)
	st, err := NewPairReader(newChain(t, fe), nil, nil).FetchPair(context.Background(), pairAddr, 0)
	require.NoError(t, err)

	pool, err := PoolFromPair(st, common.Address{}, amm.DefaultFee)
	require.NoError(t, err)
	a, b := pool.Reserves()
	assert.Equal(t, "1000000", a.String())
	assert.Equal(t, "2000000", b.String())

	st.Reserve1 = "lots"
	_, err = PoolFromPair(st, common.Address{}, amm.DefaultFee)
	assert.Error(t, err)
}
