package model

// PairState is a Uniswap v2 pair read from chain.
type PairState struct {
	ChainID            uint64    `json:"chain_id"`
	Pair               string    `json:"pair"`
	BlockNumber        uint64    `json:"block_number"`
	Token0             TokenMeta `json:"token0"`
	Token1             TokenMeta `json:"token1"`
	Reserve0           string    `json:"reserve0"`
	Reserve1           string    `json:"reserve1"`
	BlockTimestampLast uint32    `json:"block_timestamp_last"`
}
