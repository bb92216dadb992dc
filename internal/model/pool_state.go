package model

// PoolState is the persisted form of a pool. Amounts are base-10 integer
// strings in smallest units.
type PoolState struct {
	Name        string            `json:"name"`
	FeeNum      int64             `json:"fee_num"`
	FeeDen      int64             `json:"fee_den"`
	ReserveA    string            `json:"reserve_a"`
	ReserveB    string            `json:"reserve_b"`
	TotalShares string            `json:"total_shares"`
	Shares      map[string]string `json:"shares,omitempty"`
	UpdatedAt   string            `json:"updated_at"`
}
