package model

// QuoteResult is the response of a quote request.
type QuoteResult struct {
	Pair       string `json:"pair,omitempty"`
	TokenIn    string `json:"token_in,omitempty"`
	TokenOut   string `json:"token_out,omitempty"`
	ReserveIn  string `json:"reserve_in"`
	ReserveOut string `json:"reserve_out"`
	AmountIn   string `json:"amount_in"`
	AmountOut  string `json:"amount_out"`
	FeePaid    string `json:"fee_paid"`
	Fee        string `json:"fee"`
	// AmountOutUnits is AmountOut scaled by the output token's decimals, when known.
	AmountOutUnits string `json:"amount_out_units,omitempty"`
}
