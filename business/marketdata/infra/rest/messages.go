// Package rest adapts a venue's HTTP ticker API to the marketdata ports.
package rest

// tickerResponse is the venue's top-of-book payload.
type tickerResponse struct {
	Symbol    string `json:"symbol"`
	BidPrice  string `json:"bidPrice"`
	BidQty    string `json:"bidQty"`
	AskPrice  string `json:"askPrice"`
	AskQty    string `json:"askQty"`
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// balancesResponse is the venue's account balance payload.
type balancesResponse struct {
	Balances []balanceEntry `json:"balances"`
}

type balanceEntry struct {
	Currency string `json:"currency"`
	Free     string `json:"free"`
	Locked   string `json:"locked"`
}

// errorResponse is the venue's error envelope.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}
