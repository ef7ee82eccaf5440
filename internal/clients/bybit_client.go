package clients

import (
	bybit "github.com/hirokisan/bybit/v2"
)

// NewBybitClient builds a Bybit V5 REST client. Public market data works
// without credentials.
func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	return bybit.NewClient().WithAuth(apiKey, apiSecret)
}
