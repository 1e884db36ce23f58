package cmc

import "time"

// historicalResponse mirrors the /v3/cryptocurrency/quotes/historical payload.
type historicalResponse struct {
	Status statusPayload                 `json:"status"`
	Data   map[string]assetQuotesPayload `json:"data"`
}

type statusPayload struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type assetQuotesPayload struct {
	ID     int            `json:"id"`
	Name   string         `json:"name"`
	Symbol string         `json:"symbol"`
	Quotes []quotePayload `json:"quotes"`
}

type quotePayload struct {
	Timestamp time.Time                  `json:"timestamp"`
	Quote     map[string]currencyPayload `json:"quote"`
}

type currencyPayload struct {
	Price            float64   `json:"price"`
	Volume24h        float64   `json:"volume_24h"`
	MarketCap        float64   `json:"market_cap"`
	PercentChange24h float64   `json:"percent_change_24h"`
	Timestamp        time.Time `json:"timestamp"`
}
