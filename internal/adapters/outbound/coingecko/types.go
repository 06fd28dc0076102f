package coingecko

import "github.com/shopspring/decimal"

// simplePriceResponse represents the response from /simple/price.
// Example response:
//
//	{
//	  "tether-gold": {
//	    "usd": 4012.55,
//	    "last_updated_at": 1760000000
//	  }
//	}
type simplePriceResponse map[string]simplePriceData

// USD is decoded straight into a decimal so prices never pass through float64.
type simplePriceData struct {
	USD         decimal.Decimal `json:"usd"`
	LastUpdated int64           `json:"last_updated_at"`
}

// coinGeckoError represents an error response from the CoinGecko API.
type coinGeckoError struct {
	Error string `json:"error"`
}
