package domain

import "time"

// TokenInfo is display metadata for a mint.
type TokenInfo struct {
	Symbol  string  `json:"symbol"`
	Name    string  `json:"name"`
	LogoURI *string `json:"logoUri"`
}

// PlaceholderSymbolLen is the number of mint characters used for placeholder symbols.
const PlaceholderSymbolLen = 4

// PlaceholderTokenInfo derives display metadata for a mint nothing knows about.
func PlaceholderTokenInfo(mint string) TokenInfo {
	prefix := mint
	if len(prefix) > PlaceholderSymbolLen {
		prefix = prefix[:PlaceholderSymbolLen]
	}
	return TokenInfo{
		Symbol: prefix + "...",
		Name:   "Unknown Token",
	}
}

// PriceQuote is the native asset USD price for one calendar day (UTC).
type PriceQuote struct {
	DateBucket string  `json:"date"`
	PriceUSD   float64 `json:"priceUsd"`
}

// DateBucketLayout formats timestamps into PriceQuote date buckets.
const DateBucketLayout = "2006-01-02"

// DateBucket returns the UTC calendar day of a unix timestamp (seconds).
func DateBucket(unixSec int64) string {
	return time.Unix(unixSec, 0).UTC().Format(DateBucketLayout)
}
