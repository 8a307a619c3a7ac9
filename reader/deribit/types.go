package deribit

// Instrument is one entry of the public/get_instruments response.
type Instrument struct {
	InstrumentName      string  `json:"instrument_name"`
	Kind                string  `json:"kind"`
	OptionType          string  `json:"option_type"`
	Strike              float64 `json:"strike"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"`
	CreationTimestamp   int64   `json:"creation_timestamp"`
	IsActive            bool    `json:"is_active"`
}

// BookSummary is one entry of the public/get_book_summary_by_currency
// response. MarkIV is quoted in percentage units. Greeks are not part of
// the book summary payload; Delta stays nil unless the venue adds it.
type BookSummary struct {
	InstrumentName  string   `json:"instrument_name"`
	OpenInterest    float64  `json:"open_interest"`
	Volume          float64  `json:"volume"`
	MarkIV          *float64 `json:"mark_iv"`
	UnderlyingPrice *float64 `json:"underlying_price"`
	Delta           *float64 `json:"delta,omitempty"`
}

// indexPriceResult is the public/get_index_price response body.
type indexPriceResult struct {
	IndexPrice float64 `json:"index_price"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
