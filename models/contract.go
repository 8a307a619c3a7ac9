package models

import (
	"fmt"
	"strings"
	"time"
)

// Side identifies the option type of a contract. Unknown variants are
// rejected at the ingestion boundary, downstream code can assume one of
// the two values.
type Side string

const (
	SideCall Side = "call"
	SidePut  Side = "put"
)

// ParseSide normalizes the option type strings seen in provider payloads
// ("call", "put", "C", "P") into a Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return SideCall, nil
	case "put", "p":
		return SidePut, nil
	default:
		return "", fmt.Errorf("unknown option side '%s'", s)
	}
}

// Sign returns +1 for calls and -1 for puts, the sign convention used for
// delta values.
func (s Side) Sign() float64 {
	if s == SidePut {
		return -1
	}
	return 1
}

// RawOptionRecord is a single per-instrument record as delivered by the
// market data provider, before validation. Delta is optional; most book
// summary payloads do not carry greeks.
type RawOptionRecord struct {
	InstrumentName      string   `json:"instrument_name"`
	Strike              float64  `json:"strike"`
	ExpirationTimestamp int64    `json:"expiration_timestamp"` // ms since epoch
	OptionType          string   `json:"option_type"`
	OpenInterest        float64  `json:"open_interest"`
	Volume              float64  `json:"volume"`
	MarkIV              float64  `json:"mark_iv"` // percentage units
	UnderlyingPrice     float64  `json:"underlying_price"`
	Delta               *float64 `json:"delta,omitempty"`
}

// RawChain is the provider's full answer for one currency at one request
// time: the index price plus every option instrument's record.
type RawChain struct {
	Currency        string
	Timestamp       time.Time
	UnderlyingPrice float64
	Records         []RawOptionRecord
}

// Contract is one validated option instrument at one point in time.
// Immutable once ingested.
type Contract struct {
	Currency        string    `json:"currency"`
	InstrumentName  string    `json:"instrument_name"`
	Strike          float64   `json:"strike"`
	Expiration      time.Time `json:"expiration"`
	TenorDays       int       `json:"tenor_days"`
	Side            Side      `json:"side"`
	OpenInterest    float64   `json:"open_interest"`
	Volume          float64   `json:"volume"`
	MarkIV          float64   `json:"mark_iv"`
	UnderlyingPrice float64   `json:"underlying_price"`
	Delta           *float64  `json:"delta,omitempty"`
	DistancePct     float64   `json:"distance_pct"` // strike distance from spot, percent
}

// RejectionReport counts contracts dropped during ingestion, keyed by
// reason. Rejections are non-fatal; the rest of the chain proceeds.
type RejectionReport struct {
	Total   int            `json:"total"`
	Reasons map[string]int `json:"reasons,omitempty"`
}

func (r *RejectionReport) Add(reason string) {
	if r.Reasons == nil {
		r.Reasons = make(map[string]int)
	}
	r.Reasons[reason]++
	r.Total++
}

// Snapshot is the validated contract set for one currency at one run
// timestamp. Contracts are ordered by expiration, then strike, then side.
// A new run produces a new Snapshot; prior snapshots are never mutated.
type Snapshot struct {
	Currency        string          `json:"currency"`
	Timestamp       time.Time       `json:"timestamp"`
	UnderlyingPrice float64         `json:"underlying_price"`
	Contracts       []Contract      `json:"contracts"`
	Rejections      RejectionReport `json:"rejections"`
}

// Empty reports whether the snapshot holds no accepted contracts. An
// empty snapshot is valid and flows through the pipeline.
func (s *Snapshot) Empty() bool {
	return len(s.Contracts) == 0
}

// Expirations returns the distinct expiration dates in ascending order.
func (s *Snapshot) Expirations() []time.Time {
	var out []time.Time
	for _, c := range s.Contracts {
		if len(out) == 0 || !out[len(out)-1].Equal(c.Expiration) {
			out = append(out, c.Expiration)
		}
	}
	return out
}

// ByExpiration groups contracts per expiration date, preserving the
// snapshot's strike ordering within each group.
func (s *Snapshot) ByExpiration() map[time.Time][]Contract {
	groups := make(map[time.Time][]Contract)
	for _, c := range s.Contracts {
		groups[c.Expiration] = append(groups[c.Expiration], c)
	}
	return groups
}

// HasProvidedDeltas reports whether every accepted contract carries a
// provider-supplied delta, which decides the delta sourcing strategy.
func (s *Snapshot) HasProvidedDeltas() bool {
	if s.Empty() {
		return false
	}
	for _, c := range s.Contracts {
		if c.Delta == nil {
			return false
		}
	}
	return true
}
