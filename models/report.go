package models

import "time"

// ExpiryRatio is one row of the per-expiration put/call table.
type ExpiryRatio struct {
	Expiration time.Time `json:"expiration"`
	CallsOI    float64   `json:"calls_oi"`
	PutsOI     float64   `json:"puts_oi"`
	Ratio      Metric    `json:"put_call_ratio"`
}

// StrikeVolume is one row of the high-volume strikes table. Volume sums
// both sides at the strike.
type StrikeVolume struct {
	Strike      float64 `json:"strike"`
	Volume      float64 `json:"volume"`
	DistancePct float64 `json:"distance_pct"`
}

// StrikeOI is one row of a top-strikes-by-open-interest table.
type StrikeOI struct {
	Strike       float64 `json:"strike"`
	OpenInterest float64 `json:"open_interest"`
}

// ExpiryIV is one row of the mean-IV-per-expiration table.
type ExpiryIV struct {
	Expiration time.Time `json:"expiration"`
	MeanIV     float64   `json:"mean_iv"`
}

// StrikeIV is one row of the mean-IV-per-strike table, restricted to
// strikes near the underlying price.
type StrikeIV struct {
	Strike float64 `json:"strike"`
	MeanIV float64 `json:"mean_iv"`
}

// ExpiryOI is one row of a top-expirations-by-open-interest table.
type ExpiryOI struct {
	Expiration   time.Time `json:"expiration"`
	OpenInterest float64   `json:"open_interest"`
}

// TenorSegmentStats summarises one expiration timeframe bucket
// (near-term, mid-term, far-dated).
type TenorSegmentStats struct {
	Name               string         `json:"name"`
	MinDays            int            `json:"min_days"`
	MaxDays            int            `json:"max_days"` // 0 means unbounded
	TotalOpenInterest  float64        `json:"total_open_interest"`
	CallsOpenInterest  float64        `json:"calls_open_interest"`
	PutsOpenInterest   float64        `json:"puts_open_interest"`
	TotalVolume        float64        `json:"total_volume"`
	CallsVolume        float64        `json:"calls_volume"`
	PutsVolume         float64        `json:"puts_volume"`
	OIPutCallRatio     Metric         `json:"put_call_ratio"`
	VolumePutCallRatio Metric         `json:"volume_put_call_ratio"`
	Expirations        []time.Time    `json:"expirations"`
	TopStrikesByOI     []StrikeOI     `json:"top_strikes_by_oi"`
	TopStrikesByVolume []StrikeVolume `json:"top_strikes_by_volume"`
}

// AggregateStats holds the currency-level summary statistics derived from
// one snapshot. TotalOpenInterest is always the exact sum of the call and
// put sides, likewise for volume.
type AggregateStats struct {
	TotalOpenInterest  float64 `json:"total_open_interest"`
	CallsOpenInterest  float64 `json:"calls_open_interest"`
	PutsOpenInterest   float64 `json:"puts_open_interest"`
	TotalVolume        float64 `json:"total_volume"`
	CallsVolume        float64 `json:"calls_volume"`
	PutsVolume         float64 `json:"puts_volume"`
	OIPutCallRatio     Metric  `json:"put_call_ratio"`
	VolumePutCallRatio Metric  `json:"volume_put_call_ratio"`

	// IV stats over contracts with mark IV > 0.
	MinIV          Metric     `json:"min_iv"`
	AvgIV          Metric     `json:"avg_iv"`
	MaxIV          Metric     `json:"max_iv"`
	IVByExpiry     []ExpiryIV `json:"iv_by_expiry"`
	IVByNearStrike []StrikeIV `json:"iv_by_near_strike"`

	PutCallByExpiry    []ExpiryRatio       `json:"put_call_by_expiry"`
	HighVolumeStrikes  []StrikeVolume      `json:"high_volume_strikes"`
	TopStrikesByOI     []StrikeOI          `json:"top_strikes_by_oi"`
	TopExpirationsByOI []ExpiryOI          `json:"top_expirations_by_oi"`
	Segments           []TenorSegmentStats `json:"segments"`
}

// SkewMetrics holds the delta-bucketed skew figures for the reference
// tenor plus the cross-expiry term structure slope. DeltaSource names the
// strategy that supplied deltas ("provided" or "log-moneyness proxy").
type SkewMetrics struct {
	ReferenceExpiry    time.Time `json:"reference_expiry"`
	ReferenceTenorDays int       `json:"reference_tenor_days"`
	DeltaSource        string    `json:"delta_source"`
	ATMVol             Metric    `json:"atm_vol"`
	Skew25             Metric    `json:"skew_25d"`
	Skew10             Metric    `json:"skew_10d"`
	TermSlope          Metric    `json:"term_slope"` // IV points per year
}

// SurfacePoint is one observed point of the volatility surface.
type SurfacePoint struct {
	Strike    float64 `json:"strike"`
	TenorDays int     `json:"tenor_days"`
	Side      Side    `json:"side"`
	IV        float64 `json:"iv"`
}

// Hotspot is a surface point whose IV deviates from its smile baseline.
// ZScore is undefined when the smile has zero standard deviation.
type Hotspot struct {
	Strike       float64 `json:"strike"`
	TenorDays    int     `json:"tenor_days"`
	Side         Side    `json:"side"`
	IV           float64 `json:"iv"`
	Baseline     float64 `json:"baseline"` // smile mean IV
	DeviationPct float64 `json:"deviation_pct"`
	ZScore       Metric  `json:"z_score"`
	Flagged      bool    `json:"flagged"`
	Volume       float64 `json:"volume"`
	OpenInterest float64 `json:"open_interest"`
}

// HotspotSummary aggregates flagged hotspots for one side.
type HotspotSummary struct {
	Side             Side      `json:"side"`
	FlaggedCount     int       `json:"flagged_count"`
	MaxDeviationPct  Metric    `json:"max_deviation_pct"`
	MeanDeviationPct Metric    `json:"mean_deviation_pct"`
	FrequentStrikes  []float64 `json:"frequent_strikes"`
}

// RunReport is the immutable per-currency, per-run record combining every
// derived output. It is assembled entirely in memory and only exposed once
// complete; exporters consume it read-only.
type RunReport struct {
	RunID           string          `json:"run_id"`
	Currency        string          `json:"currency"`
	GeneratedAt     time.Time       `json:"generated_at"`
	UnderlyingPrice float64         `json:"underlying_price"`
	ContractCount   int             `json:"contract_count"`
	Rejections      RejectionReport `json:"rejections"`

	Aggregates     AggregateStats          `json:"aggregates"`
	Skew           SkewMetrics             `json:"skew"`
	Hotspots       []Hotspot               `json:"hotspots"` // flagged only, by |deviation| desc
	HotspotsBySide map[Side]HotspotSummary `json:"hotspot_summaries"`
}
