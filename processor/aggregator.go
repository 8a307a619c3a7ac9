package processor

import (
	"sort"
	"time"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// Aggregator derives the currency-level summary statistics from one
// snapshot: open interest and volume totals with put/call ratios, IV
// range stats with per-expiration and near-strike IV means, the
// per-expiration put/call table, the top strikes tables and the tenor
// segment breakdown.
type Aggregator struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewAggregator(cfg *appconfig.Config) *Aggregator {
	return &Aggregator{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

// Aggregate computes the full AggregateStats for the snapshot. An empty
// snapshot yields zero totals and undefined ratio and IV metrics.
func (a *Aggregator) Aggregate(snapshot *models.Snapshot) models.AggregateStats {
	start := time.Now()
	stats := models.AggregateStats{
		OIPutCallRatio:     models.UndefinedMetric(),
		VolumePutCallRatio: models.UndefinedMetric(),
		MinIV:              models.UndefinedMetric(),
		AvgIV:              models.UndefinedMetric(),
		MaxIV:              models.UndefinedMetric(),
	}

	var ivSum float64
	var ivCount int

	for _, c := range snapshot.Contracts {
		if c.Side == models.SideCall {
			stats.CallsOpenInterest += c.OpenInterest
			stats.CallsVolume += c.Volume
		} else {
			stats.PutsOpenInterest += c.OpenInterest
			stats.PutsVolume += c.Volume
		}

		// IV range stats ignore contracts without an observed mark IV.
		if c.MarkIV > 0 {
			ivSum += c.MarkIV
			ivCount++
			if !stats.MinIV.Defined || c.MarkIV < stats.MinIV.Val {
				stats.MinIV = models.DefinedMetric(c.MarkIV)
			}
			if !stats.MaxIV.Defined || c.MarkIV > stats.MaxIV.Val {
				stats.MaxIV = models.DefinedMetric(c.MarkIV)
			}
		}
	}

	stats.TotalOpenInterest = stats.CallsOpenInterest + stats.PutsOpenInterest
	stats.TotalVolume = stats.CallsVolume + stats.PutsVolume
	stats.OIPutCallRatio = models.Ratio(stats.PutsOpenInterest, stats.CallsOpenInterest)
	stats.VolumePutCallRatio = models.Ratio(stats.PutsVolume, stats.CallsVolume)
	if ivCount > 0 {
		stats.AvgIV = models.DefinedMetric(ivSum / float64(ivCount))
	}

	stats.IVByExpiry = a.ivByExpiry(snapshot)
	stats.IVByNearStrike = a.ivByNearStrike(snapshot)
	stats.PutCallByExpiry = a.putCallByExpiry(snapshot)
	stats.HighVolumeStrikes = a.topStrikesByVolume(snapshot.Contracts)
	stats.TopStrikesByOI = a.topStrikesByOI(snapshot.Contracts)
	stats.TopExpirationsByOI = a.topExpirationsByOI(snapshot)
	stats.Segments = a.segments(snapshot)

	logger.LogPerformanceEntry(a.log.WithComponent("aggregator"), "aggregator", "aggregate",
		time.Since(start), logger.Fields{
			"currency":  snapshot.Currency,
			"contracts": len(snapshot.Contracts),
		})
	return stats
}

// ivByExpiry builds the mean mark IV per expiration table in ascending
// expiration order. Expirations with no observed IV contribute no row.
func (a *Aggregator) ivByExpiry(snapshot *models.Snapshot) []models.ExpiryIV {
	groups := snapshot.ByExpiration()
	var out []models.ExpiryIV
	for _, exp := range snapshot.Expirations() {
		var sum float64
		var n int
		for _, c := range groups[exp] {
			if c.MarkIV > 0 {
				sum += c.MarkIV
				n++
			}
		}
		if n == 0 {
			continue
		}
		out = append(out, models.ExpiryIV{Expiration: exp, MeanIV: sum / float64(n)})
	}
	return out
}

// ivByNearStrike builds the mean mark IV per strike table for strikes
// within NearStrikeBandPct of the underlying price, ascending by strike.
// The mean runs across both sides and all expirations at the strike.
func (a *Aggregator) ivByNearStrike(snapshot *models.Snapshot) []models.StrikeIV {
	band := a.config.Analytics.NearStrikeBandPct / 100
	lo := snapshot.UnderlyingPrice * (1 - band)
	hi := snapshot.UnderlyingPrice * (1 + band)

	type acc struct {
		sum float64
		n   int
	}
	byStrike := make(map[float64]*acc)
	for _, c := range snapshot.Contracts {
		if c.MarkIV <= 0 || c.Strike < lo || c.Strike > hi {
			continue
		}
		entry, ok := byStrike[c.Strike]
		if !ok {
			entry = &acc{}
			byStrike[c.Strike] = entry
		}
		entry.sum += c.MarkIV
		entry.n++
	}

	var out []models.StrikeIV
	for strike, entry := range byStrike {
		out = append(out, models.StrikeIV{Strike: strike, MeanIV: entry.sum / float64(entry.n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// putCallByExpiry builds the per-expiration open interest ratio table in
// ascending expiration order.
func (a *Aggregator) putCallByExpiry(snapshot *models.Snapshot) []models.ExpiryRatio {
	groups := snapshot.ByExpiration()
	var out []models.ExpiryRatio
	for _, exp := range snapshot.Expirations() {
		row := models.ExpiryRatio{Expiration: exp}
		for _, c := range groups[exp] {
			if c.Side == models.SideCall {
				row.CallsOI += c.OpenInterest
			} else {
				row.PutsOI += c.OpenInterest
			}
		}
		row.Ratio = models.Ratio(row.PutsOI, row.CallsOI)
		out = append(out, row)
	}
	return out
}

// topStrikesByVolume returns up to TopStrikes strikes by total volume
// across both sides, descending. Strikes whose summed volume is zero are
// dropped; ties break toward the lower strike.
func (a *Aggregator) topStrikesByVolume(contracts []models.Contract) []models.StrikeVolume {
	type acc struct {
		volume      float64
		distancePct float64
	}
	byStrike := make(map[float64]*acc)
	for _, c := range contracts {
		entry, ok := byStrike[c.Strike]
		if !ok {
			entry = &acc{distancePct: c.DistancePct}
			byStrike[c.Strike] = entry
		}
		entry.volume += c.Volume
	}

	var rows []models.StrikeVolume
	for strike, entry := range byStrike {
		if entry.volume <= 0 {
			continue
		}
		rows = append(rows, models.StrikeVolume{
			Strike:      strike,
			Volume:      entry.volume,
			DistancePct: entry.distancePct,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Volume != rows[j].Volume {
			return rows[i].Volume > rows[j].Volume
		}
		return rows[i].Strike < rows[j].Strike
	})
	if len(rows) > a.config.Analytics.TopStrikes {
		rows = rows[:a.config.Analytics.TopStrikes]
	}
	return rows
}

// topStrikesByOI returns up to TopStrikes strikes by total open interest
// across both sides, descending, ties toward the lower strike.
func (a *Aggregator) topStrikesByOI(contracts []models.Contract) []models.StrikeOI {
	byStrike := make(map[float64]float64)
	for _, c := range contracts {
		byStrike[c.Strike] += c.OpenInterest
	}

	var rows []models.StrikeOI
	for strike, oi := range byStrike {
		if oi <= 0 {
			continue
		}
		rows = append(rows, models.StrikeOI{Strike: strike, OpenInterest: oi})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OpenInterest != rows[j].OpenInterest {
			return rows[i].OpenInterest > rows[j].OpenInterest
		}
		return rows[i].Strike < rows[j].Strike
	})
	if len(rows) > a.config.Analytics.TopStrikes {
		rows = rows[:a.config.Analytics.TopStrikes]
	}
	return rows
}

// topExpirationsByOI returns up to TopStrikes expirations by total open
// interest, descending, ties toward the earlier date.
func (a *Aggregator) topExpirationsByOI(snapshot *models.Snapshot) []models.ExpiryOI {
	groups := snapshot.ByExpiration()
	var rows []models.ExpiryOI
	for _, exp := range snapshot.Expirations() {
		var oi float64
		for _, c := range groups[exp] {
			oi += c.OpenInterest
		}
		if oi <= 0 {
			continue
		}
		rows = append(rows, models.ExpiryOI{Expiration: exp, OpenInterest: oi})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].OpenInterest > rows[j].OpenInterest
	})
	if len(rows) > a.config.Analytics.TopStrikes {
		rows = rows[:a.config.Analytics.TopStrikes]
	}
	return rows
}

// segments splits the snapshot into near-term, mid-term and far-dated
// tenor buckets and summarises each one.
func (a *Aggregator) segments(snapshot *models.Snapshot) []models.TenorSegmentStats {
	near := a.config.Analytics.Segments.NearTermMaxDays
	mid := a.config.Analytics.Segments.MidTermMaxDays

	defs := []models.TenorSegmentStats{
		{Name: "near_term", MinDays: 0, MaxDays: near},
		{Name: "mid_term", MinDays: near + 1, MaxDays: mid},
		{Name: "far_dated", MinDays: mid + 1, MaxDays: 0},
	}

	for i := range defs {
		seg := &defs[i]
		var members []models.Contract
		for _, c := range snapshot.Contracts {
			if c.TenorDays < seg.MinDays {
				continue
			}
			if seg.MaxDays > 0 && c.TenorDays > seg.MaxDays {
				continue
			}
			members = append(members, c)
		}

		for _, c := range members {
			if c.Side == models.SideCall {
				seg.CallsOpenInterest += c.OpenInterest
				seg.CallsVolume += c.Volume
			} else {
				seg.PutsOpenInterest += c.OpenInterest
				seg.PutsVolume += c.Volume
			}
			if len(seg.Expirations) == 0 || !seg.Expirations[len(seg.Expirations)-1].Equal(c.Expiration) {
				seg.Expirations = append(seg.Expirations, c.Expiration)
			}
		}
		seg.TotalOpenInterest = seg.CallsOpenInterest + seg.PutsOpenInterest
		seg.TotalVolume = seg.CallsVolume + seg.PutsVolume
		seg.OIPutCallRatio = models.Ratio(seg.PutsOpenInterest, seg.CallsOpenInterest)
		seg.VolumePutCallRatio = models.Ratio(seg.PutsVolume, seg.CallsVolume)
		seg.TopStrikesByOI = a.topStrikesByOI(members)
		seg.TopStrikesByVolume = a.topStrikesByVolume(members)
	}
	return defs
}
