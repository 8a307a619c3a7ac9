package processor

import (
	"math"
	"sort"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// HotspotDetector scans every smile of a built surface for points whose
// IV deviates abnormally from the smile's own mean. The baseline is
// always local to one side and tenor; calls never dilute the put smile.
type HotspotDetector struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewHotspotDetector(cfg *appconfig.Config) *HotspotDetector {
	return &HotspotDetector{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

type liquidityKey struct {
	side      models.Side
	tenorDays int
	strike    float64
}

type liquidity struct {
	volume       float64
	openInterest float64
}

// Detect evaluates every surface point and returns the flagged hotspots
// ordered by absolute deviation descending, plus a per-side summary. A
// point is flagged when its deviation from the smile mean reaches
// MinDeviationPct and, on smiles with spread, its z score reaches
// ZThreshold. A zero spread smile flags on deviation alone.
func (hd *HotspotDetector) Detect(snapshot *models.Snapshot, surface *Surface) ([]models.Hotspot, map[models.Side]models.HotspotSummary) {
	liq := make(map[liquidityKey]*liquidity)
	for _, c := range snapshot.Contracts {
		key := liquidityKey{side: c.Side, tenorDays: c.TenorDays, strike: c.Strike}
		entry, ok := liq[key]
		if !ok {
			entry = &liquidity{}
			liq[key] = entry
		}
		entry.volume += c.Volume
		entry.openInterest += c.OpenInterest
	}

	var flagged []models.Hotspot
	for _, side := range []models.Side{models.SideCall, models.SidePut} {
		for _, tenor := range surface.Tenors(side) {
			smile := surface.Smile(side, tenor)
			mean, sigma := smileStats(smile)
			if mean <= 0 {
				continue
			}
			for _, p := range smile {
				h := hd.evaluate(p, mean, sigma)
				if entry, ok := liq[liquidityKey{side: side, tenorDays: tenor, strike: p.Strike}]; ok {
					h.Volume = entry.volume
					h.OpenInterest = entry.openInterest
				}
				if h.Flagged {
					flagged = append(flagged, h)
				}
			}
		}
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		return math.Abs(flagged[i].DeviationPct) > math.Abs(flagged[j].DeviationPct)
	})

	summaries := map[models.Side]models.HotspotSummary{
		models.SideCall: hd.summarise(models.SideCall, flagged),
		models.SidePut:  hd.summarise(models.SidePut, flagged),
	}

	hd.log.WithComponent("hotspot").WithFields(logger.Fields{
		"currency": snapshot.Currency,
		"flagged":  len(flagged),
	}).Info("hotspot scan complete")
	return flagged, summaries
}

// evaluate scores one surface point against its smile baseline.
func (hd *HotspotDetector) evaluate(p models.SurfacePoint, mean, sigma float64) models.Hotspot {
	h := models.Hotspot{
		Strike:       p.Strike,
		TenorDays:    p.TenorDays,
		Side:         p.Side,
		IV:           p.IV,
		Baseline:     mean,
		DeviationPct: (p.IV - mean) / mean * 100,
		ZScore:       models.UndefinedMetric(),
	}

	zOK := true
	if sigma > 0 {
		z := (p.IV - mean) / sigma
		h.ZScore = models.DefinedMetric(z)
		zOK = math.Abs(z) >= hd.config.Analytics.Hotspots.ZThreshold
	}
	h.Flagged = math.Abs(h.DeviationPct) >= hd.config.Analytics.Hotspots.MinDeviationPct && zOK
	return h
}

// summarise aggregates one side's flagged hotspots: counts, absolute
// deviation extremes and the modal strikes, low to high on a count tie.
func (hd *HotspotDetector) summarise(side models.Side, flagged []models.Hotspot) models.HotspotSummary {
	summary := models.HotspotSummary{
		Side:             side,
		MaxDeviationPct:  models.UndefinedMetric(),
		MeanDeviationPct: models.UndefinedMetric(),
	}

	var sum float64
	strikeCounts := make(map[float64]int)
	for _, h := range flagged {
		if h.Side != side {
			continue
		}
		summary.FlaggedCount++
		dev := math.Abs(h.DeviationPct)
		sum += dev
		if !summary.MaxDeviationPct.Defined || dev > summary.MaxDeviationPct.Val {
			summary.MaxDeviationPct = models.DefinedMetric(dev)
		}
		strikeCounts[h.Strike]++
	}
	if summary.FlaggedCount == 0 {
		return summary
	}
	summary.MeanDeviationPct = models.DefinedMetric(sum / float64(summary.FlaggedCount))

	maxCount := 0
	for _, n := range strikeCounts {
		if n > maxCount {
			maxCount = n
		}
	}
	for strike, n := range strikeCounts {
		if n == maxCount {
			summary.FrequentStrikes = append(summary.FrequentStrikes, strike)
		}
	}
	sort.Float64s(summary.FrequentStrikes)
	return summary
}

// smileStats returns the mean and population standard deviation of the
// smile's IVs.
func smileStats(smile []models.SurfacePoint) (mean, sigma float64) {
	if len(smile) == 0 {
		return 0, 0
	}
	var sum float64
	for _, p := range smile {
		sum += p.IV
	}
	mean = sum / float64(len(smile))

	var sq float64
	for _, p := range smile {
		d := p.IV - mean
		sq += d * d
	}
	sigma = math.Sqrt(sq / float64(len(smile)))
	return mean, sigma
}
