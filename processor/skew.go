package processor

import (
	"math"
	"time"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// DeltaSource supplies a delta for a contract. One source is chosen per
// analysis run and used for every contract in it, so a single run never
// mixes provided and proxied deltas.
type DeltaSource interface {
	Delta(c models.Contract, spot float64) (float64, bool)
	Name() string
}

// ProvidedDelta passes through provider-supplied greeks.
type ProvidedDelta struct{}

func (ProvidedDelta) Delta(c models.Contract, _ float64) (float64, bool) {
	if c.Delta == nil {
		return 0, false
	}
	return *c.Delta, true
}

func (ProvidedDelta) Name() string { return "provided" }

// ProxyDelta approximates delta from log-moneyness:
//
//	delta = sign * clamp(0.5 - ln(strike/spot)/k, 0, 1)
//
// where sign is +1 for calls and -1 for puts. K controls how quickly the
// proxy saturates away from the money.
type ProxyDelta struct {
	K float64
}

func (p ProxyDelta) Delta(c models.Contract, spot float64) (float64, bool) {
	if spot <= 0 || c.Strike <= 0 {
		return 0, false
	}
	m := 0.5 - math.Log(c.Strike/spot)/p.K
	if m < 0 {
		m = 0
	} else if m > 1 {
		m = 1
	}
	return c.Side.Sign() * m, true
}

func (p ProxyDelta) Name() string { return "log-moneyness proxy" }

// SelectDeltaSource picks the delta strategy for a snapshot: provided
// deltas only when every accepted contract carries one, the proxy
// otherwise.
func SelectDeltaSource(snapshot *models.Snapshot, k float64) DeltaSource {
	if snapshot.HasProvidedDeltas() {
		return ProvidedDelta{}
	}
	return ProxyDelta{K: k}
}

// SkewAnalyzer derives delta-bucketed skew metrics for the expiration
// nearest the reference tenor, plus the ATM term structure slope across
// the shortest and longest expirations.
type SkewAnalyzer struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewSkewAnalyzer(cfg *appconfig.Config) *SkewAnalyzer {
	return &SkewAnalyzer{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

// Analyze computes SkewMetrics for the snapshot. Every figure degrades
// independently: a missing 10 delta wing leaves Skew10 undefined without
// touching ATMVol or Skew25.
func (sa *SkewAnalyzer) Analyze(snapshot *models.Snapshot, source DeltaSource) models.SkewMetrics {
	metrics := models.SkewMetrics{
		DeltaSource: source.Name(),
		ATMVol:      models.UndefinedMetric(),
		Skew25:      models.UndefinedMetric(),
		Skew10:      models.UndefinedMetric(),
		TermSlope:   models.UndefinedMetric(),
	}
	if snapshot.Empty() {
		return metrics
	}

	groups := snapshot.ByExpiration()
	expirations := snapshot.Expirations()

	// Reference expiry: tenor closest to the configured target, earlier
	// date on a tie.
	ref := expirations[0]
	refTenor := groups[ref][0].TenorDays
	target := sa.config.Analytics.ReferenceTenorDays
	for _, exp := range expirations[1:] {
		tenor := groups[exp][0].TenorDays
		if abs(tenor-target) < abs(refTenor-target) {
			ref, refTenor = exp, tenor
		}
	}
	metrics.ReferenceExpiry = ref
	metrics.ReferenceTenorDays = refTenor

	spot := snapshot.UnderlyingPrice
	refContracts := groups[ref]

	metrics.ATMVol = sa.atmVol(refContracts, source, spot)
	metrics.Skew25 = sa.wingSkew(refContracts, source, spot, 0.25)
	metrics.Skew10 = sa.wingSkew(refContracts, source, spot, 0.10)
	metrics.TermSlope = sa.termSlope(groups, expirations, source, spot)

	sa.log.WithComponent("skew").WithFields(logger.Fields{
		"currency":         snapshot.Currency,
		"reference_expiry": ref.Format("2006-01-02"),
		"delta_source":     source.Name(),
		"atm_vol":          metrics.ATMVol.Format(2),
	}).Debug("skew metrics derived")
	return metrics
}

// atmVol averages the per-side IVs nearest |delta| = 0.5 within one
// expiration. No distance gate applies; a single available side is used
// on its own.
func (sa *SkewAnalyzer) atmVol(contracts []models.Contract, source DeltaSource, spot float64) models.Metric {
	var sum float64
	var n int
	for _, side := range []models.Side{models.SideCall, models.SidePut} {
		iv, _, ok := nearestByDelta(contracts, side, source, spot, 0.5)
		if ok {
			sum += iv
			n++
		}
	}
	if n == 0 {
		return models.UndefinedMetric()
	}
	return models.DefinedMetric(sum / float64(n))
}

// wingSkew computes put IV minus call IV at the target |delta|. A leg
// whose nearest contract sits further than MaxDeltaDistance from the
// target is unavailable and leaves the whole figure undefined.
func (sa *SkewAnalyzer) wingSkew(contracts []models.Contract, source DeltaSource, spot, target float64) models.Metric {
	putIV, putDist, okPut := nearestByDelta(contracts, models.SidePut, source, spot, target)
	callIV, callDist, okCall := nearestByDelta(contracts, models.SideCall, source, spot, target)
	maxDist := sa.config.Analytics.MaxDeltaDistance
	if !okPut || !okCall || putDist > maxDist || callDist > maxDist {
		return models.UndefinedMetric()
	}
	return models.DefinedMetric(putIV - callIV)
}

// termSlope is the ATM IV difference between the longest and shortest
// expirations, per year of tenor. It needs at least two expirations with
// an available ATM figure.
func (sa *SkewAnalyzer) termSlope(groups map[time.Time][]models.Contract, expirations []time.Time, source DeltaSource, spot float64) models.Metric {
	if len(expirations) < 2 {
		return models.UndefinedMetric()
	}
	short, long := expirations[0], expirations[len(expirations)-1]
	shortATM := sa.atmVol(groups[short], source, spot)
	longATM := sa.atmVol(groups[long], source, spot)
	if !shortATM.Defined || !longATM.Defined {
		return models.UndefinedMetric()
	}
	years := float64(groups[long][0].TenorDays-groups[short][0].TenorDays) / 365.0
	if years <= 0 {
		return models.UndefinedMetric()
	}
	return models.DefinedMetric((longATM.Val - shortATM.Val) / years)
}

// nearestByDelta finds the contract of the given side whose |delta| is
// closest to target, considering only contracts with an observed mark IV
// and an available delta. Ties break toward the strike nearest spot.
// Returns the contract's IV and its |delta| distance from the target.
func nearestByDelta(contracts []models.Contract, side models.Side, source DeltaSource, spot, target float64) (iv, dist float64, ok bool) {
	var best models.Contract
	bestDist := math.MaxFloat64
	for _, c := range contracts {
		if c.Side != side || c.MarkIV <= 0 {
			continue
		}
		delta, available := source.Delta(c, spot)
		if !available {
			continue
		}
		d := math.Abs(math.Abs(delta) - target)
		if d < bestDist ||
			(d == bestDist && math.Abs(c.Strike-spot) < math.Abs(best.Strike-spot)) {
			best, bestDist = c, d
			ok = true
		}
	}
	if !ok {
		return 0, 0, false
	}
	return best.MarkIV, bestDist, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
