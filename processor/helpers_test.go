package processor

import (
	"math"
	"sort"
	"time"

	appconfig "optionflow/config"
	"optionflow/models"
)

var testNow = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

func testConfig() *appconfig.Config {
	cfg := appconfig.DefaultConfig()
	return &cfg
}

type contractSpec struct {
	strike    float64
	tenorDays int
	side      models.Side
	iv        float64
	volume    float64
	oi        float64
	delta     *float64
}

func makeSnapshot(spot float64, specs []contractSpec) *models.Snapshot {
	snapshot := &models.Snapshot{
		Currency:        "BTC",
		Timestamp:       testNow,
		UnderlyingPrice: spot,
	}
	for _, s := range specs {
		exp := testNow.AddDate(0, 0, s.tenorDays)
		snapshot.Contracts = append(snapshot.Contracts, models.Contract{
			Currency:        "BTC",
			Strike:          s.strike,
			Expiration:      exp,
			TenorDays:       s.tenorDays,
			Side:            s.side,
			OpenInterest:    s.oi,
			Volume:          s.volume,
			MarkIV:          s.iv,
			UnderlyingPrice: spot,
			Delta:           s.delta,
			DistancePct:     (s.strike - spot) / spot * 100,
		})
	}
	sort.SliceStable(snapshot.Contracts, func(i, j int) bool {
		a, b := snapshot.Contracts[i], snapshot.Contracts[j]
		if !a.Expiration.Equal(b.Expiration) {
			return a.Expiration.Before(b.Expiration)
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.Side < b.Side
	})
	return snapshot
}

func floatPtr(v float64) *float64 { return &v }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
