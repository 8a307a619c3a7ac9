package processor

import (
	"testing"

	"optionflow/models"
)

func TestAggregateIVRange(t *testing.T) {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 45000, tenorDays: 28, side: models.SidePut, iv: 50, oi: 10},
		{strike: 48000, tenorDays: 28, side: models.SidePut, iv: 55, oi: 10},
		{strike: 50000, tenorDays: 28, side: models.SideCall, iv: 60, oi: 10},
		{strike: 55000, tenorDays: 28, side: models.SideCall, iv: 70, oi: 10},
		{strike: 60000, tenorDays: 28, side: models.SideCall, iv: 75, oi: 10},
		// Unobserved IV must not drag the average down.
		{strike: 65000, tenorDays: 28, side: models.SideCall, iv: 0, oi: 10},
	})

	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	if v, ok := stats.MinIV.Float(); !ok || v != 50 {
		t.Errorf("min iv = %v (%v), want 50", v, ok)
	}
	if v, ok := stats.AvgIV.Float(); !ok || !almostEqual(v, 62.0) {
		t.Errorf("avg iv = %v (%v), want 62.0", v, ok)
	}
	if v, ok := stats.MaxIV.Float(); !ok || v != 75 {
		t.Errorf("max iv = %v (%v), want 75", v, ok)
	}
}

func TestAggregateTotalsAndRatios(t *testing.T) {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 45000, tenorDays: 28, side: models.SidePut, iv: 55, oi: 30, volume: 6},
		{strike: 50000, tenorDays: 28, side: models.SideCall, iv: 60, oi: 40, volume: 10},
		{strike: 55000, tenorDays: 28, side: models.SideCall, iv: 65, oi: 20, volume: 2},
	})

	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	if stats.TotalOpenInterest != 90 {
		t.Errorf("total oi = %v, want 90", stats.TotalOpenInterest)
	}
	if stats.CallsOpenInterest != 60 || stats.PutsOpenInterest != 30 {
		t.Errorf("oi split = %v/%v, want 60/30", stats.CallsOpenInterest, stats.PutsOpenInterest)
	}
	if v, ok := stats.OIPutCallRatio.Float(); !ok || !almostEqual(v, 0.5) {
		t.Errorf("oi p/c = %v (%v), want 0.5", v, ok)
	}
	if v, ok := stats.VolumePutCallRatio.Float(); !ok || !almostEqual(v, 0.5) {
		t.Errorf("volume p/c = %v (%v), want 0.5", v, ok)
	}
}

func TestAggregateZeroCallSideRatioUndefined(t *testing.T) {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 45000, tenorDays: 28, side: models.SidePut, iv: 55, oi: 30, volume: 6},
	})

	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	if stats.OIPutCallRatio.Defined {
		t.Errorf("oi p/c should be undefined with no call open interest")
	}
	if stats.VolumePutCallRatio.Defined {
		t.Errorf("volume p/c should be undefined with no call volume")
	}
}

func TestAggregateHighVolumeStrikes(t *testing.T) {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 40000, tenorDays: 28, side: models.SidePut, iv: 55, volume: 0, oi: 5},
		{strike: 45000, tenorDays: 28, side: models.SidePut, iv: 55, volume: 8, oi: 5},
		{strike: 50000, tenorDays: 28, side: models.SideCall, iv: 60, volume: 12, oi: 5},
		{strike: 50000, tenorDays: 28, side: models.SidePut, iv: 58, volume: 3, oi: 5},
		{strike: 55000, tenorDays: 28, side: models.SideCall, iv: 65, volume: 8, oi: 5},
	})

	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	rows := stats.HighVolumeStrikes
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d (zero volume strikes must be excluded)", len(rows))
	}
	// Strike 50000 sums both sides to 15; the 8 volume tie breaks toward
	// the lower strike.
	if rows[0].Strike != 50000 || !almostEqual(rows[0].Volume, 15) {
		t.Errorf("first row = %+v, want strike 50000 volume 15", rows[0])
	}
	if rows[1].Strike != 45000 || rows[2].Strike != 55000 {
		t.Errorf("tie order = %v, %v, want 45000 then 55000", rows[1].Strike, rows[2].Strike)
	}
	if !almostEqual(rows[1].DistancePct, -10.0) {
		t.Errorf("distance pct = %v, want -10.0", rows[1].DistancePct)
	}
}

func TestAggregateEmptySnapshot(t *testing.T) {
	snapshot := makeSnapshot(50000, nil)
	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	if stats.TotalOpenInterest != 0 || stats.TotalVolume != 0 {
		t.Errorf("totals = %v/%v, want zero", stats.TotalOpenInterest, stats.TotalVolume)
	}
	for name, m := range map[string]models.Metric{
		"oi p/c":     stats.OIPutCallRatio,
		"volume p/c": stats.VolumePutCallRatio,
		"min iv":     stats.MinIV,
		"avg iv":     stats.AvgIV,
		"max iv":     stats.MaxIV,
	} {
		if m.Defined {
			t.Errorf("%s should be undefined on an empty snapshot", name)
		}
	}
	if len(stats.HighVolumeStrikes) != 0 || len(stats.PutCallByExpiry) != 0 {
		t.Errorf("tables should be empty")
	}
	if len(stats.IVByExpiry) != 0 || len(stats.IVByNearStrike) != 0 {
		t.Errorf("iv tables should be empty")
	}
}

func TestAggregateIVTables(t *testing.T) {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 45000, tenorDays: 7, side: models.SidePut, iv: 50},
		{strike: 50000, tenorDays: 7, side: models.SideCall, iv: 60},
		{strike: 50000, tenorDays: 35, side: models.SidePut, iv: 70},
		// Unobserved IV contributes to neither table.
		{strike: 50000, tenorDays: 35, side: models.SideCall, iv: 0},
		// Outside the 20% near-spot band, so only the expiry table sees it.
		{strike: 80000, tenorDays: 35, side: models.SideCall, iv: 90},
	})

	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	if len(stats.IVByExpiry) != 2 {
		t.Fatalf("iv by expiry rows = %d, want 2", len(stats.IVByExpiry))
	}
	if !almostEqual(stats.IVByExpiry[0].MeanIV, 55) {
		t.Errorf("near expiry mean iv = %v, want 55", stats.IVByExpiry[0].MeanIV)
	}
	if !almostEqual(stats.IVByExpiry[1].MeanIV, 80) {
		t.Errorf("far expiry mean iv = %v, want 80", stats.IVByExpiry[1].MeanIV)
	}

	rows := stats.IVByNearStrike
	if len(rows) != 2 {
		t.Fatalf("near strike rows = %d, want 2", len(rows))
	}
	if rows[0].Strike != 45000 || !almostEqual(rows[0].MeanIV, 50) {
		t.Errorf("first row = %+v, want 45000 with 50", rows[0])
	}
	// Strike 50000 averages both sides and expirations with observed IV.
	if rows[1].Strike != 50000 || !almostEqual(rows[1].MeanIV, 65) {
		t.Errorf("second row = %+v, want 50000 with 65", rows[1])
	}
}

func TestAggregatePutCallByExpiry(t *testing.T) {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 45000, tenorDays: 7, side: models.SidePut, iv: 55, oi: 10},
		{strike: 50000, tenorDays: 7, side: models.SideCall, iv: 60, oi: 20},
		{strike: 50000, tenorDays: 35, side: models.SideCall, iv: 62, oi: 8},
	})

	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	rows := stats.PutCallByExpiry
	if len(rows) != 2 {
		t.Fatalf("expected 2 expirations, got %d", len(rows))
	}
	if v, ok := rows[0].Ratio.Float(); !ok || !almostEqual(v, 0.5) {
		t.Errorf("near expiry ratio = %v (%v), want 0.5", v, ok)
	}
	// No puts at the far expiry: the ratio is a defined zero, not
	// undefined, because the call denominator is positive.
	if v, ok := rows[1].Ratio.Float(); !ok || v != 0 {
		t.Errorf("far expiry ratio = %v (%v), want defined 0", v, ok)
	}
}

func TestAggregateSegments(t *testing.T) {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 50000, tenorDays: 7, side: models.SideCall, iv: 60, oi: 10, volume: 4},
		{strike: 50000, tenorDays: 14, side: models.SidePut, iv: 58, oi: 6, volume: 2},
		{strike: 50000, tenorDays: 30, side: models.SideCall, iv: 62, oi: 12, volume: 5},
		{strike: 50000, tenorDays: 90, side: models.SidePut, iv: 64, oi: 3, volume: 1},
	})

	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	if len(stats.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(stats.Segments))
	}
	near, mid, far := stats.Segments[0], stats.Segments[1], stats.Segments[2]

	if near.TotalOpenInterest != 16 {
		t.Errorf("near term oi = %v, want 16", near.TotalOpenInterest)
	}
	if len(near.Expirations) != 2 {
		t.Errorf("near term expirations = %d, want 2", len(near.Expirations))
	}
	if mid.TotalOpenInterest != 12 {
		t.Errorf("mid term oi = %v, want 12", mid.TotalOpenInterest)
	}
	if v, ok := mid.OIPutCallRatio.Float(); !ok || v != 0 {
		t.Errorf("mid term p/c = %v (%v), want defined 0", v, ok)
	}
	if far.TotalOpenInterest != 3 {
		t.Errorf("far dated oi = %v, want 3", far.TotalOpenInterest)
	}
	if far.MaxDays != 0 {
		t.Errorf("far dated bucket must be unbounded")
	}
}

func TestAggregateTopByOpenInterest(t *testing.T) {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 45000, tenorDays: 7, side: models.SidePut, iv: 55, oi: 50},
		{strike: 50000, tenorDays: 7, side: models.SideCall, iv: 60, oi: 30},
		{strike: 50000, tenorDays: 35, side: models.SidePut, iv: 61, oi: 30},
		{strike: 55000, tenorDays: 35, side: models.SideCall, iv: 62, oi: 10},
	})

	stats := NewAggregator(testConfig()).Aggregate(snapshot)

	if len(stats.TopStrikesByOI) != 3 {
		t.Fatalf("top strikes rows = %d, want 3", len(stats.TopStrikesByOI))
	}
	// Strike 50000 aggregates across expirations to 60.
	if stats.TopStrikesByOI[0].Strike != 50000 || stats.TopStrikesByOI[0].OpenInterest != 60 {
		t.Errorf("top strike = %+v, want 50000 with 60", stats.TopStrikesByOI[0])
	}
	if len(stats.TopExpirationsByOI) != 2 {
		t.Fatalf("top expirations rows = %d, want 2", len(stats.TopExpirationsByOI))
	}
	if stats.TopExpirationsByOI[0].OpenInterest != 80 {
		t.Errorf("top expiration oi = %v, want 80", stats.TopExpirationsByOI[0].OpenInterest)
	}
}
