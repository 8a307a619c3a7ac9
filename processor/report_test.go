package processor

import (
	"reflect"
	"testing"

	"optionflow/models"
)

func analyticSpecs() []contractSpec {
	return []contractSpec{
		{strike: 45000, tenorDays: 7, side: models.SidePut, iv: 58, oi: 12, volume: 4},
		{strike: 50000, tenorDays: 7, side: models.SideCall, iv: 55, oi: 20, volume: 9},
		{strike: 50000, tenorDays: 30, side: models.SideCall, iv: 60, oi: 15, volume: 6},
		{strike: 50000, tenorDays: 30, side: models.SidePut, iv: 62, oi: 10, volume: 2},
	}
}

func assembleRun(snapshot *models.Snapshot) *models.RunReport {
	config := testConfig()
	aggregates := NewAggregator(config).Aggregate(snapshot)
	source := SelectDeltaSource(snapshot, config.Analytics.DeltaProxyK)
	skew := NewSkewAnalyzer(config).Analyze(snapshot, source)
	surface := NewSurfaceBuilder().Build(snapshot)
	hotspots, summaries := NewHotspotDetector(config).Detect(snapshot, surface)
	return NewAssembler().Assemble(snapshot, aggregates, skew, hotspots, summaries)
}

func TestAssembleReportFields(t *testing.T) {
	snapshot := makeSnapshot(50000, analyticSpecs())
	snapshot.Rejections.Add("negative_iv")

	report := assembleRun(snapshot)

	if report.RunID == "" {
		t.Errorf("run id must be set")
	}
	if report.Currency != "BTC" {
		t.Errorf("currency = %s, want BTC", report.Currency)
	}
	if report.ContractCount != 4 {
		t.Errorf("contract count = %d, want 4", report.ContractCount)
	}
	if report.UnderlyingPrice != 50000 {
		t.Errorf("underlying = %v, want 50000", report.UnderlyingPrice)
	}
	if report.Rejections.Reasons["negative_iv"] != 1 {
		t.Errorf("rejections not carried into the report: %+v", report.Rejections)
	}
	if report.GeneratedAt.IsZero() {
		t.Errorf("generated at must be set")
	}
	if _, ok := report.HotspotsBySide[models.SideCall]; !ok {
		t.Errorf("call side summary missing")
	}
	if _, ok := report.HotspotsBySide[models.SidePut]; !ok {
		t.Errorf("put side summary missing")
	}
}

func TestAssembleDistinctRunIDs(t *testing.T) {
	a := assembleRun(makeSnapshot(50000, analyticSpecs()))
	b := assembleRun(makeSnapshot(50000, analyticSpecs()))
	if a.RunID == b.RunID {
		t.Errorf("two runs shared run id %s", a.RunID)
	}
}

func TestAnalyticsDeterministic(t *testing.T) {
	a := assembleRun(makeSnapshot(50000, analyticSpecs()))
	b := assembleRun(makeSnapshot(50000, analyticSpecs()))

	if !reflect.DeepEqual(a.Aggregates, b.Aggregates) {
		t.Errorf("aggregates differ across identical inputs")
	}
	if !reflect.DeepEqual(a.Skew, b.Skew) {
		t.Errorf("skew metrics differ across identical inputs")
	}
	if !reflect.DeepEqual(a.Hotspots, b.Hotspots) {
		t.Errorf("hotspots differ across identical inputs")
	}
	if !reflect.DeepEqual(a.HotspotsBySide, b.HotspotsBySide) {
		t.Errorf("hotspot summaries differ across identical inputs")
	}
}
