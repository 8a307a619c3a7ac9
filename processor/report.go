package processor

import (
	"time"

	"github.com/google/uuid"

	"optionflow/logger"
	"optionflow/models"
)

// Assembler merges every derived output into the immutable per-run
// report. The report is built in full before any exporter sees it; a
// later run never mutates an earlier report.
type Assembler struct {
	log *logger.Log
}

func NewAssembler() *Assembler {
	return &Assembler{log: logger.GetLogger()}
}

func (as *Assembler) Assemble(
	snapshot *models.Snapshot,
	aggregates models.AggregateStats,
	skew models.SkewMetrics,
	hotspots []models.Hotspot,
	summaries map[models.Side]models.HotspotSummary,
) *models.RunReport {
	report := &models.RunReport{
		RunID:           uuid.NewString(),
		Currency:        snapshot.Currency,
		GeneratedAt:     time.Now().UTC(),
		UnderlyingPrice: snapshot.UnderlyingPrice,
		ContractCount:   len(snapshot.Contracts),
		Rejections:      snapshot.Rejections,
		Aggregates:      aggregates,
		Skew:            skew,
		Hotspots:        hotspots,
		HotspotsBySide:  summaries,
	}

	as.log.WithComponent("assembler").WithFields(logger.Fields{
		"run_id":    report.RunID,
		"currency":  report.Currency,
		"contracts": report.ContractCount,
		"hotspots":  len(report.Hotspots),
	}).Info("run report assembled")
	return report
}
