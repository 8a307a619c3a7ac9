package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// MarkdownWriter renders one consolidated human readable report covering
// every currency of a run.
type MarkdownWriter struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewMarkdownWriter(cfg *appconfig.Config) *MarkdownWriter {
	return &MarkdownWriter{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

// Write renders the consolidated report and returns the written path.
// Currencies are ordered alphabetically so the document layout is stable
// across runs.
func (w *MarkdownWriter) Write(reports []*models.RunReport) (string, error) {
	if err := os.MkdirAll(w.config.Output.Directory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if len(reports) == 0 {
		return "", fmt.Errorf("no reports to render")
	}

	sorted := make([]*models.RunReport, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Currency < sorted[j].Currency })

	var b strings.Builder
	b.WriteString("# Options Market Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", sorted[0].GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	for _, report := range sorted {
		renderCurrency(&b, report)
	}

	ts := sorted[0].GeneratedAt.UTC().Format("20060102_150405")
	path := filepath.Join(w.config.Output.Directory, fmt.Sprintf("consolidated_report_%s.md", ts))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write markdown report: %w", err)
	}

	w.log.WithComponent("markdown_writer").WithFields(logger.Fields{
		"path":       path,
		"currencies": len(sorted),
	}).Info("consolidated report written")
	return path, nil
}

func renderCurrency(b *strings.Builder, report *models.RunReport) {
	agg, skew := report.Aggregates, report.Skew

	fmt.Fprintf(b, "## %s\n\n", report.Currency)
	fmt.Fprintf(b, "Underlying price: %.2f | Contracts: %d | Rejected: %d\n\n",
		report.UnderlyingPrice, report.ContractCount, report.Rejections.Total)

	b.WriteString("### Market Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Total open interest | %.2f |\n", agg.TotalOpenInterest)
	fmt.Fprintf(b, "| OI put/call ratio | %s |\n", agg.OIPutCallRatio.Format(4))
	fmt.Fprintf(b, "| Total volume | %.2f |\n", agg.TotalVolume)
	fmt.Fprintf(b, "| Volume put/call ratio | %s |\n", agg.VolumePutCallRatio.Format(4))
	fmt.Fprintf(b, "| IV range | %s / %s / %s |\n",
		agg.MinIV.Format(2), agg.AvgIV.Format(2), agg.MaxIV.Format(2))
	b.WriteString("\n")

	if len(agg.IVByExpiry) > 0 {
		b.WriteString("### IV by Expiration\n\n")
		b.WriteString("| Expiration | Mean IV |\n|---|---|\n")
		for _, row := range agg.IVByExpiry {
			fmt.Fprintf(b, "| %s | %.2f |\n", row.Expiration.UTC().Format("2006-01-02"), row.MeanIV)
		}
		b.WriteString("\n")
	}

	if len(agg.IVByNearStrike) > 0 {
		b.WriteString("### IV Near Spot\n\n")
		b.WriteString("| Strike | Mean IV |\n|---|---|\n")
		for _, row := range agg.IVByNearStrike {
			fmt.Fprintf(b, "| %.0f | %.2f |\n", row.Strike, row.MeanIV)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(b, "### Skew (reference tenor %d days, deltas: %s)\n\n",
		skew.ReferenceTenorDays, skew.DeltaSource)
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| ATM vol | %s |\n", skew.ATMVol.Format(2))
	fmt.Fprintf(b, "| 25d skew | %s |\n", skew.Skew25.Format(2))
	fmt.Fprintf(b, "| 10d skew | %s |\n", skew.Skew10.Format(2))
	fmt.Fprintf(b, "| Term slope | %s |\n", skew.TermSlope.Format(2))
	b.WriteString("\n")

	if len(agg.HighVolumeStrikes) > 0 {
		b.WriteString("### High Volume Strikes\n\n")
		b.WriteString("| Strike | Volume | Distance from spot |\n|---|---|---|\n")
		for _, s := range agg.HighVolumeStrikes {
			fmt.Fprintf(b, "| %.0f | %.2f | %+.2f%% |\n", s.Strike, s.Volume, s.DistancePct)
		}
		b.WriteString("\n")
	}

	if len(agg.Segments) > 0 {
		b.WriteString("### Expiration Timeframes\n\n")
		b.WriteString("| Segment | Open interest | Volume | OI P/C |\n|---|---|---|---|\n")
		for _, seg := range agg.Segments {
			fmt.Fprintf(b, "| %s | %.2f | %.2f | %s |\n",
				seg.Name, seg.TotalOpenInterest, seg.TotalVolume, seg.OIPutCallRatio.Format(4))
		}
		b.WriteString("\n")
	}

	b.WriteString("### Volatility Hotspots\n\n")
	if len(report.Hotspots) == 0 {
		b.WriteString("No abnormal IV deviations detected.\n\n")
		return
	}
	b.WriteString("| Strike | Tenor | Side | IV | Baseline | Deviation | Z |\n|---|---|---|---|---|---|---|\n")
	for _, h := range report.Hotspots {
		fmt.Fprintf(b, "| %.0f | %dd | %s | %.2f | %.2f | %+.2f%% | %s |\n",
			h.Strike, h.TenorDays, h.Side, h.IV, h.Baseline, h.DeviationPct, h.ZScore.Format(2))
	}
	for _, side := range []models.Side{models.SideCall, models.SidePut} {
		summary, ok := report.HotspotsBySide[side]
		if !ok || summary.FlaggedCount == 0 {
			continue
		}
		fmt.Fprintf(b, "\n%s side: %d flagged, max deviation %s%%, frequent strikes %v\n",
			side, summary.FlaggedCount, summary.MaxDeviationPct.Format(2), summary.FrequentStrikes)
	}
	b.WriteString("\n")
}
