package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// CSVWriter emits one run's tables as per-currency CSV files in the
// output directory. File names carry the run timestamp so repeated runs
// never overwrite each other.
type CSVWriter struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewCSVWriter(cfg *appconfig.Config) *CSVWriter {
	return &CSVWriter{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

// Write produces the summary, high volume strikes, put/call by expiry
// and hotspot files for one report and returns the written paths.
func (w *CSVWriter) Write(report *models.RunReport) ([]string, error) {
	if err := os.MkdirAll(w.config.Output.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ts := report.GeneratedAt.UTC().Format("20060102_150405")
	tables := []struct {
		name string
		rows [][]string
	}{
		{"summary_stats", summaryRows(report)},
		{"high_volume_strikes", highVolumeRows(report)},
		{"put_call_by_expiry", putCallRows(report)},
		{"hotspots", hotspotRows(report)},
	}

	var paths []string
	for _, table := range tables {
		path := filepath.Join(w.config.Output.Directory,
			fmt.Sprintf("%s_%s_%s.csv", report.Currency, table.name, ts))
		if err := writeCSVFile(path, table.rows); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	w.log.WithComponent("csv_writer").WithFields(logger.Fields{
		"currency": report.Currency,
		"run_id":   report.RunID,
		"files":    len(paths),
	}).Info("csv report written")
	return paths, nil
}

func writeCSVFile(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func summaryRows(report *models.RunReport) [][]string {
	agg, skew := report.Aggregates, report.Skew
	return [][]string{
		{"metric", "value"},
		{"currency", report.Currency},
		{"run_id", report.RunID},
		{"generated_at", report.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")},
		{"underlying_price", formatFloat(report.UnderlyingPrice, 2)},
		{"contract_count", strconv.Itoa(report.ContractCount)},
		{"rejected_contracts", strconv.Itoa(report.Rejections.Total)},
		{"total_open_interest", formatFloat(agg.TotalOpenInterest, 2)},
		{"calls_open_interest", formatFloat(agg.CallsOpenInterest, 2)},
		{"puts_open_interest", formatFloat(agg.PutsOpenInterest, 2)},
		{"oi_put_call_ratio", agg.OIPutCallRatio.Format(4)},
		{"total_volume", formatFloat(agg.TotalVolume, 2)},
		{"calls_volume", formatFloat(agg.CallsVolume, 2)},
		{"puts_volume", formatFloat(agg.PutsVolume, 2)},
		{"volume_put_call_ratio", agg.VolumePutCallRatio.Format(4)},
		{"min_iv", agg.MinIV.Format(2)},
		{"avg_iv", agg.AvgIV.Format(2)},
		{"max_iv", agg.MaxIV.Format(2)},
		{"atm_vol", skew.ATMVol.Format(2)},
		{"skew_25d", skew.Skew25.Format(2)},
		{"skew_10d", skew.Skew10.Format(2)},
		{"term_slope", skew.TermSlope.Format(2)},
		{"delta_source", skew.DeltaSource},
		{"reference_tenor_days", strconv.Itoa(skew.ReferenceTenorDays)},
		{"flagged_hotspots", strconv.Itoa(len(report.Hotspots))},
	}
}

func highVolumeRows(report *models.RunReport) [][]string {
	rows := [][]string{{"strike", "volume", "distance_pct"}}
	for _, s := range report.Aggregates.HighVolumeStrikes {
		rows = append(rows, []string{
			formatFloat(s.Strike, 2),
			formatFloat(s.Volume, 2),
			formatFloat(s.DistancePct, 2),
		})
	}
	return rows
}

func putCallRows(report *models.RunReport) [][]string {
	rows := [][]string{{"expiration", "calls_oi", "puts_oi", "put_call_ratio"}}
	for _, e := range report.Aggregates.PutCallByExpiry {
		rows = append(rows, []string{
			e.Expiration.UTC().Format("2006-01-02"),
			formatFloat(e.CallsOI, 2),
			formatFloat(e.PutsOI, 2),
			e.Ratio.Format(4),
		})
	}
	return rows
}

func hotspotRows(report *models.RunReport) [][]string {
	rows := [][]string{{
		"strike", "tenor_days", "side", "iv", "baseline",
		"deviation_pct", "z_score", "volume", "open_interest",
	}}
	for _, h := range report.Hotspots {
		rows = append(rows, []string{
			formatFloat(h.Strike, 2),
			strconv.Itoa(h.TenorDays),
			string(h.Side),
			formatFloat(h.IV, 2),
			formatFloat(h.Baseline, 2),
			formatFloat(h.DeviationPct, 2),
			h.ZScore.Format(2),
			formatFloat(h.Volume, 2),
			formatFloat(h.OpenInterest, 2),
		})
	}
	return rows
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
