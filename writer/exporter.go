package writer

import (
	"context"
	"fmt"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// Exporter fans one run's outputs out to every enabled format. Formats
// are independent: a markdown failure does not stop the CSV files, and
// all errors are reported together.
type Exporter struct {
	config   *appconfig.Config
	csv      *CSVWriter
	markdown *MarkdownWriter
	parquet  *ParquetWriter
	log      *logger.Log
}

func NewExporter(ctx context.Context, cfg *appconfig.Config) (*Exporter, error) {
	var uploader *Uploader
	if cfg.Storage.S3.Enabled {
		var err error
		uploader, err = NewUploader(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	return &Exporter{
		config:   cfg,
		csv:      NewCSVWriter(cfg),
		markdown: NewMarkdownWriter(cfg),
		parquet:  NewParquetWriter(cfg, uploader),
		log:      logger.GetLogger(),
	}, nil
}

// Export writes every enabled format for the run. Reports drive the CSV
// and markdown outputs; snapshots drive the parquet archive.
func (e *Exporter) Export(reports []*models.RunReport, snapshots map[string]*models.Snapshot) error {
	var errs []error

	if e.config.Output.Formats.CSV {
		for _, report := range reports {
			if _, err := e.csv.Write(report); err != nil {
				errs = append(errs, fmt.Errorf("csv %s: %w", report.Currency, err))
			}
		}
	}

	if e.config.Output.Formats.Markdown && len(reports) > 0 {
		if _, err := e.markdown.Write(reports); err != nil {
			errs = append(errs, fmt.Errorf("markdown: %w", err))
		}
	}

	if e.config.Output.Formats.Parquet {
		for currency, snapshot := range snapshots {
			if snapshot.Empty() {
				continue
			}
			if _, err := e.parquet.Archive(snapshot); err != nil {
				errs = append(errs, fmt.Errorf("parquet %s: %w", currency, err))
			}
		}
	}

	if len(errs) > 0 {
		for _, err := range errs {
			e.log.WithComponent("exporter").WithError(err).Error("export failed")
		}
		return fmt.Errorf("%d export failures, first: %w", len(errs), errs[0])
	}
	return nil
}
