package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"optionflow/config"
	"optionflow/logger"
	"optionflow/models"
	"optionflow/pipeline"
	"optionflow/reader/deribit"
	"optionflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single analysis pass and exit, ignoring the schedule")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":    cfg.Optionflow.Name,
		"version":    cfg.Optionflow.Version,
		"currencies": cfg.Currencies,
	}).Info("starting optionflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Logging.DashboardName != "" && cfg.Storage.S3.Region != "" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Optionflow.Name, cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	client := deribit.NewClient(cfg)
	p := pipeline.New(cfg, client)

	exporter, err := writer.NewExporter(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to create exporter")
		os.Exit(1)
	}

	if *once || cfg.Schedule.Cron == "" {
		runAnalysis(ctx, p, exporter, log)
		log.Info("optionflow finished")
		return
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Schedule.Cron, func() {
		runAnalysis(ctx, p, exporter, log)
	}); err != nil {
		log.WithError(err).Error("invalid cron schedule")
		os.Exit(1)
	}
	scheduler.Start()
	log.WithFields(logger.Fields{"schedule": cfg.Schedule.Cron}).Info("scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("optionflow stopped")
}

// runAnalysis executes one full pass over every configured currency and
// exports whatever succeeded. Per-currency failures are already logged
// by the pipeline; an empty pass only warrants an error entry.
func runAnalysis(ctx context.Context, p *pipeline.Pipeline, exporter *writer.Exporter, log *logger.Log) {
	results, errs := p.RunAll(ctx)
	if len(results) == 0 {
		log.WithComponent("main").WithFields(logger.Fields{
			"failed": len(errs),
		}).Error("no currency produced a report")
		return
	}

	reports := make([]*models.RunReport, 0, len(results))
	snapshots := make(map[string]*models.Snapshot, len(results))
	for currency, res := range results {
		reports = append(reports, res.Report)
		snapshots[currency] = res.Snapshot
	}

	if err := exporter.Export(reports, snapshots); err != nil {
		log.WithComponent("main").WithError(err).Error("export incomplete")
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"succeeded": len(results),
		"failed":    len(errs),
	}).Info("analysis pass complete")
}
