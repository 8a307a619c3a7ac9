package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
	"optionflow/processor"
)

// Provider fetches the raw option chain for one currency.
type Provider interface {
	FetchOptionChain(ctx context.Context, currency string) (*models.RawChain, error)
}

// Result bundles one currency's run outputs: the assembled report plus
// the queryable surface and the validated snapshot behind it.
type Result struct {
	Report   *models.RunReport
	Surface  *processor.Surface
	Snapshot *models.Snapshot
}

// Pipeline drives one full analysis pass per currency: fetch, ingest,
// derive, assemble. Construction wires the stages once; Run may be
// called repeatedly (scheduled runs reuse the same pipeline).
type Pipeline struct {
	config     *appconfig.Config
	provider   Provider
	ingestor   *processor.Ingestor
	aggregator *processor.Aggregator
	skew       *processor.SkewAnalyzer
	surfaces   *processor.SurfaceBuilder
	hotspots   *processor.HotspotDetector
	assembler  *processor.Assembler
	log        *logger.Log
}

func New(cfg *appconfig.Config, provider Provider) *Pipeline {
	return &Pipeline{
		config:     cfg,
		provider:   provider,
		ingestor:   processor.NewIngestor(cfg),
		aggregator: processor.NewAggregator(cfg),
		skew:       processor.NewSkewAnalyzer(cfg),
		surfaces:   processor.NewSurfaceBuilder(),
		hotspots:   processor.NewHotspotDetector(cfg),
		assembler:  processor.NewAssembler(),
		log:        logger.GetLogger(),
	}
}

// Run executes one analysis pass for a single currency. The aggregate
// and skew derivations only read the immutable snapshot, so they run
// concurrently with the surface build; hotspot detection needs the built
// surface and follows it.
func (p *Pipeline) Run(ctx context.Context, currency string) (*Result, error) {
	start := time.Now()
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"currency": currency})

	chain, err := p.provider.FetchOptionChain(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("fetch option chain for %s: %w", currency, err)
	}

	snapshot := p.ingestor.Ingest(chain)
	source := processor.SelectDeltaSource(snapshot, p.config.Analytics.DeltaProxyK)

	var (
		aggregates models.AggregateStats
		skewM      models.SkewMetrics
		surface    *processor.Surface
	)

	var g errgroup.Group
	g.Go(func() error {
		aggregates = p.aggregator.Aggregate(snapshot)
		return nil
	})
	g.Go(func() error {
		skewM = p.skew.Analyze(snapshot, source)
		return nil
	})
	g.Go(func() error {
		surface = p.surfaces.Build(snapshot)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flagged, summaries := p.hotspots.Detect(snapshot, surface)
	report := p.assembler.Assemble(snapshot, aggregates, skewM, flagged, summaries)

	p.emitRunMetrics(currency, report, surface)
	logger.LogPerformanceEntry(log, "pipeline", "run", time.Since(start), logger.Fields{
		"contracts": report.ContractCount,
		"rejected":  report.Rejections.Total,
		"hotspots":  len(report.Hotspots),
	})
	return &Result{Report: report, Surface: surface, Snapshot: snapshot}, nil
}

// emitRunMetrics publishes the run's headline counters plus a per-side
// gauge of the at-the-money mark IV at the shortest populated tenor.
func (p *Pipeline) emitRunMetrics(currency string, report *models.RunReport, surface *processor.Surface) {
	p.log.LogMetric("pipeline", "contracts_accepted", report.ContractCount, "counter",
		logger.Fields{"currency": currency})
	p.log.LogMetric("pipeline", "contracts_rejected", report.Rejections.Total, "counter",
		logger.Fields{"currency": currency})
	p.log.LogMetric("pipeline", "hotspots_flagged", len(report.Hotspots), "counter",
		logger.Fields{"currency": currency})

	for _, side := range []models.Side{models.SideCall, models.SidePut} {
		tenors := surface.Tenors(side)
		if len(tenors) == 0 {
			continue
		}
		point, ok := surface.AtTheMoney(side, report.UnderlyingPrice, tenors[0])
		if !ok {
			continue
		}
		p.log.LogMetric("pipeline", "atm_mark_iv", point.IV, "gauge", logger.Fields{
			"currency":   currency,
			"side":       string(side),
			"tenor_days": point.TenorDays,
		})
	}
}

// RunAll runs every configured currency concurrently. One currency's
// failure never blocks the others; the error map records what failed.
func (p *Pipeline) RunAll(ctx context.Context) (map[string]*Result, map[string]error) {
	results := make(map[string]*Result)
	errs := make(map[string]error)
	var mu sync.Mutex

	var g errgroup.Group
	for _, currency := range p.config.Currencies {
		currency := currency
		g.Go(func() error {
			res, err := p.Run(ctx, currency)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.WithComponent("pipeline").WithError(err).WithFields(logger.Fields{
					"currency": currency,
				}).Error("currency run failed")
				errs[currency] = err
				return nil
			}
			results[currency] = res
			return nil
		})
	}
	// Closures record failures in errs and always return nil.
	_ = g.Wait()

	return results, errs
}
