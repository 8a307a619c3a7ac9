package processor

import (
	"math"
	"sort"
	"time"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// Rejection reasons counted by the ingestor.
const (
	rejectNonPositiveStrike     = "non_positive_strike"
	rejectNegativeIV            = "negative_iv"
	rejectNegativeOpenInterest  = "negative_open_interest"
	rejectNegativeVolume        = "negative_volume"
	rejectUnknownSide           = "unknown_side"
	rejectBadExpiration         = "bad_expiration"
	rejectNonPositiveUnderlying = "non_positive_underlying"
)

// Ingestor validates and normalizes raw per-instrument records into a
// canonical Snapshot. Malformed records are dropped and counted, never
// raised; an empty accepted set yields a valid empty Snapshot.
type Ingestor struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewIngestor(cfg *appconfig.Config) *Ingestor {
	return &Ingestor{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

// Ingest builds a Snapshot from the raw chain. Accepted contracts are
// ordered by expiration, then strike, then side, so every downstream
// derivation sees a deterministic sequence.
func (in *Ingestor) Ingest(chain *models.RawChain) *models.Snapshot {
	log := in.log.WithComponent("ingestor").WithFields(logger.Fields{
		"currency": chain.Currency,
		"records":  len(chain.Records),
	})

	snapshot := &models.Snapshot{
		Currency:        chain.Currency,
		Timestamp:       chain.Timestamp,
		UnderlyingPrice: chain.UnderlyingPrice,
	}

	for _, rec := range chain.Records {
		contract, reason := in.normalize(chain, rec)
		if reason != "" {
			snapshot.Rejections.Add(reason)
			continue
		}
		snapshot.Contracts = append(snapshot.Contracts, contract)
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

	if snapshot.Rejections.Total > 0 {
		log.WithFields(logger.Fields{
			"rejected": snapshot.Rejections.Total,
			"reasons":  snapshot.Rejections.Reasons,
		}).Warn("rejected malformed contracts")
	}

	log.WithFields(logger.Fields{"accepted": len(snapshot.Contracts)}).Info("snapshot ingested")
	return snapshot
}

// normalize validates a single record. It returns the canonical contract
// or a non-empty rejection reason.
func (in *Ingestor) normalize(chain *models.RawChain, rec models.RawOptionRecord) (models.Contract, string) {
	if rec.Strike <= 0 {
		return models.Contract{}, rejectNonPositiveStrike
	}
	if rec.MarkIV < 0 {
		return models.Contract{}, rejectNegativeIV
	}
	if rec.OpenInterest < 0 {
		return models.Contract{}, rejectNegativeOpenInterest
	}
	if rec.Volume < 0 {
		return models.Contract{}, rejectNegativeVolume
	}
	if rec.ExpirationTimestamp <= 0 {
		return models.Contract{}, rejectBadExpiration
	}
	if rec.UnderlyingPrice <= 0 {
		return models.Contract{}, rejectNonPositiveUnderlying
	}

	side, err := models.ParseSide(rec.OptionType)
	if err != nil {
		return models.Contract{}, rejectUnknownSide
	}

	expiration := time.UnixMilli(rec.ExpirationTimestamp).UTC()

	tenorDays := int(math.Round(expiration.Sub(chain.Timestamp).Hours() / 24))
	if tenorDays < 0 {
		tenorDays = 0
	}

	// A delta outside [-1,1] cannot be a real greek; treat it as absent
	// so the proxy strategy takes over.
	delta := rec.Delta
	if delta != nil && (*delta < -1 || *delta > 1) {
		delta = nil
	}

	return models.Contract{
		Currency:        chain.Currency,
		InstrumentName:  rec.InstrumentName,
		Strike:          rec.Strike,
		Expiration:      expiration,
		TenorDays:       tenorDays,
		Side:            side,
		OpenInterest:    rec.OpenInterest,
		Volume:          rec.Volume,
		MarkIV:          rec.MarkIV,
		UnderlyingPrice: rec.UnderlyingPrice,
		Delta:           delta,
		DistancePct:     (rec.Strike - chain.UnderlyingPrice) / chain.UnderlyingPrice * 100,
	}, ""
}
