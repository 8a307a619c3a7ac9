package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Client fetches option chain data from the Deribit public REST API. It
// owns rate limiting and retry; it performs no validation beyond
// transport and JSON decoding.
type Client struct {
	config  *appconfig.Config
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient creates a Deribit client from the provider configuration.
func NewClient(cfg *appconfig.Config) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Provider.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Provider.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Provider.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Provider.ConnectionPool.IdleConnTimeout,
	}

	limiter := rate.NewLimiter(
		rate.Limit(cfg.Provider.RateLimit.RequestsPerSecond),
		cfg.Provider.RateLimit.BurstSize,
	)

	client := &Client{
		config:  cfg,
		baseURL: strings.TrimRight(cfg.Provider.BaseURL, "/"),
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Provider.Timeout,
		},
		limiter: limiter,
		log:     logger.GetLogger(),
	}

	client.log.WithComponent("deribit_client").WithFields(logger.Fields{
		"base_url":            client.baseURL,
		"timeout":             cfg.Provider.Timeout,
		"requests_per_second": cfg.Provider.RateLimit.RequestsPerSecond,
	}).Info("deribit client initialized")

	return client
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

// get performs a rate-limited GET against a public API method and decodes
// the result payload into out, retrying transient failures with
// exponential backoff.
func (c *Client) get(ctx context.Context, method string, params url.Values, out interface{}) error {
	log := c.log.WithComponent("deribit_client").WithFields(logger.Fields{"method": method})

	endpoint := fmt.Sprintf("%s/public/%s", c.baseURL, method)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	boff := &backoff.Backoff{
		Min:    c.config.Provider.Retry.BaseDelay,
		Max:    c.config.Provider.Retry.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.Provider.Retry.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		body, err := c.doRequest(ctx, endpoint)
		if err == nil {
			var envelope rpcEnvelope
			if err := jsonCodec.Unmarshal(body, &envelope); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", method, err)
			}
			if envelope.Error != nil {
				return fmt.Errorf("api error on %s: %d %s", method, envelope.Error.Code, envelope.Error.Message)
			}
			if err := jsonCodec.Unmarshal(envelope.Result, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
			return nil
		}

		lastErr = err
		if attempt < c.config.Provider.Retry.MaxAttempts {
			delay := boff.Duration()
			log.WithError(err).WithFields(logger.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).Warn("request failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("request %s failed after %d attempts: %w", method, c.config.Provider.Retry.MaxAttempts, lastErr)
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Instruments returns all active option instruments for a currency.
func (c *Client) Instruments(ctx context.Context, currency string) ([]Instrument, error) {
	params := url.Values{}
	params.Set("currency", strings.ToUpper(currency))
	params.Set("kind", "option")
	params.Set("expired", "false")

	var out []Instrument
	if err := c.get(ctx, "get_instruments", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BookSummaries returns the book summary for every option of a currency.
func (c *Client) BookSummaries(ctx context.Context, currency string) ([]BookSummary, error) {
	params := url.Values{}
	params.Set("currency", strings.ToUpper(currency))
	params.Set("kind", "option")

	var out []BookSummary
	if err := c.get(ctx, "get_book_summary_by_currency", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IndexPrice returns the current index price for a currency.
func (c *Client) IndexPrice(ctx context.Context, currency string) (float64, error) {
	params := url.Values{}
	params.Set("index_name", fmt.Sprintf("%s_usd", strings.ToLower(currency)))

	var out indexPriceResult
	if err := c.get(ctx, "get_index_price", params, &out); err != nil {
		return 0, err
	}
	return out.IndexPrice, nil
}

// FetchOptionChain joins instruments with their book summaries into one
// raw chain for the currency. Instruments without a summary are skipped;
// the record-level validation happens downstream in the ingestor.
func (c *Client) FetchOptionChain(ctx context.Context, currency string) (*models.RawChain, error) {
	log := c.log.WithComponent("deribit_client").WithFields(logger.Fields{"currency": currency})
	start := time.Now()

	indexPrice, err := c.IndexPrice(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("fetch index price for %s: %w", currency, err)
	}

	instruments, err := c.Instruments(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments for %s: %w", currency, err)
	}

	summaries, err := c.BookSummaries(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("fetch book summaries for %s: %w", currency, err)
	}

	summaryByName := make(map[string]BookSummary, len(summaries))
	for _, s := range summaries {
		summaryByName[s.InstrumentName] = s
	}

	records := make([]models.RawOptionRecord, 0, len(instruments))
	for _, inst := range instruments {
		summary, ok := summaryByName[inst.InstrumentName]
		if !ok {
			continue
		}

		markIV := 0.0
		if summary.MarkIV != nil {
			markIV = *summary.MarkIV
		}
		underlying := indexPrice
		if summary.UnderlyingPrice != nil && *summary.UnderlyingPrice > 0 {
			underlying = *summary.UnderlyingPrice
		}

		records = append(records, models.RawOptionRecord{
			InstrumentName:      inst.InstrumentName,
			Strike:              inst.Strike,
			ExpirationTimestamp: inst.ExpirationTimestamp,
			OptionType:          inst.OptionType,
			OpenInterest:        summary.OpenInterest,
			Volume:              summary.Volume,
			MarkIV:              markIV,
			UnderlyingPrice:     underlying,
			Delta:               summary.Delta,
		})
	}

	chain := &models.RawChain{
		Currency:        strings.ToUpper(currency),
		Timestamp:       time.Now().UTC(),
		UnderlyingPrice: indexPrice,
		Records:         records,
	}

	logger.LogDataFlowEntry(log, "deribit_api", "ingestor", len(records), "option_records")
	logger.LogPerformanceEntry(log, "deribit_client", "fetch_option_chain", time.Since(start), logger.Fields{
		"instruments": len(instruments),
		"summaries":   len(summaries),
		"records":     len(records),
	})

	return chain, nil
}
