package deribit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "optionflow/config"
)

func testConfig(baseURL string) *appconfig.Config {
	cfg := appconfig.DefaultConfig()
	cfg.Provider.BaseURL = baseURL
	cfg.Provider.Timeout = 2 * time.Second
	cfg.Provider.Retry.MaxAttempts = 2
	cfg.Provider.Retry.BaseDelay = time.Millisecond
	cfg.Provider.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Provider.RateLimit.RequestsPerSecond = 1000
	cfg.Provider.RateLimit.BurstSize = 1000
	return &cfg
}

func chainTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/public/get_index_price", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"index_price":50000.0}}`)
	})
	mux.HandleFunc("/public/get_instruments", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("currency"); got != "BTC" {
			t.Errorf("unexpected currency param: %s", got)
		}
		fmt.Fprint(w, `{"result":[
			{"instrument_name":"BTC-26JUN26-60000-C","kind":"option","option_type":"call","strike":60000,"expiration_timestamp":1782460800000},
			{"instrument_name":"BTC-26JUN26-40000-P","kind":"option","option_type":"put","strike":40000,"expiration_timestamp":1782460800000},
			{"instrument_name":"BTC-26JUN26-90000-C","kind":"option","option_type":"call","strike":90000,"expiration_timestamp":1782460800000}
		]}`)
	})
	mux.HandleFunc("/public/get_book_summary_by_currency", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":[
			{"instrument_name":"BTC-26JUN26-60000-C","open_interest":100,"volume":50,"mark_iv":80.5},
			{"instrument_name":"BTC-26JUN26-40000-P","open_interest":200,"volume":75,"mark_iv":70.1}
		]}`)
	})
	return httptest.NewServer(mux)
}

func TestFetchOptionChain(t *testing.T) {
	srv := chainTestServer(t)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	chain, err := c.FetchOptionChain(context.Background(), "btc")
	if err != nil {
		t.Fatalf("FetchOptionChain: %v", err)
	}

	if chain.Currency != "BTC" {
		t.Errorf("unexpected currency: %s", chain.Currency)
	}
	if chain.UnderlyingPrice != 50000.0 {
		t.Errorf("unexpected index price: %v", chain.UnderlyingPrice)
	}
	// The 90000 call has no book summary and must be skipped.
	if len(chain.Records) != 2 {
		t.Fatalf("expected 2 joined records, got %d", len(chain.Records))
	}
	rec := chain.Records[0]
	if rec.InstrumentName != "BTC-26JUN26-60000-C" || rec.MarkIV != 80.5 || rec.OpenInterest != 100 {
		t.Errorf("unexpected joined record: %+v", rec)
	}
	if rec.UnderlyingPrice != 50000.0 {
		t.Errorf("record should fall back to index price, got %v", rec.UnderlyingPrice)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":10028,"message":"too_many_requests"}}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	if _, err := c.IndexPrice(context.Background(), "BTC"); err == nil {
		t.Fatal("expected error from API error envelope")
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"result":{"index_price":1234.5}}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	price, err := c.IndexPrice(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if price != 1234.5 {
		t.Errorf("unexpected price: %v", price)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	if _, err := c.IndexPrice(context.Background(), "BTC"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
}
