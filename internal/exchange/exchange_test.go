package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tradesentinel/core/internal/apperr"
	"github.com/tradesentinel/core/internal/model"
)

const sampleKlines = `[
	[1700000000000,"100.00","101.50","99.00","100.50","1234.5",1700000299999,"0",0,"0","0","0"],
	[1700000300000,"100.50","102.00","100.00","101.75","2345.6",1700000599999,"0",0,"0","0","0"]
]`

func TestFetchRecentOHLCV_ParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("expected symbol=BTCUSDT, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(sampleKlines))
	}))
	defer srv.Close()

	a := NewAdapter("binance", srv.URL, 2*time.Second, 0)
	bars, err := a.FetchRecentOHLCV(context.Background(), model.SymbolBTC, model.TF5m, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Close != 100.50 {
		t.Errorf("expected first close 100.50, got %v", bars[0].Close)
	}
	if bars[1].Open != 100.50 {
		t.Errorf("expected second open 100.50, got %v", bars[1].Open)
	}
}

func TestFetchRecentOHLCV_UnsupportedSymbol(t *testing.T) {
	a := NewAdapter("binance", "http://unused", time.Second, 0)
	_, err := a.FetchRecentOHLCV(context.Background(), model.Symbol("DOGE"), model.TF5m, 10)
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v (%T)", err, err)
	}
}

func TestFetchRecentOHLCV_UpstreamErrorOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewAdapter("binance", srv.URL, 2*time.Second, 0)
	_, err := a.FetchRecentOHLCV(context.Background(), model.SymbolBTC, model.TF5m, 10)
	var terr *apperr.TransientUpstreamError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransientUpstreamError, got %v (%T)", err, err)
	}
}

func TestThrottle_EnforcesMinInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	a := NewAdapter("binance", srv.URL, 2*time.Second, 50*time.Millisecond)
	start := time.Now()
	_, _ = a.FetchRecentOHLCV(context.Background(), model.SymbolBTC, model.TF5m, 1)
	_, _ = a.FetchRecentOHLCV(context.Background(), model.SymbolBTC, model.TF5m, 1)
	if time.Since(start) < 50*time.Millisecond {
		t.Error("expected second call to be throttled by minInterval")
	}
}
