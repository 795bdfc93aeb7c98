package sidecar_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polyweather/internal/adapters/sidecar"
	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var target = time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

func serve(t *testing.T, h http.HandlerFunc) *sidecar.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return sidecar.NewClient(sidecar.Config{BaseURL: srv.URL, RatePerSec: 1000, AnalystModel: "claude"})
}

func TestFetchEnsemble_MapsDrawsAndAnchors(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather/ensemble", r.URL.Path)
		assert.Equal(t, "NYC", r.URL.Query().Get("city"))
		assert.Equal(t, "2026-10-20", r.URL.Query().Get("date"))
		assert.Equal(t, "true", r.URL.Query().Get("same_day"))
		w.Write([]byte(`{
			"city": "NYC", "date": "2026-10-20",
			"models": ["gefs", "ecmwf"],
			"members": [70.1, 71.4, 72.0, 69.8, 73.2, 70.9],
			"nws_high": 72,
			"spread_factor": 1.2,
			"hrrr_max_temp": 71.5
		}`))
	})

	b, err := c.FetchEnsemble(context.Background(), "NYC", target, true)
	require.NoError(t, err)

	assert.Equal(t, domain.ForecastKey{City: "NYC", Date: "2026-10-20"}, b.Key)
	assert.True(t, b.SameDay)
	assert.Equal(t, 6, b.Sample.Count())
	assert.Equal(t, []string{"gefs", "ecmwf"}, b.Sample.Models)
	require.NotNil(t, b.Anchors.Point)
	assert.Equal(t, 72.0, *b.Anchors.Point)
	assert.Equal(t, "nws", b.Anchors.PointSource)
	require.NotNil(t, b.Anchors.Spread)
	assert.Equal(t, 1.2, *b.Anchors.Spread)
	require.NotNil(t, b.Anchors.SameDay)
	assert.Equal(t, 71.5, *b.Anchors.SameDay)
}

func TestFetchEnsemble_NBMPreferredAndHRRRIgnoredForFutureDays(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("same_day"))
		w.Write([]byte(`{"members": [70, 71], "nbm_max_temp": 74, "nws_high": 72, "hrrr_max_temp": 71, "spread_factor": 0}`))
	})

	b, err := c.FetchEnsemble(context.Background(), "NYC", target, false)
	require.NoError(t, err)
	assert.Equal(t, "nbm", b.Anchors.PointSource)
	assert.Equal(t, 74.0, *b.Anchors.Point)
	assert.Nil(t, b.Anchors.Spread)
	assert.Nil(t, b.Anchors.SameDay)
}

func TestFetchEnsemble_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"unknown city"}`, http.StatusBadRequest)
	})

	_, err := c.FetchEnsemble(context.Background(), "ZZZ", target, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchEnsemble_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"members": [70, 71, 72]}`))
	})

	b, err := c.FetchEnsemble(context.Background(), "NYC", target, false)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Sample.Count())
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetchObserved(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("city") {
		case "NYC":
			w.Write([]byte(`{"city": "NYC", "date": "2026-10-20", "high": 73.0, "source": "wu"}`))
		case "CHI":
			w.Write([]byte(`{"city": "CHI", "date": "2026-10-20", "high": null}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	high, err := c.FetchObserved(ctx, "NYC", target)
	require.NoError(t, err)
	assert.Equal(t, 73.0, high)

	_, err = c.FetchObserved(ctx, "CHI", target)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.FetchObserved(ctx, "MIA", target)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalyze(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var facts domain.Facts
		require.NoError(t, json.NewDecoder(r.Body).Decode(&facts))
		assert.Equal(t, "0xabc", facts.MarketID)
		assert.Equal(t, 0.42, facts.YesPrice)
		w.Write([]byte(`{"probability": 0.55, "confidence": 0.8, "reasoning": "r", "data_quality": "high", "cost_usd": 0.012}`))
	})

	j, err := c.Analyze(context.Background(), domain.Facts{MarketID: "0xabc", YesPrice: 0.42})
	require.NoError(t, err)
	assert.Equal(t, domain.Judgment{
		Probability: 0.55,
		Confidence:  0.8,
		Reasoning:   "r",
		DataQuality: "high",
		CostUSD:     0.012,
	}, j)
	assert.Equal(t, "claude", c.Provider())
}

func TestAnalyze_BilledFailureKeepsCost(t *testing.T) {
	var calls atomic.Int32
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error": "unparseable model output", "cost_usd": 0.02}`))
	})

	j, err := c.Analyze(context.Background(), domain.Facts{MarketID: "0xabc"})
	require.Error(t, err)
	assert.Equal(t, 0.02, j.CostUSD)
	assert.EqualValues(t, 1, calls.Load(), "billed calls are never retried")
}

func TestAnalyze_MissingProbability(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "refused", "cost_usd": 0.005}`))
	})

	j, err := c.Analyze(context.Background(), domain.Facts{MarketID: "0xabc"})
	require.Error(t, err)
	assert.Equal(t, 0.005, j.CostUSD)
}

func TestExecutor(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok_yes", body["token_id"])
		assert.Equal(t, "BUY", body["side"])
		assert.Equal(t, "YES", body["outcome"])
		assert.Equal(t, 0.4, body["price"])
		assert.Equal(t, 10.0, body["size"])
		w.Write([]byte(`{"order_id": "ord-1", "status": "matched", "filled_price": 0.39}`))
	})
	ex := sidecar.NewExecutor(c)
	assert.False(t, ex.Paper())

	fill, err := ex.Execute(context.Background(), domain.Order{
		MarketID: "0xabc", TokenID: "tok_yes", Side: domain.SideYes, Action: domain.ActionBuy,
		SizeUSD: 4, Shares: 10, LimitPrice: 0.4,
	})
	require.NoError(t, err)
	assert.True(t, fill.Filled)
	assert.Equal(t, "ord-1", fill.OrderID)
	assert.Equal(t, 0.39, fill.FillPrice)
	assert.Equal(t, 10.0, fill.Shares)
}

func TestExecutor_Failures(t *testing.T) {
	order := domain.Order{MarketID: "0xabc", TokenID: "tok", Side: domain.SideNo, Action: domain.ActionSell, Shares: 5, LimitPrice: 0.5}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		order   domain.Order
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "signer down", http.StatusInternalServerError)
			},
			order: order,
		},
		{
			name: "not matched",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"order_id": "ord-2", "status": "unmatched"}`))
			},
			order: order,
		},
		{
			name:    "bad price",
			handler: func(w http.ResponseWriter, r *http.Request) { t.Error("no request expected") },
			order:   domain.Order{MarketID: "0xabc", TokenID: "tok", Shares: 5, LimitPrice: 1.2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := sidecar.NewExecutor(serve(t, tt.handler))
			fill, err := ex.Execute(context.Background(), tt.order)
			assert.ErrorIs(t, err, domain.ErrExecution)
			assert.False(t, fill.Filled)
		})
	}
}

func TestHealth(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "version": "1.4.0", "trading_mode": "paper"}`))
	})
	assert.NoError(t, c.Health(context.Background()))
}
