package indicator

import (
	"errors"
	"testing"

	"aurelius-engine/internal/model"
)

func TestEngine_DefaultConfigs(t *testing.T) {
	engine, err := NewEngine(DefaultConfigs())
	if err != nil {
		t.Fatal(err)
	}

	prices := wave(60)
	results, err := engine.Compute("AAPL", model.TF1M, prices)
	if err != nil {
		t.Fatal(err)
	}

	wantNames := []string{
		"SMA_20", "RSI_14",
		"MACD", "MACD_SIGNAL", "MACD_HIST",
		"BB_UPPER_20", "BB_MIDDLE_20", "BB_LOWER_20",
	}
	if len(results) != len(wantNames) {
		t.Fatalf("expected %d results, got %d", len(wantNames), len(results))
	}
	for i, r := range results {
		if r.Name != wantNames[i] {
			t.Errorf("result %d: expected name=%s, got %s", i, wantNames[i], r.Name)
		}
		if r.Symbol != "AAPL" || r.TF != model.TF1M {
			t.Errorf("result %d: wrong symbol/tf %s/%s", i, r.Symbol, r.TF)
		}
		if len(r.Series) != len(prices) {
			t.Errorf("%s: series length %d, want %d", r.Name, len(r.Series), len(prices))
		}
	}
}

func TestEngine_MiddleBandEqualsSMA(t *testing.T) {
	engine, err := NewEngine([]IndicatorConfig{
		{Type: TypeSMA, Period: 10},
		{Type: TypeBollinger, Period: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	results, err := engine.Compute("X", model.TF1D, wave(40))
	if err != nil {
		t.Fatal(err)
	}
	sma, middle := results[0].Series, results[2].Series
	for i := range sma {
		if sma[i] != middle[i] {
			t.Fatalf("index %d: SMA %v != middle %v", i, sma[i], middle[i])
		}
	}
}

func TestEngine_RejectsBadConfig(t *testing.T) {
	bad := [][]IndicatorConfig{
		{{Type: TypeSMA, Period: 0}},
		{{Type: TypeRSI, Period: -1}},
		{{Type: "VWAP", Period: 5}},
		{{Type: TypeBollinger, Period: 20, Multiplier: -2}},
	}
	for i, cfgs := range bad {
		if _, err := NewEngine(cfgs); !errors.Is(err, model.ErrInvalidParameter) {
			t.Errorf("config %d: expected ErrInvalidParameter, got %v", i, err)
		}
	}
}

func TestEngine_ShortSeriesAllInsufficient(t *testing.T) {
	engine, err := NewEngine(DefaultConfigs())
	if err != nil {
		t.Fatal(err)
	}
	results, err := engine.Compute("X", model.TF1W, wave(7))
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Series.ValidCount() != 0 {
			t.Errorf("%s: expected no valid points over 7 prices, got %d", r.Name, r.Series.ValidCount())
		}
	}
}

func TestParseType(t *testing.T) {
	cases := map[string]string{
		"Moving Average":  TypeSMA,
		"rsi":             TypeRSI,
		"MACD":            TypeMACD,
		"Bollinger Bands": TypeBollinger,
		"None":            "",
	}
	for in, want := range cases {
		got, err := ParseType(in)
		if err != nil || got != want {
			t.Errorf("ParseType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseType("Ichimoku"); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}
