package indicator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"aurelius-engine/internal/model"
)

// Indicator types understood by the Engine.
const (
	TypeSMA       = "SMA"
	TypeEMA       = "EMA"
	TypeRSI       = "RSI"
	TypeMACD      = "MACD"
	TypeBollinger = "BBANDS"
)

// IndicatorConfig specifies a single indicator to compute.
type IndicatorConfig struct {
	Type       string  // "SMA", "EMA", "RSI", "MACD", "BBANDS"
	Period     int     // ignored for MACD, which uses 12/26/9
	Multiplier float64 // Bollinger width; 0 means DefaultBollingerMultiplier
}

// DefaultConfigs is the indicator set computed for every symbol.
func DefaultConfigs() []IndicatorConfig {
	return []IndicatorConfig{
		{Type: TypeSMA, Period: 20},
		{Type: TypeRSI, Period: 14},
		{Type: TypeMACD},
		{Type: TypeBollinger, Period: 20, Multiplier: DefaultBollingerMultiplier},
	}
}

// ParseType maps a menu label or type code to an indicator type.
// "None" and the empty string map to "".
func ParseType(label string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "", "NONE":
		return "", nil
	case "SMA", "MA", "MOVING AVERAGE":
		return TypeSMA, nil
	case "EMA":
		return TypeEMA, nil
	case "RSI":
		return TypeRSI, nil
	case "MACD":
		return TypeMACD, nil
	case "BBANDS", "BOLLINGER", "BOLLINGER BANDS":
		return TypeBollinger, nil
	}
	return "", fmt.Errorf("indicator: unknown type %q: %w", label, model.ErrInvalidParameter)
}

// Engine computes a configured set of indicators over a price series.
// It holds only immutable configuration and is safe for concurrent use.
type Engine struct {
	configs []IndicatorConfig
}

// NewEngine validates configs and creates an Engine.
func NewEngine(configs []IndicatorConfig) (*Engine, error) {
	for i, cfg := range configs {
		switch cfg.Type {
		case TypeMACD:
			continue
		case TypeSMA, TypeEMA, TypeRSI, TypeBollinger:
		default:
			return nil, fmt.Errorf("indicator: config %d: unknown type %q: %w", i, cfg.Type, model.ErrInvalidParameter)
		}
		if err := checkPeriod(cfg.Type, cfg.Period); err != nil {
			return nil, err
		}
		if !(cfg.Multiplier >= 0) {
			return nil, fmt.Errorf("indicator: config %d: multiplier %v: %w", i, cfg.Multiplier, model.ErrInvalidParameter)
		}
	}
	return &Engine{configs: configs}, nil
}

// Configs returns the engine's indicator configs.
func (e *Engine) Configs() []IndicatorConfig {
	out := make([]IndicatorConfig, len(e.configs))
	copy(out, e.configs)
	return out
}

// Compute runs every configured indicator over prices and returns the
// results in config order. Multi-line indicators yield one result per line.
func (e *Engine) Compute(symbol string, tf model.Timeframe, prices []float64) ([]model.IndicatorResult, error) {
	ts := time.Now().UTC()
	results := make([]model.IndicatorResult, 0, len(e.configs)+4)
	for _, cfg := range e.configs {
		named, err := Compute(cfg, prices)
		if err != nil {
			return nil, fmt.Errorf("indicator: %s for %s: %w", cfg.Type, symbol, err)
		}
		for _, n := range named {
			results = append(results, model.IndicatorResult{
				Name:   n.Name,
				Symbol: symbol,
				TF:     tf,
				Series: n.Series,
				TS:     ts,
			})
		}
	}
	return results, nil
}

// NamedSeries pairs a result name with its series.
type NamedSeries struct {
	Name   string
	Series model.Series
}

// Compute runs a single indicator config over prices.
func Compute(cfg IndicatorConfig, prices []float64) ([]NamedSeries, error) {
	suffix := "_" + strconv.Itoa(cfg.Period)
	switch cfg.Type {
	case TypeSMA:
		s, err := SMASeries(prices, cfg.Period)
		if err != nil {
			return nil, err
		}
		return []NamedSeries{{"SMA" + suffix, s}}, nil

	case TypeEMA:
		s, err := EMASeries(prices, cfg.Period)
		if err != nil {
			return nil, err
		}
		return []NamedSeries{{"EMA" + suffix, s}}, nil

	case TypeRSI:
		s, err := RSISeries(prices, cfg.Period)
		if err != nil {
			return nil, err
		}
		return []NamedSeries{{"RSI" + suffix, s}}, nil

	case TypeMACD:
		m, err := DefaultMACD(prices)
		if err != nil {
			return nil, err
		}
		return []NamedSeries{
			{"MACD", m.Line},
			{"MACD_SIGNAL", m.Signal},
			{"MACD_HIST", m.Histogram},
		}, nil

	case TypeBollinger:
		mult := cfg.Multiplier
		if mult == 0 {
			mult = DefaultBollingerMultiplier
		}
		b, err := BollingerSeries(prices, cfg.Period, mult)
		if err != nil {
			return nil, err
		}
		return []NamedSeries{
			{"BB_UPPER" + suffix, b.Upper},
			{"BB_MIDDLE" + suffix, b.Middle},
			{"BB_LOWER" + suffix, b.Lower},
		}, nil
	}
	return nil, fmt.Errorf("indicator: unknown type %q: %w", cfg.Type, model.ErrInvalidParameter)
}
