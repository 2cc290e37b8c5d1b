package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Hand-calculated SMA(3) for a known price series:
	// Prices: 100, 102, 104, 103, 105
	// SMA after price 3: (100+102+104)/3 = 102.0000
	// SMA after price 4: (102+104+103)/3 = 103.0000
	// SMA after price 5: (104+103+105)/3 = 104.0000

	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_Correctness_Period5(t *testing.T) {
	// Prices: 10, 11, 12, 13, 14, 15, 16
	// SMA(5) after price 5: (10+11+12+13+14)/5 = 12.0
	// SMA(5) after price 6: (11+12+13+14+15)/5 = 13.0
	// SMA(5) after price 7: (12+13+14+15+16)/5 = 14.0

	sma := NewSMA(5)
	prices := []float64{10, 11, 12, 13, 14, 15, 16}
	expected := []float64{0, 0, 0, 0, 12.0, 13.0, 14.0}

	for i, p := range prices {
		sma.Update(p)
		if i >= 4 {
			assertClose(t, "SMA(5)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_Window_OldestFirst(t *testing.T) {
	sma := NewSMA(3)
	if sma.Window() != nil {
		t.Fatal("expected nil window before ready")
	}
	for _, p := range []float64{1, 2, 3, 4, 5} {
		sma.Update(p)
	}
	w := sma.Window()
	want := []float64{3, 4, 5}
	for i := range want {
		if w[i] != want[i] {
			t.Fatalf("window = %v, want %v", w, want)
		}
	}
}

func TestSMA_Reset(t *testing.T) {
	sma := NewSMA(2)
	sma.Update(10)
	sma.Update(20)
	sma.Reset()
	if sma.Ready() || sma.Value() != 0 {
		t.Fatalf("expected cleared SMA, ready=%v value=%v", sma.Ready(), sma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5, seeded with the first price.
	// Prices: 100, 102, 104, 103, 105
	//
	// Price 1: EMA = 100
	// Price 2: EMA = 102*0.5 + 100*0.5   = 101.0
	// Price 3: EMA = 104*0.5 + 101*0.5   = 102.5
	// Price 4: EMA = 103*0.5 + 102.5*0.5 = 102.75
	// Price 5: EMA = 105*0.5 + 102.75*0.5 = 103.875

	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{100, 101.0, 102.5, 102.75, 103.875}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
	}
}

func TestEMA_Correctness_Period5(t *testing.T) {
	mult := 2.0 / 6.0
	prices := []float64{44, 44.25, 44.50, 43.75, 44.50, 44.25, 44.00}

	ema := NewEMA(5)
	want := prices[0]
	for i, p := range prices {
		ema.Update(p)
		if i > 0 {
			want = p*mult + want*(1-mult)
		}
		assertClose(t, "EMA(5)", ema.Value(), want, 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// SMMA Correctness (Wilder's Smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// SMMA(3): first value = SMA(3) seed, then Wilder smoothing
	// Prices: 100, 102, 104, 103, 105
	//
	// Price 1-3: seed = (100+102+104)/3 = 102.0
	// Price 4: SMMA = (102.0 * 2 + 103) / 3 = (204+103)/3 = 102.3333
	// Price 5: SMMA = (102.3333 * 2 + 105) / 3 = (204.6667+105)/3 = 103.2222

	smma := NewSMMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		smma.Update(p)
		if smma.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, smma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// Deltas (from price 2 onward):
	//   +0.34, -0.25, -0.48, +0.72, +0.50
	//
	// First RSI (after 6 prices, period=5):
	//   avgGain = 1.56/5 = 0.312, avgLoss = 0.73/5 = 0.146
	//   RS = 2.13699 → RSI = 68.112
	//
	// Price 7 (45.10): avgGain = 0.3036, avgLoss = 0.1168 → RSI = 72.219
	// Price 8 (45.42): avgGain = 0.30688, avgLoss = 0.09344 → RSI = 76.658
	// Price 9 (45.84): avgGain = 0.329504, avgLoss = 0.074752 → RSI = 81.509

	prices := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}

	rsi := NewRSI(5)
	for i := 0; i <= 4; i++ {
		rsi.Update(prices[i])
		if rsi.Ready() {
			t.Fatalf("price %d: RSI ready too early", i)
		}
	}

	rsi.Update(prices[5])
	assertClose(t, "RSI(5) price 6", rsi.Value(), 68.112, 0.1)

	rsi.Update(prices[6])
	assertClose(t, "RSI(5) price 7", rsi.Value(), 72.219, 0.1)

	rsi.Update(prices[7])
	assertClose(t, "RSI(5) price 8", rsi.Value(), 76.658, 0.1)

	rsi.Update(prices[8])
	assertClose(t, "RSI(5) price 9", rsi.Value(), 81.509, 0.2)
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(float64(100 + i))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(float64(200 - i))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0.0, 0.001)
}

func TestRSI_Flat_Is0(t *testing.T) {
	// Flat prices: avgGain and avgLoss are both 0, which is defined as RSI 0.
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(100)
	}
	if !rsi.Ready() {
		t.Fatal("expected RSI ready after 10 prices")
	}
	assertClose(t, "RSI flat", rsi.Value(), 0.0, 0)
}

// ────────────────────────────────────────────────────────────
// Cross-indicator: same data → correct ordering
// ────────────────────────────────────────────────────────────

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	// With steadily rising prices, faster MAs should be above slower MAs
	sma5 := NewSMA(5)
	sma20 := NewSMA(20)
	ema5 := NewEMA(5)

	for i := 0; i < 30; i++ {
		p := float64(100 + i)
		sma5.Update(p)
		sma20.Update(p)
		ema5.Update(p)
	}

	if sma5.Value() <= sma20.Value() {
		t.Errorf("SMA(5) should be > SMA(20) in uptrend: SMA5=%.2f, SMA20=%.2f", sma5.Value(), sma20.Value())
	}
	if ema5.Value() <= sma20.Value() {
		t.Errorf("EMA(5) should be > SMA(20) in uptrend: EMA5=%.2f, SMA20=%.2f", ema5.Value(), sma20.Value())
	}
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	sma := NewSMA(10)
	ema := NewEMA(10)

	for i := 0; i < 20; i++ {
		sma.Update(100)
		ema.Update(100)
	}

	// Sudden jump to 120
	sma.Update(120)
	ema.Update(120)

	if ema.Value() <= sma.Value() {
		t.Errorf("EMA should react more than SMA to sudden price jump: EMA=%.4f, SMA=%.4f", ema.Value(), sma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger Correctness
// ────────────────────────────────────────────────────────────

func TestBollinger_Correctness_Period4(t *testing.T) {
	// Window 2, 4, 4, 6: mean 4, population variance (4+0+0+4)/4 = 2
	// stddev = √2, half-width(m=2) = 2√2
	b := NewBollinger(4, 2)
	for _, p := range []float64{2, 4, 4, 6} {
		b.Update(p)
	}
	if !b.Ready() {
		t.Fatal("expected ready after 4 prices")
	}
	assertClose(t, "middle", b.Value(), 4, 1e-12)
	assertClose(t, "upper", b.Upper(), 4+2*math.Sqrt2, 1e-12)
	assertClose(t, "lower", b.Lower(), 4-2*math.Sqrt2, 1e-12)
}

func TestBollinger_FlatWindow_ZeroWidth(t *testing.T) {
	b := NewBollinger(5, 2)
	for i := 0; i < 8; i++ {
		b.Update(50)
	}
	assertClose(t, "upper", b.Upper(), 50, 0)
	assertClose(t, "lower", b.Lower(), 50, 0)
}
