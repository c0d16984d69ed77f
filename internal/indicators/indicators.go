package indicators

// ═══════════════════════════════════════════════════════════════════════════════
// MOVING AVERAGES & MACD
// ═══════════════════════════════════════════════════════════════════════════════

// EMASeries calculates the Exponential Moving Average at every index. The first
// period values are all seeded with their simple average.
func EMASeries(prices []float64, period int) []float64 {
	if len(prices) == 0 || period <= 0 {
		return nil
	}
	ema := make([]float64, len(prices))
	if len(prices) < period {
		avg := average(prices)
		for i := range ema {
			ema[i] = avg
		}
		return ema
	}

	seed := average(prices[:period])
	for i := 0; i < period; i++ {
		ema[i] = seed
	}

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		ema[i] = (prices[i]-ema[i-1])*multiplier + ema[i-1]
	}

	return ema
}

// MACDResult holds the three MACD series, aligned with the input prices
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// Last returns the most recent histogram value
func (m MACDResult) Last() float64 {
	if len(m.Histogram) == 0 {
		return 0
	}
	return m.Histogram[len(m.Histogram)-1]
}

// MACD calculates MACD line, signal line and histogram
func MACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(prices) == 0 {
		return MACDResult{}
	}

	fast := EMASeries(prices, fastPeriod)
	slow := EMASeries(prices, slowPeriod)

	macdLine := make([]float64, len(prices))
	for i := range prices {
		macdLine[i] = fast[i] - slow[i]
	}

	signalLine := EMASeries(macdLine, signalPeriod)

	histogram := make([]float64, len(prices))
	for i := range prices {
		histogram[i] = macdLine[i] - signalLine[i]
	}

	return MACDResult{MACD: macdLine, Signal: signalLine, Histogram: histogram}
}

func average(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}
