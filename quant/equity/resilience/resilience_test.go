package resilience

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandflow/config"
	"brandflow/panel"
)

func resParams() *config.Params {
	p := config.Default()
	p.LagHorizons = []int{1}
	return p
}

// 单类别面板, 每期每entity价格由price(e, per)给定, 指标0号维度跟随价格
func buildPanel(t *testing.T, nEntities, nPeriods int, price func(e, per int) float64) *panel.Panel {
	t.Helper()
	start := panel.Period{Year: 2023, Month: time.January}

	var aggs []panel.TxAggregate
	var inds []panel.IndicatorRow
	for e := 0; e < nEntities; e++ {
		id := fmt.Sprintf("0xe%02d", e)
		for per := 0; per < nPeriods; per++ {
			p := start.Add(per)
			pr := price(e, per)
			var vals panel.Indicators
			vals[panel.IdxAwareness] = pr
			vals[panel.IdxSentiment] = float64(per % 3)
			aggs = append(aggs, panel.TxAggregate{
				EntityID: id, Period: p, Category: "utility",
				PriceMean: pr, TxCount: 10 + per,
			})
			inds = append(inds, panel.IndicatorRow{EntityID: id, Period: p, Category: "utility", Values: vals})
		}
	}
	pl, err := panel.Build(aggs, inds, resParams())
	require.NoError(t, err)
	return pl
}

func TestTrendsResilienceBounds(t *testing.T) {
	// 价格先涨后跌再涨
	prices := []float64{0, 10, 12, 8, 6, 9, 15, 14}
	pl := buildPanel(t, 2, len(prices), func(e, per int) float64 {
		return prices[per] + float64(e) // entity间留出方差
	})

	trends := Trends(pl)
	require.NotEmpty(t, trends)

	prevCum := 0
	for i, tr := range trends {
		assert.Greater(t, tr.Resilience, 0.0)
		assert.LessOrEqual(t, tr.Resilience, 1.0)
		assert.GreaterOrEqual(t, tr.CumulativeVolume, prevCum, "cumulative volume must not decrease")
		prevCum = tr.CumulativeVolume
		assert.Equal(t, 2, tr.EntityCount)
		assert.False(t, math.IsNaN(tr.Volatility), "two entities per period")
		if i > 0 {
			assert.True(t, trends[i-1].Period.Before(tr.Period))
		}
	}

	// 滞后1期剔除首行 => 趋势从prices[1]开始; 12是前6期的游程最高价
	assert.InDelta(t, 1.0, trends[0].Resilience, 1e-12)  // 首期即新高
	assert.InDelta(t, 1.0, trends[1].Resilience, 1e-12)  // 12: 再创新高
	assert.InDelta(t, 8.5/12.5, trends[2].Resilience, 1e-12)
	assert.InDelta(t, 1.0, trends[5].Resilience, 1e-12) // 15: 收复前高
}

func TestTrendsStrictlyRisingPricesAlwaysAtHigh(t *testing.T) {
	pl := buildPanel(t, 2, 8, func(e, per int) float64 {
		return 1 + float64(per)*2 + float64(e)
	})
	for _, tr := range Trends(pl) {
		assert.InDelta(t, 1.0, tr.Resilience, 1e-12)
	}
}

func TestTrendsSingleEntityVolatilityUndefined(t *testing.T) {
	pl := buildPanel(t, 1, 6, func(e, per int) float64 { return 5 + float64(per) })
	for _, tr := range Trends(pl) {
		assert.Equal(t, 1, tr.EntityCount)
		assert.True(t, math.IsNaN(tr.Volatility))
	}
}

func TestCorrelationsPriceLinkedIndicator(t *testing.T) {
	// 价格下行 => 韧性逐期衰减; awareness跟随价格 => 强正相关
	pl := buildPanel(t, 2, 10, func(e, per int) float64 {
		return 20 - float64(per) + 0.5*float64(e)
	})
	params := resParams()
	trends := Trends(pl)
	corrs := Correlations(trends, params)
	require.Len(t, corrs, panel.NumIndicators)

	byInd := map[string]CorrelationResult{}
	for _, c := range corrs {
		assert.Equal(t, panel.Category("utility"), c.Category)
		byInd[c.Indicator] = c
	}

	aw := byInd["awareness"]
	assert.Greater(t, aw.Correlation, 0.9)
	assert.True(t, aw.Significant)
	assert.Equal(t, len(trends), aw.NObs)

	// 全程为零的指标 => 相关未定义
	loy := byInd["loyalty"]
	assert.True(t, math.IsNaN(loy.Correlation))
	assert.False(t, loy.Significant)
}

func TestResilienceSlopes(t *testing.T) {
	pl := buildPanel(t, 2, 10, func(e, per int) float64 {
		return 20 - float64(per) + 0.5*float64(e)
	})
	slopes := ResilienceSlopes(Trends(pl))
	m, ok := slopes["utility"]
	require.True(t, ok)
	assert.Less(t, m.Slope, 0.0) // 价格持续下行, 韧性随时间衰减
	assert.False(t, math.IsNaN(m.Intercept))
}
