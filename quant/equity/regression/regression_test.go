package regression

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandflow/config"
	"brandflow/panel"
)

func regrParams() *config.Params {
	p := config.Default()
	p.LagHorizons = []int{1}
	return p
}

// 合成面板: nEntities个entity × nPeriods期, 指标由mutate填充
func buildPanel(t *testing.T, nEntities, nPeriods int, mutate func(e, per int, inds *panel.Indicators)) *panel.Panel {
	t.Helper()
	start := panel.Period{Year: 2023, Month: time.January}
	rng := rand.New(rand.NewSource(7))

	var aggs []panel.TxAggregate
	var inds []panel.IndicatorRow
	for e := 0; e < nEntities; e++ {
		id := fmt.Sprintf("0xe%02d", e)
		for per := 0; per < nPeriods; per++ {
			p := start.Add(per)
			var vals panel.Indicators
			mutate(e, per, &vals)
			aggs = append(aggs, panel.TxAggregate{
				EntityID:  id,
				Period:    p,
				Category:  "pfp",
				PriceMean: 1 + rng.Float64(),
				TxCount:   5 + e + per,
			})
			inds = append(inds, panel.IndicatorRow{EntityID: id, Period: p, Category: "pfp", Values: vals})
		}
	}
	pl, err := panel.Build(aggs, inds, regrParams())
	require.NoError(t, err)
	return pl
}

func randomIndicators(rng *rand.Rand) func(e, per int, inds *panel.Indicators) {
	return func(e, per int, inds *panel.Indicators) {
		for j := 0; j < panel.NumIndicators; j++ {
			inds[j] = rng.NormFloat64()
		}
	}
}

func TestRunProducesAlignedResults(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	pl := buildPanel(t, 4, 12, randomIndicators(rng))

	results, skips, err := Run(context.Background(), pl, regrParams())
	require.NoError(t, err)
	require.Empty(t, skips)
	require.Len(t, results, len(Outcomes)) // 单类别 × 两个结局

	wantPreds := predictorNames()
	for _, r := range results {
		assert.Equal(t, panel.Category("pfp"), r.Category)
		assert.Equal(t, wantPreds, r.Predictors)
		require.Len(t, r.Coeffs, len(wantPreds))
		require.Len(t, r.StdErrs, len(wantPreds))
		require.Len(t, r.PValues, len(wantPreds))
		assert.Equal(t, pl.Len(), r.NObs)
		assert.GreaterOrEqual(t, r.RSquared, 0.0)
		assert.LessOrEqual(t, r.RSquared, 1.0)
		for j := range wantPreds {
			assert.Greater(t, r.StdErrs[j], 0.0)
			assert.GreaterOrEqual(t, r.PValues[j], 0.0)
			assert.LessOrEqual(t, r.PValues[j], 1.0)
		}
		for _, s := range r.Significant {
			assert.Less(t, s.PValue, regrParams().Significance)
		}
	}
}

func TestDuplicateIndicatorColumnSkipsAsSingular(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pl := buildPanel(t, 4, 12, func(e, per int, inds *panel.Indicators) {
		for j := 0; j < panel.NumIndicators; j++ {
			inds[j] = rng.NormFloat64()
		}
		inds[panel.IdxEngagement] = inds[panel.IdxSentiment] // 完全共线
	})

	results, skips, err := Run(context.Background(), pl, regrParams())
	require.NoError(t, err)
	assert.Empty(t, results)
	require.Len(t, skips, len(Outcomes))
	for _, s := range skips {
		assert.Equal(t, ReasonSingularDesign, s.Reason)
	}
}

func TestConstantIndicatorSkipsAsZeroVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	pl := buildPanel(t, 4, 12, func(e, per int, inds *panel.Indicators) {
		for j := 0; j < panel.NumIndicators; j++ {
			inds[j] = rng.NormFloat64()
		}
		inds[panel.IdxLoyalty] = 0.42
	})

	_, skips, err := Run(context.Background(), pl, regrParams())
	require.NoError(t, err)
	require.Len(t, skips, len(Outcomes))
	for _, s := range skips {
		assert.Equal(t, ReasonZeroVariance, s.Reason)
		assert.Equal(t, "loyalty", s.Detail)
	}
}

func TestTooFewRowsSkipsAsInsufficient(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pl := buildPanel(t, 2, 4, randomIndicators(rng)) // 滞后后每entity剩3行

	_, skips, err := Run(context.Background(), pl, regrParams())
	require.NoError(t, err)
	require.Len(t, skips, len(Outcomes))
	for _, s := range skips {
		assert.Equal(t, ReasonInsufficientData, s.Reason)
	}
}
