package equity

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandflow/config"
	"brandflow/panel"
)

func TestAnalyzeEndToEnd(t *testing.T) {
	params := config.Default()
	params.LagHorizons = []int{1}

	start := panel.Period{Year: 2023, Month: time.January}
	rng := rand.New(rand.NewSource(77))
	var aggs []panel.TxAggregate
	var inds []panel.IndicatorRow
	for e := 0; e < 4; e++ {
		id := fmt.Sprintf("0xe%02d", e)
		for per := 0; per < 13; per++ {
			p := start.Add(per)
			var vals panel.Indicators
			for j := 0; j < panel.NumIndicators; j++ {
				vals[j] = rng.NormFloat64()
			}
			aggs = append(aggs, panel.TxAggregate{
				EntityID: id, Period: p, Category: "metaverse",
				PriceMean: 2 + rng.Float64(),
				TxCount:   1 + rng.Intn(30),
			})
			inds = append(inds, panel.IndicatorRow{EntityID: id, Period: p, Category: "metaverse", Values: vals})
		}
	}
	pl, err := panel.Build(aggs, inds, params)
	require.NoError(t, err)

	rep, err := Analyze(context.Background(), pl, params)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rep.RunID)
	assert.False(t, rep.StartedAt.IsZero())
	assert.GreaterOrEqual(t, rep.Elapsed, time.Duration(0))

	assert.NotEmpty(t, rep.Regressions)
	require.Len(t, rep.VarFits, 4)
	assert.NotEmpty(t, rep.Trends)
	assert.NotEmpty(t, rep.Correlations)
	_, ok := rep.ResilienceSlope[panel.Category("metaverse")]
	assert.True(t, ok)
}

func TestAnalyzeCancelledContext(t *testing.T) {
	params := config.Default()
	params.LagHorizons = []int{1}

	start := panel.Period{Year: 2023, Month: time.January}
	rng := rand.New(rand.NewSource(5))
	var aggs []panel.TxAggregate
	var inds []panel.IndicatorRow
	for per := 0; per < 13; per++ {
		p := start.Add(per)
		var vals panel.Indicators
		for j := 0; j < panel.NumIndicators; j++ {
			vals[j] = rng.NormFloat64()
		}
		aggs = append(aggs, panel.TxAggregate{
			EntityID: "0xabc", Period: p, Category: "art",
			PriceMean: 1 + rng.Float64(), TxCount: 1 + rng.Intn(9),
		})
		inds = append(inds, panel.IndicatorRow{EntityID: "0xabc", Period: p, Category: "art", Values: vals})
	}
	pl, err := panel.Build(aggs, inds, params)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Analyze(ctx, pl, params)
	assert.Error(t, err)
}
