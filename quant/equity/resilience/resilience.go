package resilience

import (
	"math"
	"sort"

	"brandflow/config"
	"brandflow/logger"
	"brandflow/ml/ols"
	"brandflow/panel"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Trend 类别×期的趋势聚合行
type Trend struct {
	Category       panel.Category
	Period         panel.Period
	MeanPrice      float64
	TotalVolume    int
	MeanIndicators panel.Indicators
	EntityCount    int

	CumulativeVolume int
	// 期内跨entity均价标准差; 单entity期未定义, 记NaN
	Volatility float64
	// 当期均价 / 截至当期的历史最高均价, 区间(0,1], 创新高时恰为1
	Resilience float64
}

// CorrelationResult 指标趋势序列与韧性序列的Pearson相关
type CorrelationResult struct {
	Category    panel.Category
	Indicator   string
	Correlation float64
	PValue      float64
	NObs        int
	Significant bool
}

// Trends 把面板聚合为(category, period)趋势行, 类别内按时间排序,
// 并计算累计成交量、滚动波动与韧性比。
func Trends(p *panel.Panel) []Trend {
	type key struct {
		cat panel.Category
		idx int
	}
	type bucket struct {
		cat      panel.Category
		period   panel.Period
		prices   []float64
		volume   int
		indSums  panel.Indicators
		entities int
	}
	buckets := map[key]*bucket{}
	for _, r := range p.Rows() {
		k := key{cat: r.Category, idx: r.Period.Index()}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{cat: r.Category, period: r.Period}
			buckets[k] = b
		}
		b.prices = append(b.prices, r.PriceMean)
		b.volume += r.TxCount
		for j := 0; j < panel.NumIndicators; j++ {
			b.indSums[j] += r.Indicators[j]
		}
		b.entities++
	}

	rows := make([]Trend, 0, len(buckets))
	for _, b := range buckets {
		t := Trend{
			Category:    b.cat,
			Period:      b.period,
			MeanPrice:   stat.Mean(b.prices, nil),
			TotalVolume: b.volume,
			EntityCount: b.entities,
			Volatility:  math.NaN(),
		}
		if b.entities > 1 {
			t.Volatility = stat.StdDev(b.prices, nil)
		}
		for j := 0; j < panel.NumIndicators; j++ {
			t.MeanIndicators[j] = b.indSums[j] / float64(b.entities)
		}
		rows = append(rows, t)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Period.Before(rows[j].Period)
	})

	// 类别内游程: 累计量与历史最高均价
	var cur panel.Category
	cum := 0
	runMax := math.Inf(-1)
	for i := range rows {
		if rows[i].Category != cur {
			cur = rows[i].Category
			cum = 0
			runMax = math.Inf(-1)
		}
		cum += rows[i].TotalVolume
		rows[i].CumulativeVolume = cum
		if rows[i].MeanPrice > runMax {
			runMax = rows[i].MeanPrice
		}
		rows[i].Resilience = rows[i].MeanPrice / runMax
	}
	return rows
}

// Correlations 对每个(category, indicator)计算指标趋势与韧性序列的
// Pearson相关与双尾p值。样本不足或零方差时记NaN且不显著。
func Correlations(trends []Trend, params *config.Params) []CorrelationResult {
	if params == nil {
		params = config.Get()
	}
	log := logger.GetLogger().WithComponent("resilience")

	byCat := map[panel.Category][]Trend{}
	cats := []panel.Category{}
	for _, t := range trends {
		if _, ok := byCat[t.Category]; !ok {
			cats = append(cats, t.Category)
		}
		byCat[t.Category] = append(byCat[t.Category], t)
	}

	out := []CorrelationResult{}
	for _, cat := range cats {
		rows := byCat[cat]
		res := make([]float64, len(rows))
		for i := range rows {
			res[i] = rows[i].Resilience
		}
		for j := 0; j < panel.NumIndicators; j++ {
			ind := make([]float64, len(rows))
			for i := range rows {
				ind[i] = rows[i].MeanIndicators[j]
			}
			r, pv := pearson(ind, res)
			cr := CorrelationResult{
				Category:    cat,
				Indicator:   panel.IndicatorNames[j],
				Correlation: r,
				PValue:      pv,
				NObs:        len(rows),
				Significant: !math.IsNaN(pv) && pv < params.Significance,
			}
			out = append(out, cr)
			if math.IsNaN(r) {
				log.WithFields(logger.Fields{
					"category":  cat,
					"indicator": cr.Indicator,
				}).Debug("correlation undefined")
			}
		}
	}
	return out
}

// ResilienceSlopes 每类别韧性序列对时间的OLS斜率, 作为回撤修复的汇总量
func ResilienceSlopes(trends []Trend) map[panel.Category]ols.LinearRegressionModel {
	byCat := map[panel.Category][]float64{}
	for _, t := range trends {
		byCat[t.Category] = append(byCat[t.Category], t.Resilience)
	}
	out := make(map[panel.Category]ols.LinearRegressionModel, len(byCat))
	for cat, ys := range byCat {
		xs := make([]float64, len(ys))
		for i := range xs {
			xs[i] = float64(i)
		}
		out[cat] = ols.Regression(xs, ys)
	}
	return out
}

// pearson 相关系数与双尾p值 (t = r·sqrt((n-2)/(1-r²)), df=n-2)。
// n<3 或零方差 => 统计量未定义, 返回NaN。
func pearson(x, y []float64) (r, p float64) {
	n := len(x)
	if n < 3 || n != len(y) {
		return math.NaN(), math.NaN()
	}
	r = stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return math.NaN(), math.NaN()
	}
	if r >= 1 || r <= -1 {
		return r, 0
	}
	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	return r, 2 * tdist.Survival(math.Abs(t))
}
