package panelvar

import (
	"context"
	"errors"
	"runtime"
	"sort"

	"brandflow/config"
	"brandflow/logger"
	"brandflow/ml/ols"
	"brandflow/panel"
	"brandflow/timeSeries/adfuller"
	"brandflow/timeSeries/varmodel"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// 固定变量集: 绩效变量在前, 指标子集在后
var (
	PerformanceVars = []string{panel.VarPriceMean, panel.VarTxCount}
	IndicatorVars   = []string{"awareness", "sentiment", "engagement"}
)

// VarSet 拟合用的全变量序
func VarSet() []string {
	return append(append([]string{}, PerformanceVars...), IndicatorVars...)
}

type State string

const (
	StateFitted  State = "fitted"
	StateSkipped State = "skipped"
)

type SkipReason string

const (
	SkipNone                  SkipReason = ""
	SkipInsufficientHistory   SkipReason = "insufficient-history"
	SkipInsufficientAfterDiff SkipReason = "insufficient-after-differencing"
	SkipNumerical             SkipReason = "numerical-instability"
)

// ColumnScreen 单列的平稳性筛查记录
type ColumnScreen struct {
	Name        string
	Differenced bool
	ADFStat     float64
	ADFPValue   float64
}

type CausalityKey struct {
	Cause  string
	Effect string
}

type CausalityResult struct {
	FStatistic  float64
	PValue      float64
	Significant bool
}

type ImpulseKey struct {
	Shock    string
	Response string
}

// Fit 单entity的面板VAR终态
type Fit struct {
	EntityID string
	Category panel.Category
	State    State
	Reason   SkipReason
	Detail   string // 数值失败时的具体原因

	SelectedLags int
	AIC          float64
	NObs         int
	// 各方程一步预报误差方差, 键=变量名
	ForecastErrorVariance map[string]float64
	Columns               []ColumnScreen
	Causality             map[CausalityKey]CausalityResult
	Impulse               map[ImpulseKey][]float64
}

// Run 逐entity独立拟合并fan-out; 任一entity失败只记录原因, 不影响其他entity。
// params.MaxEntities>0 时按entity名截断, 用于限制墙钟预算。
func Run(ctx context.Context, p *panel.Panel, params *config.Params) (map[string]*Fit, error) {
	if params == nil {
		params = config.Get()
	}
	log := logger.GetLogger().WithComponent("panelvar")

	entities := p.Entities()
	if params.MaxEntities > 0 && len(entities) > params.MaxEntities {
		entities = entities[:params.MaxEntities]
	}

	fits := make([]*Fit, len(entities))
	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range entities {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fits[i] = fitEntity(p.EntityRows(entities[i]), params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*Fit, len(fits))
	fitted := 0
	for _, f := range fits {
		out[f.EntityID] = f
		if f.State == StateFitted {
			fitted++
		} else {
			log.WithFields(logger.Fields{
				"entity": f.EntityID,
				"reason": f.Reason,
				"detail": f.Detail,
			}).Debug("entity skipped")
		}
	}
	log.WithFields(logger.Fields{"entities": len(fits), "fitted": fitted}).Info("panel VAR done")
	return out, nil
}

// fitEntity 状态机: 准入 → 标准化 → 平稳性筛查 → 差分 → 样本复查 → 选阶拟合
// → Granger双向检验 → 脉冲响应。终态 fitted / skipped-*。
func fitEntity(rows []panel.LaggedRow, params *config.Params) *Fit {
	f := &Fit{State: StateSkipped}
	if len(rows) > 0 {
		f.EntityID = rows[0].EntityID
		f.Category = rows[0].Category
	}

	// 1. 准入: 最少观测期
	if len(rows) < params.VarMinPeriods {
		f.Reason = SkipInsufficientHistory
		return f
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Period.Before(rows[j].Period) })

	names := VarSet()
	n := len(rows)
	cols := make([][]float64, len(names))
	for j, name := range names {
		cols[j] = make([]float64, n)
		for i := range rows {
			v, _ := rows[i].Value(name)
			cols[j][i] = v
		}
	}

	// 2. 标准化: 只用本entity自身序列
	for j := range cols {
		z, _, _, err := ols.Standardize(cols[j])
		if err != nil {
			f.Reason = SkipNumerical
			f.Detail = names[j] + ": " + err.Error()
			return f
		}
		cols[j] = z
	}

	// 3. 逐列ADF筛查; p>alpha 视为非平稳, 做一阶差分。
	// 筛查失败的列按非平稳保守处理。
	anyDiff := false
	f.Columns = make([]ColumnScreen, len(names))
	for j := range cols {
		screen := ColumnScreen{Name: names[j]}
		res, err := adfuller.AdfTest(cols[j], "c", params.ADFMaxLag, adfuller.LAG_MODE_AIC)
		if err != nil {
			screen.Differenced = true
		} else {
			screen.ADFStat = res.TStat
			screen.ADFPValue = res.PValue
			screen.Differenced = !res.Stationary(params.Significance)
		}
		if screen.Differenced {
			anyDiff = true
		}
		f.Columns[j] = screen
	}

	// 差分列与水平列混排: 统一丢掉首期对齐长度
	eff := n
	if anyDiff {
		eff = n - 1
		for j := range cols {
			if f.Columns[j].Differenced {
				d := make([]float64, eff)
				for i := 1; i < n; i++ {
					d[i-1] = cols[j][i] - cols[j][i-1]
				}
				cols[j] = d
			} else {
				cols[j] = cols[j][1:]
			}
		}
	}

	// 4. 差分后样本复查
	if eff < params.VarMinAfterDiff {
		f.Reason = SkipInsufficientAfterDiff
		return f
	}

	// 5. 选阶拟合
	K := len(names)
	data := make([]float64, eff*K)
	for i := 0; i < eff; i++ {
		for j := 0; j < K; j++ {
			data[i*K+j] = cols[j][i]
		}
	}
	Y := mat.NewDense(eff, K, data)

	v, err := varmodel.SelectOrder(Y, params.VarMaxOrder)
	switch {
	case errors.Is(err, varmodel.ErrTooShort):
		f.Reason = SkipInsufficientAfterDiff
		f.Detail = err.Error()
		return f
	case err != nil:
		f.Reason = SkipNumerical
		f.Detail = err.Error()
		return f
	}

	f.State = StateFitted
	f.Reason = SkipNone
	f.SelectedLags = v.Lags
	f.AIC = v.AIC
	f.NObs = v.NObs
	fev := v.ForecastErrorVariance()
	f.ForecastErrorVariance = make(map[string]float64, K)
	for j, name := range names {
		f.ForecastErrorVariance[name] = fev[j]
	}

	idx := func(name string) int {
		for j, n := range names {
			if n == name {
				return j
			}
		}
		return -1
	}

	// 6. Granger双向: 指标↔绩效
	f.Causality = make(map[CausalityKey]CausalityResult, 2*len(IndicatorVars)*len(PerformanceVars))
	for _, ind := range IndicatorVars {
		for _, perf := range PerformanceVars {
			for _, dir := range [][2]string{{ind, perf}, {perf, ind}} {
				res, gerr := v.Granger(Y, idx(dir[0]), idx(dir[1]))
				if gerr != nil {
					continue
				}
				f.Causality[CausalityKey{Cause: dir[0], Effect: dir[1]}] = CausalityResult{
					FStatistic:  res.FStatistic,
					PValue:      res.PValue,
					Significant: res.PValue < params.Significance,
				}
			}
		}
	}

	// 7. 正交化脉冲响应: 指标冲击 → 绩效响应
	f.Impulse = make(map[ImpulseKey][]float64, len(IndicatorVars)*len(PerformanceVars))
	for _, ind := range IndicatorVars {
		irf, ierr := v.IRF(params.IRFHorizon, idx(ind))
		if ierr != nil {
			continue
		}
		for _, perf := range PerformanceVars {
			resp := make([]float64, params.IRFHorizon)
			pj := idx(perf)
			for h := 0; h < params.IRFHorizon; h++ {
				resp[h] = irf.At(h, pj)
			}
			f.Impulse[ImpulseKey{Shock: ind, Response: perf}] = resp
		}
	}
	return f
}
