package regression

import (
	"context"
	"errors"
	"runtime"

	"brandflow/config"
	"brandflow/logger"
	"brandflow/ml/ols"
	"brandflow/panel"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// 固定结局变量集
var Outcomes = []string{panel.VarPricePremium, panel.VarVolumeShare}

// 领先指标子集: 这些指标额外进入1期滞后项
var LeadingIndicators = []string{"sentiment", "engagement"}

// 跳过原因
const (
	ReasonInsufficientData = "insufficient-data"
	ReasonSingularDesign   = "singular-design"
	ReasonZeroVariance     = "zero-variance"
)

type SignificantPredictor struct {
	Name   string
	Coeff  float64
	PValue float64
}

// Result 单个(category, outcome)拟合结果。系数/标准误/p值与Predictors逐位对齐,
// 截距单列。标准误为Newey-West HAC修正后的稳健值。
type Result struct {
	Category    panel.Category
	Outcome     string
	NObs        int
	Predictors  []string
	Coeffs      []float64
	StdErrs     []float64
	PValues     []float64
	Intercept   float64
	RSquared    float64
	AdjRSquared float64
	Significant []SignificantPredictor // 稳健p值 < 显著性水平的预测子
}

// Skip 不可行的(category, outcome)单元, 不是硬错误
type Skip struct {
	Category panel.Category
	Outcome  string
	Reason   string
	Detail   string
}

type fitUnit struct {
	res  *Result
	skip *Skip
}

// predictorNames 当期全部指标 + 领先子集的1期滞后
func predictorNames() []string {
	out := append([]string{}, panel.IndicatorNames[:]...)
	for _, n := range LeadingIndicators {
		out = append(out, n+"_lag1")
	}
	return out
}

// Run 对每个(category, outcome)独立拟合; 单元之间无共享可变状态, fan-out并发。
func Run(ctx context.Context, p *panel.Panel, params *config.Params) ([]Result, []Skip, error) {
	if params == nil {
		params = config.Get()
	}
	log := logger.GetLogger().WithComponent("regression")

	type task struct {
		cat     panel.Category
		outcome string
	}
	tasks := []task{}
	for _, c := range p.Categories() {
		for _, o := range Outcomes {
			tasks = append(tasks, task{cat: c, outcome: o})
		}
	}

	units := make([]fitUnit, len(tasks))

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t := tasks[i]
			units[i] = fitOne(p.CategoryRows(t.cat), t.cat, t.outcome, params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	results := []Result{}
	skips := []Skip{}
	for _, u := range units {
		if u.res != nil {
			results = append(results, *u.res)
		}
		if u.skip != nil {
			skips = append(skips, *u.skip)
			log.WithFields(logger.Fields{
				"category": u.skip.Category,
				"outcome":  u.skip.Outcome,
				"reason":   u.skip.Reason,
			}).Warn("regression unit skipped")
		}
	}
	return results, skips, nil
}

func fitOne(rows []panel.LaggedRow, cat panel.Category, outcome string, params *config.Params) (u fitUnit) {
	preds := predictorNames()
	n := len(rows)
	k := len(preds) + 1 // 含常数项

	skip := func(reason, detail string) {
		u.skip = &Skip{Category: cat, Outcome: outcome, Reason: reason, Detail: detail}
	}
	if n < k+1 {
		skip(ReasonInsufficientData, "")
		return
	}

	// 原始列: 当期指标 + 领先指标1期滞后
	cols := make([][]float64, len(preds))
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	y := make([]float64, n)
	for i := range rows {
		r := &rows[i]
		for j := 0; j < panel.NumIndicators; j++ {
			cols[j][i] = r.Indicators[j]
		}
		for j, name := range LeadingIndicators {
			v, _ := r.Lag(name, 1)
			cols[panel.NumIndicators+j][i] = v
		}
		ov, _ := r.Value(outcome)
		y[i] = ov
	}

	// 列标准化: 参数只属于本(category, outcome)单元
	data := make([]float64, n*k)
	for i := 0; i < n; i++ {
		data[i*k] = 1.0
	}
	for j := range cols {
		z, _, _, err := ols.Standardize(cols[j])
		if err != nil {
			skip(ReasonZeroVariance, preds[j])
			return
		}
		for i := 0; i < n; i++ {
			data[i*k+1+j] = z[i]
		}
	}

	matX := mat.NewDense(n, k, data)
	matY := mat.NewVecDense(n, y)

	model, err := ols.MultiRegressionStrict(matX, matY)
	switch {
	case errors.Is(err, ols.ErrSingularDesign):
		skip(ReasonSingularDesign, err.Error())
		return
	case errors.Is(err, ols.ErrInsufficientData):
		skip(ReasonInsufficientData, err.Error())
		return
	case err != nil:
		skip(ReasonSingularDesign, err.Error())
		return
	}

	robust, err := ols.NeweyWestModel(matX, model, params.HACMaxLag)
	if err != nil {
		skip(ReasonSingularDesign, err.Error())
		return
	}

	res := &Result{
		Category:    cat,
		Outcome:     outcome,
		NObs:        n,
		Predictors:  preds,
		Coeffs:      robust.Coeffs[1:],
		StdErrs:     robust.SE[1:],
		PValues:     robust.PValues[1:],
		Intercept:   robust.Coeffs[0],
		RSquared:    robust.RSquared,
		AdjRSquared: robust.AdjRSquared,
	}
	for j, name := range preds {
		if res.PValues[j] < params.Significance {
			res.Significant = append(res.Significant, SignificantPredictor{
				Name:   name,
				Coeff:  res.Coeffs[j],
				PValue: res.PValues[j],
			})
		}
	}
	u.res = res
	return
}
