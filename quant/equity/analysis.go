package equity

import (
	"context"
	"time"

	"brandflow/config"
	"brandflow/logger"
	"brandflow/ml/ols"
	"brandflow/panel"
	"brandflow/quant/equity/panelvar"
	"brandflow/quant/equity/regression"
	"brandflow/quant/equity/resilience"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Report 一次完整分析的四组结果, 交给报表层的纯数据结构
type Report struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Elapsed   time.Duration

	Regressions     []regression.Result
	RegressionSkips []regression.Skip
	VarFits         map[string]*panelvar.Fit
	Trends          []resilience.Trend
	Correlations    []resilience.CorrelationResult
	ResilienceSlope map[panel.Category]ols.LinearRegressionModel
}

// Analyze 在只读面板上并发跑三个引擎。引擎之间无共享可变状态,
// 各自持有自己的结果集合; 单元级失败已在引擎内部消化为skip记录。
func Analyze(ctx context.Context, p *panel.Panel, params *config.Params) (*Report, error) {
	if params == nil {
		params = config.Get()
	}
	log := logger.GetLogger().WithComponent("equity")

	rep := &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, skips, err := regression.Run(ctx, p, params)
		if err != nil {
			return err
		}
		rep.Regressions = res
		rep.RegressionSkips = skips
		return nil
	})
	g.Go(func() error {
		fits, err := panelvar.Run(ctx, p, params)
		if err != nil {
			return err
		}
		rep.VarFits = fits
		return nil
	})
	g.Go(func() error {
		trends := resilience.Trends(p)
		rep.Trends = trends
		rep.Correlations = resilience.Correlations(trends, params)
		rep.ResilienceSlope = resilience.ResilienceSlopes(trends)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.Elapsed = time.Since(rep.StartedAt)
	log.WithFields(logger.Fields{
		"run_id":       rep.RunID,
		"regressions":  len(rep.Regressions),
		"var_fits":     len(rep.VarFits),
		"trend_rows":   len(rep.Trends),
		"correlations": len(rep.Correlations),
		"elapsed":      rep.Elapsed.String(),
	}).Info("analysis complete")
	return rep, nil
}
