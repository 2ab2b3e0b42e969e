package adfuller

import (
	"errors"
	"fmt"
	"math"

	"brandflow/ml/ols"

	"github.com/gonum/stat"
	"gonum.org/v1/gonum/mat"
)

// 序列过短, 无法构造ADF回归
var ErrTooShort = errors.New("adfuller: series too short")

type ADFResult struct {
	Gamma     float64            // 单位根系数
	TStat     float64            // ADF统计量 (t值)
	PValue    float64            // MacKinnon近似p值
	UsedLag   int                // 选用的滞后阶数
	NObs      int                // 有效样本量
	AIC       float64            // Akaike信息准则
	BIC       float64            // 贝叶斯信息准则
	Method    LagMode            // autolag选择方法
	Trend     string             // 趋势类型 ("n"、"c"、"ct")
	Criticals map[string]float64 // 临界值（1%, 5%, 10%）
	Resid     []float64          // 残差
	ResidMean float64            // 残差均值 (诊断用, 应接近0)
	Coeffs    []float64          // 回归系数
}

// Stationary 按给定显著性水平判定: p值小于alpha拒绝单位根假设 => 平稳
func (f *ADFResult) Stationary(alpha float64) bool {
	return f.PValue < alpha
}

func diff(x []float64) []float64 {
	d := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		d[i-1] = x[i] - x[i-1]
	}
	return d
}

// AdfTest 左尾单位根检验, H0: 非平稳(存在单位根); H1: 序列平稳(无单位根)
// input: series 序列; regr 趋势类型 "n"、"c"、"ct"; maxLag 最大滞后阶数; autolag 阶数选择方法
func AdfTest(series []float64, regr string, maxLag int, autolag LagMode) (ADFResult, error) {
	if regr != "n" && regr != "c" && regr != "ct" {
		return ADFResult{}, fmt.Errorf("adfuller: invalid trend %q", regr)
	}
	if len(series) < maxLag+6 {
		return ADFResult{}, fmt.Errorf("%w: n=%d maxLag=%d", ErrTooShort, len(series), maxLag)
	}

	result := ADFResult{
		AIC:       math.Inf(1),
		BIC:       math.Inf(1),
		Method:    autolag,
		Trend:     regr,
		Criticals: adfLeftTailCriticalValues[regr],
	}

	dy := diff(series) // len = n-1
	ylag := series[:len(series)-1]

	// 所有候选阶数共用同一截断样本, 保证AIC可比
	dy1 := dy[maxLag:]
	ylag1 := ylag[:len(ylag)-maxLag]
	nRow := len(dy1)

	found := false
	for lag := 0; lag <= maxLag; lag++ {
		var nCol int
		switch regr {
		case "n":
			nCol = lag + 1
		case "c":
			nCol = lag + 2
		case "ct":
			nCol = lag + 3
		}
		if nRow <= nCol+1 {
			continue
		}

		X := make([]float64, nRow*nCol)
		pos := 0
		for i := 0; i < nRow; i++ {
			X[pos] = ylag1[i]
			pos++
			if regr != "n" {
				X[pos] = 1
				pos++
			}
			if regr == "ct" {
				X[pos] = float64(i + 1)
				pos++
			}
			for j := lag; j > 0; j-- {
				X[pos] = dy[maxLag-j : len(dy)-j][i]
				pos++
			}
		}

		matX := mat.NewDense(nRow, nCol, X)
		matY := mat.NewVecDense(nRow, dy1)
		model, err := ols.MultiRegressionMat(matX, matY)
		if err != nil {
			continue
		}

		better := false
		switch autolag {
		case LAG_MODE_AIC:
			better = model.AIC < result.AIC
		case LAG_MODE_BIC:
			better = model.BIC < result.BIC
		case LAG_MODE_TSTAT:
			better = !found || model.TStats[0] < result.TStat
		}
		if better {
			result.Gamma = model.Coeffs[0]
			result.TStat = model.TStats[0]
			result.AIC = model.AIC
			result.BIC = model.BIC
			result.UsedLag = lag
			result.NObs = nRow
			result.Resid = model.Resids
			result.Coeffs = model.Coeffs
			found = true
		}
	}

	if !found || math.IsNaN(result.TStat) {
		return result, fmt.Errorf("%w: no feasible ADF regression (n=%d)", ErrTooShort, len(series))
	}

	result.PValue = mackinnonPValue(result.TStat, regr)
	result.ResidMean = residMean(result.Resid)
	return result, nil
}

// 残差均值 (沿用老 gonum/stat 的Mean)
func residMean(resid []float64) float64 {
	return stat.Mean(resid, nil)
}

// mackinnonPValue MacKinnon(1994)回归面近似p值。
// "c" 用tau多项式曲面; 其余趋势类型在临界值表上做log-p插值。
func mackinnonPValue(tstat float64, regr string) float64 {
	if regr == "c" {
		switch {
		case tstat > tauMaxC:
			return 1.0
		case tstat < tauMinC:
			return 0.0
		}
		var poly []float64
		if tstat <= tauStarC {
			poly = tauSmallPC
		} else {
			poly = tauLargePC
		}
		z := 0.0
		for i := len(poly) - 1; i >= 0; i-- {
			z = z*tstat + poly[i]
		}
		return normCDF(z)
	}

	// 粗插值: 在 (1%,5%,10%) 分位点之间按log(p)线性
	crit := adfLeftTailCriticalValues[regr]
	type qp struct{ t, p float64 }
	pts := []qp{{crit["1%"], 0.01}, {crit["5%"], 0.05}, {crit["10%"], 0.10}}
	switch {
	case tstat <= pts[0].t:
		return 0.005
	case tstat >= pts[2].t:
		// 右侧尾部向p=1衰减
		p := 0.10 * math.Exp((tstat-pts[2].t)*0.8)
		if p > 0.995 {
			p = 0.995
		}
		return p
	}
	var lo, hi qp
	if tstat <= pts[1].t {
		lo, hi = pts[0], pts[1]
	} else {
		lo, hi = pts[1], pts[2]
	}
	frac := (tstat - lo.t) / (hi.t - lo.t)
	return math.Exp(math.Log(lo.p) + frac*(math.Log(hi.p)-math.Log(lo.p)))
}

func normCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}
