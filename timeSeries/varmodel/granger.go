package varmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GrangerResult 单向Granger因果检验结果
// H0: cause变量的滞后项对effect方程无解释力
type GrangerResult struct {
	CauseIdx   int
	EffectIdx  int
	Lags       int
	FStatistic float64
	PValue     float64
}

// Granger 对effect方程做受限/非受限F检验。滞后阶数沿用已选定的v.Lags。
func (v *VAR) Granger(Y *mat.Dense, causeIdx, effectIdx int) (GrangerResult, error) {
	if v == nil || len(v.A) == 0 {
		return GrangerResult{}, ErrNotEstimated
	}
	T, K := Y.Dims()
	if causeIdx < 0 || causeIdx >= K || effectIdx < 0 || effectIdx >= K {
		return GrangerResult{}, fmt.Errorf("varmodel: variable index out of range (K=%d)", K)
	}
	if causeIdx == effectIdx {
		return GrangerResult{}, fmt.Errorf("varmodel: cause and effect must differ")
	}

	p := v.Lags
	Treg := T - p
	mU := 1 + p*K       // 非受限回归子个数
	mR := 1 + p*(K-1)   // 受限: 去掉cause的全部滞后
	if Treg <= mU {
		return GrangerResult{}, fmt.Errorf("%w: T=%d p=%d", ErrTooShort, T, p)
	}

	y := mat.NewDense(Treg, 1, nil)
	XU := mat.NewDense(Treg, mU, nil)
	XR := mat.NewDense(Treg, mR, nil)
	for t := 0; t < Treg; t++ {
		y.Set(t, 0, Y.At(t+p, effectIdx))
		cu, cr := 0, 0
		XU.Set(t, cu, 1.0)
		XR.Set(t, cr, 1.0)
		cu, cr = 1, 1
		for j := 1; j <= p; j++ {
			srcRow := t + p - j
			for k := 0; k < K; k++ {
				val := Y.At(srcRow, k)
				XU.Set(t, cu, val)
				cu++
				if k != causeIdx {
					XR.Set(t, cr, val)
					cr++
				}
			}
		}
	}

	rssU, err := lstsqRSS(XU, y)
	if err != nil {
		return GrangerResult{}, err
	}
	rssR, err := lstsqRSS(XR, y)
	if err != nil {
		return GrangerResult{}, err
	}

	// F = ((RSS_r - RSS_u)/p) / (RSS_u/(T-p-m_u))
	q := float64(p)
	dof := float64(Treg - mU)

	num := rssR - rssU
	if num < 0 {
		num = 0 // 浮点误差下截断
	}
	den := rssU / dof

	res := GrangerResult{CauseIdx: causeIdx, EffectIdx: effectIdx, Lags: p}
	if den <= 0 || num == 0 {
		res.FStatistic = 0
		res.PValue = 1
		return res, nil
	}
	f := (num / q) / den
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		res.FStatistic = 0
		res.PValue = 1
		return res, nil
	}

	fDist := distuv.F{D1: q, D2: dof}
	pv := 1.0 - fDist.CDF(f)
	if pv < 0 {
		pv = 0
	}
	if pv > 1 {
		pv = 1
	}
	res.FStatistic = f
	res.PValue = pv
	return res, nil
}

func lstsqRSS(X, y *mat.Dense) (float64, error) {
	var b mat.Dense
	if err := b.Solve(X, y); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var yhat mat.Dense
	yhat.Mul(X, &b)
	var resid mat.Dense
	resid.Sub(y, &yhat)

	rows, _ := resid.Dims()
	rss := 0.0
	for t := 0; t < rows; t++ {
		e := resid.At(t, 0)
		rss += e * e
	}
	return rss, nil
}
