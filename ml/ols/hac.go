package ols

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NeweyWestModel 用Newey-West HAC协方差替换model的标准误/t值/p值,
// 以修正残差的序列相关与异方差 (重叠时间窗带来的自相关)。
// Bartlett核权重 w_l = 1 - l/(L+1)。
func NeweyWestModel(matX *mat.Dense, model MultiLinearModel, maxLag int) (MultiLinearModel, error) {
	n, k := matX.Dims()
	if len(model.Resids) != n {
		return MultiLinearModel{}, fmt.Errorf("ols: resid len %d != n %d", len(model.Resids), n)
	}
	if maxLag >= n {
		maxLag = n - 1
	}

	var XT mat.Dense
	XT.CloneFrom(matX.T())
	var XTX mat.Dense
	XTX.Mul(&XT, matX)

	var invXTX mat.Dense
	if err := invXTX.Inverse(&XTX); err != nil {
		pinv, errSVD := pseudoInverse(&XTX)
		if errSVD != nil {
			return MultiLinearModel{}, errSVD
		}
		invXTX.CloneFrom(pinv)
	}

	e := model.Resids

	// Γ_l = Σ_t x_t e_t e_{t-l} x_{t-l}'
	gamma := func(l int) *mat.Dense {
		g := mat.NewDense(k, k, nil)
		for t := l; t < n; t++ {
			w := e[t] * e[t-l]
			for i := 0; i < k; i++ {
				xi := matX.At(t, i) * w
				for j := 0; j < k; j++ {
					g.Set(i, j, g.At(i, j)+xi*matX.At(t-l, j))
				}
			}
		}
		return g
	}

	// S = Γ_0 + Σ_l w_l (Γ_l + Γ_l')
	S := gamma(0)
	for l := 1; l <= maxLag; l++ {
		wl := 1.0 - float64(l)/float64(maxLag+1)
		gl := gamma(l)
		var glT mat.Dense
		glT.CloneFrom(gl.T())
		var sym mat.Dense
		sym.Add(gl, &glT)
		sym.Scale(wl, &sym)
		S.Add(S, &sym)
	}

	// 三明治: Cov = (X'X)^{-1} S (X'X)^{-1}
	var tmp, cov mat.Dense
	tmp.Mul(&invXTX, S)
	cov.Mul(&tmp, &invXTX)

	out := model
	out.SE = make([]float64, k)
	out.TStats = make([]float64, k)
	out.PValues = make([]float64, k)

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - k)}
	for i := 0; i < k; i++ {
		out.SE[i] = math.Sqrt(cov.At(i, i))
		out.TStats[i] = model.Coeffs[i] / out.SE[i]
		out.PValues[i] = 2 * tdist.Survival(math.Abs(out.TStats[i]))
	}
	return out, nil
}
