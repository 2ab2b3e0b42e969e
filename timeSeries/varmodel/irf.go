package varmodel

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// IRF 正交化脉冲响应: 对SigmaU做Cholesky分解取单位冲击向量,
// 经MA(∞)系数阵 Psi_h 递推得到 horizon×K 的响应矩阵 (行=步, 列=响应变量)。
// SigmaU非正定时退化为单位冲击。
func (v *VAR) IRF(horizon, shockIdx int) (*mat.Dense, error) {
	if v == nil || len(v.A) == 0 {
		return nil, ErrNotEstimated
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("varmodel: horizon must be > 0, got %d", horizon)
	}
	K := v.K
	if shockIdx < 0 || shockIdx >= K {
		return nil, fmt.Errorf("varmodel: shock index %d out of range (K=%d)", shockIdx, K)
	}

	shock := make([]float64, K)
	orthogonalized := false
	if v.SigmaU != nil {
		var chol mat.Cholesky
		if chol.Factorize(v.SigmaU) {
			L := mat.NewTriDense(K, mat.Lower, nil)
			chol.LTo(L) // SigmaU = L·L'
			for i := 0; i < K; i++ {
				shock[i] = L.At(i, shockIdx)
			}
			orthogonalized = true
		}
	}
	if !orthogonalized {
		shock[shockIdx] = 1.0
	}

	// Psi_0 = I; Psi_h = Σ_{j=1..min(h,p)} A_j · Psi_{h-j}
	p := v.Lags
	Psi := make([]*mat.Dense, horizon)
	eye := mat.NewDense(K, K, nil)
	for i := 0; i < K; i++ {
		eye.Set(i, i, 1.0)
	}
	Psi[0] = eye
	for h := 1; h < horizon; h++ {
		M := mat.NewDense(K, K, nil)
		maxLag := p
		if h < p {
			maxLag = h
		}
		for j := 1; j <= maxLag; j++ {
			var tmp mat.Dense
			tmp.Mul(v.A[j-1], Psi[h-j])
			M.Add(M, &tmp)
		}
		Psi[h] = M
	}

	irf := mat.NewDense(horizon, K, nil)
	shockVec := mat.NewVecDense(K, shock)
	for h := 0; h < horizon; h++ {
		var resp mat.VecDense
		resp.MulVec(Psi[h], shockVec)
		for i := 0; i < K; i++ {
			irf.Set(h, i, resp.AtVec(i))
		}
	}
	return irf, nil
}

// ResponseSeries 提取单个(shock→response)对的响应序列
func (v *VAR) ResponseSeries(horizon, shockIdx, responseIdx int) ([]float64, error) {
	m, err := v.IRF(horizon, shockIdx)
	if err != nil {
		return nil, err
	}
	if responseIdx < 0 || responseIdx >= v.K {
		return nil, fmt.Errorf("varmodel: response index %d out of range (K=%d)", responseIdx, v.K)
	}
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		out[h] = m.At(h, responseIdx)
	}
	return out, nil
}
