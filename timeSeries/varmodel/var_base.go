package varmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// 样本量不足以估计给定阶数
	ErrTooShort = errors.New("varmodel: insufficient observations")
	// 设计矩阵奇异或病态, 拟合失败
	ErrSingular = errors.New("varmodel: singular system")
	// 模型未估计
	ErrNotEstimated = errors.New("varmodel: model not estimated")
)

// VAR 带截距的简化式VAR(p): y_t = c + A_1 y_{t-1} + ... + A_p y_{t-p} + u_t
type VAR struct {
	Lags   int
	K      int          // 变量个数
	NObs   int          // 有效回归行数 T-p
	A      []*mat.Dense // 每阶一个 K×K 系数阵
	C      *mat.VecDense
	SigmaU *mat.SymDense // 残差协方差 (df修正)
	AIC    float64
}

// 构造滞后设计矩阵: [1, y_{t-1,*}, ..., y_{t-p,*}], 与响应阵 Yreg
func lagDesign(Y *mat.Dense, p int) (X, Yreg *mat.Dense) {
	T, K := Y.Dims()
	Treg := T - p
	m := 1 + p*K

	Yreg = mat.NewDense(Treg, K, nil)
	X = mat.NewDense(Treg, m, nil)
	for t := 0; t < Treg; t++ {
		for k := 0; k < K; k++ {
			Yreg.Set(t, k, Y.At(t+p, k))
		}
		col := 0
		X.Set(t, col, 1.0)
		col++
		for j := 1; j <= p; j++ {
			srcRow := t + p - j
			for k := 0; k < K; k++ {
				X.Set(t, col, Y.At(srcRow, k))
				col++
			}
		}
	}
	return X, Yreg
}

// Fit 以OLS估计VAR(p)。Y为 T×K (行=时间)。
// 奇异/病态系统返回ErrSingular, 调用方按数值失稳跳过该单元。
func Fit(Y *mat.Dense, p int) (*VAR, error) {
	if Y == nil {
		return nil, fmt.Errorf("%w: nil data", ErrTooShort)
	}
	T, K := Y.Dims()
	if p <= 0 {
		return nil, fmt.Errorf("varmodel: lags must be > 0, got %d", p)
	}
	Treg := T - p
	m := 1 + p*K
	if Treg <= m {
		return nil, fmt.Errorf("%w: T=%d K=%d p=%d needs more than %d rows", ErrTooShort, T, K, p, m+p)
	}

	X, Yreg := lagDesign(Y, p)

	// B = argmin ||Yreg - X B||_F, QR最小二乘; 病态直接报错
	var B mat.Dense
	if err := B.Solve(X, Yreg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	// 拆出截距与各阶系数阵 (B为 m×K, 行=回归子, 列=方程)
	C := mat.NewVecDense(K, nil)
	for k := 0; k < K; k++ {
		C.SetVec(k, B.At(0, k))
	}
	A := make([]*mat.Dense, p)
	for j := 0; j < p; j++ {
		Aj := mat.NewDense(K, K, nil)
		rowOffset := 1 + j*K
		for eq := 0; eq < K; eq++ {
			for v := 0; v < K; v++ {
				Aj.Set(eq, v, B.At(rowOffset+v, eq))
			}
		}
		A[j] = Aj
	}

	// 残差协方差
	var Yhat mat.Dense
	Yhat.Mul(X, &B)
	var U mat.Dense
	U.Sub(Yreg, &Yhat)

	var utu mat.Dense
	utu.Mul(U.T(), &U)

	df := float64(Treg - m)
	sigmaData := make([]float64, K*K)
	sigmaML := make([]float64, K*K)
	for i := 0; i < K; i++ {
		for j := 0; j < K; j++ {
			sigmaData[i*K+j] = utu.At(i, j) / df
			sigmaML[i*K+j] = utu.At(i, j) / float64(Treg)
		}
	}
	SigmaU := mat.NewSymDense(K, sigmaData)

	// AIC = ln|Σ_ml| + 2·K·m/T
	det := mat.Det(mat.NewDense(K, K, sigmaML))
	if det <= 0 || math.IsNaN(det) {
		return nil, fmt.Errorf("%w: residual covariance not positive definite", ErrSingular)
	}
	aic := math.Log(det) + 2.0*float64(K*m)/float64(Treg)

	return &VAR{
		Lags:   p,
		K:      K,
		NObs:   Treg,
		A:      A,
		C:      C,
		SigmaU: SigmaU,
		AIC:    aic,
	}, nil
}

// SelectOrder 在 1..maxOrder 内按AIC选阶; 不可识别的候选阶直接跳过。
// 所有候选都不可行时返回ErrTooShort。
func SelectOrder(Y *mat.Dense, maxOrder int) (*VAR, error) {
	var best *VAR
	var lastErr error
	for p := 1; p <= maxOrder; p++ {
		v, err := Fit(Y, p)
		if err != nil {
			lastErr = err
			continue
		}
		if best == nil || v.AIC < best.AIC {
			best = v
		}
	}
	if best == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: no admissible lag order", ErrTooShort)
	}
	return best, nil
}

// ForecastErrorVariance 残差协方差对角线, 即各方程的一步预报误差方差
func (v *VAR) ForecastErrorVariance() []float64 {
	if v == nil || v.SigmaU == nil {
		return nil
	}
	out := make([]float64, v.K)
	for i := 0; i < v.K; i++ {
		out[i] = v.SigmaU.At(i, i)
	}
	return out
}
