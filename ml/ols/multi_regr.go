package ols

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// 样本数不足以估计参数 (n <= k)
	ErrInsufficientData = errors.New("ols: insufficient observations")
	// 设计矩阵奇异/共线 (严格模式下不做伪逆回退)
	ErrSingularDesign = errors.New("ols: singular design matrix")
	// 零方差序列无法标准化
	ErrZeroVariance = errors.New("ols: zero variance series")
)

type MultiLinearModel struct {
	Coeffs      []float64 // 回归系数
	SE          []float64 // 标准误
	TStats      []float64 // t统计量
	PValues     []float64 // p值（双尾）
	Resids      []float64 // 残差
	AIC         float64
	BIC         float64
	Sigma2      float64 // 残差方差
	RSquared    float64
	AdjRSquared float64
}

// MultiRegressionMat 多元OLS; 矩阵不可逆时回退SVD伪逆
func MultiRegressionMat(matX *mat.Dense, matY *mat.VecDense) (MultiLinearModel, error) {
	return fitMat(matX, matY, true)
}

// MultiRegressionStrict 多元OLS严格模式; 共线/奇异直接返回ErrSingularDesign,
// 不做伪逆回退
func MultiRegressionStrict(matX *mat.Dense, matY *mat.VecDense) (MultiLinearModel, error) {
	return fitMat(matX, matY, false)
}

func fitMat(matX *mat.Dense, matY *mat.VecDense, allowPinv bool) (MultiLinearModel, error) {
	n, k := matX.Dims()
	if n <= k {
		return MultiLinearModel{}, fmt.Errorf("%w: n=%d k=%d", ErrInsufficientData, n, k)
	}

	// 计算 (X'X)
	var XT mat.Dense
	XT.CloneFrom(matX.T())

	var XTX mat.Dense
	XTX.Mul(&XT, matX)

	// (X'X)^(-1)
	var invXTX mat.Dense
	err := invXTX.Inverse(&XTX)
	if err != nil {
		if !allowPinv {
			return MultiLinearModel{}, fmt.Errorf("%w: %v", ErrSingularDesign, err)
		}
		pinv, errSVD := pseudoInverse(&XTX)
		if errSVD != nil {
			return MultiLinearModel{}, errSVD
		}
		invXTX.CloneFrom(pinv)
	}

	// (X'Y)
	var XTY mat.VecDense
	XTY.MulVec(&XT, matY)

	// β = (X'X)^(-1) * (X'Y)
	var beta mat.VecDense
	beta.MulVec(&invXTX, &XTY)

	// 预测值 & 残差
	Yhat := mat.NewVecDense(n, nil)
	Yhat.MulVec(matX, &beta)
	resid := mat.NewVecDense(n, nil)
	resid.SubVec(matY, Yhat)

	RSS := mat.Dot(resid, resid)

	// 残差方差 σ² = RSS / (n - k)
	sigma2 := RSS / float64(n-k)

	// 标准误 SE = sqrt( diag(σ² * (X'X)^(-1)) )
	SE := make([]float64, k)
	for i := 0; i < k; i++ {
		SE[i] = math.Sqrt(sigma2 * invXTX.At(i, i))
	}

	// t统计量
	tStats := make([]float64, k)
	for i := 0; i < k; i++ {
		tStats[i] = beta.AtVec(i) / SE[i]
	}

	// p值（双尾），使用 Student-t 分布
	df := float64(n - k)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}

	pValues := make([]float64, k)
	for i := 0; i < k; i++ {
		t := math.Abs(tStats[i])
		pValues[i] = 2 * tdist.Survival(t)
	}

	// R² & 调整后R²
	Ymean := mat.Sum(matY) / float64(n)
	TSS := 0.0
	for i := 0; i < n; i++ {
		diff := matY.AtVec(i) - Ymean
		TSS += diff * diff
	}
	RSq := 1 - RSS/TSS
	AdjRSq := 1 - (1-RSq)*float64(n-1)/float64(n-k)

	// AIC / BIC
	logLik := -0.5 * float64(n) * (1 + math.Log(2*math.Pi*RSS/float64(n)))
	AIC := -2*logLik + 2*float64(k)
	BIC := -2*logLik + float64(k)*math.Log(float64(n))

	coeffs := make([]float64, k)
	for i := 0; i < k; i++ {
		coeffs[i] = beta.AtVec(i)
	}
	return MultiLinearModel{
		Coeffs:      coeffs,
		SE:          SE,
		TStats:      tStats,
		PValues:     pValues,
		Resids:      resid.RawVector().Data,
		AIC:         AIC,
		BIC:         BIC,
		Sigma2:      sigma2,
		RSquared:    RSq,
		AdjRSquared: AdjRSq,
	}, nil
}

// MultiRegression 行切片入口; withConst 时在首列插入常数项
func MultiRegression(X [][]float64, Y []float64, withConst bool) (MultiLinearModel, error) {
	n := len(Y)
	if n == 0 || len(X) == 0 {
		return MultiLinearModel{}, fmt.Errorf("%w: empty input", ErrInsufficientData)
	}
	if n != len(X) {
		return MultiLinearModel{}, fmt.Errorf("ols: X rows %d != Y len %d", len(X), n)
	}

	if withConst {
		X = addConstantColumn(X)
	}

	k := len(X[0])
	dataX := make([]float64, n*k)
	for i := 0; i < n; i++ {
		copy(dataX[i*k:(i+1)*k], X[i])
	}
	return MultiRegressionMat(mat.NewDense(n, k, dataX), mat.NewVecDense(n, Y))
}

// 用SVD 求解广义逆矩阵
func pseudoInverse(A *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	ok := svd.Factorize(A, mat.SVDThin)
	if !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed", ErrSingularDesign)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// 取 Σ 的倒数
	sigma := svd.Values(nil)
	m, n := A.Dims()
	sInv := mat.NewDense(n, m, nil)

	tol := 1e-12 // 小奇异值截断阈值
	for i, val := range sigma {
		if val > tol {
			sInv.Set(i, i, 1.0/val)
		}
	}

	// A⁺ = V * Σ⁺ * Uᵀ
	var temp mat.Dense
	temp.Mul(&v, sInv)
	var uT mat.Dense
	uT.CloneFrom(u.T())

	var pinv mat.Dense
	pinv.Mul(&temp, &uT)

	return &pinv, nil
}

// 添加常数项
func addConstantColumn(X [][]float64) [][]float64 {
	n := len(X)
	if n == 0 {
		return X
	}
	k := len(X[0])

	newX := make([][]float64, n)
	for i := 0; i < n; i++ {
		newRow := make([]float64, k+1)
		newRow[0] = 1.0 // 第一列为常数项
		copy(newRow[1:], X[i])
		newX[i] = newRow
	}
	return newX
}
