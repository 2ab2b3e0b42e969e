package ols

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Standardize 把序列变换为零均值/单位方差, 返回变换后序列与标准化参数。
// 标准化参数只属于当前拟合单元, 不跨单元共享。
func Standardize(x []float64) (z []float64, mean, std float64, err error) {
	if len(x) < 2 {
		return nil, 0, 0, fmt.Errorf("%w: n=%d", ErrInsufficientData, len(x))
	}
	mean, std = stat.MeanStdDev(x, nil)
	if std == 0 || math.IsNaN(std) {
		return nil, 0, 0, fmt.Errorf("%w: mean=%v", ErrZeroVariance, mean)
	}
	z = make([]float64, len(x))
	for i, v := range x {
		z[i] = (v - mean) / std
	}
	return z, mean, std, nil
}
