package ols

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// 定义线性回归模型的参数
type LinearRegressionModel struct {
	Slope     float64
	Intercept float64
}

// Regression 返回ols斜率项和截距项; 输入含NaN的点会被成对剔除
func Regression(x, y []float64) LinearRegressionModel {
	maskX, maskY, ok := paramsValidate(x, y)
	if !ok || len(maskX) < 2 {
		return LinearRegressionModel{Slope: math.NaN(), Intercept: math.NaN()}
	}
	b, m := stat.LinearRegression(maskX, maskY, nil, false)
	return LinearRegressionModel{Slope: m, Intercept: b}
}

func paramsValidate(x, y []float64) ([]float64, []float64, bool) {
	if len(x) != len(y) {
		return nil, nil, false
	}
	maskX := make([]float64, 0, len(x))
	maskY := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		maskX = append(maskX, x[i])
		maskY = append(maskY, y[i])
	}
	return maskX, maskY, true
}
