package panel

import (
	"github.com/bits-and-blooms/bitset"
)

// attachLags 为每个tracked变量和每个滞后期挂接同entity的历史值。
// rows必须已按(entity, period)排序。任一滞后缺失的行被整体剔除,
// 保证回归样本内滞后列齐全。
func attachLags(rows []Row, horizons []int) ([]LaggedRow, int) {
	tracked := TrackedVars()
	out := make([]LaggedRow, 0, len(rows))
	dropped := 0

	i := 0
	for i < len(rows) {
		j := i
		for j < len(rows) && rows[j].EntityID == rows[i].EntityID {
			j++
		}
		entity := rows[i:j]

		// 该entity观测期位图: lag查询O(1), 同时兜底检出重复period
		minIdx := entity[0].Period.Index()
		maxIdx := entity[len(entity)-1].Period.Index()
		present := bitset.New(uint(maxIdx - minIdx + 1))
		byOffset := make(map[uint]*Row, len(entity))
		for k := range entity {
			off := uint(entity[k].Period.Index() - minIdx)
			present.Set(off)
			byOffset[off] = &entity[k]
		}

		for k := range entity {
			off := entity[k].Period.Index() - minIdx
			lags := make(map[LagKey]float64, len(tracked)*len(horizons))
			complete := true
			for _, h := range horizons {
				lagOff := off - h
				if lagOff < 0 || !present.Test(uint(lagOff)) {
					complete = false
					break
				}
				src := byOffset[uint(lagOff)]
				for _, name := range tracked {
					v, _ := src.Value(name)
					lags[LagKey{Var: name, Periods: h}] = v
				}
			}
			if !complete {
				dropped++
				continue
			}
			out = append(out, LaggedRow{Row: entity[k], lags: lags})
		}
		i = j
	}
	return out, dropped
}
