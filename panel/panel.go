package panel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"brandflow/config"
	"brandflow/logger"
)

// Category 类别枚举值, 合法性由config的类别表决定
type Category string

// Period 日历年月桶, 面板的时间单位
type Period struct {
	Year  int
	Month time.Month
}

func PeriodOf(t time.Time) Period {
	return Period{Year: t.UTC().Year(), Month: t.UTC().Month()}
}

// Index 连续月索引, 用于滞后对齐
func (p Period) Index() int { return p.Year*12 + int(p.Month) - 1 }

func (p Period) Before(q Period) bool { return p.Index() < q.Index() }

func (p Period) Add(months int) Period {
	idx := p.Index() + months
	return Period{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

// 指标向量的固定命名维度
const (
	IdxAwareness = iota
	IdxSentiment
	IdxEngagement
	IdxLoyalty
	IdxPerceivedValue
	NumIndicators
)

var IndicatorNames = [NumIndicators]string{
	"awareness", "sentiment", "engagement", "loyalty", "perceived_value",
}

// Indicators 固定长度指标向量
type Indicators [NumIndicators]float64

// 绩效/衍生变量名
const (
	VarPriceMean    = "price_mean"
	VarTxCount      = "tx_count"
	VarPricePremium = "price_premium"
	VarVolumeShare  = "volume_share"
)

// TrackedVars 滞后构造覆盖的变量: 全部指标 + 两个绩效聚合
func TrackedVars() []string {
	out := make([]string, 0, NumIndicators+2)
	out = append(out, IndicatorNames[:]...)
	return append(out, VarPriceMean, VarTxCount)
}

// TxAggregate 采集层交出的交易聚合行, 契约: 每(entity, period, category)一行
type TxAggregate struct {
	EntityID      string
	Period        Period
	Category      Category
	PriceMean     float64
	PriceMedian   float64
	PriceStd      float64
	TxCount       int
	UniqueBuyers  int
	UniqueSellers int
}

// IndicatorRow 指标层交出的每(entity, period)指标向量
type IndicatorRow struct {
	EntityID string
	Period   Period
	Category Category
	Values   Indicators
}

// Row 面板行, 键 (entity, period)
type Row struct {
	EntityID      string
	Period        Period
	Category      Category
	PriceMean     float64
	PriceMedian   float64
	PriceStd      float64
	TxCount       int
	UniqueBuyers  int
	UniqueSellers int
	Indicators    Indicators
	PricePremium  float64 // 本entity均价 / 同期类别横截面均价
	VolumeShare   float64 // 本entity成交量 / 同期类别总量
}

// Value 按变量名取当期值
func (r *Row) Value(name string) (float64, bool) {
	switch name {
	case VarPriceMean:
		return r.PriceMean, true
	case VarTxCount:
		return float64(r.TxCount), true
	case VarPricePremium:
		return r.PricePremium, true
	case VarVolumeShare:
		return r.VolumeShare, true
	}
	for i, n := range IndicatorNames {
		if n == name {
			return r.Indicators[i], true
		}
	}
	return 0, false
}

// LagKey 滞后值的键: 变量名 × 滞后期数
type LagKey struct {
	Var     string
	Periods int
}

// LaggedRow 附带完整滞后值的面板行; 缺任一滞后的行在构建期已被剔除
type LaggedRow struct {
	Row
	lags map[LagKey]float64
}

// Lag 取同entity在period−periods时点的变量值
func (r *LaggedRow) Lag(name string, periods int) (float64, bool) {
	v, ok := r.lags[LagKey{Var: name, Periods: periods}]
	return v, ok
}

// 契约违规: 类别(d), 只污染所属unit
var ErrContractViolation = errors.New("panel: contract violation")

type ContractError struct {
	EntityID string
	Period   Period
	Reason   string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("panel: contract violation entity=%s period=%s: %s", e.EntityID, e.Period, e.Reason)
}

func (e *ContractError) Unwrap() error { return ErrContractViolation }

// Panel 构建完成后只读; 各引擎只持引用, 不回写
type Panel struct {
	rows       []LaggedRow
	horizons   []int
	violations []*ContractError

	droppedJoin  int // 单侧缺失被内连接丢弃
	droppedRatio int // 分母为零/未定义比率
	droppedLag   int // 滞后不完整
}

func (p *Panel) Rows() []LaggedRow { return p.rows }

func (p *Panel) Len() int { return len(p.rows) }

func (p *Panel) Horizons() []int { return p.horizons }

func (p *Panel) Violations() []*ContractError { return p.violations }

func (p *Panel) DroppedJoin() int { return p.droppedJoin }

func (p *Panel) DroppedIncompleteLags() int { return p.droppedLag }

// Entities 排序后的entity列表
func (p *Panel) Entities() []string {
	seen := map[string]bool{}
	out := []string{}
	for i := range p.rows {
		if !seen[p.rows[i].EntityID] {
			seen[p.rows[i].EntityID] = true
			out = append(out, p.rows[i].EntityID)
		}
	}
	sort.Strings(out)
	return out
}

// Categories 排序后的类别列表
func (p *Panel) Categories() []Category {
	seen := map[Category]bool{}
	out := []Category{}
	for i := range p.rows {
		if !seen[p.rows[i].Category] {
			seen[p.rows[i].Category] = true
			out = append(out, p.rows[i].Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EntityRows 单entity的行, 按period升序
func (p *Panel) EntityRows(id string) []LaggedRow {
	out := []LaggedRow{}
	for i := range p.rows {
		if p.rows[i].EntityID == id {
			out = append(out, p.rows[i])
		}
	}
	return out
}

// CategoryRows 单类别的行
func (p *Panel) CategoryRows(c Category) []LaggedRow {
	out := []LaggedRow{}
	for i := range p.rows {
		if p.rows[i].Category == c {
			out = append(out, p.rows[i])
		}
	}
	return out
}

type joinKey struct {
	entity   string
	period   int
	category Category
}

// Build 内连接交易聚合表与指标表, 计算衍生比率并构造滞后列。
// 契约违规按entity隔离(该entity整体剔除并记录), 不中断其余构建。
func Build(aggs []TxAggregate, inds []IndicatorRow, params *config.Params) (*Panel, error) {
	if params == nil {
		params = config.Get()
	}
	if len(aggs) == 0 || len(inds) == 0 {
		return nil, fmt.Errorf("panel: empty input (aggs=%d inds=%d)", len(aggs), len(inds))
	}
	log := logger.GetLogger().WithComponent("panel")

	p := &Panel{horizons: append([]int(nil), params.LagHorizons...)}
	poisoned := map[string]bool{}
	violate := func(entity string, period Period, reason string) {
		p.violations = append(p.violations, &ContractError{EntityID: entity, Period: period, Reason: reason})
		poisoned[entity] = true
	}

	// 指标表索引; 重复键 => 契约违规
	indIdx := make(map[joinKey]*IndicatorRow, len(inds))
	for i := range inds {
		r := &inds[i]
		if r.EntityID == "" {
			violate(r.EntityID, r.Period, "indicator row missing entity_id")
			continue
		}
		k := joinKey{entity: r.EntityID, period: r.Period.Index(), category: r.Category}
		if _, dup := indIdx[k]; dup {
			violate(r.EntityID, r.Period, "duplicate indicator key")
			continue
		}
		indIdx[k] = r
	}

	// 聚合表校验: 每(entity, period)唯一
	seenAgg := make(map[string]bool, len(aggs))
	rows := make([]Row, 0, len(aggs))
	for i := range aggs {
		a := &aggs[i]
		if a.EntityID == "" {
			violate(a.EntityID, a.Period, "aggregate row missing entity_id")
			continue
		}
		if !params.HasCategory(string(a.Category)) {
			violate(a.EntityID, a.Period, fmt.Sprintf("unknown category %q", a.Category))
			continue
		}
		ek := a.EntityID + "|" + a.Period.String()
		if seenAgg[ek] {
			violate(a.EntityID, a.Period, "duplicate (entity, period) key")
			continue
		}
		seenAgg[ek] = true

		ind, ok := indIdx[joinKey{entity: a.EntityID, period: a.Period.Index(), category: a.Category}]
		if !ok {
			p.droppedJoin++ // 有记录的损耗, 不是错误
			continue
		}
		rows = append(rows, Row{
			EntityID:      a.EntityID,
			Period:        a.Period,
			Category:      a.Category,
			PriceMean:     a.PriceMean,
			PriceMedian:   a.PriceMedian,
			PriceStd:      a.PriceStd,
			TxCount:       a.TxCount,
			UniqueBuyers:  a.UniqueBuyers,
			UniqueSellers: a.UniqueSellers,
			Indicators:    ind.Values,
		})
	}

	// 剔除被契约违规污染的entity
	if len(poisoned) > 0 {
		kept := rows[:0]
		for i := range rows {
			if !poisoned[rows[i].EntityID] {
				kept = append(kept, rows[i])
			}
		}
		rows = kept
	}

	// (category, period) 横截面聚合作分母
	type cpKey struct {
		cat Category
		idx int
	}
	sumPrice := map[cpKey]float64{}
	cntPrice := map[cpKey]int{}
	totVolume := map[cpKey]int{}
	for i := range rows {
		k := cpKey{cat: rows[i].Category, idx: rows[i].Period.Index()}
		sumPrice[k] += rows[i].PriceMean
		cntPrice[k]++
		totVolume[k] += rows[i].TxCount
	}

	derived := rows[:0]
	for i := range rows {
		k := cpKey{cat: rows[i].Category, idx: rows[i].Period.Index()}
		meanPrice := sumPrice[k] / float64(cntPrice[k])
		vol := totVolume[k]
		if meanPrice == 0 || vol == 0 || math.IsNaN(meanPrice) {
			p.droppedRatio++ // 分母为零 => 比率未定义, 整行剔除
			continue
		}
		rows[i].PricePremium = rows[i].PriceMean / meanPrice
		rows[i].VolumeShare = float64(rows[i].TxCount) / float64(vol)
		derived = append(derived, rows[i])
	}

	// 滞后构造前先按(entity, period)排序, 使移位沿时间方向而非插入顺序
	sort.Slice(derived, func(i, j int) bool {
		if derived[i].EntityID != derived[j].EntityID {
			return derived[i].EntityID < derived[j].EntityID
		}
		return derived[i].Period.Before(derived[j].Period)
	})

	lagged, dropped := attachLags(derived, p.horizons)
	p.rows = lagged
	p.droppedLag = dropped

	log.WithFields(logger.Fields{
		"rows":          len(p.rows),
		"violations":    len(p.violations),
		"dropped_join":  p.droppedJoin,
		"dropped_ratio": p.droppedRatio,
		"dropped_lag":   p.droppedLag,
	}).Info("panel built")

	if len(p.rows) == 0 {
		return p, fmt.Errorf("panel: no complete rows after join/lag construction")
	}
	return p, nil
}
