package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// 分析参数, 全部可由yaml覆盖; 缺省值见Default()
type Params struct {
	LagHorizons     []int   `yaml:"lag_horizons"`       // 面板滞后期集合
	HACMaxLag       int     `yaml:"hac_max_lag"`        // Newey-West最大滞后
	Significance    float64 `yaml:"significance"`       // 显著性水平
	VarMinPeriods   int     `yaml:"var_min_periods"`    // VAR入场最少期数
	VarMinAfterDiff int     `yaml:"var_min_after_diff"` // 差分后最少观测
	VarMaxOrder     int     `yaml:"var_max_order"`      // VAR候选最大阶数
	ADFMaxLag       int     `yaml:"adf_max_lag"`        // ADF autolag上限
	IRFHorizon      int     `yaml:"irf_horizon"`        // 脉冲响应步长
	Workers         int     `yaml:"workers"`            // fan-out并发度, <=0 取GOMAXPROCS
	MaxEntities     int     `yaml:"max_entities"`       // 墙钟预算: 0 不限

	// 类别→基准常数表, 供指标生成方使用; 引擎侧只校验类别名
	Categories map[string]CategoryBase `yaml:"categories"`
}

// 类别的静态基准常数(指标基准值)
type CategoryBase struct {
	IndicatorBase map[string]float64 `yaml:"indicator_base"`
}

func Default() *Params {
	return &Params{
		LagHorizons:     []int{1, 3, 6},
		HACMaxLag:       3,
		Significance:    0.05,
		VarMinPeriods:   12,
		VarMinAfterDiff: 8,
		VarMaxOrder:     3,
		ADFMaxLag:       1,
		IRFHorizon:      10,
		Workers:         0,
		MaxEntities:     0,
		Categories: map[string]CategoryBase{
			"pfp":       {},
			"art":       {},
			"gaming":    {},
			"utility":   {},
			"metaverse": {},
		},
	}
}

// 用 atomic.Value 存当前配置，支持热更新时无锁读取
var cfgValue atomic.Value // stores *Params

func Load(path string) (*Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// 规范化 key：全小写、去空格
	norm := make(map[string]CategoryBase, len(c.Categories))
	for k, v := range c.Categories {
		norm[strings.ToLower(strings.TrimSpace(k))] = v
	}
	c.Categories = norm

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Init(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	cfgValue.Store(c)
	return nil
}

// Get 返回当前配置; 未Init时回退缺省值
func Get() *Params {
	cAny := cfgValue.Load()
	if cAny == nil {
		return Default()
	}
	return cAny.(*Params)
}

func (p *Params) Validate() error {
	if len(p.LagHorizons) == 0 {
		return fmt.Errorf("lag_horizons empty")
	}
	prev := 0
	for _, h := range p.LagHorizons {
		if h <= prev {
			return fmt.Errorf("lag_horizons must be positive ascending, got %v", p.LagHorizons)
		}
		prev = h
	}
	// 回归引擎依赖领先指标的1期滞后
	if p.LagHorizons[0] != 1 {
		return fmt.Errorf("lag_horizons must include 1, got %v", p.LagHorizons)
	}
	if p.Significance <= 0 || p.Significance >= 1 {
		return fmt.Errorf("significance must be in (0,1): %v", p.Significance)
	}
	if p.HACMaxLag < 0 {
		return fmt.Errorf("hac_max_lag must be >= 0: %d", p.HACMaxLag)
	}
	if p.VarMinPeriods < 4 {
		return fmt.Errorf("var_min_periods too small: %d", p.VarMinPeriods)
	}
	if p.VarMinAfterDiff < 4 || p.VarMinAfterDiff > p.VarMinPeriods {
		return fmt.Errorf("var_min_after_diff out of range: %d", p.VarMinAfterDiff)
	}
	if p.VarMaxOrder < 1 {
		return fmt.Errorf("var_max_order must be >= 1: %d", p.VarMaxOrder)
	}
	if p.ADFMaxLag < 0 {
		return fmt.Errorf("adf_max_lag must be >= 0: %d", p.ADFMaxLag)
	}
	if p.IRFHorizon < 1 {
		return fmt.Errorf("irf_horizon must be >= 1: %d", p.IRFHorizon)
	}
	if len(p.Categories) == 0 {
		return fmt.Errorf("categories empty")
	}
	return nil
}

// CategoryNames 返回排序后的类别名列表
func (p *Params) CategoryNames() []string {
	names := make([]string, 0, len(p.Categories))
	for k := range p.Categories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// HasCategory 校验类别名是否在枚举内
func (p *Params) HasCategory(name string) bool {
	_, ok := p.Categories[strings.ToLower(name)]
	return ok
}
