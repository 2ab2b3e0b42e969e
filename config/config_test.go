package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, []int{1, 3, 6}, p.LagHorizons)
	assert.Equal(t, 12, p.VarMinPeriods)
	assert.Equal(t, 10, p.IRFHorizon)
	assert.True(t, p.HasCategory("pfp"))
	assert.True(t, p.HasCategory("PFP"))
	assert.False(t, p.HasCategory("defi"))
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	content := `
lag_horizons: [1, 2]
significance: 0.1
max_entities: 50
categories:
  " PFP ":
    indicator_base:
      awareness: 0.4
  art: {}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, p.LagHorizons)
	assert.Equal(t, 0.1, p.Significance)
	assert.Equal(t, 50, p.MaxEntities)
	// 未覆盖字段保持缺省
	assert.Equal(t, 3, p.HACMaxLag)

	assert.True(t, p.HasCategory("pfp"))
	assert.InDelta(t, 0.4, p.Categories["pfp"].IndicatorBase["awareness"], 1e-12)
	assert.Equal(t, []string{"art", "pfp"}, p.CategoryNames())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	mut := func(f func(*Params)) *Params {
		p := Default()
		f(p)
		return p
	}
	cases := map[string]*Params{
		"empty horizons":      mut(func(p *Params) { p.LagHorizons = nil }),
		"not ascending":       mut(func(p *Params) { p.LagHorizons = []int{1, 3, 3} }),
		"missing lag 1":       mut(func(p *Params) { p.LagHorizons = []int{2, 4} }),
		"bad significance":    mut(func(p *Params) { p.Significance = 1.5 }),
		"negative hac lag":    mut(func(p *Params) { p.HACMaxLag = -1 }),
		"min periods":         mut(func(p *Params) { p.VarMinPeriods = 2 }),
		"after-diff too big":  mut(func(p *Params) { p.VarMinAfterDiff = 99 }),
		"zero var order":      mut(func(p *Params) { p.VarMaxOrder = 0 }),
		"zero irf horizon":    mut(func(p *Params) { p.IRFHorizon = 0 }),
		"no categories":       mut(func(p *Params) { p.Categories = nil }),
	}
	for name, p := range cases {
		assert.Error(t, p.Validate(), name)
	}
}

func TestInitAndGet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("significance: 0.01\n"), 0o644))

	require.NoError(t, Init(path))
	assert.Equal(t, 0.01, Get().Significance)
}
