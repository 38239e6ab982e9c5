package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/cloengine/internal/model"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("testdata/config.yaml")

	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.BatchWorkers)
	assert.Equal(t, 12, cfg.Engine.DefaultPeriods)
	assert.Equal(t, "stress", cfg.Worker.Queue)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
	// 文件未给出的字段使用默认值
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Worker.PopTimeout())
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, "test:", cfg.Redis.KeyPrefix)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("CLOENGINE_REDIS_HOST", "10.0.0.5")
	t.Setenv("REDIS_PASSWORD", "secret")

	cfg, err := LoadConfig("testdata/config.yaml")

	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Redis.Host)
	assert.Equal(t, "secret", cfg.Redis.Password)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "默认配置有效", mutate: func(c *Config) {}},
		{name: "情景并发数为零", mutate: func(c *Config) { c.Engine.BatchWorkers = 0 }, wantErr: true},
		{name: "队列名为空", mutate: func(c *Config) { c.Worker.Queue = "" }, wantErr: true},
		{name: "Redis端口越界", mutate: func(c *Config) { c.Redis.Port = 70000 }, wantErr: true},
		{name: "启用指标但无监听地址", mutate: func(c *Config) { c.Metrics.Listen = "" }, wantErr: true},
		{name: "关闭指标时不检查监听地址", mutate: func(c *Config) { c.Metrics.Enabled = false; c.Metrics.Listen = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := GetDefaultConfig()
			tt.mutate(c)
			err := validateConfig(c)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := GetDefaultConfig()
	cfg.Worker.Queue = "nightly"
	cfg.Redis.Password = "secret"

	require.NoError(t, SaveConfigToFile(cfg, path))
	loaded, err := LoadConfigFromYAML(path)

	require.NoError(t, err)
	assert.Equal(t, "nightly", loaded.Worker.Queue)
	assert.Empty(t, loaded.Redis.Password, "密码不写入文件")
	assert.Equal(t, cfg.Metrics, loaded.Metrics)
}

func TestLoadDealSnapshot(t *testing.T) {
	in, err := LoadDealSnapshot("testdata/deal.yaml", 40)

	require.NoError(t, err)
	assert.Equal(t, 8, in.Periods)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), in.AnalysisDate)
	require.NotNil(t, in.Deal)
	assert.Equal(t, "CLO-2025-1", in.Deal.ID)
	require.Len(t, in.Deal.Tranches, 3)
	assert.Equal(t, "80000000", in.Deal.Tranches[0].OriginalBalance.String())
	assert.Equal(t, model.CouponFloating, in.Deal.Tranches[0].CouponType)
	assert.True(t, in.Deal.Tranches[1].PIKEligible)
	assert.True(t, in.Deal.Tranches[2].Subordinated)
	assert.Equal(t, "12500", in.Deal.Fees.TrusteeFee.String())
	require.NotNil(t, in.Deal.Waterfall.TurboPrincipal)
	assert.True(t, *in.Deal.Waterfall.TurboPrincipal)
	assert.Len(t, in.Deal.Concentration.Thresholds, 1)

	require.Len(t, in.Assets, 2)
	assert.Equal(t, model.AmortLevel, in.Assets[1].Amortization)
	assert.Equal(t, "Caa1", in.Assets[1].MoodysRating)
	assert.Equal(t, model.Vector{0.15}, in.Assumptions.Default.CPR)
	assert.Equal(t, 2, in.Assumptions.Default.RecoveryLag)
	assert.Len(t, in.Curve, 3)
}

func TestParseDealSnapshot(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "缺少交易节点", data: "periods: 4\n"},
		{name: "未知字段", data: "deal:\n  id: X\n  colour: red\n"},
		{name: "金额格式错误", data: "deal:\n  id: X\n  beginning_cash: abc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDealSnapshot([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadDealSnapshot_DefaultPeriods(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deal:\n  id: X\nanalysis_date: 2025-01-15\n"), 0o644))

	in, err := LoadDealSnapshot(path, 40)

	require.NoError(t, err)
	assert.Equal(t, 40, in.Periods)
	assert.Equal(t, "base", ScenarioName(path))
}
