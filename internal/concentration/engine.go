package concentration

import (
	"fmt"
	"time"

	"github.com/life2you_mini/cloengine/internal/model"
	"github.com/life2you_mini/cloengine/internal/pool"
)

// defaultDomesticCountry 未配置本国时的默认值
const defaultDomesticCountry = "US"

// Result 单项集中度测试结果
type Result struct {
	TestNumber       int       `json:"test_number"`
	Name             string    `json:"name"`
	Category         string    `json:"category"`
	Value            float64   `json:"value"`
	Threshold        float64   `json:"threshold"`
	ThresholdVersion int       `json:"threshold_version"`
	Comparison       string    `json:"comparison"`
	Pass             bool      `json:"pass"`
	Subject          string    `json:"subject,omitempty"`
	AsOf             time.Time `json:"as_of"`
}

// Engine 集中度测试引擎，构造时校验配置，之后只读
type Engine struct {
	dealID   string
	domestic string
	numbers  []int
	records  map[int][]model.ThresholdRecord
}

// New 创建集中度测试引擎，配置中出现未知测试编号时返回配置错误
func New(dealID string, cfg model.ConcentrationConfig) (*Engine, error) {
	for _, r := range cfg.Thresholds {
		if _, ok := definitions[r.TestNumber]; !ok {
			return nil, model.NewConfigError(dealID, "concentration.thresholds", "未知的集中度测试编号 %d", r.TestNumber)
		}
	}
	domestic := cfg.DomesticCountry
	if domestic == "" {
		domestic = defaultDomesticCountry
	}
	numbers, records := groupThresholds(cfg.Thresholds)
	return &Engine{
		dealID:   dealID,
		domestic: domestic,
		numbers:  numbers,
		records:  records,
	}, nil
}

// Validate 检查每个启用的测试在 asOf 都能解析出阈值（停用版本视为有效配置）
func (e *Engine) Validate(asOf time.Time) error {
	for _, n := range e.numbers {
		if _, ok := resolveThreshold(e.records[n], asOf); !ok {
			return model.NewConfigError(e.dealID, "concentration.thresholds", "测试 %d 在 %s 没有有效阈值", n, asOf.Format("2006-01-02"))
		}
	}
	return nil
}

// Tests 已配置的测试编号
func (e *Engine) Tests() []int {
	return append([]int(nil), e.numbers...)
}

// Run 对组合执行 asOf 生效的测试，结果按编号升序
// 最新版本为停用的测试跳过；没有阈值的测试跳过并返回警告
func (e *Engine) Run(asOf time.Time, holdings []pool.Holding, stats pool.Stats) ([]Result, []model.Warning) {
	comp, warnings := newComposition(holdings, stats, e.domestic)

	results := make([]Result, 0, len(e.numbers))
	for _, n := range e.numbers {
		th, ok := resolveThreshold(e.records[n], asOf)
		if !ok {
			warnings = append(warnings, model.NewWarning(0, model.WarnThresholdMissing, fmt.Sprintf("test-%d", n),
				"测试 %d 在 %s 没有有效阈值，未执行", n, asOf.Format("2006-01-02")))
			continue
		}
		if !th.Enabled {
			continue
		}
		def := definitions[n]
		value, subject := def.Measure(comp)

		pass := value <= th.Value
		if def.Comparison == Minimum {
			pass = value >= th.Value
		}
		results = append(results, Result{
			TestNumber:       n,
			Name:             def.Name,
			Category:         def.Category,
			Value:            value,
			Threshold:        th.Value,
			ThresholdVersion: th.Version,
			Comparison:       def.Comparison,
			Pass:             pass,
			Subject:          subject,
			AsOf:             asOf,
		})
	}
	return results, warnings
}

// Failures 未通过的测试
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Pass {
			out = append(out, r)
		}
	}
	return out
}
