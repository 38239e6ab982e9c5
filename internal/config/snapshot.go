package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/life2you_mini/cloengine/internal/engine"
)

// LoadDealSnapshot 读取 yaml 交易快照（交易配置、资产、假设、曲线）
// 快照未给出期数时使用 defaultPeriods
func LoadDealSnapshot(filePath string, defaultPeriods int) (*engine.RunInput, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取交易快照失败: %w", err)
	}
	in, err := ParseDealSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("解析交易快照 %s 失败: %w", filepath.Base(filePath), err)
	}
	if in.Periods == 0 {
		in.Periods = defaultPeriods
	}
	return in, nil
}

// ParseDealSnapshot 解析快照内容，未知字段视为错误
func ParseDealSnapshot(data []byte) (*engine.RunInput, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var in engine.RunInput
	if err := dec.Decode(&in); err != nil {
		return nil, err
	}
	if in.Deal == nil {
		return nil, fmt.Errorf("快照缺少 deal 节点")
	}
	return &in, nil
}

// ScenarioName 快照文件名（去掉扩展名）作为情景名
func ScenarioName(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
