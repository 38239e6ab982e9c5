package concentration

import (
	"sort"
	"time"

	"github.com/life2you_mini/cloengine/internal/model"
)

// resolveThreshold 按日期解析阈值：生效日 <= asOf 且未在 asOf 之前失效的记录中取生效日最近者，同日取版本号更高者
// 选中的记录可能是停用记录，此时该测试在 asOf 不执行
func resolveThreshold(records []model.ThresholdRecord, asOf time.Time) (model.ThresholdRecord, bool) {
	var best model.ThresholdRecord
	found := false
	for _, r := range records {
		if r.Effective.After(asOf) {
			continue
		}
		if r.Expiry != nil && r.Expiry.Before(asOf) {
			continue
		}
		if !found || r.Effective.After(best.Effective) ||
			(r.Effective.Equal(best.Effective) && r.Version > best.Version) {
			best = r
			found = true
		}
	}
	return best, found
}

// groupThresholds 按测试编号分组，只保留至少有一条启用记录的测试，编号升序
func groupThresholds(records []model.ThresholdRecord) ([]int, map[int][]model.ThresholdRecord) {
	groups := make(map[int][]model.ThresholdRecord)
	for _, r := range records {
		groups[r.TestNumber] = append(groups[r.TestNumber], r)
	}

	numbers := make([]int, 0, len(groups))
	for n, rs := range groups {
		enabled := false
		for _, r := range rs {
			if r.Enabled {
				enabled = true
				break
			}
		}
		if enabled {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	return numbers, groups
}
