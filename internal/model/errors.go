package model

import (
	"context"
	"errors"
	"fmt"
)

// 不变量检查名称
const (
	CheckConservation      = "conservation-of-funds"
	CheckTrancheNegative   = "tranche-balance-negative"
	CheckTrancheMonotonic  = "tranche-paydown-monotonic"
	CheckPoolParSum        = "pool-par-sum"
	CheckPoolProceedsSum   = "pool-proceeds-sum"
	CheckAssetBalanceValid = "asset-balance-negative"
)

// 警告代码
const (
	WarnAssumptionHeldFlat  = "ASSUMPTION_HELD_FLAT"
	WarnAssumptionMissing   = "ASSUMPTION_MISSING"
	WarnAssetFieldMissing   = "ASSET_FIELD_MISSING"
	WarnRatingMissing       = "RATING_MISSING"
	WarnIndustryMissing     = "INDUSTRY_MISSING"
	WarnCountryMissing      = "COUNTRY_MISSING"
	WarnIRRNotConverged     = "IRR_NOT_CONVERGED"
	WarnSeniorInterestShort = "SENIOR_INTEREST_SHORTFALL"
	WarnCurveExtrapolated   = "CURVE_EXTRAPOLATED"
	WarnThresholdMissing    = "THRESHOLD_MISSING"
)

// ConfigError 配置错误，在任何期间模拟之前抛出，属于致命错误
type ConfigError struct {
	DealID string `json:"deal_id"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("交易 %s 配置错误 [%s]: %s", e.DealID, e.Field, e.Reason)
}

// NewConfigError 创建配置错误
func NewConfigError(dealID, field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		DealID: dealID,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// InvariantError 不变量违反，说明存在逻辑缺陷，终止本次运行
type InvariantError struct {
	DealID string `json:"deal_id"`
	Period int    `json:"period"`
	Check  string `json:"check"`
	Detail string `json:"detail"`
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("交易 %s 第 %d 期不变量 %s 被违反: %s", e.DealID, e.Period, e.Check, e.Detail)
}

// Warning 数据缺口或数值不收敛等可恢复问题，随结果一起返回
type Warning struct {
	Period  int    `json:"period"`
	Code    string `json:"code"`
	Subject string `json:"subject,omitempty"` // 资产ID、测试编号等
	Message string `json:"message"`
}

// NewWarning 创建警告
func NewWarning(period int, code, subject, format string, args ...interface{}) Warning {
	return Warning{
		Period:  period,
		Code:    code,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithPeriod 返回设置了期间号的警告副本
func (w Warning) WithPeriod(period int) Warning {
	w.Period = period
	return w
}

// 错误分类，用于运行记录与重试判断
const (
	ErrorKindConfig    = "config"
	ErrorKindInvariant = "invariant"
	ErrorKindCanceled  = "canceled"
	ErrorKindOther     = "other"
)

// ErrorKind 对运行错误分类
func ErrorKind(err error) string {
	var cfgErr *ConfigError
	var invErr *InvariantError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return ErrorKindConfig
	case errors.As(err, &invErr):
		return ErrorKindInvariant
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	}
	return ErrorKindOther
}

// Retryable 配置错误与不变量违反重跑结果不变，不重试
func Retryable(err error) bool {
	kind := ErrorKind(err)
	return kind == ErrorKindCanceled || kind == ErrorKindOther
}
