package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{name: "大写", level: "DEBUG", want: zapcore.DebugLevel},
		{name: "小写", level: "warn", want: zapcore.WarnLevel},
		{name: "无法识别", level: "verbose", want: zapcore.InfoLevel},
		{name: "空字符串", level: "", want: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.level))
		})
	}
}

func TestNewLogger_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(dir, "INFO")
	require.NoError(t, err)

	log.Info("运行开始", zap.String("deal_id", "D1"))
	log.Error("运行失败", zap.String("deal_id", "D1"))
	_ = log.Sync()

	all, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(all), `"deal_id":"D1"`))

	errs, err := os.ReadFile(filepath.Join(dir, errorLogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "运行失败")
	assert.NotContains(t, string(errs), "运行开始")
}
