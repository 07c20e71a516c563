package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
		want   zapcore.Level
	}{
		{name: "default info", level: "", format: "console", want: zapcore.InfoLevel},
		{name: "debug json", level: "debug", format: "json", want: zapcore.DebugLevel},
		{name: "warn upper case", level: "WARN", format: "console", want: zapcore.WarnLevel},
		{name: "error", level: "error", format: "json", want: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.format)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", Truncate("anything", 0))
	assert.Equal(t, "short", Truncate("  short  ", 10))
	assert.Equal(t, "héll...", Truncate("héllo world", 4))
}
