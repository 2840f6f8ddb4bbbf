package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "fatal", "panic"} {
		t.Run(input, func(t *testing.T) {
			_, err := parseLevel(input)
			assert.Error(t, err)
		})
	}
}

func TestNewWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pktkit.log")

	l, err := New(Config{
		Level:   "debug",
		Console: "none",
		File:    FileConfig{Enabled: true, Path: logPath, MaxSizeMB: 1},
	})
	require.NoError(t, err)

	l.WithField("layer", "ipv4").Debug("dispatching")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG]")
	assert.Contains(t, string(data), "layer=ipv4")
	assert.Contains(t, string(data), "dispatching")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "info", Console: "printer"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Console: "none", File: FileConfig{Enabled: true}})
	assert.Error(t, err)
}

func TestNopIsSilent(t *testing.T) {
	l := Nop()
	assert.False(t, l.IsTraceEnabled())
	assert.False(t, l.IsDebugEnabled())
	assert.False(t, l.IsInfoEnabled())
	l.Info("not written")
}

func TestSetLoggerNilRestoresNop(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	SetLogger(nil)
	assert.NotNil(t, GetLogger())
	assert.False(t, GetLogger().IsInfoEnabled())
}

func TestFormatterPattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %field %msg", time: "15:04"}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "truncated option",
		Data:    logrus.Fields{"offset": 42, "layer": "dhcpv4"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "03:04 [WARNING] layer=dhcpv4,offset=42 truncated option", string(out))
}

func TestFormatterCallerFallback(t *testing.T) {
	f := &formatter{pattern: "%caller", time: time.RFC3339}
	out, err := f.Format(&logrus.Entry{Logger: logrus.New(), Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "unknown"))
}
