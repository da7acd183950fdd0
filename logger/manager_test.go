package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-content/types"
)

type staticConfig struct {
	config *types.ServiceConfig
}

func (s staticConfig) Load() error                              { return nil }
func (s staticConfig) GetConfig() *types.ServiceConfig          { return s.config }
func (s staticConfig) GetValue(string, interface{}) interface{} { return nil }
func (s staticConfig) GetAs(string, interface{}) error          { return nil }

func TestManager_TagsServiceAndComponent(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "content.log")

	m, err := NewManager(staticConfig{config: &types.ServiceConfig{
		Name:    "sai-content",
		Version: "1.2.3",
		Logger: &types.LoggerConfig{
			Level:  "debug",
			Config: map[string]interface{}{"format": "json", "output": "file", "file": logFile},
		},
	}})
	require.NoError(t, err)
	require.NoError(t, m.Start())

	ForComponent(m, "cache").Info("Cache cleared", zap.Int("keys", 3))

	require.NoError(t, m.Stop())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	line := string(data)
	assert.Contains(t, line, `"service":"sai-content"`)
	assert.Contains(t, line, `"version":"1.2.3"`)
	assert.Contains(t, line, `"component":"cache"`)
	assert.Contains(t, line, `"keys":3`)
}

func TestManager_Lifecycle(t *testing.T) {
	m, err := NewManager(staticConfig{config: &types.ServiceConfig{Logger: &types.LoggerConfig{Level: "error"}}})
	require.NoError(t, err)

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(), types.ErrServerAlreadyRunning)

	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), types.ErrServerNotRunning)
}

func TestNewManager_Errors(t *testing.T) {
	_, err := NewManager(staticConfig{config: &types.ServiceConfig{}})
	assert.ErrorIs(t, err, types.ErrLoggerConfigInvalid)

	_, err = NewManager(staticConfig{config: &types.ServiceConfig{Logger: &types.LoggerConfig{Type: "syslog", Level: "info"}}})
	assert.ErrorIs(t, err, types.ErrLoggerTypeUnknown)
}

type recordingLogger struct {
	types.Logger
	fields []zap.Field
}

func (r *recordingLogger) Log(_ zapcore.Level, _ string, fields ...zap.Field) {
	r.fields = fields
}

func TestWith_CustomLoggerReceivesFields(t *testing.T) {
	RegisterLogger("recording", func(interface{}) (types.Logger, error) {
		return &recordingLogger{Logger: NewNop()}, nil
	})

	m, err := NewManager(staticConfig{config: &types.ServiceConfig{
		Name:   "sai-content",
		Logger: &types.LoggerConfig{Type: "recording", Level: "info"},
	}})
	require.NoError(t, err)

	m.Component("feed").Log(zapcore.InfoLevel, "Mutation feed connected", zap.String("url", "ws://x"))

	inner := m.Logger.(*fieldLogger).next.(*recordingLogger)
	keys := make([]string, 0, len(inner.fields))
	for _, field := range inner.fields {
		keys = append(keys, field.Key)
	}
	assert.Equal(t, []string{"service", "version", "component", "url"}, keys)
}
