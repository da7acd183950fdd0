package logger

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-content/types"
)

var customLoggerCreators sync.Map

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	customLoggerCreators.Store(loggerName, creator)
}

// Manager owns the process logger. Every line carries the service name and
// version; Component derives a child tagged with the emitting component.
type Manager struct {
	types.Logger
	running atomic.Bool
}

func NewManager(config types.ConfigManager) (*Manager, error) {
	serviceConfig := config.GetConfig()
	if serviceConfig == nil || serviceConfig.Logger == nil {
		return nil, types.ErrLoggerConfigInvalid
	}

	base, err := createLogger(serviceConfig.Logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	return &Manager{
		Logger: With(base,
			zap.String("service", serviceConfig.Name),
			zap.String("version", serviceConfig.Version)),
	}, nil
}

func (m *Manager) Component(name string) types.Logger {
	return With(m.Logger, zap.String("component", name))
}

func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

// Stop flushes buffered entries. Sync errors on terminals are expected and
// ignored.
func (m *Manager) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return types.ErrServerNotRunning
	}

	if syncer, ok := m.Logger.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// ForComponent returns a component-tagged child when logger is a Manager and
// logger itself otherwise.
func ForComponent(logger types.Logger, name string) types.Logger {
	if m, ok := logger.(interface{ Component(string) types.Logger }); ok {
		return m.Component(name)
	}
	return logger
}

// With attaches fields to every entry written through the returned logger.
func With(logger types.Logger, fields ...zap.Field) types.Logger {
	switch l := logger.(type) {
	case *ZapWrapper:
		return &ZapWrapper{Logger: l.Logger.With(fields...)}
	case *fieldLogger:
		return &fieldLogger{next: l.next, fields: append(append([]zap.Field{}, l.fields...), fields...)}
	default:
		return &fieldLogger{next: logger, fields: fields}
	}
}

type fieldLogger struct {
	next   types.Logger
	fields []zap.Field
}

func (f *fieldLogger) with(fields []zap.Field) []zap.Field {
	return append(append(make([]zap.Field, 0, len(f.fields)+len(fields)), f.fields...), fields...)
}

func (f *fieldLogger) Error(msg string, fields ...zap.Field) { f.next.Error(msg, f.with(fields)...) }
func (f *fieldLogger) Warn(msg string, fields ...zap.Field)  { f.next.Warn(msg, f.with(fields)...) }
func (f *fieldLogger) Info(msg string, fields ...zap.Field)  { f.next.Info(msg, f.with(fields)...) }
func (f *fieldLogger) Debug(msg string, fields ...zap.Field) { f.next.Debug(msg, f.with(fields)...) }

func (f *fieldLogger) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {
	f.next.Log(lvl, msg, f.with(fields)...)
}

func (f *fieldLogger) ErrorWithErrStack(msg string, err error, fields ...zap.Field) {
	f.next.ErrorWithErrStack(msg, err, f.with(fields)...)
}

func createLogger(loggerConfig *types.LoggerConfig) (types.Logger, error) {
	if loggerConfig.Type == "" || loggerConfig.Type == "default" {
		return NewDefaultLogger(loggerConfig)
	}

	creator, exists := customLoggerCreators.Load(loggerConfig.Type)
	if !exists {
		return nil, types.Errorf(types.ErrLoggerTypeUnknown, "logger type: %s", loggerConfig.Type)
	}
	return creator.(types.LoggerCreator)(loggerConfig.Config)
}
