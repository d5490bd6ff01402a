package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/wfunc/doodleserver/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 供 printf 风格调用
var Log = zap.NewNop().Sugar()

var (
	base          = zap.NewNop()
	level         = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	moduleLoggers = map[string]*zap.Logger{}
	mu            sync.RWMutex
)

// Init 初始化日志系统，可重复调用（配置热更新时重建）
func Init(cfg *config.LogConfig) error {
	level.SetLevel(parseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var cores []zapcore.Core
	if cfg.Output == "stdout" || cfg.Output == "both" || cfg.Output == "" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0o755); err != nil {
			return err
		}
		cores = append(cores,
			zapcore.NewCore(encoder, zapcore.AddSync(rotating(cfg.File, cfg.File.Filename)), level),
			zapcore.NewCore(encoder, zapcore.AddSync(rotating(cfg.File, "error.log")), zapcore.ErrorLevel),
		)
	}

	l := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	modules := make(map[string]*zap.Logger, len(cfg.Modules))
	for module, lvl := range cfg.Modules {
		core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), parseLevel(lvl))
		modules[module] = zap.New(core, zap.AddCaller()).Named(module)
	}

	mu.Lock()
	base = l
	Log = l.Sugar()
	moduleLoggers = modules
	mu.Unlock()
	return nil
}

func rotating(cfg config.LogFileConfig, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, name),
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}

func parseLevel(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// SetLevel 动态调整日志级别
func SetLevel(s string) {
	level.SetLevel(parseLevel(s))
}

func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithModule 返回模块日志器；没有单独配置级别的模块使用主日志器
func WithModule(module string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if l, ok := moduleLoggers[module]; ok {
		return l
	}
	return base.Named(module)
}

func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// LogPanic 记录 recover 到的 panic
func LogPanic(recovered interface{}, stack []byte, fields ...zap.Field) {
	fields = append(fields, zap.Any("panic", recovered), zap.ByteString("stack", stack))
	GetLogger().Error("panic recovered", fields...)
}

func Sync() error {
	return GetLogger().Sync()
}
