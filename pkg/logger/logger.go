package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
)

// Config 日志配置
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // 日志文件路径，空则只输出到控制台
	MaxSizeMB  int    // 单个文件大小上限（MB）
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init 初始化日志系统
func Init(config Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
		ForceColors:     true,
	}
	l.SetFormatter(formatter)

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		})
	}
	multiWriter := io.MultiWriter(writers...)
	l.SetOutput(multiWriter)

	// 同步全局 logrus，保证 logrus.WithField 创建的 entry 也写入文件
	logrus.SetOutput(multiWriter)
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)

	Logger = l
	return nil
}

// InitDefault 使用默认配置初始化（info 级别，仅控制台）
func InitDefault() error {
	return Init(Config{Level: "info"})
}

func get() *logrus.Logger {
	if Logger == nil {
		_ = InitDefault()
	}
	return Logger
}

func Debug(args ...interface{}) { get().Debug(args...) }

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }

func Info(args ...interface{}) { get().Info(args...) }

func Infof(format string, args ...interface{}) { get().Infof(format, args...) }

func Warn(args ...interface{}) { get().Warn(args...) }

func Warnf(format string, args ...interface{}) { get().Warnf(format, args...) }

func Error(args ...interface{}) { get().Error(args...) }

func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

func Fatalf(format string, args ...interface{}) { get().Fatalf(format, args...) }

// WithField 创建带字段的日志条目
func WithField(key string, value interface{}) *logrus.Entry {
	return get().WithField(key, value)
}

// WithFields 创建带多个字段的日志条目
func WithFields(fields logrus.Fields) *logrus.Entry {
	return get().WithFields(fields)
}
