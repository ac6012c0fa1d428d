// Package logger 库内部日志
//
// 默认丢弃所有日志输出，使用方通过SetLogger注入具体实现，
// 例如 logger.SetLogger(slog.Default())
package logger

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type discardLogger struct{}

func (discardLogger) Debug(msg string, args ...any) {}
func (discardLogger) Info(msg string, args ...any)  {}
func (discardLogger) Warn(msg string, args ...any)  {}
func (discardLogger) Error(msg string, args ...any) {}

var defaultLogger Logger = discardLogger{}

// SetLogger 设置日志实现
func SetLogger(l Logger) {
	defaultLogger = l
}

// Debug 打印调试日志
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info 打印信息日志
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn 打印警告日志
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error 打印错误日志
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
