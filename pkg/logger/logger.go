package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger: общий интерфейс логирования для всех слоёв приложения.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(err error, format string, args ...any)
	With(args ...any) Logger
}

// SlogLogger реализует Logger поверх log/slog.
type SlogLogger struct {
	l *slog.Logger
}

// Форматы вывода.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// NewSlogLogger создаёт логгер в stderr: уровень из LOG_LEVEL, формат из LOG_FORMAT (по умолчанию json).
func NewSlogLogger() *SlogLogger {
	return NewSlogLoggerWithFormat(os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT"))
}

func NewSlogLoggerWithWriter(w io.Writer, level slog.Level) *SlogLogger {
	return NewSlogLoggerWithFormat(w, level, FormatJSON)
}

// NewSlogLoggerWithFormat выбирает обработчик slog по формату; неизвестный формат: json.
func NewSlogLoggerWithFormat(w io.Writer, level slog.Level, format string) *SlogLogger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), FormatText) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return &SlogLogger{l: slog.New(h)}
}

// Component помечает записи именем компонента.
func Component(l Logger, name string) Logger {
	return l.With("component", name)
}

// ParseLevel переводит строку в уровень slog. Неизвестные значения: info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *SlogLogger) Debugf(format string, args ...any) {
	s.log(slog.LevelDebug, nil, format, args...)
}

func (s *SlogLogger) Infof(format string, args ...any) {
	s.log(slog.LevelInfo, nil, format, args...)
}

func (s *SlogLogger) Warnf(format string, args ...any) {
	s.log(slog.LevelWarn, nil, format, args...)
}

func (s *SlogLogger) Errorf(err error, format string, args ...any) {
	s.log(slog.LevelError, err, format, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}

func (s *SlogLogger) log(level slog.Level, err error, format string, args ...any) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	if err != nil {
		s.l.Log(ctx, level, msg, slog.String("error", err.Error()))
		return
	}
	s.l.Log(ctx, level, msg)
}

// Nop возвращает логгер, который ничего не пишет. Используется в тестах.
func Nop() Logger {
	return NewSlogLoggerWithWriter(io.Discard, slog.LevelError+1)
}
