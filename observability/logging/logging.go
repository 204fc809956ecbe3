package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 5
	logFileMaxAgeDays = 28
)

// Setup points both slog and the standard library logger at a JSON
// handler on stdout and returns the service-tagged base logger.
func Setup(service, env string) *slog.Logger {
	return configure(service, env, os.Stdout)
}

// SetupWithRotation behaves like Setup but tees every line into a
// size-rotated log file alongside stdout. An empty path falls back to Setup.
func SetupWithRotation(service, env, path string) *slog.Logger {
	path = strings.TrimSpace(path)
	if path == "" {
		return Setup(service, env)
	}
	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
		Compress:   true,
	}
	return configure(service, env, io.MultiWriter(os.Stdout, rotated))
}

func configure(service, env string, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{ReplaceAttr: renameCoreKeys})
	tagged := handler.WithAttrs(serviceAttrs(service, env))

	base := slog.New(tagged)
	slog.SetDefault(base)
	redirectStdLog(tagged)
	return base
}

// renameCoreKeys maps slog's built-in keys onto the field names the log
// pipeline indexes: timestamp, severity and message.
func renameCoreKeys(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		attr = slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

// serviceAttrs stamps every line with the service name, plus the
// environment when one is configured.
func serviceAttrs(service, env string) []slog.Attr {
	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return attrs
}

// redirectStdLog routes the global log package through the structured
// handler so third-party code logging through it stays machine-readable.
func redirectStdLog(handler slog.Handler) {
	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
}
