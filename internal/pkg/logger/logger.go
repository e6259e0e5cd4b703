// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 配置全局日志：服务名、日志级别，输出为 JSON。
func Init(serviceName, level string) {
	SetOutput(os.Stdout, serviceName, level)
}

// SetOutput 与 Init 相同，但允许指定输出目标（测试中使用）。
func SetOutput(w io.Writer, serviceName, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(lvl)
	base = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
	log.Logger = base
}

// SetLevel 在运行时调整全局日志级别（配置中心推送变更时使用）
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Ctx 返回带有当前 trace_id / span_id 的 logger，便于在 Jaeger 与日志之间跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}
