// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"stockhub/internal/pkg/logger"
	"stockhub/internal/pkg/nacos"
)

// Worker 是与 HTTP 服务一起运行的长期任务，ctx 取消时应返回
type Worker func(ctx context.Context) error

// Closer 在所有任务退出后按注册的逆序执行
type Closer func(ctx context.Context) error

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName     string
	Port            int
	Handler         http.Handler
	Nacos           *nacos.Client // 为 nil 时不做服务注册
	Workers         []Worker
	Closers         []Closer
	ShutdownTimeout time.Duration
}

// Run 启动 HTTP 服务和所有 Worker，收到 SIGINT/SIGTERM 或任一任务失败时优雅关停。
func Run(parent context.Context, info AppInfo) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if info.ShutdownTimeout <= 0 {
		info.ShutdownTimeout = 10 * time.Second
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: info.Handler}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Ctx(gctx).Info().Str("addr", server.Addr).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, w := range info.Workers {
		w := w
		g.Go(func() error { return w(gctx) })
	}

	var ip string
	if info.Nacos != nil {
		var err error
		if ip, err = GetOutboundIP(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to get outbound IP, skipping Nacos registration")
		} else if err := info.Nacos.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to register with Nacos")
			ip = ""
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Ctx(gctx).Info().Msgf("Shutting down service %s...", info.ServiceName)
		if info.Nacos != nil && ip != "" {
			if err := info.Nacos.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				logger.Ctx(gctx).Error().Err(err).Msg("Error deregistering from Nacos")
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), info.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), info.ShutdownTimeout)
	defer cancel()
	for i := len(info.Closers) - 1; i >= 0; i-- {
		if cerr := info.Closers[i](closeCtx); cerr != nil {
			logger.Ctx(closeCtx).Error().Err(cerr).Msg("Error during shutdown")
		}
	}
	if info.Nacos != nil {
		info.Nacos.Close()
	}

	if err != nil {
		logger.Ctx(closeCtx).Error().Err(err).Msgf("Service %s stopped with error", info.ServiceName)
		return err
	}
	logger.Ctx(closeCtx).Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
	return nil
}

// GetOutboundIP 返回访问外网时使用的本机 IP，用于服务注册
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
