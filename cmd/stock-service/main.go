// cmd/stock-service/main.go
package main

import (
	"context"
	"net/http"
	"strings"

	"stockhub/internal/pkg/bootstrap"
	"stockhub/internal/pkg/logger"
	"stockhub/internal/pkg/metrics"
	"stockhub/internal/pkg/mq"
	"stockhub/internal/pkg/nacos"
	"stockhub/internal/pkg/redis"
	"stockhub/internal/tracing"
	"stockhub/internal/zookeeper"
	"stockhub/internal/service/stock/application"
	"stockhub/internal/service/stock/domain"
	"stockhub/internal/service/stock/domain/port"
	"stockhub/internal/service/stock/infrastructure"
	"stockhub/internal/service/stock/infrastructure/adapter"
	"stockhub/internal/service/stock/infrastructure/rule"
	"stockhub/internal/service/stock/interfaces"
)

const sweepLockResource = "stock-sweep"

func main() {
	ctx := context.Background()

	cfg, err := bootstrap.LoadConfig("")
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.Name, cfg.App.LogLevel)

	// 1. 配置中心：远端配置覆盖本地文件，环境变量仍然优先
	var nacosClient *nacos.Client
	if cfg.Nacos.ServerAddrs != "" {
		nacosClient, err = nacos.NewNacosClient(cfg.Nacos.ServerAddrs, cfg.Nacos.Namespace, cfg.Nacos.Group)
		if err != nil {
			logger.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		if err := loadRemoteConfig(ctx, nacosClient, cfg); err != nil {
			logger.Ctx(ctx).Fatal().Err(err).Msg("invalid remote config")
		}
		logger.Init(cfg.App.Name, cfg.App.LogLevel)
	}

	// 2. Tracer 与指标
	tp, err := tracing.InitTracerProvider(cfg.App.Name, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	closers := []bootstrap.Closer{tp.Shutdown}
	stockMetrics := metrics.NewStockMetrics(nil)

	// 3. 存储
	store, orders, closeStore, err := buildStore(cfg)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize store")
	}
	closers = append(closers, closeStore)

	// 4. 库存事件
	opts := []application.Option{
		application.WithTTL(cfg.Reservation.TTL),
		application.WithMetrics(stockMetrics),
	}
	brokers := mq.SplitBrokers(cfg.Infra.Kafka.Brokers)
	if len(brokers) > 0 {
		writer := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.StockEventsTopic)
		opts = append(opts, application.WithPublisher(adapter.NewKafkaEventPublisher(writer)))
		closers = append(closers, func(context.Context) error { return writer.Close() })
	} else {
		logger.Ctx(ctx).Warn().Msg("KAFKA_BROKERS is not set, stock events and payment outcome consumer are disabled")
	}

	// 5. 应用服务
	var itemRule port.ItemRule
	if expr := strings.TrimSpace(cfg.Reservation.ItemRule); expr != "" {
		celRule, err := rule.NewCELItemRule(expr)
		if err != nil {
			logger.Ctx(ctx).Fatal().Err(err).Msg("failed to compile item rule")
		}
		itemRule = celRule
	}
	manager := application.NewReservationManager(store, opts...)
	checkout := application.NewCheckoutService(orders, manager, itemRule)
	payments := application.NewPaymentOutcomeService(orders, manager)
	expiry := application.NewExpiryService(store, manager, cfg.Sweep.BatchSize, stockMetrics)

	mux := http.NewServeMux()
	interfaces.NewStockHandler(manager, checkout, payments, expiry).RegisterRoutes(mux)

	// 6. 后台任务
	var workers []bootstrap.Worker
	if len(brokers) > 0 {
		reader := mq.NewKafkaReader(brokers, cfg.Infra.Kafka.PaymentOutcomesTopic, cfg.Infra.Kafka.GroupID)
		dlt := mq.NewKafkaWriter(brokers, mq.DLTTopic(cfg.Infra.Kafka.PaymentOutcomesTopic))
		consumer := interfaces.NewPaymentOutcomeConsumer(reader, dlt, payments, cfg.Infra.Kafka.MaxAttempts, cfg.Infra.Kafka.RetryBackoff)
		workers = append(workers, consumer.Run)
		closers = append(closers,
			func(context.Context) error { return consumer.Close() },
			func(context.Context) error { return dlt.Close() },
		)
	}
	if cfg.Sweep.Enabled {
		locker, closeLocker, err := buildSweepLocker(cfg)
		if err != nil {
			logger.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize sweep lock")
		}
		closers = append(closers, closeLocker)
		workers = append(workers, interfaces.NewExpirySweeper(expiry, locker, cfg.Sweep.Interval).Run)
	}

	err = bootstrap.Run(ctx, bootstrap.AppInfo{
		ServiceName: cfg.App.Name,
		Port:        cfg.App.Port,
		Handler:     mux,
		Nacos:       nacosClient,
		Workers:     workers,
		Closers:     closers,
	})
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("service exited with error")
	}
}

// loadRemoteConfig 合并 Nacos 中的配置，并监听日志级别的变更
func loadRemoteConfig(ctx context.Context, client *nacos.Client, cfg *bootstrap.Config) error {
	content, err := client.GetConfig(cfg.Nacos.DataID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("data_id", cfg.Nacos.DataID).Msg("No remote config, using local file")
		return nil
	}
	if content != "" {
		if err := cfg.MergeYAML([]byte(content)); err != nil {
			return err
		}
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	return client.ListenConfig(cfg.Nacos.DataID, func(data string) {
		updated := bootstrap.DefaultConfig()
		if err := updated.MergeYAML([]byte(data)); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Ignoring malformed remote config update")
			return
		}
		if updated.App.LogLevel == "" {
			return
		}
		if err := logger.SetLevel(updated.App.LogLevel); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Ignoring invalid log level")
			return
		}
		// 其余配置在重启后生效
		logger.Ctx(ctx).Info().Str("level", updated.App.LogLevel).Msg("Log level updated from Nacos")
	})
}

func buildStore(cfg *bootstrap.Config) (domain.StockStore, domain.OrderRepository, bootstrap.Closer, error) {
	if cfg.Store.Driver == "memory" {
		store := infrastructure.NewMemoryStockStore()
		for _, p := range cfg.Store.Seed {
			store.PutProduct(domain.Product{ID: p.ID, StockQuantity: p.StockQuantity})
		}
		noop := func(context.Context) error { return nil }
		return store, infrastructure.NewMemoryOrderRepository(), noop, nil
	}

	db, err := infrastructure.OpenMySQL(infrastructure.MySQLOptions{
		DSN:             cfg.Store.MySQL.DSN,
		MaxOpenConns:    cfg.Store.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.MySQL.ConnMaxLifetime,
		AutoMigrate:     cfg.Store.MySQL.AutoMigrate,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func(context.Context) error { return sqlDB.Close() }
	return infrastructure.NewGormStockStore(db), infrastructure.NewGormOrderRepository(db), closeDB, nil
}

func buildSweepLocker(cfg *bootstrap.Config) (port.SweepLocker, bootstrap.Closer, error) {
	switch cfg.Sweep.Lock {
	case "redis":
		client, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password)
		if err != nil {
			return nil, nil, err
		}
		locker, err := adapter.NewRedisSweepLocker(client, cfg.Sweep.LockKey, cfg.Sweep.EffectiveLockTTL())
		if err != nil {
			return nil, nil, err
		}
		return locker, func(context.Context) error { return client.Close() }, nil
	case "zookeeper":
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return nil, nil, err
		}
		locker, err := adapter.NewZookeeperSweepLocker(conn, sweepLockResource)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return locker, func(context.Context) error { conn.Close(); return nil }, nil
	default:
		return adapter.NewLocalSweepLocker(), func(context.Context) error { return nil }, nil
	}
}
