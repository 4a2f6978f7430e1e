package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/controller"
	"codejudge/internal/judge/middleware"
	"codejudge/internal/judge/ratelimit"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/runner"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/service"
	"codejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	migrate := flag.Bool("migrate", false, "Apply the database schema before serving")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg, *migrate); err != nil {
		logger.Error(context.Background(), "judge service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig, migrate bool) error {
	ctx := context.Background()
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	var redisCache cache.Cache
	if appCfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		closers = append(closers, rc.Close)
		redisCache = rc
	}

	var (
		problems repository.ProblemRepository
		store    repository.JudgementStore
	)
	if appCfg.Database.Driver == "memory" {
		mem := repository.NewMemoryStore()
		for _, seed := range appCfg.Seed {
			p, cases := seed.toModel()
			mem.AddProblem(p, cases)
		}
		problems, store = mem, mem
		logger.Warn(ctx, "using in-memory store, data is lost on restart", zap.Int("seeded_problems", len(appCfg.Seed)))
	} else {
		database, err := db.Open(appCfg.Database.Driver, appCfg.Database.PoolConfig)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		closers = append(closers, database.Close)
		if migrate {
			if err := repository.Migrate(ctx, database); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info(ctx, "database schema applied", zap.String("dialect", string(database.Dialect())))
		}
		problems = repository.NewProblemRepository(database, redisCache, appCfg.Judge.ProblemTTL, appCfg.Judge.ProblemEmptyTTL)
		store = repository.NewJudgementStore(database)
	}

	var counters ratelimit.CounterStore
	if redisCache != nil {
		counters = ratelimit.NewRedisCounterStore(redisCache)
	} else {
		counters = ratelimit.NewMemoryCounterStore()
		logger.Warn(ctx, "redis not configured, rate limits are per process")
	}
	limiter, err := ratelimit.NewLimiter(counters, appCfg.RateLimit)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	var publisher repository.FirstAcceptPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		closers = append(closers, producer.Close)
		publisher = repository.NewMQFirstAcceptPublisher(producer, appCfg.FirstAccept.Topic)
	}

	var archive repository.SourceArchive
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
		objArchive, err := repository.NewObjectSourceArchive(objStorage, appCfg.MinIO.Bucket)
		if err != nil {
			return fmt.Errorf("init source archive: %w", err)
		}
		archive = objArchive
	}

	sandboxClient, err := sandbox.NewHTTPClient(appCfg.Sandbox, nil)
	if err != nil {
		return fmt.Errorf("init sandbox client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(registry)

	caseRunner := runner.New(sandboxClient,
		runner.WithObserver(metrics),
		runner.WithDiagnosticBounds(appCfg.Judge.DiagnosticLines, appCfg.Judge.DiagnosticWidth),
	)
	judgeSvc, err := service.NewJudgeService(service.Config{
		Limiter:        limiter,
		Problems:       problems,
		Store:          store,
		Runner:         caseRunner,
		Publisher:      publisher,
		Archive:        archive,
		Languages:      sandboxClient,
		Metrics:        metrics,
		MaxCodeBytes:   appCfg.Judge.MaxCodeBytes,
		StoreTimeout:   appCfg.Judge.StoreTimeout,
		PublishTimeout: appCfg.Judge.PublishTimeout,
		ArchiveTimeout: appCfg.Judge.ArchiveTimeout,
		CaseCacheTTL:   appCfg.Judge.CaseCacheTTL,
	})
	if err != nil {
		return fmt.Errorf("init judge service: %w", err)
	}

	httpServer := buildHTTPServer(appCfg, judgeSvc, registry)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if publisher != nil {
		sweeper, err := service.NewNotificationSweeper(store, publisher, service.SweeperOptions{
			Interval:       appCfg.FirstAccept.SweepInterval,
			Grace:          appCfg.FirstAccept.SweepGrace,
			BatchSize:      appCfg.FirstAccept.SweepBatch,
			PublishTimeout: appCfg.Judge.PublishTimeout,
		})
		if err != nil {
			return fmt.Errorf("init first accept sweeper: %w", err)
		}
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildHTTPServer(appCfg *AppConfig, judgeSvc *service.JudgeService, registry *prometheus.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1", middleware.Auth(middleware.NewAuthenticator(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer)))
	controller.NewJudgeController(judgeSvc).Register(api)

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}
