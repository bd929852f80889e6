package main

import (
	"chatrelay/backend/internal/api/handler"
	"chatrelay/backend/internal/auth"
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/logger"
	"chatrelay/backend/internal/storage"
	"context"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBDSN)
	default:
		return nil, errors.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	return db, errors.Wrapf(err, "open %s", cfg.DBDriver)
}

// openRedis returns nil when Redis is optional and unreachable.
func openRedis(cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		if cfg.Broker == config.BrokerRedis {
			return nil, errors.Wrap(err, "connect redis")
		}
		log.Warn("redis unavailable, ban flags come from the database only", zap.Error(err))
		return nil, nil
	}
	return rdb, nil
}

func newBroker(cfg config.Config, rdb *redis.Client, log *zap.Logger) (chathub.Broker, error) {
	switch cfg.Broker {
	case config.BrokerRedis:
		return chathub.NewRedisBroker(rdb, log), nil
	case config.BrokerNats:
		conn, err := nats.Connect(cfg.NatsURL, nats.Name("chatrelay"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, errors.Wrap(err, "connect nats")
		}
		return chathub.NewNatsBroker(conn, log), nil
	case config.BrokerLocal:
		return chathub.NewLocalBroker(), nil
	default:
		return nil, errors.Errorf("unknown BROKER %q", cfg.Broker)
	}
}

func main() {
	cfg, envLoaded := config.Load()
	log := logger.New(cfg.LogFormat, cfg.LogLevel)
	defer log.Sync()

	if !envLoaded {
		log.Info("no .env file, using process environment")
	}
	log.Info("starting message server", zap.String("broker", cfg.Broker), zap.String("db", cfg.DBDriver))

	// 1. Dependencies
	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	rdb, err := openRedis(cfg, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	store := storage.NewStorageService(db, rdb)
	if err := store.Migrate(); err != nil {
		log.Fatal("migrations", zap.Error(err))
	}

	broker, err := newBroker(cfg, rdb, log)
	if err != nil {
		log.Fatal("broker", zap.Error(err))
	}

	// 2. Chat hub
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	hub := chathub.NewManagerService(store, broker, tokens, log, chathub.Options{
		EventRate:  cfg.EventRate,
		EventBurst: cfg.EventBurst,
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	if err := hub.Start(hubCtx); err != nil {
		log.Fatal("hub", zap.Error(err))
	}

	// 3. Gin and routes
	if cfg.LogFormat == "json" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handler.NewHandler(hub, store, tokens, log).RegisterRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"message-server": func(ctx context.Context) error {
				log.Info("graceful shutdown initiated")
				return shutdown(ctx, server, hub, stopHub, db, rdb)
			},
		},
	)

	exitCode := <-wait
	log.Info("message server stopped", zap.Int("exit_code", exitCode))
	_ = log.Sync()
	os.Exit(exitCode)
}

// shutdown stops intake first, then closes sessions and the broker, then storage.
func shutdown(ctx context.Context, server *http.Server, hub *chathub.ManagerService, stopHub context.CancelFunc, db *gorm.DB, rdb *redis.Client) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(errors.Wrap(server.Shutdown(ctx), "http server"))
	keep(errors.Wrap(hub.Close(), "hub"))
	stopHub()

	if rdb != nil {
		keep(errors.Wrap(rdb.Close(), "redis"))
	}
	sqlDB, err := db.DB()
	if err != nil {
		keep(err)
		return firstErr
	}
	keep(errors.Wrap(sqlDB.Close(), "database"))
	return firstErr
}
