package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/schooltrack/internal/auth"
	"github.com/example/schooltrack/internal/directory"
	"github.com/example/schooltrack/internal/events"
	"github.com/example/schooltrack/internal/realtime"
	"github.com/example/schooltrack/internal/tracking/domain"
	"github.com/example/schooltrack/internal/tracking/handler"
	"github.com/example/schooltrack/internal/tracking/repository"
	trackservice "github.com/example/schooltrack/internal/tracking/service"
	"github.com/example/schooltrack/internal/tracking/stream"
	"github.com/example/schooltrack/pkg/observability"
)

type appConfig struct {
	HTTPAddr    string
	GRPCAddr    string
	PostgresDSN string
	RedisAddr   string
	NATSURL     string
	NATSSubject string
	JWTSecret   string
	DBMaxConns  int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("track-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "track-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		// Bounded pool: caps concurrent outstanding writes under a burst of
		// simultaneous driver updates.
		db.SetMaxOpenConns(cfg.DBMaxConns)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("trackservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	store := buildStore(db, redisClient, logger)
	registry := realtime.NewRegistry(logger.Named("rooms"))
	publisher := events.NewPublisher(natsConn, cfg.NATSSubject)
	origin := uuid.New().String()

	svc := trackservice.New(store, registry, publisher, domain.SystemClock{}, origin, logger.Named("tracking"))
	gateway := realtime.NewGateway(registry, svc, logger.Named("realtime"))

	var dir domain.VehicleDirectory
	if db != nil {
		dir = directory.NewPostgres(db)
	}

	// The guard covers the write endpoint and the websocket channel, which
	// carries driver updates as well; read endpoints stay open.
	var writeGuard func(http.Handler) http.Handler
	if cfg.JWTSecret != "" {
		writeGuard = auth.Middleware(cfg.JWTSecret)
	}

	r := chi.NewRouter()
	r.Mount("/", handler.NewHTTP(svc, dir).Router(writeGuard))
	if writeGuard != nil {
		r.With(writeGuard).Get("/ws", gateway.Handler)
	} else {
		r.Get("/ws", gateway.Handler)
	}
	r.Mount("/observability", observability.MetricsRouter(func(ctx context.Context) error {
		if db != nil {
			return db.PingContext(ctx)
		}
		return nil
	}))

	if natsConn != nil {
		bridge := events.NewBridge(natsConn, cfg.NATSSubject, origin, registry, logger.Named("bridge"))
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("events bridge stopped", zap.Error(err))
			}
		}()
	}

	if cfg.GRPCAddr != "" {
		go runGRPC(cfg.GRPCAddr, svc, logger)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("track service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildStore picks the location store backend: Postgres when a DSN is
// configured, then Redis, then process memory.
func buildStore(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) domain.LocationStore {
	switch {
	case db != nil:
		return repository.NewPostgresStore(db)
	case redisClient != nil:
		return repository.NewRedisStore(redisClient, "")
	default:
		logger.Warn("no store backend configured, using in-memory store")
		return repository.NewMemoryStore()
	}
}

func runGRPC(addr string, svc *trackservice.Service, logger *zap.Logger) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	srv := grpc.NewServer(grpc.ForceServerCodec(stream.Codec{}))
	stream.RegisterVehicleTrackingServer(srv, stream.NewServer(svc, logger.Named("stream")))
	logger.Info("tracking grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:    os.Getenv("GRPC_ADDR"),
		PostgresDSN: firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: getenv("NATS_SUBJECT", events.DefaultSubject),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		DBMaxConns:  parseIntEnv("DB_MAX_CONNS", 10),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
