package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/auction-engine/internal/archive"
	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/bidding"
	"github.com/atmx/auction-engine/internal/config"
	"github.com/atmx/auction-engine/internal/custody"
	"github.com/atmx/auction-engine/internal/eventbus"
	"github.com/atmx/auction-engine/internal/lock"
	"github.com/atmx/auction-engine/internal/metrics"
	"github.com/atmx/auction-engine/internal/model"
	"github.com/atmx/auction-engine/internal/store"
)

func main() {
	configPath := flag.String("config", "auction.toml", "path to TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("auction-engine exited", "err", err)
		os.Exit(1)
	}
	fmt.Println("auction-engine stopped")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var rdb *redis.Client
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.Database.URL != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("invalid database url: %w", err)
		}
		if cfg.Database.MaxConns > 0 {
			poolCfg.MaxConns = int32(cfg.Database.MaxConns)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if cfg.Database.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
			slog.Info("Redis snapshot cache enabled")
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Cross-replica lock and event bus ---
	var locker lock.Locker = lock.NewLocal()
	var bus *eventbus.Redis
	if rdb != nil {
		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL.Duration)
		if cfg.Redis.EventsEnabled {
			bus = eventbus.NewRedis(rdb, logger)
		}
	}

	// --- In-process custody ---
	engCfg, ref, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	token := custody.NewToken(cfg.Custody.Symbol)
	seeds, err := cfg.Seeds()
	if err != nil {
		return err
	}
	for _, s := range seeds {
		if err := token.Mint(s.Address, s.Balance); err != nil {
			return fmt.Errorf("seed %s: %w", s.Address.Hex(), err)
		}
		if err := token.Approve(s.Address, engCfg.Self, s.Allowance); err != nil {
			return fmt.Errorf("seed %s: %w", s.Address.Hex(), err)
		}
	}
	collection := custody.NewCollection(ref.Collection)
	if err := collection.Mint(ref.TokenID, engCfg.Self); err != nil {
		return fmt.Errorf("escrow item %s: %w", ref, err)
	}
	pay, reg := token.Bind(engCfg.Self), collection.Bind(engCfg.Self)

	// --- Notification fan-out ---
	wsHub := bidding.NewWSHub(logger)
	var publisher bidding.Publisher
	if bus != nil {
		publisher = bus
	}
	disp := bidding.NewDispatcher(wsHub, publisher, logger)
	engOpts := []auction.Option{auction.WithEventSink(disp), auction.WithLogger(logger)}
	restore := func(snap *model.AuctionState) (*auction.Engine, error) {
		return auction.Restore(engCfg, snap, pay, reg, engOpts...)
	}

	// --- Engine ---
	var eng *auction.Engine
	snap, err := st.LoadAuction(ctx, engCfg.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		eng, err = auction.New(ctx, engCfg, pay, reg, engOpts...)
		if err != nil {
			return fmt.Errorf("create auction: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load auction %s: %w", engCfg.ID, err)
	default:
		eng, err = restore(snap)
		if err != nil {
			return fmt.Errorf("restore auction %s: %w", engCfg.ID, err)
		}
		slog.Info("auction restored from store", "auction_id", engCfg.ID, "seq", snap.Seq, "phase", snap.CurrentPhase)
	}

	// --- Archive ---
	var archiver *archive.Archiver
	if cfg.S3.Enabled {
		writer, err := archive.NewS3Writer(ctx, archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		if err := writer.Health(ctx); err != nil {
			slog.Warn("archive bucket not reachable", "bucket", cfg.S3.Bucket, "err", err)
		}
		archiver = archive.NewArchiver(writer, st, cfg.S3.Prefix, logger)
	}

	// --- Bidding service ---
	opts := bidding.Options{
		Store:    st,
		Locker:   locker,
		Restore:  restore,
		Archiver: archiver,
		LockWait: cfg.Auction.LockWait.Duration,
		Logger:   logger,
	}
	if cfg.Custody.Enabled {
		opts.Token = token
	}
	svc := bidding.NewService(eng, disp, opts)
	if err := svc.Init(ctx); err != nil {
		return err
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors(cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"auction-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(bidding.RequireAPIKey(cfg.Server.APIKey))

		// WebSocket endpoint for live auction notifications.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))
			svc.Register(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout.Duration + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wsHub.Run(gctx) })
	if bus != nil {
		events, err := bus.Subscribe(gctx, engCfg.ID)
		if err != nil {
			return err
		}
		g.Go(func() error { return disp.Relay(gctx, events) })
		slog.Info("Redis event bus enabled", "channel", eventbus.Channel(engCfg.ID))
	}
	g.Go(func() error {
		slog.Info("auction-engine listening", "port", cfg.Server.Port, "auction_id", engCfg.ID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down auction-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cors allows the listed origins ("*" for any) and the caller identity
// headers the API reads.
func cors(origins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, "+bidding.CallerHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
