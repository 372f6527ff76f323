// Command server 啟動西洋棋對局協調服務
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
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/system-design/14-chess-session/internal/api"
	"github.com/koopa0/system-design/14-chess-session/internal/archive"
	"github.com/koopa0/system-design/14-chess-session/internal/archive/migrations"
	"github.com/koopa0/system-design/14-chess-session/internal/config"
	"github.com/koopa0/system-design/14-chess-session/internal/feed"
	"github.com/koopa0/system-design/14-chess-session/internal/rules"
	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/koopa0/system-design/14-chess-session/internal/transport"
	"github.com/koopa0/system-design/14-chess-session/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML 設定檔路徑")
		port       = flag.Int("port", 0, "HTTP 監聽埠（覆蓋設定檔）")
		logLevel   = flag.String("log-level", "", "日誌等級 debug/info/warn/error")
		logFormat  = flag.String("log-format", "", "日誌格式 text/json")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	// 生命週期事件流
	publisher, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	var dispatcher *feed.Dispatcher
	if publisher != nil {
		dispatcher = feed.NewDispatcher(publisher, cfg.Feed.SubjectPrefix, cfg.Feed.Buffer, cfg.Feed.PublishTimeout, log)
	}

	// 對局歸檔
	store, pool, err := openArchive(ctx, cfg, log)
	if err != nil {
		if dispatcher != nil {
			_ = dispatcher.Stop()
		}
		return err
	}
	if pool != nil {
		defer pool.Close()
	}
	var recorder *archive.Recorder
	if store != nil {
		recorder = archive.NewRecorder(store, cfg.Archive.Buffer, cfg.Archive.WriteTimeout, log)
	}

	var observers session.Observers
	if dispatcher != nil {
		observers = append(observers, dispatcher)
	}
	if recorder != nil {
		observers = append(observers, recorder)
	}

	hub := transport.NewHub(transport.Config{
		PingPeriod:     cfg.WebSocket.PingPeriod,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, log)

	coord := session.NewCoordinator(session.Config{
		IdleTTL:         cfg.Session.IdleTTL,
		CleanupInterval: cfg.Session.CleanupInterval,
	}, rules.NewChess(), hub, observers, log)
	hub.SetHandler(coord)

	handler := api.NewHandler(coord, hub, store, log)
	if dispatcher != nil {
		handler.WithStats("feed", func() any { return dispatcher.Stats() })
	}
	if recorder != nil {
		handler.WithStats("archive", func() any { return recorder.Stats() })
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server",
			"port", cfg.Server.Port,
			"feed", cfg.Feed.Driver,
			"archive", cfg.Archive.Driver)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("listen: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接受新請求；已升級的 WebSocket 不受 Shutdown 影響
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("failed to force close server", "error", closeErr)
		}
	}

	// 關閉所有對局（送出 roomClosed 並產生 closed 事件），再切斷連線
	coord.Stop()
	hub.Stop()

	if recorder != nil {
		recorder.Stop()
		log.Info("archive recorder stopped", "stats", recorder.Stats())
	}
	if dispatcher != nil {
		if err := dispatcher.Stop(); err != nil {
			log.Warn("failed to close feed publisher", "error", err)
		}
	}

	return runErr
}

// openPublisher 依 feed.driver 建立發布端；none 時回傳 nil
func openPublisher(ctx context.Context, cfg *config.Config, log *slog.Logger) (feed.Publisher, error) {
	switch cfg.Feed.Driver {
	case feed.DriverNATS:
		p, err := feed.DialNATS(cfg.Feed.NATS.URL, cfg.Feed.NATS.Name)
		if err != nil {
			return nil, err
		}
		log.Info("lifecycle feed connected", "driver", "nats", "url", cfg.Feed.NATS.URL)
		return p, nil

	case feed.DriverRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		p, err := feed.DialRedis(dialCtx, cfg.Feed.Redis.Addr, cfg.Feed.Redis.Password, cfg.Feed.Redis.DB)
		if err != nil {
			return nil, err
		}
		log.Info("lifecycle feed connected", "driver", "redis", "addr", cfg.Feed.Redis.Addr)
		return p, nil
	}
	return nil, nil
}

// openArchive 依 archive.driver 建立歸檔儲存；none 時回傳 nil
func openArchive(ctx context.Context, cfg *config.Config, log *slog.Logger) (archive.Store, *pgxpool.Pool, error) {
	switch cfg.Archive.Driver {
	case "memory":
		return archive.NewMemoryStore(), nil, nil

	case "postgres":
		dsn := cfg.PostgresDSN()

		m, err := migrations.New(dsn, log)
		if err != nil {
			return nil, nil, err
		}
		upErr := m.Up()
		if err := m.Close(); err != nil {
			log.Warn("failed to close migrator", "error", err)
		}
		if upErr != nil {
			return nil, nil, upErr
		}

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := archive.Connect(connectCtx, dsn, archive.PoolConfig{
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return archive.NewPostgresStore(pool), pool, nil
	}
	return nil, nil, nil
}
