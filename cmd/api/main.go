package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/accordlabs/accord/backend/internal/conductor"
	"github.com/accordlabs/accord/backend/internal/config"
	"github.com/accordlabs/accord/backend/internal/events"
	"github.com/accordlabs/accord/backend/internal/handler"
	"github.com/accordlabs/accord/backend/internal/service/ai"
	"github.com/accordlabs/accord/backend/internal/service/analyzer"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
	"github.com/accordlabs/accord/backend/internal/store"
	"github.com/accordlabs/accord/backend/internal/store/memory"
	"github.com/accordlabs/accord/backend/internal/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, closeStore, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer closeStore()

	mediationSvc := mediation.NewService(st)
	bus := events.NewBus()

	// Initialize AI service
	var aiSvc *ai.Service
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	var completer conductor.Completer
	if aiSvc != nil {
		completer = aiSvc
	}
	conductorSvc := conductor.NewService(completer, mediationSvc, bus, cfg.Mediation)

	var analyzerSvc *analyzer.Service
	if aiSvc != nil {
		analyzerSvc = analyzer.NewService(aiSvc, mediationSvc, bus, cfg.Mediation.HistoryLimit)
		log.Println("Analysis service enabled")
	} else {
		log.Println("分析服务未启用，消息仅做存储")
	}

	router := handler.NewRouter(mediationSvc, conductorSvc, analyzerSvc, bus)

	startServer(ctx, cfg.Server, router)
}

// openStore picks the record store per configuration. The close function
// is a no-op for the in-memory store.
func openStore(cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		st, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("sqlite store opened at %s", cfg.DSN)
		return st, func() {
			if err := st.Close(); err != nil {
				log.Printf("warning: closing store: %v", err)
			}
		}, nil
	case "memory", "":
		log.Println("using in-memory store; records are lost on restart")
		return memory.NewStore(), func() {}, nil
	default:
		return nil, nil, errors.New("unknown STORE_DRIVER: " + cfg.Driver)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Accord backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
