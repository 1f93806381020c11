package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/chatsphere/internal/config"
	"github.com/chatsphere/internal/handler"
	"github.com/chatsphere/internal/lifecycle"
	"github.com/chatsphere/internal/logger"
	"github.com/chatsphere/internal/middleware"
	"github.com/chatsphere/internal/presence"
	"github.com/chatsphere/internal/protocol"
	"github.com/chatsphere/internal/session"
	"github.com/chatsphere/internal/storage"
	"github.com/chatsphere/internal/storage/file"
	"github.com/chatsphere/internal/storage/memory"
	sredis "github.com/chatsphere/internal/storage/redis"
	"github.com/chatsphere/internal/transport"
	"github.com/chatsphere/internal/view"
)

func main() {
	logger.SetPrefix("client")
	dev := flag.Bool("dev", false, "keep the session snapshot in memory (no disk or Redis)")
	flag.Parse()

	logger.Info("starting chatsphere client")
	cfg := config.Load()
	if cfg.Username == "" {
		logger.Error("no identity: set CHAT_USERNAME or username in config/client.yaml")
		os.Exit(1)
	}

	snapshots := openSnapshotStore(cfg, *dev)
	defer snapshots.Close()

	roster := presence.New(view.NopNotifier{})
	store := session.New(context.Background(), snapshots, view.NopNotifier{})
	conn := transport.New(cfg.ServerURL, transport.Options{
		SendBufferSize: cfg.WSSendBufferSize,
		WriteTimeout:   time.Duration(cfg.WSWriteTimeout) * time.Second,
		PongTimeout:    time.Duration(cfg.WSPongTimeout) * time.Second,
		MaxMessageSize: int64(cfg.WSMaxMessageSize),
	})
	machine := lifecycle.New(cfg.Username, cfg.LoggedOut, store, conn, view.LogSink{})
	protocol.New(machine, roster).Bind(conn)

	connCtx, connCancel := context.WithCancel(context.Background())
	var connWg sync.WaitGroup
	connWg.Add(1)
	go func() {
		defer connWg.Done()
		conn.Run(connCtx)
	}()

	stateH := handler.NewStateHandler(machine, roster)

	r := chi.NewRouter()
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/state", stateH.GetState)
	r.Post("/api/actions", stateH.PostAction)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("view API listening on %s (session %s)", cfg.ListenAddr, cfg.SessionID)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("view API: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("view API shutdown: %v", err)
	}

	// Teardown: queue the refresh and final snapshot, then let the write
	// pump drain before the connection closes.
	machine.Shutdown()
	connCancel()
	connWg.Wait()
	logger.Info("client stopped")
}

func openSnapshotStore(cfg *config.Config, dev bool) storage.SnapshotStore {
	if dev {
		logger.Info("snapshot: in-memory (-dev)")
		return memory.New()
	}
	if cfg.Snapshot.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := sredis.New(ctx, cfg.Snapshot.RedisURL, cfg.SessionID, cfg.SessionTTL())
		if err != nil {
			logger.Errorf("snapshot redis: %v", err)
			os.Exit(1)
		}
		logger.Info("snapshot: redis")
		return s
	}
	logger.Infof("snapshot: file %s", cfg.Snapshot.File)
	return file.New(cfg.Snapshot.File)
}
