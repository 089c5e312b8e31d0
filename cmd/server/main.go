package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/juedwards/minecraft-assessment-server/internal/chunk"
	"github.com/juedwards/minecraft-assessment-server/internal/config"
	"github.com/juedwards/minecraft-assessment-server/internal/game"
	"github.com/juedwards/minecraft-assessment-server/internal/session"
	"github.com/juedwards/minecraft-assessment-server/internal/viewer"
)

func main() {
	var (
		gameAddr     = flag.String("game_addr", "", "game listen address (overrides config)")
		viewerAddr   = flag.String("viewer_addr", "", "viewer listen address (overrides config)")
		configPath   = flag.String("config", "./configs/config.yaml", "config path")
		dataDir      = flag.String("data", "", "runtime data directory (overrides config)")
		disableIndex = flag.Bool("disable_index", false, "disable the sqlite session index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *gameAddr != "" {
		cfg.GameAddr = *gameAddr
	}
	if *viewerAddr != "" {
		cfg.ViewerAddr = *viewerAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *disableIndex {
		cfg.DisableIndex = true
	}

	// Optional: sqlite read model over the session logs. The JSONL log is
	// the source of truth; losing the index loses nothing.
	var idx *session.Index
	if !cfg.DisableIndex {
		idx, err = session.OpenIndex(filepath.Join(cfg.DataDir, "sessions.db"))
		if err != nil {
			logger.Printf("session index disabled: %v", err)
			idx = nil
		} else {
			defer idx.Close()
		}
	}

	recorder := session.NewRecorder(cfg.DataDir, idx, logger)
	defer recorder.End()

	tracker := chunk.NewTracker()
	store := chunk.NewStore(tracker, cfg.ChunkCacheSize, logger, nil)
	registry := game.NewRegistry()
	hub := viewer.NewHub(logger)

	gameSrv := game.NewServer(store, registry, recorder, hub, cfg, logger)
	viewSrv := viewer.NewServer(hub, store, tracker, registry, recorder, logger)

	ctx, cancel := signalContext()
	defer cancel()

	// Requests the game never answers would otherwise pin their map
	// entries forever.
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := tracker.Sweep(cfg.TrackerTTL()); n > 0 {
					logger.Printf("swept %d stale chunk requests", n)
				}
			}
		}
	}()

	gameMux := http.NewServeMux()
	gameMux.HandleFunc("/", gameSrv.Handler())

	viewerMux := http.NewServeMux()
	viewerMux.HandleFunc("/", viewSrv.Handler())
	viewerMux.HandleFunc("/status", viewSrv.StatusHandler())

	gameHTTP := &http.Server{
		Addr:              cfg.GameAddr,
		Handler:           gameMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	viewerHTTP := &http.Server{
		Addr:              cfg.ViewerAddr,
		Handler:           viewerMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Printf("game listener on %s (in Minecraft: /connect <host>%s)", cfg.GameAddr, cfg.GameAddr)
		errCh <- gameHTTP.ListenAndServe()
	}()
	go func() {
		logger.Printf("viewer listener on %s", cfg.ViewerAddr)
		errCh <- viewerHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Printf("listener: %v", err)
		}
		cancel()
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = gameHTTP.Shutdown(ctx2)
	_ = viewerHTTP.Shutdown(ctx2)
	logger.Printf("shut down")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
