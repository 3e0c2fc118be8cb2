package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtklink/internal/config"
	"rtklink/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./rtklink.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, time.Now().UTC())
	if err != nil {
		// No working receiver means nothing to run; matches the fail-stop
		// behavior of the shipped firmware.
		log.Fatalf("startup failed: %v", err)
	}
	defer rt.close()

	srv := &http.Server{
		Addr:    cfg.Web.Listen,
		Handler: web.Handler(rt.status, cfg.Web.PushInterval),
	}
	go func() {
		log.Printf("web listen=%s", cfg.Web.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("web server stopped: %v", err)
			cancel()
		}
	}()

	log.Printf("rtklink starting role=%s poll=%s", cfg.Role, cfg.PollInterval)
	rt.run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Printf("rtklink stopping")
}
