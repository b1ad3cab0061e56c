// Package main is the execution core's long-running HTTP server entrypoint:
// it wires the Dispatcher to an in-memory Metadata/Blob/Log Store suitable
// for local/dev deployments, pluggable behind the same
// interfaces a real control plane would satisfy, and serves /invoke,
// /healthz, /readyz, and /metrics until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/faasforge/faascore/core/config"
	"github.com/faasforge/faascore/core/dispatcher"
	"github.com/faasforge/faascore/core/kv"
	"github.com/faasforge/faascore/core/logging"
	"github.com/faasforge/faascore/core/materializer"
	"github.com/faasforge/faascore/core/recorder"
	"github.com/faasforge/faascore/core/resolver"
	"github.com/faasforge/faascore/core/store"
)

func main() {
	addrFlag := flag.String("addr", "", "listen address, overrides SERVER_HOST/SERVER_PORT")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("faasd", cfg.Logging.Level, cfg.Logging.Format)

	kvDriver, err := buildKVDriver(cfg.KV)
	if err != nil {
		log.Fatalf("build kv driver: %v", err)
	}

	zapLogger, err := recorder.NewProductionLogger()
	if err != nil {
		log.Fatalf("build recorder logger: %v", err)
	}

	metaStore := store.NewMemory()
	res, err := resolver.New(metaStore, 1024)
	if err != nil {
		log.Fatalf("build resolver: %v", err)
	}

	rec := recorder.New(metaStore, zapLogger, nil)

	reapCtx, reapCancel := context.WithCancel(context.Background())
	defer reapCancel()
	reaper := recorder.NewReaper(metaStore, metaStore, metaStore, zapLogger, 5*time.Minute)
	go reaper.Run(reapCtx)

	d := dispatcher.New(res, materializer.New(), metaStore, kvDriver, rec, logger, dispatcher.Limits{
		DefaultTimeout:    cfg.Limits.DefaultTimeout,
		DefaultHeapCapMB:  cfg.Limits.DefaultHeapCapMB,
		RingBufferBytes:   cfg.Limits.RingBufferBytes,
		RequestsPerSecond: cfg.Limits.RequestsPerSecond,
		Burst:             cfg.Limits.Burst,
	})

	addr := *addrFlag
	if addr == "" {
		addr = cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("faasd listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func buildKVDriver(cfg config.KVConfig) (kv.Driver, error) {
	switch cfg.Driver {
	case "", "memory":
		return kv.NewMemDriver(), nil
	case "redis":
		return kv.NewRedisDriver(cfg.RedisURL, "faascore:")
	case "jsonfile":
		return kv.NewJSONFileDriver(cfg.JSONFile)
	default:
		log.Printf("unknown KV_DRIVER %q, falling back to memory", cfg.Driver)
		return kv.NewMemDriver(), nil
	}
}
