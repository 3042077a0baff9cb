//go:build linux

// Command filament is a single-threaded static file server. One goroutine,
// one epoll instance, edge-triggered one-shot sockets; see pkg/filament.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watt-toolkit/filament/pkg/filament/reactor"
)

func main() {
	cfg := reactor.DefaultConfig()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	flag.StringVar(&cfg.Root, "root", cfg.Root, "web root directory")
	flag.DurationVar(&cfg.IdleTimeout, "timeout", cfg.IdleTimeout, "idle connection timeout")
	flag.IntVar(&cfg.RingSize, "ring", cfg.RingSize, "per-connection receive buffer size in bytes")
	metricsAddr := flag.String("metrics", "", "address for the Prometheus /metrics endpoint (empty disables it)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	// A peer resetting mid-write must surface as EPIPE from the write, not
	// kill the process.
	signal.Ignore(syscall.SIGPIPE)

	r, err := reactor.New(cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "err", err)
			}
		}()
		log.Info("metrics listening", "addr", *metricsAddr)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info("shutting down", "signal", s.String())
		r.Shutdown()
	}()

	log.Info("listening",
		"port", r.Port(),
		"root", cfg.Root,
		"timeout", cfg.IdleTimeout,
	)
	if err := r.Run(); err != nil {
		log.Error("event loop failed", "err", err)
		os.Exit(1)
	}
}
