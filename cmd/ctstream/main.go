// Command ctstream fans out Certificate Transparency log entries to
// WebSocket, SSE, and raw TCP subscribers in real time.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ctfanout/ctstream/internal/auth"
	"github.com/ctfanout/ctstream/internal/bus"
	"github.com/ctfanout/ctstream/internal/config"
	"github.com/ctfanout/ctstream/internal/emitter/tcp"
	"github.com/ctfanout/ctstream/internal/emitter/ws"
	"github.com/ctfanout/ctstream/internal/hotreload"
	"github.com/ctfanout/ctstream/internal/httpapi"
	"github.com/ctfanout/ctstream/internal/limiter"
	"github.com/ctfanout/ctstream/internal/loglist"
	"github.com/ctfanout/ctstream/internal/metrics"
	"github.com/ctfanout/ctstream/internal/ratelimit"
	"github.com/ctfanout/ctstream/internal/statestore"
	"github.com/ctfanout/ctstream/internal/watcher"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("ctstream: invalid configuration: %v", err)
	}

	log.Printf("ctstream: starting certstream-server-go v%s", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := bus.NewHub(cfg.BufferSize)

	state := statestore.New(cfg.CTLog.StateFile)
	if cfg.CTLog.StateFile != "" {
		stopSave := make(chan struct{})
		go state.RunPeriodicSave(30*time.Second, stopSave)
		defer close(stopSave)
		log.Printf("ctstream: state persistence enabled at %s", cfg.CTLog.StateFile)
	}

	if cfg.HotReload.Enabled {
		hr := hotreload.New(hotreload.Reloadable{
			RateLimit:       cfg.RateLimit,
			ConnectionLimit: cfg.ConnectionLimit,
			Auth:            cfg.Auth,
		})
		watchPath := cfg.HotReload.WatchPath
		if watchPath == "" {
			watchPath = cfg.ConfigPath
		}
		hr.Start(watchPath)
		log.Printf("ctstream: hot reload enabled")
	}

	log.Printf("ctstream: fetching CT log list from %s", cfg.CTLogsURL)

	custom := make([]loglist.CustomLog, len(cfg.CustomLogs))
	for i, c := range cfg.CustomLogs {
		custom[i] = loglist.CustomLog{Name: c.Name, URL: c.URL}
	}

	fetcher := loglist.NewFetcher(cfg.CTLogsURL, time.Duration(cfg.CTLog.RequestTimeoutSecs)*time.Second)
	logs, err := fetcher.Fetch(ctx, custom)
	if err != nil {
		log.Fatalf("ctstream: failed to fetch CT log list: %v", err)
	}
	log.Printf("ctstream: found %d CT logs", len(logs))
	metrics.SetCTLogsCount(float64(len(logs)))

	for _, l := range logs {
		w := watcher.New(l.Name, l.URL, cfg.CTLog, state, hub)
		go w.Run(ctx)
	}

	connLimiter := limiter.New(cfg.ConnectionLimit)
	rateLimiter := ratelimit.New(cfg.RateLimit)
	authChecker := auth.New(cfg.Auth)
	wsCounter := &ws.ConnectionCounter{}

	if cfg.Protocols.TCP {
		tcpAddr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Protocols.TCPPort))
		tcpServer := &tcp.Server{Hub: hub}
		go func() {
			if err := tcpServer.ListenAndServe(tcpAddr); err != nil {
				log.Printf("ctstream: tcp server stopped: %v", err)
			}
		}()
		log.Printf("ctstream: tcp protocol enabled on %s", tcpAddr)
	}

	handler := httpapi.New(httpapi.Dependencies{
		Hub:         hub,
		Protocols:   cfg.Protocols,
		AuthChecker: authChecker,
		ConnLimiter: connLimiter,
		RateLimiter: rateLimiter,
		WSCounter:   wsCounter,
	})

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		log.Printf("ctstream: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("ctstream: graceful shutdown failed: %v", err)
		}
		state.SaveIfDirty()
	}()

	log.Printf("ctstream: starting server on %s", addr)

	var serveErr error
	if cfg.HasTLS() {
		serveErr = server.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
	} else {
		serveErr = server.ListenAndServe()
	}

	if serveErr != nil && serveErr != http.ErrServerClosed {
		log.Fatalf("ctstream: server error: %v", serveErr)
	}
}
