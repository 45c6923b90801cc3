// Command server runs the collaboration hub: the binary streaming
// adapter (C6) and the JSON streaming adapter (C7) on their own bind
// addresses, plus the REST/health surface (A3) alongside the JSON
// adapter, and the expiry sweeper (C8) in the background.
//
// Grounded on the teacher's cmd/collab/main.go and cmd/api/main.go
// (godotenv.Load, context-based graceful shutdown on SIGINT/SIGTERM),
// merged into a single binary since both transports share one hub.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/config"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/hub"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/httpapi"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/logger"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/sweeper"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/transport/binaryadapter"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/transport/jsonadapter"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New(cfg.SessionExpiryThreshold)

	sweep := sweeper.New(h, sweeper.Config{
		SweepInterval:    cfg.SweeperInterval,
		ExpiryThreshold:  cfg.SessionExpiryThreshold,
		DocumentTTLCheck: 5 * time.Minute,
		DocumentTTL:      cfg.DocumentTTL,
	})
	go sweep.Run(ctx)

	var servers []*http.Server

	if cfg.EnableBinary {
		binMux := http.NewServeMux()
		binMux.Handle("/ws", binaryadapter.New(h))
		binSrv := &http.Server{Addr: cfg.BinaryBindAddr, Handler: binMux}
		servers = append(servers, binSrv)
		go func() {
			logger.Info("server: binary adapter listening on %s", cfg.BinaryBindAddr)
			if err := binSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("binary adapter failed: %v", err)
			}
		}()
	}

	if cfg.EnableJSON {
		engine := httpapi.NewHandler(h).NewEngine()
		engine.GET("/ws", gin.WrapH(jsonadapter.New(h)))
		jsonSrv := &http.Server{Addr: cfg.JSONBindAddr, Handler: engine}
		servers = append(servers, jsonSrv)
		go func() {
			logger.Info("server: json adapter + http surface listening on %s", cfg.JSONBindAddr)
			if err := jsonSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("json adapter failed: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server: shutdown error: %v", err)
		}
	}

	cancel()
	logger.Info("server: stopped")
}
