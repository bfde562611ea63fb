// Package main provides the entry point for the IBKR MCP gateway.
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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ibkr-mcp/gateway/internal/broker"
	"github.com/ibkr-mcp/gateway/internal/config"
	"github.com/ibkr-mcp/gateway/internal/gateway"
	"github.com/ibkr-mcp/gateway/internal/opsapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	logger := log.New(os.Stdout, "[GATEWAY] ", log.LstdFlags|log.Lshortfile)
	sessionID := uuid.NewString()
	logger.Printf("Starting IBKR MCP gateway, session=%s", sessionID)

	// The broker library's socket session is this gateway's one opaque
	// dependency ("Broker Gateway" in glossary terms). No such client ships
	// in this module; broker.NewMockSession stands in until a real IB
	// Gateway socket client is wired in its place.
	session := broker.NewMockSession()

	ctx, err := gateway.New(cfg, session, cfg.Audit.LogFile, sessionID, logger)
	if err != nil {
		logger.Printf("Failed to wire gateway: %v", err)
		return 1
	}
	defer func() { _ = ctx.Audit.Close() }()

	if err := ctx.Broker.Connect(); err != nil {
		logger.Printf("Failed to connect broker session: %v", err)
		return 1
	}
	defer func() { _ = ctx.Broker.Disconnect() }()

	var opsServer *opsapi.Server
	if cfg.OpsAPI.Enabled {
		opsLogger := logrus.New()
		opsLogger.SetOutput(os.Stdout)
		if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
			opsLogger.SetLevel(lvl)
		} else {
			opsLogger.SetLevel(logrus.InfoLevel)
		}
		opsServer = opsapi.NewServer(opsapi.Config{
			Port:      cfg.OpsAPI.Port,
			AuthToken: cfg.OpsAPI.AuthToken,
		}, ctx, ctx, ctx, opsLogger)

		go func() {
			if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("ops api server error: %v", err)
			}
		}()
		logger.Printf("Ops API enabled at http://0.0.0.0:%d", cfg.OpsAPI.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping gateway...")
		cancel()
	}()

	<-runCtx.Done()

	if opsServer != nil {
		if err := opsServer.Stop(); err != nil {
			logger.Printf("ops api shutdown error: %v", err)
		}
	}

	logger.Println("Gateway stopped")
	return 0
}
