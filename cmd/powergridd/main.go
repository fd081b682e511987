package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"powergrid/archive"
	"powergrid/config"
	"powergrid/core"
	"powergrid/crypto/bn254"
	"powergrid/observability"
	"powergrid/observability/logging"
	otelobs "powergrid/observability/otel"
	"powergrid/rpc"
	"powergrid/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis participant file (overrides config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("POWERGRID_ENV"))
	logger := logging.Setup("powergridd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	fee, err := cfg.Fee()
	if err != nil {
		panic(fmt.Sprintf("Failed to parse submission fee: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := otelobs.Init(ctx, otelobs.Config{
			ServiceName: "powergridd",
			Environment: cfg.Telemetry.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to initialise telemetry: %v", err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, bn254.Verifier{}, fee, logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}
	defer node.Close()

	genesisPath := strings.TrimSpace(*genesisFlag)
	if genesisPath == "" {
		genesisPath = strings.TrimSpace(cfg.GenesisFile)
	}
	if genesisPath != "" && node.CurrentTransitionIndex() == 0 {
		participants, err := config.LoadGenesis(genesisPath)
		if err != nil {
			panic(fmt.Sprintf("Failed to load genesis participants: %v", err))
		}
		for _, p := range participants {
			if _, err := node.AppendParticipant(p); err != nil {
				panic(fmt.Sprintf("Failed to seed participant %s: %v", p, err))
			}
		}
		logger.Info("genesis participants seeded",
			slog.Int("count", len(participants)),
			slog.Uint64("index", node.CurrentTransitionIndex()))
	}

	var verdicts *archive.Archive
	if strings.TrimSpace(cfg.ArchivePath) != "" {
		verdicts, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			panic(fmt.Sprintf("Failed to open audit archive: %v", err))
		}
		defer verdicts.Close()
	}

	opsServer := &http.Server{
		Addr:              cfg.OpsAddress,
		Handler:           observability.OpsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server terminated", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = opsServer.Shutdown(shutdownCtx)
	}()

	rpcServer := rpc.NewServer(node, verdicts, logger, rpc.RateLimit{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- rpcServer.Start(cfg.ListenAddress)
	}()

	logger.Info("powergrid node initialised and running",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.ListenAddress),
		slog.String("ops", cfg.OpsAddress),
		slog.Uint64("index", node.CurrentTransitionIndex()))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-rpcErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("RPC server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
