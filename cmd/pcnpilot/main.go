package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pcnpilot/pcnpilot/internal/api"
	"github.com/pcnpilot/pcnpilot/internal/common"
	"github.com/pcnpilot/pcnpilot/internal/llm"
	"github.com/pcnpilot/pcnpilot/internal/pipeline"
	"github.com/pcnpilot/pcnpilot/internal/sqlite"
	"github.com/pcnpilot/pcnpilot/internal/storage"
)

func main() {
	logger := common.Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn("pcnpilot: .env file not loaded", "error", err)
	} else {
		logger.Info("pcnpilot: environment loaded from .env")
	}

	addr := flag.String("addr", ":8081", "listen address")
	dbPath := flag.String("db", defaultDBPath(), "path to the SQLite database")
	artifactRoot := flag.String("artifacts", defaultArtifactRoot(), "directory for rendered letter documents")
	letterhead := flag.String("letterhead", envOr("PCNPILOT_LETTERHEAD", "PCN Pilot"), "letterhead printed on rendered letters")
	jobTimeout := flag.String("job-timeout", envOr("PCNPILOT_JOB_TIMEOUT", ""), "per-ticket generation time budget (e.g. 90s, 2m)")
	retryAttempts := flag.Int("retry-attempts", -1, "drafting attempts before a job fails (-1 uses defaults)")
	retryBackoff := flag.String("retry-backoff", "", "base backoff duration between drafting retries")
	flag.Parse()

	logger.Info("pcnpilot: startup initiated", "addr", *addr, "db", *dbPath, "artifacts", *artifactRoot)

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		logger.Error("pcnpilot: sqlite open failed", "error", err)
		fmt.Println("sqlite error:", err)
		os.Exit(1)
	}
	defer store.Close()

	artifacts, err := storage.NewLocalStore(*artifactRoot)
	if err != nil {
		logger.Error("pcnpilot: artifact store init failed", "error", err)
		fmt.Println("artifact store error:", err)
		os.Exit(1)
	}

	provider := llm.NewProvider()
	logger.Info("pcnpilot: llm provider ready", "provider", provider.Name())

	policy := pipeline.DefaultRetryPolicy()
	if *retryAttempts > 0 {
		policy.MaxAttempts = *retryAttempts
	}
	if trimmed := strings.TrimSpace(*retryBackoff); trimmed != "" {
		dur, err := time.ParseDuration(trimmed)
		if err != nil {
			logger.Error("pcnpilot: invalid retry backoff", "value", trimmed, "error", err)
			fmt.Println("retry backoff error:", err)
			os.Exit(1)
		}
		policy.BackoffBase = dur
	}

	opts := []pipeline.Option{
		pipeline.WithRetryPolicy(policy),
		pipeline.WithLetterhead(*letterhead),
	}
	if trimmed := strings.TrimSpace(*jobTimeout); trimmed != "" {
		dur, err := time.ParseDuration(trimmed)
		if err != nil {
			logger.Error("pcnpilot: invalid job timeout", "value", trimmed, "error", err)
			fmt.Println("job timeout error:", err)
			os.Exit(1)
		}
		opts = append(opts, pipeline.WithJobTimeout(dur))
	}

	p := pipeline.New(provider, store, artifacts, opts...)

	server, err := api.NewServer(p, store, artifacts)
	if err != nil {
		logger.Error("pcnpilot: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	logger.Info("pcnpilot: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("pcnpilot: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

func defaultDBPath() string {
	if env := strings.TrimSpace(os.Getenv("PCNPILOT_DB_PATH")); env != "" {
		return env
	}
	return filepath.Join("data", "pcnpilot.db")
}

func defaultArtifactRoot() string {
	if env := strings.TrimSpace(os.Getenv("PCNPILOT_ARTIFACT_ROOT")); env != "" {
		return env
	}
	return filepath.Join("data", "artifacts")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
