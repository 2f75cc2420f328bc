// File path: cmd/loomd/services.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmcasey/codeloom/internal/common/process"
)

// startIntegrationServices launches the optional helper processes: a local
// ChromaDB server for semantic retrieval and, when LOOM_SANDBOX_COMMAND is
// set, the sandbox dev server the pipeline applies changes to.
func startIntegrationServices(ctx context.Context, logger *slog.Logger) ([]*process.ManagedService, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	chromaDataDir := filepath.Join(workDir, "chroma_data")
	if err := os.MkdirAll(chromaDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare chroma data directory: %w", err)
	}

	if err := ensureEnvDefault("CHROMADB_HOST", "127.0.0.1"); err != nil {
		return nil, err
	}
	if err := ensureEnvDefault("CHROMADB_PORT", "8000"); err != nil {
		return nil, err
	}
	if err := ensureEnvDefault("CHROMADB_SCHEME", "http"); err != nil {
		return nil, err
	}
	if err := ensureEnvDefault("CHROMADB_COLLECTION", "loom_files"); err != nil {
		return nil, err
	}

	services := make([]*process.ManagedService, 0, 2)

	chromaBin, err := chromaBinary()
	if err != nil {
		return nil, err
	}
	chromaHost := os.Getenv("CHROMADB_HOST")
	chromaPort := os.Getenv("CHROMADB_PORT")
	readyURL := fmt.Sprintf("%s://%s/api/v1/heartbeat", os.Getenv("CHROMADB_SCHEME"), net.JoinHostPort(chromaHost, chromaPort))
	chromaService, err := process.Start(ctx, process.ServiceConfig{
		Name:    "chromadb",
		Command: chromaBin,
		Args: []string{
			"run",
			"--host", chromaHost,
			"--port", chromaPort,
			"--path", chromaDataDir,
		},
		ReadyURL:     readyURL,
		ReadyTimeout: 2 * time.Minute,
		StopTimeout:  5 * time.Second,
		Logger:       logger.With("component", "launcher", "service", "chromadb"),
	})
	if err != nil {
		return nil, err
	}
	services = append(services, chromaService)

	if command := strings.TrimSpace(os.Getenv("LOOM_SANDBOX_COMMAND")); command != "" {
		sandboxURL := strings.TrimSpace(os.Getenv("SANDBOX_URL"))
		if sandboxURL == "" {
			sandboxURL = "http://localhost:4200"
			if err := ensureEnvDefault("SANDBOX_URL", sandboxURL); err != nil {
				stopManagedServices(context.Background(), services, logger)
				return nil, err
			}
		}
		parts := strings.Fields(command)
		sandboxService, err := process.Start(ctx, process.ServiceConfig{
			Name:         "sandbox",
			Command:      parts[0],
			Args:         parts[1:],
			WorkDir:      strings.TrimSpace(os.Getenv("LOOM_SANDBOX_DIR")),
			ReadyURL:     strings.TrimRight(sandboxURL, "/") + "/api/v1/health",
			ReadyTimeout: 3 * time.Minute,
			StopTimeout:  10 * time.Second,
			Logger:       logger.With("component", "launcher", "service", "sandbox"),
		})
		if err != nil {
			stopManagedServices(context.Background(), services, logger)
			return nil, err
		}
		services = append(services, sandboxService)
	}

	return services, nil
}

func stopManagedServices(ctx context.Context, services []*process.ManagedService, logger *slog.Logger) {
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if svc == nil {
			continue
		}
		if err := svc.Stop(ctx); err != nil && logger != nil {
			logger.Warn("launcher: service shutdown returned error", "error", err)
		}
	}
}

func chromaBinary() (string, error) {
	candidate := strings.TrimSpace(os.Getenv("CHROMA_BIN"))
	if candidate == "" {
		candidate = "chroma"
	}
	path, err := process.BinaryPath(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve chroma binary: %w", err)
	}
	return path, nil
}

func ensureEnvDefault(key, value string) error {
	if _, ok := os.LookupEnv(key); ok {
		return nil
	}
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
