// File path: cmd/loomd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/jmcasey/codeloom/internal/api"
	"github.com/jmcasey/codeloom/internal/classifier"
	"github.com/jmcasey/codeloom/internal/common"
	ctxbuilder "github.com/jmcasey/codeloom/internal/context"
	"github.com/jmcasey/codeloom/internal/data/orchestrator"
	"github.com/jmcasey/codeloom/internal/generator"
	"github.com/jmcasey/codeloom/internal/pipeline"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("loom: .env file not loaded", "error", err)
	} else {
		logger.Info("loom: environment loaded from .env")
	}

	addr := flag.String("addr", ":8090", "listen address")
	memoryPath := flag.String("memory", "", "path to the conversation store directory")
	versionsPath := flag.String("versions", "", "path to the SQLite version database")

	autoStartDefault := false
	if env := strings.TrimSpace(os.Getenv("LOOM_AUTOSTART")); env != "" {
		if parsed, err := strconv.ParseBool(env); err == nil {
			autoStartDefault = parsed
		}
	}
	autoStartIntegrations := flag.Bool("auto-start-integrations", autoStartDefault, "automatically launch the bundled ChromaDB and sandbox helpers")

	flag.Parse()

	logger.Info("loom: startup initiated", "addr", *addr)

	if *autoStartIntegrations {
		services, serviceErr := startIntegrationServices(ctx, logger)
		if serviceErr != nil {
			logger.Error("loom: failed to launch integrations", "error", serviceErr)
			fmt.Println("integration startup error:", serviceErr)
			os.Exit(1)
		}
		defer stopManagedServices(context.Background(), services, logger)
	}

	orchCfg, err := orchestrator.LoadConfig()
	if err != nil {
		logger.Error("loom: orchestrator config load failed", "error", err)
		fmt.Println("orchestrator config error:", err)
		os.Exit(1)
	}
	if trimmed := strings.TrimSpace(*memoryPath); trimmed != "" {
		orchCfg.MemoryPath = trimmed
	}
	if trimmed := strings.TrimSpace(*versionsPath); trimmed != "" {
		orchCfg.VersionsPath = trimmed
	}

	orch, err := orchestrator.New(ctx, orchCfg)
	if err != nil {
		logger.Error("loom: orchestrator initialization failed", "error", err)
		fmt.Println("orchestrator error:", err)
		os.Exit(1)
	}
	defer orch.Close()

	provider := orch.Provider()
	logger.Info("loom: llm provider ready", "provider", provider.Name())

	if index := orch.Vector(); index != nil {
		if index.Available() {
			logger.Info("loom: chromadb available")
		} else {
			logger.Warn("loom: chromadb unreachable")
		}
	} else {
		logger.Info("loom: chromadb not configured")
	}
	if orch.Sandbox() != nil {
		logger.Info("loom: sandbox target configured")
	} else {
		logger.Info("loom: sandbox not configured")
	}

	builder, err := ctxbuilder.NewBuilder(ctxbuilder.DefaultConfig(), orch.Memory(), orch.Snapshots(), orch.Vector())
	if err != nil {
		logger.Error("loom: context builder construction failed", "error", err)
		fmt.Println("builder error:", err)
		os.Exit(1)
	}
	gen := generator.New(provider)
	pipeOpts := []pipeline.Option{pipeline.WithConversation(orch.Memory())}
	if target := orch.Sandbox(); target != nil {
		pipeOpts = append(pipeOpts, pipeline.WithSandbox(target))
	}
	if index := orch.Vector(); index != nil {
		pipeOpts = append(pipeOpts, pipeline.WithIndex(index))
	}
	pipe, err := pipeline.New(
		classifier.New(classifier.WithEscalator(gen)),
		builder,
		gen,
		orch.Versions(),
		pipeOpts...,
	)
	if err != nil {
		logger.Error("loom: pipeline construction failed", "error", err)
		fmt.Println("pipeline error:", err)
		os.Exit(1)
	}

	server, err := api.NewServer(orch, pipe)
	if err != nil {
		logger.Error("loom: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	logger.Info("loom: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("loom: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("loom: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}
