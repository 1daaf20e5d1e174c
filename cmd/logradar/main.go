// Command logradar wires the ingest-and-aggregation engine to a
// Docker daemon and, optionally, the read-only MCP introspection
// surface. It is a smoke-test harness for the engine, not the
// terminal renderer — no TUI, no modal navigation, no keybindings.
// It mirrors the teacher's main.go wiring shape: flag parsing,
// signal-driven shutdown, and a panic-safe goroutine-count monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/nanook72/logradar/internal/diag"
	"github.com/nanook72/logradar/internal/engine"
	"github.com/nanook72/logradar/internal/ingest"
	"github.com/nanook72/logradar/internal/mcpquery"
	"github.com/nanook72/logradar/internal/safego"
	"github.com/nanook72/logradar/internal/telemetry"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			safego.WriteCrashLog(r, "main")
			os.Exit(1)
		}
	}()

	mcpServerMode := flag.Bool("mcp-server", false, "enable the read-only MCP introspection server")
	mcpAddr := flag.String("mcp-addr", ":9876", "listen address for the MCP server")
	tickInterval := flag.Duration("tick-interval", time.Second, "PatternStore tick interval")
	goroutineWarn := flag.Int("goroutine-warn-threshold", 1000, "log a warning above this goroutine count")
	goroutineFatal := flag.Int("goroutine-fatal-threshold", 10000, "panic above this goroutine count, to surface a leak via the crash log")
	flag.Parse()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating docker client: %v\n", err)
		os.Exit(1)
	}
	defer cli.Close()

	eng := engine.New(engine.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	safego.Go("goroutine-monitor", func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			count := diag.Goroutines()
			if count > *goroutineWarn {
				telemetry.Logger.Warnf("high goroutine count: %d", count)
			}
			if count > *goroutineFatal {
				panic(fmt.Sprintf("goroutine leak detected: %d active (threshold %d)", count, *goroutineFatal))
			}
		}
	})

	if err := registerRunningContainers(ctx, eng, cli); err != nil {
		telemetry.Logger.Warnf("initial container discovery failed: %v", err)
	}

	var mcpServer *mcpquery.Server
	if *mcpServerMode {
		mcpServer, err = mcpquery.NewServer(eng, *mcpAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating MCP server: %v\n", err)
			os.Exit(1)
		}
		safego.Go("mcp-server", func() {
			if err := mcpServer.Start(); err != nil {
				telemetry.Logger.Warnf("MCP server stopped: %v", err)
			}
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	safego.Go("tick-loop", func() {
		ticker := time.NewTicker(*tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				eng.Drain()
				eng.Tick(time.Now())
			case <-ctx.Done():
				return
			}
		}
	})

	<-sigChan
	telemetry.Logger.Info("shutting down")
	eng.Shutdown()
	if mcpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		mcpServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	cancel()
}

// registerRunningContainers registers one DockerAdapter per currently
// running container, a one-shot discovery pass; continuous
// discovery/reconciliation belongs to the out-of-scope renderer.
func registerRunningContainers(ctx context.Context, eng *engine.Engine, cli *client.Client) error {
	containers, err := cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	for _, c := range containers {
		if c.State != "running" || len(c.Names) == 0 {
			continue
		}
		desc := ingest.Descriptor{
			Kind:          ingest.KindDocker,
			ContainerID:   c.ID,
			ContainerName: c.Names[0],
		}
		adapter := &ingest.DockerAdapter{Client: cli, ContainerID: c.ID}
		if _, err := eng.Register(ctx, desc, adapter); err != nil {
			telemetry.Logger.Warnf("register %s: %v", c.Names[0], err)
		}
	}
	return nil
}
