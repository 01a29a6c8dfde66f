// Command wendaod boots the kernel against a notebook root and keeps it
// running until it receives SIGINT/SIGTERM, then shuts it down cleanly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/kataras/golog"

	"github.com/wendao-project/wendao-kernel/checkpoint"
	"github.com/wendao-project/wendao-kernel/checkpoint/file"
	"github.com/wendao-project/wendao-kernel/checkpoint/memory"
	"github.com/wendao-project/wendao-kernel/checkpoint/sqlite"
	"github.com/wendao-project/wendao-kernel/kernel"
	"github.com/wendao-project/wendao-kernel/linkgraph/backend"
	"github.com/wendao-project/wendao-kernel/log"
	"github.com/wendao-project/wendao-kernel/statscache"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42")).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder())
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func main() {
	notebookRoot := flag.String("notebook", "", "notebook root directory (defaults to ./notebook or WENDAO_NOTEBOOK_ROOT)")
	settingsPath := flag.String("settings", "notebook.settings.json", "path to an optional notebook.settings.json")
	checkpointBackend := flag.String("checkpoint-backend", "memory", "checkpoint store backend: memory, file, sqlite")
	checkpointPath := flag.String("checkpoint-path", "wendao-checkpoints", "file path / sqlite DSN for the checkpoint store (ignored for memory)")
	statsCacheBackend := flag.String("stats-cache-backend", "memory", "link-graph stats cache backend: memory, redis, none")
	statsCacheAddr := flag.String("stats-cache-addr", "localhost:6379", "redis address for stats-cache-backend=redis")
	statsCacheTTL := flag.Duration("stats-cache-ttl", 10*time.Minute, "stats cache entry TTL (0 disables expiry)")
	logLevel := flag.String("log-level", "info", "debug, info, warn, error")
	flag.Parse()

	logger := log.NewGologLogger(golog.Default)
	if lvl, err := parseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	}

	cfg, err := backend.Resolve(*notebookRoot, *settingsPath)
	if err != nil {
		logger.Error("wendaod: resolving backend config: %v", err)
		os.Exit(1)
	}
	statsStore, err := buildStatsCache(*statsCacheBackend, *statsCacheAddr, *statsCacheTTL)
	if err != nil {
		logger.Error("wendaod: building stats cache: %v", err)
		os.Exit(1)
	}
	var backendOpts []backend.Option
	if statsStore != nil {
		backendOpts = append(backendOpts, backend.WithStatsCache(statsStore))
	}
	be := backend.New(cfg, logger, backendOpts...)

	store, err := buildStore(*checkpointBackend, *checkpointPath)
	if err != nil {
		logger.Error("wendaod: building checkpoint store: %v", err)
		os.Exit(1)
	}

	k, err := kernel.New(kernel.Options{
		Backend:   be,
		Store:     store,
		Logger:    logger,
		WatchRoot: cfg.NotebookRoot,
	})
	if err != nil {
		logger.Error("wendaod: assembling kernel: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := k.Boot(ctx); err != nil {
		logger.Error("wendaod: boot failed: %v", err)
		os.Exit(1)
	}

	fmt.Println(readinessBanner(cfg, *checkpointBackend, k))

	<-ctx.Done()
	fmt.Println(labelStyle.Render("wendaod: shutdown signal received, draining..."))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := k.Shutdown(shutdownCtx); err != nil {
		logger.Error("wendaod: shutdown failed: %v", err)
		os.Exit(1)
	}
}

func buildStatsCache(backendName, addr string, ttl time.Duration) (statscache.Store, error) {
	switch backendName {
	case "none", "":
		return nil, nil
	case "memory":
		return statscache.NewMemoryStore(ttl), nil
	case "redis":
		return statscache.NewRedisStore(statscache.RedisOptions{Addr: addr, TTL: ttl}), nil
	default:
		return nil, fmt.Errorf("unknown stats cache backend %q (want memory, redis, or none)", backendName)
	}
}

func buildStore(backendName, path string) (checkpoint.Store, error) {
	switch backendName {
	case "memory", "":
		return memory.New(), nil
	case "file":
		return file.New(path)
	case "sqlite":
		return sqlite.New(sqlite.Options{Path: path})
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q (want memory, file, or sqlite)", backendName)
	}
}

func parseLevel(name string) (log.LogLevel, error) {
	switch name {
	case "debug":
		return log.LogLevelDebug, nil
	case "info":
		return log.LogLevelInfo, nil
	case "warn":
		return log.LogLevelWarn, nil
	case "error":
		return log.LogLevelError, nil
	default:
		return log.LogLevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func readinessBanner(cfg backend.Config, checkpointBackend string, k *kernel.Kernel) string {
	lines := fmt.Sprintf(
		"wendao-kernel ready\n\n%s %s\n%s %s\n%s %v\n%s %s",
		labelStyle.Render("notebook root:"), cfg.NotebookRoot,
		labelStyle.Render("checkpoint store:"), checkpointBackend,
		labelStyle.Render("components:"), k.Registry.Names(),
		labelStyle.Render("state:"), k.Lifecycle.Current(),
	)
	return bannerStyle.Render(lines)
}
