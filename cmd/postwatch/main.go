// Command postwatch collects posts from a live feed page.
//
// Usage:
//
//	postwatch -config postwatch.yaml                 # full config
//	postwatch -url https://example.com -selector .x  # quick single-page run
//
// The process opens the page in Chrome, watches it for containers
// matching the selector, and exposes the control API (start, stop,
// download, count, clean) over HTTP and optionally MCP on stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Lallians/Linkedin-post-scrapper/postwatch"
	"github.com/Lallians/Linkedin-post-scrapper/internal/browser"
	"github.com/Lallians/Linkedin-post-scrapper/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to postwatch.yaml config file")
	url := flag.String("url", "", "feed page URL (overrides config)")
	selector := flag.String("selector", "", "container selector (overrides config)")
	contentSelector := flag.String("content-selector", "", "content selector (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio instead of the HTTP API")
	flag.Parse()

	cfg := &postwatch.Config{}
	if *configPath != "" {
		loaded, err := postwatch.LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "postwatch: load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *url != "" {
		cfg.Page.URL = *url
	}
	if *selector != "" {
		cfg.Page.Selector = *selector
	}
	if *contentSelector != "" {
		cfg.Page.ContentSelector = *contentSelector
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if cfg.Page.URL == "" {
		fmt.Fprintln(os.Stderr, "usage: postwatch -config <file> | -url <url> -selector <css>")
		os.Exit(1)
	}

	logger := postwatch.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *mcpStdio); err != nil {
		logger.Error("postwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *postwatch.Config, mcpStdio bool) error {
	var st *store.Store
	if cfg.DBPath != "" {
		var err error
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Stealth:          stealthLevel(cfg.Browser.Stealth),
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	tab, err := browser.OpenTab(ctx, mgr, cfg.Page.URL, stealthLevel(cfg.Browser.Stealth))
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer tab.Close()

	driver := browser.NewDriver(tab, logger)
	engine := postwatch.NewEngine(*cfg, driver, st, logger)

	// A session left active by a previous run picks up where it stopped.
	if err := engine.Resume(ctx); err != nil {
		logger.Warn("postwatch: resume previous session", "error", err)
	}

	if mcpStdio {
		return serveMCP(ctx, engine, logger)
	}

	svc := postwatch.NewService(engine, logger)
	if err := svc.Serve(ctx, cfg.Server.Addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	return engine.Stop(context.Background())
}

func serveMCP(ctx context.Context, engine *postwatch.Engine, logger *slog.Logger) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "postwatch", Version: "1.0.0"}, nil)
	engine.RegisterMCP(srv)

	logger.Info("postwatch: serving MCP on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return engine.Stop(context.Background())
}

func stealthLevel(s string) browser.StealthLevel {
	switch s {
	case "plain":
		return browser.LevelPlain
	case "headful":
		return browser.LevelHeadful
	default:
		return browser.LevelHeadless
	}
}
