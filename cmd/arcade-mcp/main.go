package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/ArcadeAI/arcade-mcp-go/internal/audit"
	"github.com/ArcadeAI/arcade-mcp-go/internal/auth"
	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
	"github.com/ArcadeAI/arcade-mcp-go/internal/config"
	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/server"
	"github.com/ArcadeAI/arcade-mcp-go/internal/transport"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

// defaultEngineURL is used when ARCADE_API_KEY is set but ARCADE_API_URL is not.
const defaultEngineURL = "https://api.arcade.dev"

func main() {
	// Check for subcommands before parsing flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			os.Exit(runServe(os.Args[2:]))
		case "version", "--version", "-v":
			fmt.Printf("arcade-mcp %s\n", Version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	// Default: serve
	os.Exit(runServe(os.Args[1:]))
}

func printUsage() {
	fmt.Printf(`Arcade MCP %s - Model Context Protocol Server

Usage: arcade-mcp [command] [options]

Commands:
  (default)    Start the MCP server
  serve        Start the MCP server
  version      Print version and exit

Serve Options:
  --host <addr>      Host to bind to (overrides config)
  --port <n>         Port to bind to (overrides config)
  --local            Serve over stdio instead of HTTP
  --sse              Serve the HTTP SSE variant
  --stream           Serve the HTTP NDJSON variant
  --reload           Restart when the config or env file changes
  --debug            Enable debug logging
  --env-file <path>  Load environment variables from a file
  --config <dir>     Directory containing arcade.jsonc

Exit Codes:
  0  clean shutdown
  1  configuration error
  2  transport error

Examples:
  arcade-mcp                            Streamable HTTP on 127.0.0.1:7777
  arcade-mcp serve --local              Stdio for desktop MCP clients
  arcade-mcp serve --sse --port 9000    SSE transport on port 9000
  arcade-mcp serve --reload --debug     Development mode
`, Version)
}

type serveOptions struct {
	host      string
	port      int
	local     bool
	sse       bool
	stream    bool
	reload    bool
	debug     bool
	envFile   string
	configDir string
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	opts := serveOptions{}
	fs.StringVar(&opts.host, "host", "", "Host to bind to (overrides config)")
	fs.IntVar(&opts.port, "port", 0, "Port to bind to (overrides config)")
	fs.BoolVar(&opts.local, "local", false, "Serve over stdio instead of HTTP")
	fs.BoolVar(&opts.sse, "sse", false, "Serve the HTTP SSE variant")
	fs.BoolVar(&opts.stream, "stream", false, "Serve the HTTP NDJSON variant")
	fs.BoolVar(&opts.reload, "reload", false, "Restart when the config or env file changes")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&opts.envFile, "env-file", "", "Load environment variables from a file")
	fs.StringVar(&opts.configDir, "config", "", "Directory containing arcade.jsonc")
	_ = fs.Parse(args)

	// Load the env file before anything reads the environment. Variables
	// already set in the process win over file values.
	if opts.envFile != "" {
		if err := config.LoadEnvFile(opts.envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Close() }()

	for {
		code, restart := serveOnce(ctx, opts)
		if !restart {
			return code
		}
		logger.Info("Restarting server")
	}
}

// serveOnce runs one server lifetime. It reports the exit code and
// whether a watched file changed, in which case the caller starts over.
func serveOnce(parent context.Context, opts serveOptions) (int, bool) {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1, false
	}

	// Flag overrides
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.debug {
		cfg.Logging.Debug = true
	}

	if err := logger.Init(cfg.Logging.Dir, cfg.Logging.Debug, cfg.Logging.JSON); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1, false
	}
	// Init only takes effect once, so apply the debug level explicitly
	// for restarts after a config change.
	logger.SetDebug(cfg.Logging.Debug)

	cat := catalog.New()
	if err := registerBuiltinTools(cat); err != nil {
		logger.Error("Failed to register tools: %v", err)
		return 1, false
	}

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit.DBPath)
		if err != nil {
			logger.Error("Failed to open audit store: %v", err)
			return 1, false
		}
		trail = audit.NewTrail(store)
		sweeper, err := audit.NewSweeper(store, cfg.Audit.RetentionSchedule, cfg.Audit.RetentionDays)
		if err != nil {
			logger.Error("Invalid audit retention config: %v", err)
			_ = trail.Close()
			return 1, false
		}
		sweeper.Start()
		defer sweeper.Stop()
		defer func() { _ = trail.Close() }()
		logger.Info("Audit trail: %s (retention %dd, sweep %q)",
			cfg.Audit.DBPath, cfg.Audit.RetentionDays, cfg.Audit.RetentionSchedule)
	}

	srv := server.New(cfg, cat, buildAuthorizer(cfg), trail)
	srv.Start()
	defer srv.Stop()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	reloadCh := make(chan string, 1)
	if opts.reload {
		watcher, err := watchReload(reloadPaths(opts), reloadCh, cancel)
		if err != nil {
			logger.Warn("Reload watcher unavailable: %v", err)
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	var tr transport.Transport
	switch {
	case opts.local:
		tr = transport.NewStdio(srv)
	case opts.sse:
		tr = transport.NewHTTP(srv, transport.VariantSSE)
	case opts.stream:
		tr = transport.NewHTTP(srv, transport.VariantStream)
	default:
		tr = transport.NewHTTP(srv, transport.VariantStreamable)
	}

	logger.Info("Starting %s %s (%d tools)", cfg.Server.Name, cfg.Server.Version, cat.Len())

	if err := tr.Run(ctx); err != nil {
		logger.Error("Transport error: %v", err)
		return 2, false
	}

	select {
	case path := <-reloadCh:
		logger.Info("Detected change in %s", path)
		return 0, true
	default:
		return 0, false
	}
}

// buildAuthorizer picks the authorization backend: the Arcade engine
// when an API key is configured, mock providers from arcade.jsonc for
// local development, or none.
func buildAuthorizer(cfg *config.Config) auth.Authorizer {
	if cfg.Auth.Disabled {
		return nil
	}

	if cfg.Env.APIKey != "" {
		apiURL := cfg.Env.APIURL
		if apiURL == "" {
			apiURL = defaultEngineURL
		}
		logger.Info("Authorization: Arcade engine at %s", apiURL)
		return auth.NewClient(apiURL, cfg.Env.APIKey)
	}

	if len(cfg.Auth.Providers) > 0 {
		providers := make(map[string]auth.MockProvider, len(cfg.Auth.Providers))
		for id, p := range cfg.Auth.Providers {
			providers[id] = auth.MockProvider{MockTokens: p.MockTokens}
		}
		logger.Info("Authorization: %d mock provider(s), local development only", len(providers))
		return auth.NewMockAuthorizer(providers, cfg.Server.Host, cfg.Server.Port)
	}

	return nil
}

// reloadPaths lists the files whose changes should restart the server.
func reloadPaths(opts serveOptions) []string {
	var paths []string
	if path, err := config.FindConfigPath(opts.configDir); err == nil {
		paths = append(paths, path)
	}
	if opts.envFile != "" {
		if abs, err := filepath.Abs(opts.envFile); err == nil {
			paths = append(paths, abs)
		}
	}
	return paths
}

// watchReload watches the given files and, on the first change to any of
// them, sends the path on ch and cancels the server context. Parent
// directories are watched rather than the files themselves so editors
// that replace files atomically do not drop the watch.
func watchReload(paths []string, ch chan<- string, cancel context.CancelFunc) (*fsnotify.Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no config or env file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := make(map[string]bool, len(paths))
	for _, path := range paths {
		watched[path] = true
		dir := filepath.Dir(path)
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		logger.Info("Watching %s for changes", path)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				abs, err := filepath.Abs(event.Name)
				if err != nil || !watched[abs] {
					continue
				}
				select {
				case ch <- abs:
				default:
				}
				cancel()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("File watcher error: %v", err)
			}
		}
	}()

	return watcher, nil
}
