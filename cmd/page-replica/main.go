package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"page-replica/pkg/api"
	"page-replica/pkg/config"
	"page-replica/pkg/fetch"
	"page-replica/pkg/mcp"
	"page-replica/pkg/replicate"
	"page-replica/pkg/storage"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "replicate":
		runReplicate(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("page-replica %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`page-replica - Self-contained web page replication

Usage:
  page-replica <command> [options]

Commands:
  serve       Start the HTTP API server
  replicate   Replicate one page and write the result to a file
  validate    Validate configuration file
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'page-replica <command> -h' for command-specific help.`)
}

// newLogger builds a logger with the requested level
func newLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}
	return log
}

// loadConfig loads the YAML config file. A missing file is not an error:
// the zero config plus Validate defaults is a fully working setup.
func loadConfig(path string, log *logrus.Logger) (*config.AppConfig, error) {
	var cfg config.AppConfig

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Infof("Config file '%s' not found, using defaults", path)
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// prepareConfig loads, env-overrides, and validates the configuration
func prepareConfig(path string, log *logrus.Logger) *config.AppConfig {
	// .env is optional developer convenience
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded environment from .env")
	}

	cfg, err := loadConfig(path, log)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	if addr := os.Getenv("PAGE_REPLICA_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if ua := os.Getenv("PAGE_REPLICA_USER_AGENT"); ua != "" {
		cfg.UserAgent = ua
	}

	warnings, err := cfg.Validate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	return cfg
}

// buildService wires the fetch stack, store, and orchestrator together.
// The returned cleanup closes the store.
func buildService(cfg *config.AppConfig, log *logrus.Logger) (*replicate.Service, *fetch.RobotsGate, storage.JobStore, func()) {
	client := fetch.NewClient(cfg.HTTPClientSettings, cfg.InsecureSkipVerify, log)
	fetcher := fetch.NewFetcher(client, cfg, log)
	robotsGate := fetch.NewRobotsGate(fetcher, cfg, log.WithField("component", "robots"))
	outboundSem := semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	gateway := fetch.NewGateway(fetcher, robotsGate, outboundSem, cfg, log)

	store, err := storage.NewBadgerStore(cfg.StoreRetention, log.WithField("component", "store"))
	if err != nil {
		log.Fatalf("Failed to open asset store: %v", err)
	}

	svc := replicate.NewService(gateway, store, cfg, log)
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Errorf("Failed to close asset store: %v", err)
		}
	}
	return svc, robotsGate, store, cleanup
}

// runServe handles the serve subcommand
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: page-replica serve [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := newLogger(*logLevel)
	cfg := prepareConfig(*configFile, log)
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	svc, _, store, cleanup := buildService(cfg, log)
	defer cleanup()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SweepInterval > 0 {
		go store.RunSweep(rootCtx, cfg.SweepInterval)
	}

	server := api.NewServer(cfg.ListenAddr, svc, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("Received signal %v, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Shutdown error: %v", err)
	}
	cancel()
}

// runReplicate handles the one-shot replicate subcommand
func runReplicate(args []string) {
	fs := flag.NewFlagSet("replicate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	targetURL := fs.String("url", "", "Page URL to replicate (required)")
	outFile := fs.String("o", "", "Output file ('-' or empty for stdout)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: page-replica replicate [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  page-replica replicate -url https://example.com -o replica.html\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *targetURL == "" {
		fmt.Fprintln(os.Stderr, "Error: -url is required")
		fs.Usage()
		os.Exit(1)
	}

	log := newLogger(*logLevel)
	cfg := prepareConfig(*configFile, log)

	svc, _, _, cleanup := buildService(cfg, log)
	defer cleanup()

	result, err := svc.Replicate(context.Background(), *targetURL)
	if err != nil {
		log.Fatalf("Replication failed: %v", err)
	}

	var out io.Writer = os.Stdout
	if *outFile != "" && *outFile != "-" {
		f, err := os.Create(*outFile)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}
	if _, err := io.WriteString(out, result.HTML); err != nil {
		log.Fatalf("Failed to write replica: %v", err)
	}

	log.WithFields(logrus.Fields{
		"final_url":    result.FinalURL,
		"images":       result.Stats.Images,
		"total_images": result.Stats.TotalImages,
		"stylesheets":  result.Stats.Stylesheets,
	}).Info("Replica written")
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: page-replica validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to the provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: read config: %v\n", err)
		return 1
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(stderr, "Error: parse config: %v\n", err)
		return 1
	}

	warnings, err := cfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	fmt.Fprintln(stdout, "Configuration valid.")
	return 0
}

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	transport := fs.String("transport", "stdio", "Transport: stdio or sse")
	port := fs.Int("port", 8081, "Port for SSE transport")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: page-replica mcp-server [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := newLogger(*logLevel)
	// stdio transport owns stdout; keep log noise on stderr
	log.SetOutput(os.Stderr)

	cfg := prepareConfig(*configFile, log)

	svc, robotsGate, _, cleanup := buildService(cfg, log)
	defer cleanup()

	srv, err := mcp.NewServer(&mcp.ServerConfig{
		AppConfig: cfg,
		Transport: *transport,
		Port:      *port,
		Logger:    log,
	}, svc, robotsGate)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
