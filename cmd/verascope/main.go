// Package main is the entry point for verascope.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/verascope/verascope/internal/config"
	"github.com/verascope/verascope/internal/monitoring"
	"github.com/verascope/verascope/internal/server"
)

// ANSI color codes
const (
	verascopeBlue = "\033[38;2;42;111;184m" // #2a6fb8
	bold          = "\033[1m"
	reset         = "\033[0m"
)

// ASCII banner for startup
const banner = `
 ██╗   ██╗███████╗██████╗  █████╗ ███████╗ ██████╗ ██████╗ ██████╗ ███████╗
 ██║   ██║██╔════╝██╔══██╗██╔══██╗██╔════╝██╔════╝██╔═══██╗██╔══██╗██╔════╝
 ██║   ██║█████╗  ██████╔╝███████║███████╗██║     ██║   ██║██████╔╝█████╗
 ╚██╗ ██╔╝██╔══╝  ██╔══██╗██╔══██║╚════██║██║     ██║   ██║██╔═══╝ ██╔══╝
  ╚████╔╝ ███████╗██║  ██║██║  ██║███████║╚██████╗╚██████╔╝██║     ███████╗
   ╚═══╝  ╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝ ╚═════╝ ╚═════╝ ╚═╝     ╚══════╝
`

func printBanner() {
	fmt.Print(verascopeBlue + bold + banner + reset + "\n")
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/verascope/.env first
	configEnv := filepath.Join(homeDir, ".config", "verascope", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "check":
			runCheck(os.Args[2:])
			return
		case "serve", "start":
			runServe(os.Args[2:])
			return
		case "version", "-v", "--version":
			PrintVersion()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
			printHelp()
			os.Exit(2)
		}
	}

	printHelp()
}

// resolveConfig loads the effective configuration. An explicit path
// wins; otherwise the standard locations are searched, and with no
// file anywhere the defaults plus environment overrides apply.
func resolveConfig(userConfig string) (*config.Config, string, error) {
	if userConfig != "" {
		cfg, err := config.Load(userConfig)
		return cfg, userConfig, err
	}

	searchPaths := []string{}
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(homeDir, ".config", "verascope", "config.yaml"))
	}
	searchPaths = append(searchPaths, "verascope.yaml", "configs/config.yaml")

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.Load(path)
			return cfg, path, err
		}
	}

	cfg, err := config.FromEnv()
	return cfg, "(defaults + environment)", err
}

// setupLogging installs the global zerolog logger. --debug forces the
// debug level; console format silently downgrades to json when the
// output is not a terminal.
func setupLogging(cfg config.MonitoringConfig, debug bool) {
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	format := cfg.LogFormat
	if format == "console" && !consoleAvailable(cfg.LogOutput) {
		format = "json"
	}
	monitoring.Global(monitoring.LoggerConfig{
		Level:  level,
		Format: format,
		Output: cfg.LogOutput,
	})
}

// consoleAvailable reports whether the log output lands on a terminal.
func consoleAvailable(output string) bool {
	switch output {
	case "stdout", "":
		return term.IsTerminal(int(os.Stdout.Fd()))
	case "stderr":
		return term.IsTerminal(int(os.Stderr.Fd()))
	default:
		// File outputs never want ANSI console formatting.
		return false
	}
}

// runServe starts the HTTP evaluation service.
func runServe(args []string) {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	port := fs.Int("port", 0, "override server port")
	debug := fs.Bool("debug", false, "enable debug logging")
	noBanner := fs.Bool("no-banner", false, "suppress startup banner")
	_ = fs.Parse(args) // ExitOnError handles errors

	if !*noBanner {
		printBanner()
	}

	// Provisional logger until the config says otherwise.
	setupLogging(config.Default().Monitoring, *debug)

	cfg, source, err := resolveConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	setupLogging(cfg.Monitoring, *debug)

	log.Info().
		Str("version", Version).
		Str("config", source).
		Msg("verascope starting")

	rt, err := buildRuntime(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build runtime")
	}
	defer rt.Close()

	srv, err := server.New(server.Options{
		Config:  cfg.Server,
		Checker: rt.Checker,
		Metrics: rt.Metrics,
		Events:  rt.Events,
		Logger:  rt.Logger,
		Alerts:  rt.Alerts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Str("provider", cfg.Providers.Default).
		Bool("search", cfg.Search.Enabled).
		Bool("cache", cfg.Cache.Enabled).
		Bool("multi_model", cfg.Checker.MultiModel).
		Msg("configuration loaded")

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("verascope stopped")
}

// printHelp prints usage information
func printHelp() {
	printBanner()
	fmt.Println("verascope - AI text evaluation with web evidence")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  verascope [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  check        Evaluate text from the command line")
	fmt.Println("  serve        Start the HTTP evaluation service")
	fmt.Println("  version      Print version information")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Check Options:")
	fmt.Println("  verascope check [options] \"text to evaluate\"")
	fmt.Println("  -c, --config FILE    Config file (default: standard locations)")
	fmt.Println("  --provider NAME      Override the configured provider")
	fmt.Println("  --urgency LEVEL      low, normal, or high")
	fmt.Println("  --multi-model        Probe a second tier for consistency")
	fmt.Println("  --no-search          Skip web evidence retrieval")
	fmt.Println("  --json               Print the raw verdict JSON")
	fmt.Println()
	fmt.Println("Server Options:")
	fmt.Println("  verascope serve [--config FILE] [--port N] [--debug] [--no-banner]")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  verascope check \"The harbor bridge opened in 1932.\"")
	fmt.Println("  cat article.txt | verascope check")
	fmt.Println("  verascope serve --port 8080")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, BRAVE_API_KEY")
	fmt.Println("  VERASCOPE_PROVIDER, VERASCOPE_CACHE_PATH, VERASCOPE_TELEMETRY_DIR")
}
