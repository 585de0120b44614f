package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/verascope/verascope/internal/checker"
	"github.com/verascope/verascope/internal/config"
	"github.com/verascope/verascope/internal/model"
)

// Verdict colors
const (
	green  = "\033[32m"
	yellow = "\033[33m"
	red    = "\033[31m"
	dim    = "\033[2m"
)

// runCheck evaluates one text from the command line and prints the
// verdict. Text comes from the arguments, or from stdin when none are
// given.
func runCheck(args []string) {
	loadEnvFiles()

	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.StringVar(configPath, "c", "", "path to config file (shorthand)")
	providerName := fs.String("provider", "", "override the configured provider")
	urgency := fs.String("urgency", "", "low, normal, or high")
	multiModel := fs.Bool("multi-model", false, "probe a second tier for consistency")
	noSearch := fs.Bool("no-search", false, "skip web evidence retrieval")
	jsonOut := fs.Bool("json", false, "print the raw verdict JSON")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args) // ExitOnError handles errors

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" || text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
			os.Exit(1)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		fmt.Fprintln(os.Stderr, "nothing to check: pass text as an argument or on stdin")
		os.Exit(2)
	}

	urg, err := model.ParseUrgency(*urgency)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Provisional logger until the config says otherwise.
	setupLogging(config.Default().Monitoring, *debug)

	cfg, _, err := resolveConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *providerName != "" {
		cfg.Providers.Default = *providerName
		if err := cfg.Providers.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid provider override")
		}
	}
	if *multiModel {
		cfg.Checker.MultiModel = true
	}
	if *noSearch {
		cfg.Search.Enabled = false
	}
	setupLogging(cfg.Monitoring, *debug)

	rt, err := buildRuntime(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build runtime")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	verdict, err := rt.Checker.Check(ctx, checker.Request{Text: text, Urgency: urg})
	stop()
	if err != nil {
		rt.Close()
		log.Fatal().Err(err).Msg("check aborted")
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(verdict); err != nil {
			fmt.Fprintf(os.Stderr, "encode verdict: %v\n", err)
		}
	} else {
		printVerdict(verdict)
	}

	// Close flushes the cache so the next invocation gets the hit.
	rt.Close()
	if verdict.Rating == nil {
		os.Exit(1)
	}
}

// printVerdict renders a verdict for humans.
func printVerdict(v *checker.Verdict) {
	color := term.IsTerminal(int(os.Stdout.Fd()))
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + reset
	}

	if v.Rating == nil {
		fmt.Println(paint(red+bold, "no verdict"))
		if v.Message != "" {
			fmt.Println(v.Message)
		}
		return
	}

	ratingColor := red
	switch {
	case *v.Rating >= 70:
		ratingColor = green
	case *v.Rating >= 40:
		ratingColor = yellow
	}

	fmt.Printf("%s %s\n",
		paint(ratingColor+bold, fmt.Sprintf("%d/100", *v.Rating)),
		paint(dim, fmt.Sprintf("(confidence: %s)", v.Confidence)))
	if v.Degraded {
		fmt.Println(paint(yellow, "degraded result: "+v.Message))
	}
	if v.Result != "" {
		fmt.Println()
		fmt.Println(v.Result)
	}

	fmt.Println()
	if v.Query != "" {
		fmt.Printf("%s %s\n", paint(dim, "query:"), v.Query)
	}
	fmt.Printf("%s %s (%s tier, %dms)\n", paint(dim, "model:"), v.Model, v.Tier, v.ElapsedMS)
	for _, src := range v.Sources {
		fmt.Printf("%s %s (%s)\n", paint(dim, "source:"), src.Title, src.URL)
	}
}
