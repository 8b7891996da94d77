// Command quorum asks a question across configured model backends.
//
// One-shot:    quorum "why is the sky blue"
// Interactive: quorum            (reads prompts line by line; config
//              changes to budget and keywords are picked up live)
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/quorum-ai/quorum/internal/classifier"
	"github.com/quorum-ai/quorum/internal/config"
	"github.com/quorum-ai/quorum/internal/engine"
	apperrors "github.com/quorum-ai/quorum/internal/errors"
	"github.com/quorum-ai/quorum/internal/policy"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", defaultConfigPath(), "path to config.toml")
		forceName  = flag.String("backend", "", "force a specific backend by name")
		forceTier  = flag.String("tier", "", "force a complexity tier (simple|medium|complex|critical)")
		consensus  = flag.Bool("consensus", false, "query multiple backends and merge their answers")
		maxCost    = flag.Float64("max-cost", 0, "per-call cost cap in USD (0 = no cap)")
		verbose    = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	eng, cleanup, err := engine.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := policy.RequestSpec{
		ForceBackend:     *forceName,
		RequireConsensus: *consensus,
		MaxCostUSD:       *maxCost,
	}
	if *forceTier != "" {
		tier, err := classifier.ParseTier(*forceTier)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		spec.ForceTier = &tier
	}

	if prompt := strings.TrimSpace(strings.Join(flag.Args(), " ")); prompt != "" {
		spec.Prompt = prompt
		return ask(ctx, eng, spec)
	}
	return interactive(ctx, eng, spec, *configPath, logger)
}

// ask serves a single prompt and prints the answer with a cost footer.
func ask(ctx context.Context, eng *engine.Engine, spec policy.RequestSpec) int {
	resp, err := eng.Complete(ctx, spec)
	if err != nil {
		printError(err)
		return exitCode(err)
	}

	fmt.Println(resp.Content)

	footer := color.New(color.FgHiBlack)
	mode := "single"
	if resp.Consensus {
		mode = "consensus"
	}
	footer.Fprintf(os.Stderr, "— %s · %s · %s · $%.4f\n",
		strings.Join(resp.BackendsUsed, "+"), resp.Tier, mode, resp.TotalCostUSD)
	return 0
}

// interactive reads prompts line by line. A config watcher applies budget
// and keyword changes live.
func interactive(ctx context.Context, eng *engine.Engine, base policy.RequestSpec, configPath string, logger *slog.Logger) int {
	go func() {
		err := config.Watch(ctx, configPath, logger, eng.ApplyConfig)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	prompt := color.New(color.FgCyan, color.Bold)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		prompt.Print("quorum> ")
		if !scanner.Scan() {
			fmt.Println()
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return 0
		case "/stats":
			printStats(eng)
			continue
		}

		spec := base
		spec.Prompt = line
		if code := ask(ctx, eng, spec); code != 0 && ctx.Err() != nil {
			return code
		}
	}
}

func printStats(eng *engine.Engine) {
	s := eng.Stats()
	if s == nil {
		return
	}
	fmt.Printf("requests=%d tokens=%d errors=%d local=%.0f%% spent=$%.4f\n",
		s.RequestCount, s.TokenCount, s.ErrorCount, s.LocalRate, eng.Spent())
	for name, h := range eng.Health() {
		state := "closed"
		if h.CircuitOpen {
			state = "open"
		}
		fmt.Printf("  %-16s circuit=%-6s ok=%d fail=%d\n", name, state, h.Successes, h.Failures)
	}
}

func printError(err error) {
	red := color.New(color.FgRed)
	switch apperrors.GetKind(err) {
	case apperrors.KindRateLimited, apperrors.KindUnavailable:
		red.Fprintf(os.Stderr, "temporarily unavailable, try again later: %v\n", err)
	case apperrors.KindInvalid:
		red.Fprintf(os.Stderr, "request cannot be served: %v\n", err)
	case apperrors.KindNoBackend:
		red.Fprintf(os.Stderr, "no capable backend configured: %v\n", err)
	case apperrors.KindBudgetExceeded:
		red.Fprintf(os.Stderr, "monthly budget exhausted: %v\n", err)
	default:
		red.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func exitCode(err error) int {
	switch apperrors.GetKind(err) {
	case apperrors.KindInvalid:
		return 2
	case apperrors.KindNoBackend, apperrors.KindBudgetExceeded:
		return 3
	default:
		return 1
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".quorum", "config.toml")
}
