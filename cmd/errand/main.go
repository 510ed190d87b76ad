// Errand is a task-capture assistant that works over SMS.
//
// An SMS gateway posts each inbound message to the HTTP API; errand
// classifies it, captures tasks or answers questions about them, and
// returns the reply text. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	errand init [dir]                Write an example config and data directory
//	errand serve                     Start the API server
//	errand ask <message>             Handle one message and print the reply
//	errand import-people <file.vcf>  Import contacts as people
//	errand version                   Print version and build information
//	errand -o json version           Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // user timezones must resolve in minimal containers

	"github.com/nugget/errand/internal/agent"
	"github.com/nugget/errand/internal/api"
	"github.com/nugget/errand/internal/buildinfo"
	"github.com/nugget/errand/internal/classifier"
	"github.com/nugget/errand/internal/config"
	"github.com/nugget/errand/internal/connwatch"
	"github.com/nugget/errand/internal/llm"
	"github.com/nugget/errand/internal/router"
	"github.com/nugget/errand/internal/session"
	"github.com/nugget/errand/internal/taskstore"
	"github.com/nugget/errand/internal/tools"
	"github.com/nugget/errand/internal/undo"
)

// defaultCLIUser is the user id for ask and import-people when -user is
// not given.
const defaultCLIUser = "cli"

// main only builds the OS environment and hands off to [run], so the
// whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package's global state gets in the way of calling run from parallel
// tests, and the surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var userID string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-user" && i+1 < len(args):
			userID = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-user="):
			userID = strings.TrimPrefix(args[i], "-user=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}
	if userID == "" {
		userID = defaultCLIUser
	}

	switch command {
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: errand ask <message>")
		}
		return runAsk(ctx, stdout, stderr, configPath, userID, strings.Join(cmdArgs, " "))
	case "import-people":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: errand import-people <file.vcf>")
		}
		return runImportPeople(ctx, stdout, stderr, configPath, userID, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Errand - SMS task capture assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: errand [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init [dir]               Write an example config (default: .)")
	fmt.Fprintln(w, "  serve                    Start the API server")
	fmt.Fprintln(w, "  ask <message>            Handle one message and print the reply")
	fmt.Fprintln(w, "  import-people <file.vcf> Import contacts as people")
	fmt.Fprintln(w, "  version                  Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -user <id>        User id for ask and import-people (default: cli)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/errand/config.yaml, /etc/errand/config.yaml")
	return nil
}

// app is everything a turn needs, opened from config.
type app struct {
	loop   *agent.Loop
	router *router.Router
	probes map[string]connwatch.Probe
	closer func()
}

// openApp opens the stores and wires the agent. The caller must call
// closer when done.
func openApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	tasks, err := taskstore.Open(filepath.Join(cfg.DataDir, "tasks.db"))
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	ctxStore, err := session.OpenSQLiteStore(filepath.Join(cfg.DataDir, "sessions.db"))
	if err != nil {
		tasks.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	closer := func() {
		if err := ctxStore.Close(); err != nil {
			logger.Warn("close session store", "error", err)
		}
		if err := tasks.Close(); err != nil {
			logger.Warn("close task store", "error", err)
		}
	}

	sessions := session.NewManager(ctxStore, session.Options{
		TTL: cfg.Session.TTL,
		Limits: session.Limits{
			RecentTasks:  cfg.Session.RecentTasks,
			RecentPeople: cfg.Session.RecentPeople,
			UndoDepth:    cfg.Session.UndoDepth,
			RecentTurns:  cfg.Session.RecentTurns,
		},
		PatternThreshold: cfg.Session.PatternThreshold,
	}, logger)

	undoMgr, err := undo.NewManager(sessions, undo.Inverters(tasks, sessions), logger)
	if err != nil {
		closer()
		return nil, fmt.Errorf("undo manager: %w", err)
	}

	llmClient := createLLMClient(cfg, logger)
	rtr := router.NewRouter(logger, routerConfig(cfg))

	cls := classifier.New(router.NewGenerator(llmClient, rtr), classifier.Options{
		Limits:           classifier.Limits{MaxItems: cfg.Agent.MaxBatchItems},
		Timeout:          cfg.Agent.ModelTimeout,
		PatternThreshold: cfg.Session.PatternThreshold,
		Location:         cfg.Location(),
	}, logger)

	reg := tools.NewRegistry(logger)
	reg.SetTimeout(cfg.Agent.ToolTimeout)
	tools.RegisterCatalog(reg, tools.CatalogOptions{MaxBatchItems: cfg.Agent.MaxBatchItems})

	loop, err := agent.NewLoop(agent.Deps{
		Classifier: cls,
		LLM:        llmClient,
		Router:     rtr,
		Tools:      reg,
		Store:      tasks,
		Sessions:   sessions,
		Undo:       undoMgr,
	}, agent.Options{
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		ModelTimeout:  cfg.Agent.ModelTimeout,
		EntitiesTTL:   cfg.Session.EntitiesTTL,
		Location:      cfg.Location(),
	}, logger)
	if err != nil {
		closer()
		return nil, err
	}

	probes := map[string]connwatch.Probe{"taskstore": tasks.Ping}
	for name, c := range llmClient.Providers() {
		probes[name] = c.Ping
	}
	return &app{loop: loop, router: rtr, probes: probes, closer: closer}, nil
}

// runAsk handles one message as userID and prints the reply. It uses the
// same stores as the server, so the CLI and SMS share a conversation
// when given the same user id.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, userID, message string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.closer()

	fmt.Fprintln(stdout, a.loop.HandleTurn(ctx, userID, message, time.Now().UTC()))
	return nil
}

// runServe starts the API server and blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting errand", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = configuredLogger(stdout, cfg)
	logger.Info("config loaded",
		"path", cfgPath,
		"listen", cfg.Listen.Addr(),
		"default_model", cfg.Models.Default,
		"classifier_model", cfg.Models.Classifier,
		"data_dir", cfg.DataDir,
	)

	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.closer()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	monitor := connwatch.NewMonitor(logger)
	for name, probe := range a.probes {
		monitor.Watch(ctx, name, probe, connwatch.DefaultSchedule())
	}
	defer func() {
		cancel()
		monitor.Wait()
	}()

	server := api.NewServer(cfg.Listen.Addr(), a.loop, a.router, logger)
	server.SetHealth(monitor)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("errand stopped")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; anything else
// falls back to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	return config.NewLogger(w, level, format)
}

// configuredLogger builds the logger the config asks for. Validate has
// already checked the level.
func configuredLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return newLogger(w, level, cfg.LogFormat)
}

// loadConfig locates, parses, and validates the configuration.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// createLLMClient builds a multi-provider client. Models not mapped to a
// provider go to Ollama.
func createLLMClient(cfg *config.Config, logger *slog.Logger) *llm.MultiClient {
	ollama := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	multi := llm.NewMultiClient(ollama)
	multi.AddProvider("ollama", ollama)

	if cfg.Anthropic.APIKey != "" {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
		logger.Info("anthropic provider configured")
	}
	if cfg.OpenAI.APIKey != "" || cfg.OpenAI.BaseURL != "" {
		multi.AddProvider("openai", llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger))
		logger.Info("openai provider configured", "base_url", cfg.OpenAI.BaseURL)
	}

	for _, m := range cfg.Models.Available {
		provider := m.Provider
		if provider == "" {
			provider = "ollama"
		}
		multi.AddModel(m.Name, provider)
	}
	return multi
}

// routerConfig maps configured models onto the router's view of them.
func routerConfig(cfg *config.Config) router.Config {
	rc := router.Config{
		DefaultModel:    cfg.Models.Default,
		ClassifierModel: cfg.Models.Classifier,
		LocalFirst:      cfg.Models.LocalFirst,
		MaxAuditLog:     1000,
	}
	for _, m := range cfg.Models.Available {
		rc.Models = append(rc.Models, router.Model{
			Name:          m.Name,
			Provider:      m.Provider,
			SupportsTools: m.SupportsTools,
			ContextWindow: m.ContextWindow,
			Speed:         m.Speed,
			Quality:       m.Quality,
			CostTier:      m.CostTier,
			MinComplexity: router.ParseComplexity(m.MinComplexity),
		})
	}
	return rc
}
