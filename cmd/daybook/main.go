package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	_ "github.com/wilhg/daybook/pkg/adapters/llm/fake"
	_ "github.com/wilhg/daybook/pkg/adapters/llm/gemini"
	_ "github.com/wilhg/daybook/pkg/adapters/llm/openai"

	"github.com/wilhg/daybook/internal/server"
	"github.com/wilhg/daybook/pkg/agent/tools"
	"github.com/wilhg/daybook/pkg/conversation"
	dbotel "github.com/wilhg/daybook/pkg/otel"
	"github.com/wilhg/daybook/pkg/prompt"
	"github.com/wilhg/daybook/pkg/reminder"
	"github.com/wilhg/daybook/pkg/settings"
	"github.com/wilhg/daybook/pkg/store"
	"github.com/wilhg/daybook/pkg/store/entstore"
	"github.com/wilhg/daybook/pkg/store/memstore"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type options struct {
	addr         string
	databaseURL  string
	settingsPath string
	logLevel     string
	tokenizer    string
	traceStdout  bool
	showVersion  bool
	// mcpPermissions is a comma separated list granted to MCP clients.
	mcpPermissions string
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], io.Discard)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daybook: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("daybook %s (commit=%s, date=%s)\n", version, commit, date)
		return
	}
	level, err := parseLogLevel(opts.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daybook: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, logger); err != nil {
		logger.Error("daybook stopped", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("daybook", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	fs.StringVar(&o.addr, "addr", getEnv("DAYBOOK_ADDR", ":8080"), "http listen address")
	fs.StringVar(&o.databaseURL, "db", getEnv("DATABASE_URL", "memory"), "database URL: memory, sqlite:<dsn> or postgres://...")
	fs.StringVar(&o.settingsPath, "settings", getEnv("DAYBOOK_SETTINGS", "daybook.yaml"), "settings file; empty keeps settings in memory")
	fs.StringVar(&o.logLevel, "log-level", getEnv("DAYBOOK_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&o.tokenizer, "tokenizer", getEnv("DAYBOOK_TOKENIZER", "gpt-4o"), "model name used for prompt token estimates")
	fs.StringVar(&o.mcpPermissions, "mcp-permissions", getEnv("DAYBOOK_MCP_PERMISSIONS", strings.Join(tools.ReadOnly, ",")), "permissions granted to MCP clients, comma separated")
	fs.BoolVar(&o.traceStdout, "trace-stdout", getEnv("DAYBOOK_TRACE_STDOUT", "") == "true", "export spans to stdout")
	err := fs.Parse(args)
	return o, err
}

func getEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
}

// openStore returns the in-memory store for "memory" and an SQL store
// otherwise. SQL stores are migrated before use.
func openStore(ctx context.Context, databaseURL string) (store.Store, error) {
	if databaseURL == "" || databaseURL == "memory" {
		return memstore.New(), nil
	}
	st, err := entstore.Open(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}

// defaultSettings seeds a new settings file from the environment.
func defaultSettings() settings.Settings {
	s := settings.Default()
	s.Model.Provider = getEnv("DAYBOOK_MODEL_PROVIDER", s.Model.Provider)
	s.Model.Name = getEnv("DAYBOOK_MODEL", s.Model.Name)
	s.Model.BaseURL = os.Getenv("DAYBOOK_MODEL_BASE_URL")
	s.Model.APIKey = os.Getenv("DAYBOOK_MODEL_API_KEY")
	s.Courses.APIURL = os.Getenv("DAYBOOK_COURSE_API_URL")
	s.Timezone = getEnv("DAYBOOK_TIMEZONE", s.Timezone)
	return s
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	shutdownTracing, err := dbotel.Init(ctx, dbotel.Config{ServiceVersion: version, UseStdout: opts.traceStdout})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := openStore(ctx, opts.databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cfg, err := settings.Open(opts.settingsPath, defaultSettings())
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	prompts := prompt.NewStore()
	if err := prompts.Seed(prompt.DefaultAssistant); err != nil {
		return fmt.Errorf("seed prompt: %w", err)
	}
	est, err := conversation.NewTikTokenEstimator(opts.tokenizer)
	if err != nil {
		logger.Warn("token estimates disabled", "error", err)
	}

	srv := server.New(server.Config{
		Store:          st,
		Settings:       cfg,
		Prompts:        prompts,
		Estimator:      est,
		Logger:         logger,
		MCPPermissions: splitList(opts.mcpPermissions),
	})

	// The reminder schedule and zone are read once at startup.
	cur := cfg.Get()
	sched := reminder.New(st, st, reminder.WithLogger(logger), reminder.WithLocation(cur.Location()))
	if err := sched.Schedule(ctx, cur.ReminderSchedule, srv.Limiter()); err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", opts.addr, "version", version, "store", storeKind(opts.databaseURL))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		return errors.Join(err, sched.Stop(shutdownCtx))
	})
	return g.Wait()
}

func storeKind(databaseURL string) string {
	switch {
	case databaseURL == "" || databaseURL == "memory":
		return "memory"
	case strings.HasPrefix(strings.ToLower(databaseURL), "sqlite:"):
		return "sqlite"
	default:
		return "postgres"
	}
}
