package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/botui/chatflow/cli/internal/config"
	"github.com/botui/chatflow/plugins/formpush"
	"github.com/botui/chatflow/plugins/postgres"
	"github.com/botui/chatflow/plugins/webhook"
	"github.com/botui/chatflow/runtime"
	"github.com/botui/chatflow/runtime/channel"
	"github.com/botui/chatflow/runtime/controller"
	"github.com/botui/chatflow/runtime/engine/condition"
	"github.com/botui/chatflow/runtime/engine/script"
)

var (
	serveAddr     string
	serveScript   string
	serveLogLevel string
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [project-dir]",
	Short: "Serve one conversation script over HTTP",
	Long: `Serve reads chatflow.yaml from the project directory, loads the scripts
directory and hosts the selected script on a shared channel.

The channel is exposed under /channels/<name>: GET and PUT the snapshot,
POST /messages/<id> to answer, GET /events (SSE) or /ws to follow it.

Example:
  chatflow serve .
  chatflow serve ./support --script onboarding --addr :9000
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides addr)")
	serveCmd.Flags().StringVar(&serveScript, "script", "", "Script name to serve (overrides script)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "debug, info, warn or error (overrides log_level)")
}

func runServe(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) > 0 {
		projectDir = args[0]
	}

	overrides := map[string]any{}
	for key, v := range map[string]string{"addr": serveAddr, "script": serveScript, "log_level": serveLogLevel} {
		if v != "" {
			overrides[key] = v
		}
	}

	cfg, err := config.Load(projectDir, os.LookupEnv, overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l := newLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, l)
	if err != nil {
		return err
	}
	return srv.run(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// server is everything one served conversation needs.
type server struct {
	l          *slog.Logger
	cfg        *config.Config
	app        *runtime.App
	store      *postgres.Store
	channel    *channel.Memory
	evaluator  *runtime.Evaluator
	controller *controller.Controller
	http       *http.Server
}

func newServer(ctx context.Context, cfg *config.Config, l *slog.Logger) (*server, error) {
	app, err := runtime.NewApp(cfg.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load scripts from %s: %w", cfg.ScriptsDir, err)
	}
	steps, ok := app.Script(cfg.Script)
	if !ok {
		return nil, fmt.Errorf("script %q not found in %s", cfg.Script, cfg.ScriptsDir)
	}

	var engine runtime.EngineConfig
	if err := runtime.InitializeConfig(&engine, cfg.Engine); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if err := registerRunners(app, cfg, engine, l); err != nil {
		return nil, err
	}

	s := &server{l: l, cfg: cfg, app: app}

	opts := []channel.Option{channel.WithLogger(l)}
	if cfg.Postgres != nil {
		var pgConfig postgres.Config
		if err := runtime.InitializeConfig(&pgConfig, cfg.Postgres); err != nil {
			return nil, fmt.Errorf("invalid postgres config: %w", err)
		}
		s.store = postgres.New(l, pgConfig)
		if err := s.store.Initialize(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, channel.WithStore(s.store))
	}
	s.channel = channel.NewMemory(cfg.Channel, opts...)

	dispatcher := runtime.NewDispatcher(l, app.Container, engine)
	s.evaluator = runtime.NewEvaluator(l, condition.NewEvaluator(), dispatcher)
	s.controller = controller.New(s.channel, s.evaluator, steps, runtime.ChatConfig{
		Theme: cfg.Theme,
		OnStart: func() {
			l.Info("Conversation started", "script", cfg.Script)
		},
		OnClose: func() {
			l.Info("Conversation closed", "script", cfg.Script)
		},
	}, controller.WithSeed(), controller.WithLogger(l))

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	g.Use(gin.Recovery())
	channel.NewHTTPHandler(l, s.channel).Register(g)
	s.http = &http.Server{Addr: cfg.Addr, Handler: g}

	return s, nil
}

// registerRunners binds the script, webhook and formPush jobs.
func registerRunners(app *runtime.App, cfg *config.Config, engine runtime.EngineConfig, l *slog.Logger) error {
	interp := script.NewInterpreter(engine)

	var hookConfig webhook.Config
	if err := runtime.InitializeConfig(&hookConfig, cfg.Webhook); err != nil {
		return fmt.Errorf("invalid webhook config: %w", err)
	}
	var pushConfig formpush.Config
	if err := runtime.InitializeConfig(&pushConfig, cfg.FormPush); err != nil {
		return fmt.Errorf("invalid form_push config: %w", err)
	}

	doc := formpush.NewMemoryDocument()
	for selector, f := range cfg.Forms {
		doc.Add(selector, formpush.NewMemoryForm(f.Action, f.Method))
	}

	runners := []struct {
		kind   runtime.JobKind
		runner runtime.JobRunner
	}{
		{runtime.JobScript, script.NewRunner(l, interp)},
		{runtime.JobWebhook, webhook.New(l, hookConfig)},
		{runtime.JobFormPush, formpush.New(l, doc, interp, pushConfig)},
	}
	for _, r := range runners {
		if err := app.RegisterRunner(r.kind, r.runner); err != nil {
			return fmt.Errorf("failed to register %s job: %w", r.kind, err)
		}
	}
	return nil
}

// run serves until ctx is cancelled, then drains HTTP, in-flight jobs and
// the runners, in that order.
func (s *server) run(ctx context.Context) error {
	if err := s.app.Container.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize jobs: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		s.l.Info("Chatflow listening", "addr", s.cfg.Addr, "script", s.cfg.Script, "channel", s.cfg.Channel)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := s.controller.Run(ctx); err != nil && !errors.Is(err, channel.ErrClosed) {
			errCh <- fmt.Errorf("controller: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.l.Info("Shutting down")
	case runErr = <-errCh:
		s.l.Error("Stopping after failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.l.Error("HTTP shutdown failed", "error", err)
	}
	s.channel.Close()
	s.evaluator.Wait()
	if err := s.app.Container.Shutdown(shutdownCtx); err != nil {
		s.l.Error("Job shutdown failed", "error", err)
	}
	if s.store != nil {
		if err := s.store.Shutdown(shutdownCtx); err != nil {
			s.l.Error("Store shutdown failed", "error", err)
		}
	}
	return runErr
}
