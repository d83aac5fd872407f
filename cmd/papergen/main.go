package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/exam-paper-app/papergen/internal/engine"
	"github.com/exam-paper-app/papergen/internal/engine/gemini"
	"github.com/exam-paper-app/papergen/internal/engine/gpt"
	"github.com/exam-paper-app/papergen/internal/exam"
	"github.com/exam-paper-app/papergen/internal/handler"
	appI18n "github.com/exam-paper-app/papergen/internal/i18n"
	"github.com/exam-paper-app/papergen/internal/model"
	"github.com/exam-paper-app/papergen/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "papergen",
		Short: "Generate printable exam papers from textbook page images",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `papergen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam paper server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "papergen.db", "SQLite database path")
	f.String("engine", "gemini", "LLM engine (gemini, gpt)")
	f.String("api-key", "", "API key for the LLM engine (or set PAPERGEN_API_KEY / GEMINI_API_KEY)")
	f.String("model", "", "Model name (defaults per engine)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (gpt engine only)")
	f.StringP("lang", "l", "en", "UI language (en, hi)")
	f.String("auth-password", "", "Require login with this teacher password (empty = open access)")
	f.Duration("session-ttl", 24*time.Hour, "How long login sessions stay valid")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Int("history-limit", 20, "Max entries returned by the history endpoint")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the generation history as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "papergen.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PAPERGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("papergen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/papergen")
	v.AddConfigPath("/etc/papergen")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Login is optional: a set password turns it on and seeds the teacher user.
	authPassword := v.GetString("auth-password")
	if authPassword != "" {
		if err := seedTeacher(db, authPassword); err != nil {
			return fmt.Errorf("seed teacher user: %w", err)
		}
		db.SetSessionTTL(v.GetDuration("session-ttl"))
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Create the LLM engine.
	eng, closeEngine, err := newEngine(ctx, v)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer closeEngine()

	if err := db.SetEngineInfo(model.EngineInfo{Engine: eng.Name(), Model: v.GetString("model")}); err != nil {
		slog.Warn("failed to record engine info", "error", err)
	}

	svc := exam.NewGenerator(eng, &metadataRefresher{db: db}, db)

	cfg := model.AppConfig{
		Lang:          lang,
		SecureCookies: v.GetBool("secure-cookies"),
		AuthRequired:  authPassword != "",
		HistoryLimit:  v.GetInt("history-limit"),
	}

	h, err := handler.New(db, svc, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"engine", eng.Name(),
		"model", v.GetString("model"),
		"lang", lang,
		"auth_required", cfg.AuthRequired,
		"history_limit", cfg.HistoryLimit,
	)
	return http.ListenAndServe(addr, r)
}

// newEngine builds the configured engine. The returned func releases any
// client resources; it is a no-op for engines with nothing to close.
func newEngine(ctx context.Context, v *viper.Viper) (engine.Engine, func(), error) {
	apiKey := v.GetString("api-key")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	modelName := v.GetString("model")

	switch strings.ToLower(v.GetString("engine")) {
	case "gemini":
		eng, err := gemini.New(ctx, apiKey, modelName)
		if err != nil {
			return nil, nil, err
		}
		return eng, func() {
			if err := eng.Close(); err != nil {
				slog.Warn("failed to close gemini client", "error", err)
			}
		}, nil
	case "gpt":
		eng, err := gpt.New(v.GetString("llm-url"), apiKey, modelName)
		if err != nil {
			return nil, nil, err
		}
		return eng, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q (want gemini or gpt)", v.GetString("engine"))
	}
}

// metadataRefresher is the server's answer to an invalid-credential failure:
// it cannot swap keys by itself, so it logs the problem and leaves a marker
// for the operator in the metadata table.
type metadataRefresher struct {
	db *store.Store
}

func (m *metadataRefresher) RequestCredentialRefresh(_ context.Context) {
	slog.Warn("LLM credential rejected, operator action required",
		"hint", "restart with a valid --api-key or PAPERGEN_API_KEY")
	if err := m.db.SetMetadata("credential_refresh_requested", time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Error("failed to record credential refresh request", "error", err)
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	generations, err := db.ExportAllGenerations()
	if err != nil {
		return fmt.Errorf("export generations: %w", err)
	}

	info, err := db.GetEngineInfo()
	if err != nil {
		return fmt.Errorf("read engine info: %w", err)
	}

	export := model.HistoryExport{
		ExportedAt:  time.Now().UTC(),
		Engine:      info.Engine,
		Model:       info.Model,
		Count:       len(generations),
		Generations: generations,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func seedTeacher(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "teacher",
		DisplayName:  "Teacher",
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create teacher user: %w", err)
	}

	slog.Info("seeded teacher user", "username", "teacher")
	return nil
}
