package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/journeys/internal/engine"
	"github.com/pavelanni/journeys/internal/handler"
	appI18n "github.com/pavelanni/journeys/internal/i18n"
	"github.com/pavelanni/journeys/internal/model"
	"github.com/pavelanni/journeys/internal/store"
	"github.com/pavelanni/journeys/internal/telemetry"
)

const serviceName = "journeys"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "journeys",
		Short: "Sequential training journeys with gated lessons and graded exams",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `journeys --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "journeys.db", "SQLite database path or Postgres DSN")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("jwt-secret", "", "HS256 secret bearer tokens are signed with (or set JOURNEYS_JWT_SECRET)")
	f.StringP("lang", "l", "en", "Default language for messages (en, pt-BR)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable); CORS is off when empty")
	f.String("otel-endpoint", "", "OTLP/HTTP traces endpoint URL; tracing is off when empty")
	f.Duration("request-timeout", 30*time.Second, "Per-request timeout (0 disables it)")
	addStoreFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import catalog JSON files (plants, journeys, modules, lessons, exams)",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.StringSliceP("catalog", "c", nil, "Paths to catalog JSON files (repeatable)")
	addStoreFlags(cmd)
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export learner progress for a journey as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("plant", "", "Plant ID (required)")
	f.String("journey", "", "Journey slug (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addStoreFlags(cmd)

	_ = cmd.MarkFlagRequired("plant")
	_ = cmd.MarkFlagRequired("journey")

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

	v.SetEnvPrefix("JOURNEYS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("journeys")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/journeys")
	v.AddConfigPath("/etc/journeys")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	driver := store.Driver(strings.ToLower(v.GetString("db-driver")))
	db, err := store.Open(ctx, driver, v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return fmt.Errorf("jwt secret is required: set --jwt-secret flag or JOURNEYS_JWT_SECRET env var")
	}
	timeout := v.GetDuration("request-timeout")
	if timeout < 0 {
		return fmt.Errorf("request timeout must not be negative, got %s", timeout)
	}

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, v.GetString("otel-endpoint"))
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	svc := engine.New(db, db, db, db)
	h, err := handler.New(svc, db, []byte(secret))
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := newRouter(h, timeout, v.GetStringSlice("cors-origins"))

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"db_driver", v.GetString("db-driver"),
		"lang", lang,
		"cors_origins", v.GetStringSlice("cors-origins"),
		"tracing", v.GetString("otel-endpoint") != "",
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter builds the middleware stack around the API routes. A zero timeout
// leaves requests without a deadline.
func newRouter(h *handler.Handler, timeout time.Duration, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language"},
			ExposedHeaders:   []string{"Content-Length", "Content-Language"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return r
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	return loadCatalogs(ctx, db, v.GetStringSlice("catalog"))
}

// loadCatalogs imports each catalog file once. Files are tracked by SHA-256:
// an unchanged file is skipped and a changed one is refused, since learners
// may already hold progress against the content it first described.
func loadCatalogs(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		name := filepath.Base(path)
		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(ctx, name)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("catalog file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("catalog file changed since last import, skipping to avoid breaking existing progress",
				"path", path)
			continue
		}

		var c model.Catalog
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		stats, err := db.ImportCatalog(ctx, c)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}

		if err := db.SetImportedFileHash(ctx, name, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported catalog", "path", path,
			"journeys", stats.Journeys, "modules", stats.Modules, "questions", stats.Questions)
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := buildExport(ctx, db, v.GetString("plant"), v.GetString("journey"))
	if err != nil {
		return err
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

func buildExport(ctx context.Context, db *store.Store, plantID, journeySlug string) (model.ProgressExport, error) {
	j, err := db.GetJourneyBySlug(ctx, plantID, journeySlug)
	if err != nil {
		return model.ProgressExport{}, fmt.Errorf("journey %s: %w", journeySlug, err)
	}
	learners, err := db.ListJourneyLearners(ctx, j.ID)
	if err != nil {
		return model.ProgressExport{}, err
	}

	svc := engine.New(db, db, db, db)
	export := model.ProgressExport{
		PlantID:     plantID,
		Journey:     journeySlug,
		GeneratedAt: time.Now().UTC(),
		Learners:    make([]model.JourneyProgress, 0, len(learners)),
	}
	for _, userID := range learners {
		jp, err := svc.JourneyProgress(ctx, userID, j.ID)
		if err != nil {
			return model.ProgressExport{}, fmt.Errorf("progress of %s: %w", userID, err)
		}
		export.Learners = append(export.Learners, jp)
	}
	return export, nil
}
