package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/ndrozd/surveybot/internal/fixture"
	"github.com/ndrozd/surveybot/internal/handler"
	appI18n "github.com/ndrozd/surveybot/internal/i18n"
	"github.com/ndrozd/surveybot/internal/metrics"
	"github.com/ndrozd/surveybot/internal/refs"
	"github.com/ndrozd/surveybot/internal/scoring"
	"github.com/ndrozd/surveybot/internal/store"
	"github.com/ndrozd/surveybot/internal/token"
)

func main() {
	// A local .env is optional; real deployments configure through flags and
	// SURVEYBOT_* variables.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "surveybot",
		Short: "Survey service with LLM-scored answers",
	}

	serve := serveCmd()
	root.AddCommand(serve, seedCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `surveybot --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP survey server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "surveybot.db", "SQLite database path")
	f.String("admin-key", "", "Shared admin API key (or set SURVEYBOT_ADMIN_KEY)")
	f.String("link-secret", "", "Secret for signing survey link tokens (or set SURVEYBOT_LINK_SECRET)")
	f.StringSlice("origins", nil, "Allowed CORS origins for the frontend (empty = same-origin only)")
	f.String("scorer", "auto", "Answer scorer (auto, openai, heuristic, stub)")
	f.String("openai-key", "", "API key for the scoring endpoint")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("llm-model", "gpt-4o-mini", "Model used for scoring")
	f.Float64("low-quality-threshold", scoring.DefaultLowQualityThreshold, "Score below which answers are flagged low quality")
	f.Duration("scoring-timeout", scoring.DefaultTimeout, "Time budget for a single scoring call")
	f.Float64("public-rps", 5, "Per-IP request rate on public routes (0 disables limiting)")
	f.Int("public-burst", 10, "Per-IP burst on public routes")
	f.StringP("lang", "l", "en", "Default language for participant-facing strings (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [files...]",
		Short: "Load surveys from YAML seed files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.String("db", "surveybot.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a survey's responses as CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "surveybot.db", "SQLite database path")
	f.Int64("survey-id", 0, "Survey to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("survey-id")

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

	v.SetEnvPrefix("SURVEYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("surveybot")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/surveybot")
	v.AddConfigPath("/etc/surveybot")
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

	adminKey := v.GetString("admin-key")
	if adminKey == "" {
		return fmt.Errorf("admin key is required: set --admin-key or SURVEYBOT_ADMIN_KEY")
	}
	linkSecret := v.GetString("link-secret")
	if linkSecret == "" {
		return fmt.Errorf("link secret is required: set --link-secret or SURVEYBOT_LINK_SECRET")
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	scorer, scorerName, err := buildScorer(v)
	if err != nil {
		return err
	}

	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin key: %w", err)
	}

	svc := scoring.NewService(db, refs.New(), scorer, v.GetDuration("scoring-timeout"))

	h, err := handler.New(db, svc, token.NewSigner(linkSecret), handler.Config{
		AdminKeyHash: adminHash,
		PublicRPS:    v.GetFloat64("public-rps"),
		PublicBurst:  v.GetInt("public-burst"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if origins := v.GetStringSlice("origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", "X-Admin-Key"},
			ExposedHeaders: []string{"Content-Disposition"},
			MaxAge:         300,
		}))
	}
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"scorer", scorerName,
		"lang", lang,
		"public_rps", v.GetFloat64("public-rps"),
	)
	return http.ListenAndServe(addr, r)
}

// buildScorer picks the scorer variant. "auto" uses the model endpoint when
// an API key is configured and the length heuristic otherwise.
func buildScorer(v *viper.Viper) (scoring.Scorer, string, error) {
	threshold := v.GetFloat64("low-quality-threshold")
	variant := strings.ToLower(strings.TrimSpace(v.GetString("scorer")))
	apiKey := v.GetString("openai-key")

	if variant == "" || variant == "auto" {
		if apiKey != "" {
			variant = "openai"
		} else {
			variant = "heuristic"
		}
	}

	switch variant {
	case "openai":
		if apiKey == "" {
			return nil, "", fmt.Errorf("openai scorer needs an API key: set --openai-key or SURVEYBOT_OPENAI_KEY")
		}
		s := scoring.NewOpenAIScorer(v.GetString("llm-url"), apiKey, v.GetString("llm-model"), threshold)
		if err := s.Ping(context.Background()); err != nil {
			return nil, "", fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		return s, variant, nil
	case "heuristic":
		slog.Info("scoring with the length heuristic, answers are not sent to a model")
		return scoring.NewHeuristicScorer(threshold), variant, nil
	case "stub":
		return scoring.NewStubScorer(threshold), variant, nil
	default:
		return nil, "", fmt.Errorf("unknown scorer %q (want auto, openai, heuristic or stub)", variant)
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	for _, path := range args {
		if err := seedFile(db, path); err != nil {
			return err
		}
	}
	return nil
}

func seedFile(db *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("seed file unchanged, skipping", "path", path)
		return nil
	}
	if storedHash != "" {
		slog.Warn("seed file changed since last import, skipping to avoid duplicate surveys", "path", path)
		return nil
	}

	surveys, err := fixture.Parse(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, sv := range surveys {
		id, err := db.CreateSurvey(sv.Title, sv.Description, sv.Questions)
		if err != nil {
			return fmt.Errorf("create survey %q from %s: %w", sv.Title, path, err)
		}
		slog.Info("seeded survey", "id", id, "title", sv.Title, "questions", len(sv.Questions))
	}

	if err := db.SetImportedFileHash(path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	surveyID := v.GetInt64("survey-id")
	if _, err := db.GetSurvey(surveyID); err == sql.ErrNoRows {
		return fmt.Errorf("survey %d not found", surveyID)
	} else if err != nil {
		return fmt.Errorf("load survey: %w", err)
	}

	rows, err := db.ResponseRows(surveyID)
	if err != nil {
		return fmt.Errorf("load responses: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer = os.Stdout
	if outPath != "" && outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := store.WriteResponsesCSV(w, rows); err != nil {
		return fmt.Errorf("write CSV: %w", err)
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
