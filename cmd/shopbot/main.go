package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"shopbot/internal/channel"
	"shopbot/internal/config"
	"shopbot/internal/metrics"
)

const defaultConfigFile = "shopbot.yaml"

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	envFile    string
)

func main() {
	logger = newLogger(os.Stderr, "info", "text")

	root := &cobra.Command{
		Use:   "shopbot",
		Short: "shopbot: Telegram shopping assistant for Jumia",
		Long: `shopbot answers Telegram messages about shopping on Jumia. Messages are
classified locally, enriched with scraped product data, and answered through
an OpenAI-compatible completion API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default: ./shopbot.yaml if present)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(serveCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(enrichCmd())
	root.AddCommand(webhookCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
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
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// resolveConfigPath returns the --config flag, or ./shopbot.yaml when it
// exists, or "" for defaults plus environment.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

// loadConfig loads the config and swaps the global logger for one at the
// configured level and format.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(os.Stderr, cfg.General.LogLevel, cfg.General.LogFormat)
	slog.SetDefault(logger)
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram webhook server",
		Long:  "Serves the webhook, /healthz and /metrics until interrupted. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireSecrets(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.provider.Healthy(ctx); err != nil {
		logger.Warn("completion api unhealthy at startup", "api_base", cfg.Completion.APIBase, "err", err)
	} else {
		logger.Info("completion api healthy", "model", cfg.Completion.Model)
	}

	webhook := channel.NewWebhook(channel.WebhookConfig{
		Secret:  cfg.Telegram.WebhookSecret,
		Handler: a.pipeline,
		Dedup:   a.dedup,
		Typing:  a.telegram,
		Metrics: a.metrics,
		Logger:  logger,
	})
	if cfg.Telegram.WebhookSecret == "" {
		logger.Warn("webhook secret not set, accepting unauthenticated updates")
	}

	srvCfg := channel.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		WebhookPath:    cfg.Server.Path,
		Webhook:        webhook,
		HandlerTimeout: cfg.HandlerTimeout(),
		Logger:         logger,
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsPath = cfg.Metrics.Path
		srvCfg.Metrics = metrics.Handler(a.registry)
	}

	logger.Info("shopbot starting",
		"version", version,
		"path", cfg.Server.Path,
		"fetch_mode", cfg.Enricher.FetchMode,
		"dedup", cfg.Dedup.Backend,
		"rules", cfg.Rules.Version,
	)
	return channel.NewServer(srvCfg).Run(ctx)
}

func requireSecrets(cfg *config.Config) error {
	var missing []string
	if cfg.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.Completion.APIKey == "" {
		missing = append(missing, "COMPLETION_API_KEY (or FIREWORKS_API_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify a message and print the verdict as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(newClassifier(cfg).Classify(strings.Join(args, " ")))
		},
	}
}

func enrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich [text]",
		Short: "Classify and enrich a message, printing the gathered context as JSON",
		Long:  "Runs the same scraping and search the bot would run, without calling the completion API.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enr, err := newEnricher(cfg, nil, logger)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			cls := newClassifier(cfg).Classify(text)
			return printJSON(map[string]any{
				"classification": cls,
				"enrichment":     enr.Enrich(cmd.Context(), text, cls),
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shopbot %s (rules %s)\n", version, config.RulesVersion)
		},
	}
}
