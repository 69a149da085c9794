package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voicepolish/internal/channel"
	"voicepolish/internal/config"
	"voicepolish/internal/domain"
	"voicepolish/internal/keepalive"
	"voicepolish/internal/metrics"
	"voicepolish/internal/provider"
	"voicepolish/internal/relay"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// missingTokensText is printed when the bot is started without credentials.
const missingTokensText = "Ошибка: Токены не найдены!"

const (
	shutdownTimeout = 10 * time.Second
	// Must exceed the long-poll timeout.
	telegramHTTPTimeout = 60 * time.Second
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = newLogger("info")

	root := &cobra.Command{
		Use:   "voicepolish",
		Short: "Telegram bot that turns voice messages into clean text",
		Long: `voicepolish transcribes Telegram voice messages with Whisper and
rewrites the transcript into tidy, readable text with an LLM.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv()
		},
		RunE: runBot,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./voicepolish.json if present)")

	root.AddCommand(runCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadDotEnv reads .env from the working directory. Variables already set in
// the environment win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("cannot load .env", "err", err)
	}
}

// configFile is where config files are written: the --config flag or the default.
func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// resolveConfigPath returns the file to load, or "" to run on defaults and
// environment alone.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(config.DefaultConfigPath()); err == nil {
		return config.DefaultConfigPath()
	}
	return ""
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot and the keep-alive server (default)",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			fmt.Fprintln(os.Stderr, missingTokensText)
		}
		return err
	}
	logger = newLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := provider.SharedHTTPClient(time.Duration(cfg.Inference.TimeoutSeconds) * time.Second)
	client := provider.NewClient(provider.ClientConfig{
		APIBase:    cfg.Inference.APIBase,
		APIKey:     cfg.Inference.APIKey,
		HTTPClient: httpClient,
	})
	whisper := provider.NewWhisper(provider.WhisperConfig{
		Client:   client,
		Model:    cfg.Inference.TranscriptionModel,
		Language: cfg.Inference.Language,
		Logger:   logger,
	})
	chat := provider.NewChat(provider.ChatConfig{
		Client:      client,
		Model:       cfg.Inference.ChatModel,
		Temperature: cfg.Inference.Temperature,
		MaxTokens:   cfg.Inference.MaxTokens,
		Logger:      logger,
	})

	tg, err := channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.Telegram.Token,
		AllowFrom:   cfg.Telegram.AllowFrom,
		PollTimeout: cfg.Telegram.PollTimeout,
		HTTPClient:  provider.SharedHTTPClient(telegramHTTPTimeout),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	pipeline := relay.New(relay.Config{
		Messenger:   tg,
		Transcriber: whisper,
		Restyler:    chat,
		TempDir:     cfg.General.TempDir,
		Logger:      logger,
	})

	// Component errors are logged, not propagated: a dead keep-alive server
	// must not take the bot down.
	var g errgroup.Group

	if cfg.KeepAlive.Enabled {
		ka := keepalive.Config{
			Host:   cfg.KeepAlive.Host,
			Port:   cfg.KeepAlive.Port,
			Logger: logger,
		}
		if cfg.Metrics.Enabled {
			ka.Metrics = metrics.Default.Handler()
			ka.MetricsPath = cfg.Metrics.Endpoint
		}
		srv := keepalive.New(ka)
		g.Go(func() error {
			if err := srv.Start(ctx); err != nil {
				logger.Error("keep-alive server error", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		err := tg.Start(ctx, func(ctx context.Context, msg domain.VoiceMessage) {
			pipeline.Handle(ctx, msg)
		})
		if err != nil {
			logger.Error("telegram channel error", "err", err)
		}
		return nil
	})

	logger.Info("bot and web server started", "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long:  "Writes the default configuration without secrets. Set TELEGRAM_TOKEN and GROQ_API_KEY in the environment or in .env.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long:  "Shows configuration after defaults, the config file and environment overrides are applied. Secrets are masked.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. inference.chatModel)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := displayConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := displayConfig()
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			if p := resolveConfigPath(); p != "" {
				fmt.Println(p)
				return
			}
			fmt.Printf("%s (not present, using defaults and environment)\n", config.DefaultConfigPath())
		},
	})

	return cmd
}

// displayConfig loads the effective config with secrets masked. It does not
// validate, so it also works before credentials are set.
func displayConfig() (*config.Config, error) {
	cfg, err := config.LoadUnvalidated(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return config.Sanitize(cfg), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("voicepolish %s\n", version)
		},
	}
}
