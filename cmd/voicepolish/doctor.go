package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"voicepolish/internal/config"
	"voicepolish/internal/provider"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks",
		Long: `Verifies that credentials are present, the keep-alive port is free,
the temp directory is writable and the inference API answers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("voicepolish doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			cfgPath := resolveConfigPath()
			if cfgPath == "" {
				printWarn("Config file", "none, using defaults and environment")
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			cfg, err := config.Load(cfgPath)
			switch {
			case err == nil:
				printPass("Credentials", "telegram token and API key set")
				passed++
			case errors.Is(err, config.ErrMissingCredentials):
				printFail("Credentials", "set "+config.EnvTelegramToken+" and "+config.EnvAPIKey)
				failed++
			default:
				printFail("Config validation", err.Error())
				failed++
			}
			if cfg == nil {
				// Keep checking the rest with what we can resolve.
				cfg = config.Defaults()
				if err := config.ApplyEnv(cfg); err != nil {
					printFail("Environment", err.Error())
					failed++
				}
			}

			if cfg.KeepAlive.Enabled {
				if err := checkPort(cfg.KeepAlive.Host, cfg.KeepAlive.Port); err != nil {
					printWarn("Keep-alive port", fmt.Sprintf("port %d may be in use: %v", cfg.KeepAlive.Port, err))
					warned++
				} else {
					printPass("Keep-alive port", fmt.Sprintf(":%d available", cfg.KeepAlive.Port))
					passed++
				}
			}

			tempDir := cfg.General.TempDir
			if tempDir == "" {
				tempDir = os.TempDir()
			}
			if err := checkWritable(tempDir); err != nil {
				printFail("Temp dir", err.Error())
				failed++
			} else {
				printPass("Temp dir", tempDir)
				passed++
			}

			if cfg.Inference.APIKey == "" {
				printWarn("Inference API", "skipped, no API key")
				warned++
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				client := provider.NewClient(provider.ClientConfig{
					APIBase:    cfg.Inference.APIBase,
					APIKey:     cfg.Inference.APIKey,
					HTTPClient: provider.SharedHTTPClient(15 * time.Second),
				})
				err := provider.Healthy(ctx, client)
				cancel()
				if err != nil {
					printFail("Inference API", err.Error())
					failed++
				} else {
					printPass("Inference API", cfg.Inference.APIBase)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before starting the bot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Printf("\nAll checks passed.\n")
			return nil
		},
	}
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "voicepolish-doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
