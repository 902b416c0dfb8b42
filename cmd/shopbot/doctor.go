package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"shopbot/internal/config"
	"shopbot/internal/dedup"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the shopbot setup",
		Long: `Verifies the configuration, the Telegram token, the completion API and
the dedup backend. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("shopbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config loads and validates
			cfg, err := loadConfig()
			if err != nil {
				printFail("Config", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return err
			}
			src := resolveConfigPath()
			if src == "" {
				src = "defaults + environment"
			}
			printPass("Config", src)
			passed++

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			// 2. Telegram token
			if cfg.Telegram.Token == "" {
				printFail("Telegram", "TELEGRAM_BOT_TOKEN not set")
				failed++
			} else if me, err := newTelegram(cfg, logger).Me(); err != nil {
				printFail("Telegram", err.Error())
				failed++
			} else {
				printPass("Telegram", "@"+me.UserName)
				passed++
			}

			// 3. Webhook secret
			if cfg.Telegram.WebhookSecret == "" {
				printWarn("Webhook secret", "not set; updates are not authenticated")
				warned++
			} else {
				printPass("Webhook secret", "configured")
				passed++
			}

			// 4. Completion API
			if cfg.Completion.APIKey == "" {
				printFail("Completion API", "COMPLETION_API_KEY not set")
				failed++
			} else if err := newProvider(cfg, logger).Healthy(ctx); err != nil {
				printFail("Completion API", err.Error())
				failed++
			} else {
				printPass("Completion API", cfg.Completion.APIBase)
				passed++
			}

			// 5. Dedup backend
			if err := checkDedup(ctx, cfg); err != nil {
				printFail("Dedup", err.Error())
				failed++
			} else {
				printPass("Dedup", cfg.Dedup.Backend)
				passed++
			}

			// 6. Listen port
			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				printWarn("Port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func checkDedup(ctx context.Context, cfg *config.Config) error {
	store, err := dedup.New(cfg.Dedup, logger)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	defer store.Close()
	return store.Ping(ctx)
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
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
