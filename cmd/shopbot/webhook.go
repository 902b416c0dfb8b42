package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}

	var dropPending bool
	set := &cobra.Command{
		Use:   "set [public-base-url]",
		Short: "Register the webhook with Telegram (default: telegram.publicUrl / WEBHOOK_URL)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Telegram.Token == "" {
				return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
			}
			base := cfg.Telegram.PublicURL
			if len(args) == 1 {
				base = args[0]
			}
			if base == "" {
				return fmt.Errorf("no public URL: pass one or set WEBHOOK_URL")
			}
			url := strings.TrimRight(base, "/") + cfg.Server.Path
			if err := newTelegram(cfg, logger).SetWebhook(url, cfg.Telegram.WebhookSecret, dropPending); err != nil {
				return err
			}
			logger.Info("webhook registered", "url", url, "secret", cfg.Telegram.WebhookSecret != "")
			return nil
		},
	}
	set.Flags().BoolVar(&dropPending, "drop-pending", false, "drop updates queued while no webhook was set")

	info := &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			wi, err := newTelegram(cfg, logger).WebhookInfo()
			if err != nil {
				return err
			}
			out := map[string]any{
				"url":                wi.URL,
				"pendingUpdateCount": wi.PendingUpdateCount,
				"maxConnections":     wi.MaxConnections,
			}
			if wi.LastErrorDate != 0 {
				out["lastErrorDate"] = time.Unix(int64(wi.LastErrorDate), 0).UTC().Format(time.RFC3339)
				out["lastErrorMessage"] = wi.LastErrorMessage
			}
			return printJSON(out)
		},
	}

	var deleteDrop bool
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := newTelegram(cfg, logger).DeleteWebhook(deleteDrop); err != nil {
				return err
			}
			logger.Info("webhook deleted")
			return nil
		},
	}
	del.Flags().BoolVar(&deleteDrop, "drop-pending", false, "drop queued updates")

	cmd.AddCommand(set, info, del)
	return cmd
}
