package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/outreach"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
)

func newServeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and dialogue engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "HTTP listen address")
	f.StringVar(&cfg.OutreachCron, "outreach-cron", cfg.OutreachCron, "cron expression for scheduled outreach campaigns")
	f.StringVar(&cfg.QRPath, "qr-output", cfg.QRPath, "path to write the whatsmeow login QR code")
	f.BoolVar(&cfg.NumericCode, "numeric-code", cfg.NumericCode, "use a numeric pairing code instead of a QR code")
	f.BoolVar(&cfg.ValidateSignature, "validate-signature", cfg.ValidateSignature, "reject webhook requests without a valid Twilio signature")
	return cmd
}

func runServe(ctx context.Context, cfg Config) error {
	if err := ensureStateDir(&cfg); err != nil {
		return err
	}
	lock, err := lockfile.Acquire(cfg.StateDir, lockfile.RoleServe)
	if err != nil {
		return err
	}
	defer lock.Release()

	cfg.logSummary()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, disconnect, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer disconnect()
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer svc.Stop()

	handler := messaging.NewResponseHandler(a.engine,
		messaging.WithDedup(a.dedup),
		messaging.WithContacts(a.contacts),
		messaging.WithService(svc),
		messaging.WithObserver(a.metrics),
		messaging.WithCountryCode(cfg.CountryCode),
	)
	handler.Start(ctx)

	if cfg.OutreachCron != "" {
		sched := scheduler.NewScheduler()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				slog.Warn("runServe: scheduler stop timed out", "error", err)
			}
		}()

		campaign := outreach.NewCampaign(a.engine, a.contacts, svc, outreach.WithObserver(a.metrics))
		id, err := sched.AddJob("outreach", cfg.OutreachCron, func() {
			runScheduledCampaign(ctx, cfg.StateDir, campaign)
		})
		if err != nil {
			return fmt.Errorf("invalid OUTREACH_CRON: %w", err)
		}
		slog.Info("runServe: outreach scheduled", "cron", cfg.OutreachCron, "next", sched.Next(id))
	}

	apiOpts := []api.Option{
		api.WithAddr(cfg.APIAddr),
		api.WithContacts(a.contacts),
		api.WithMetricsHandler(a.metrics.Handler()),
		api.WithCountryCode(cfg.CountryCode),
	}
	if cfg.ValidateSignature {
		apiOpts = append(apiOpts, api.WithSignatureValidation(cfg.TwilioAuthToken, cfg.PublicWebhookURL))
	}
	return api.NewServer(a.engine, handler, apiOpts...).Run(ctx)
}

// runScheduledCampaign runs one campaign unless a manual outreach run holds
// the outreach lock.
func runScheduledCampaign(ctx context.Context, stateDir string, campaign *outreach.Campaign) {
	lock, err := lockfile.Acquire(stateDir, lockfile.RoleOutreach)
	if err != nil {
		slog.Warn("runScheduledCampaign: skipping run", "error", err)
		return
	}
	defer lock.Release()

	if _, err := campaign.Run(ctx, outreach.Options{Interval: outreach.DefaultInterval}); err != nil {
		slog.Error("runScheduledCampaign: campaign failed", "error", err)
	}
}
