package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/outreach"
)

type outreachFlags struct {
	limit  int
	delay  time.Duration
	dryRun bool
	yes    bool
}

func newOutreachCmd(cfg *Config) *cobra.Command {
	var flags outreachFlags
	cmd := &cobra.Command{
		Use:   "outreach",
		Short: "Send the flow greeting to pending contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOutreach(cmd.Context(), *cfg, flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.limit, "limit", 0, "maximum contacts to greet (0 = all pending)")
	f.DurationVar(&flags.delay, "delay", outreach.DefaultInterval, "pause between messages")
	f.BoolVar(&flags.dryRun, "dry-run", false, "print greetings without sending")
	f.BoolVarP(&flags.yes, "yes", "y", false, "skip the confirmation prompt")
	f.StringVar(&cfg.QRPath, "qr-output", cfg.QRPath, "path to write the whatsmeow login QR code")
	f.BoolVar(&cfg.NumericCode, "numeric-code", cfg.NumericCode, "use a numeric pairing code instead of a QR code")
	return cmd
}

func runOutreach(ctx context.Context, cfg Config, flags outreachFlags, in io.Reader, out io.Writer) error {
	if err := ensureStateDir(&cfg); err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pending, err := a.contacts.Pending(ctx, flags.limit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending contacts")
		return nil
	}

	mode := "send"
	if flags.dryRun {
		mode = "DRY RUN"
	}
	fmt.Fprintf(out, "Outreach (%s): %d contacts, product %s, %v between messages\n", mode, len(pending), cfg.ProductKey, flags.delay)
	if !flags.yes && !confirm(in, out) {
		fmt.Fprintln(out, "Outreach cancelled")
		return nil
	}

	lock, err := lockfile.Acquire(cfg.StateDir, lockfile.RoleOutreach)
	if err != nil {
		return err
	}
	defer lock.Release()

	var sender outreach.Sender = dryRunSender{}
	if !flags.dryRun {
		svc, disconnect, err := a.newService(ctx)
		if err != nil {
			return err
		}
		defer disconnect()
		sender = svc
	}

	campaign := outreach.NewCampaign(a.engine, a.contacts, sender, outreach.WithObserver(a.metrics))
	report, runErr := campaign.Run(ctx, outreach.Options{
		Limit:    flags.limit,
		Interval: flags.delay,
		DryRun:   flags.dryRun,
	})
	printReport(out, report)

	if stats, err := a.contacts.Stats(ctx); err == nil {
		fmt.Fprintf(out, "Contacts: total=%d pending=%d contacted=%d replied=%d qualified=%d disqualified=%d\n",
			stats.Total, stats.Pending, stats.Contacted, stats.Replied, stats.Qualified, stats.Disqualified)
	}
	return runErr
}

// confirm asks for an explicit "yes".
func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Type 'yes' to continue: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes")
}

func printReport(w io.Writer, r outreach.Report) {
	fmt.Fprintf(w, "Campaign %s finished in %v\n", r.ID, r.Finished.Sub(r.Started).Round(time.Millisecond))
	fmt.Fprintf(w, "  total: %d  sent: %d  skipped: %d  failed: %d  success: %.1f%%\n", r.Total, r.Sent, r.Skipped, r.Failed, r.SuccessRate())
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

// dryRunSender is never called; Campaign does not send in dry-run mode.
type dryRunSender struct{}

func (dryRunSender) SendMessage(context.Context, string, string) error {
	return fmt.Errorf("dry run does not send messages")
}
