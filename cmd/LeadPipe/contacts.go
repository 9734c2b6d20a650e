package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/LeadPipe/internal/contacts"
)

func newImportContactsCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import-contacts <file.csv>",
		Short: "Import contacts from a CSV file (FullName, PhoneNumber[, Status, Product])",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportContacts(cmd.Context(), *cfg, args[0], cmd.OutOrStdout())
		},
	}
}

func runImportContacts(ctx context.Context, cfg Config, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open contacts file: %w", err)
	}
	defer f.Close()

	if err := ensureStateDir(&cfg); err != nil {
		return err
	}
	db, err := openSQLStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	mgr := contacts.NewManager(db, contacts.WithCountryCode(cfg.CountryCode), contacts.WithProduct(cfg.ProductKey))
	report, err := mgr.Import(ctx, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Imported %d contacts, skipped %d\n", report.Imported, report.Skipped)
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  %s\n", e)
	}
	return nil
}
