package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/LeadPipe/internal/flow"
)

func newValidateCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [flow-file]",
		Short: "Load and validate a flow document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.FlowPath()
			if len(args) == 1 {
				path = args[0]
			}
			doc, err := flow.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d states, max retries %d)\n", path, len(doc.States), doc.MaxRetries)
			return nil
		},
	}
}
