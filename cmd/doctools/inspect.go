package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <dataset>",
		Short: "Print the splits, row counts and features of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			src, err := loadSource(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			for _, name := range src.Names() {
				ds, _ := src.Get(name)
				_, _ = fmt.Fprintf(out, "%s: %d rows (fingerprint %s)\n", name, ds.Len(), ds.Fingerprint())

				for _, f := range ds.Features() {
					_, _ = fmt.Fprintf(out, "  %s: %s\n", f.Name, f.Type)
				}
			}

			return nil
		},
	}
}
