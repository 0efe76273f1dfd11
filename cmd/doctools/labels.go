package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-document-tools/internal/labels"
)

func newLabelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "labels <dataset>",
		Short: "Print the label vocabulary of a dataset's first split",
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

			split, first, ok := src.First()
			if !ok {
				return fmt.Errorf("dataset has no splits")
			}

			col, err := first.Column(cfg.Tokenize.LabelColumn)
			if err != nil {
				return fmt.Errorf("split %q: %w", split, err)
			}

			vocab, err := labels.Resolve(col)
			if err != nil {
				return fmt.Errorf("split %q: %w", split, err)
			}

			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")

				return enc.Encode(struct {
					Split       string   `json:"split"`
					Categorical bool     `json:"categorical"`
					Labels      []string `json:"labels"`
				}{split, vocab.Categorical(), vocab.Names()})
			}

			for i, name := range vocab.Names() {
				_, _ = fmt.Fprintf(out, "%d\t%s\n", i, name)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the vocabulary as JSON")

	return cmd
}
