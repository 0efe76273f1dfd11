package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-document-tools/internal/config"
	"github.com/example/go-document-tools/internal/encoder"
	"github.com/example/go-document-tools/internal/hub"
	"github.com/example/go-document-tools/internal/processor"
)

func newProcessorDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download [model]",
		Short: "Download tokenizer assets for a processor into --assets-dir",
		Long: `Download the tokenizer files a processor loads from <assets-dir>/<model>/.

The model defaults to --processor-model, then to the default model of
--target-model. Checksums are pinned in a lock file next to the files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			manifest, err := processorManifest(cfg, args)
			if err != nil {
				return err
			}

			err = hub.Download(cmd.Context(), hub.DownloadOptions{
				Manifest: manifest,
				OutDir:   cfg.Paths.AssetsDir,
				Endpoint: cfg.Hub.Endpoint,
				Token:    cfg.Hub.Token,
				Stdout:   cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("processor download failed: %w", err)
			}

			return nil
		},
	}
}

func processorManifest(cfg config.Config, args []string) (hub.Manifest, error) {
	model, kind, err := resolveProcessor(cfg, args)
	if err != nil {
		return hub.Manifest{}, err
	}

	return hub.ProcessorManifest(model, kind, cfg.Hub.Revision)
}

// resolveProcessor picks the model repo and processor kind from the command
// argument and config.
func resolveProcessor(cfg config.Config, args []string) (string, processor.Kind, error) {
	target := cfg.Tokenize.TargetModel

	model := cfg.Processor.Model
	if len(args) > 0 {
		model = args[0]
	}

	if model == "" {
		if target == "" {
			return "", 0, fmt.Errorf("a model argument, --processor-model or --target-model is required")
		}

		m, err := encoder.DefaultModel(target)
		if err != nil {
			return "", 0, err
		}
		model = m
	}

	kind, ok := hub.KnownKind(model)
	if target != "" {
		k, err := processor.ParseKind(target)
		if err != nil {
			return "", 0, err
		}
		kind, ok = k, true
	}

	if !ok {
		return "", 0, fmt.Errorf("cannot tell the processor of %q; pass --target-model", model)
	}

	return model, kind, nil
}
