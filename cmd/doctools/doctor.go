package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-document-tools/internal/config"
	"github.com/example/go-document-tools/internal/doctor"
	"github.com/example/go-document-tools/internal/hub"
	"github.com/example/go-document-tools/internal/processor"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor [model]",
		Short: "Check that processor assets are present, intact and loadable",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			checks, err := doctorChecks(cfg, args)
			if err != nil {
				return err
			}

			result := doctor.Run(checks, cmd.OutOrStdout())
			if result.Failed() {
				return fmt.Errorf("doctor: %d check(s) failed", len(result.Failures()))
			}

			return nil
		},
	}
}

func doctorChecks(cfg config.Config, args []string) ([]doctor.Check, error) {
	model, kind, err := resolveProcessor(cfg, args)
	if err != nil {
		return nil, err
	}

	dir := hub.RepoDir(cfg.Paths.AssetsDir, model)

	paths := make([]string, 0, len(kind.AssetFiles()))
	for _, name := range kind.AssetFiles() {
		paths = append(paths, filepath.Join(dir, name))
	}

	lock := doctor.Check{
		Name: "lock checksums",
		Run: func() (string, error) {
			n, err := hub.Verify(cfg.Paths.AssetsDir, model)
			if err != nil {
				return "", err
			}

			return fmt.Sprintf("%d file(s) verified", n), nil
		},
	}
	if _, err := os.Stat(filepath.Join(dir, hub.LockFile)); errors.Is(err, os.ErrNotExist) {
		lock.Skip = "no lock file"
	}

	load := doctor.Check{
		Name: kind.String() + " tokenizer",
		Run: func() (string, error) {
			p, err := processor.New(kind, processor.Options{AssetsDir: cfg.Paths.AssetsDir, Model: model})
			if err != nil {
				return "", err
			}

			if _, err := p.Tokenizer(); err != nil {
				return "", err
			}

			return model, nil
		},
	}

	return []doctor.Check{
		doctor.FilesExist("asset files", paths...),
		lock,
		load,
	}, nil
}
