package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/actorforge/internal/domain"
)

func registerActivityCmd() *cobra.Command {
	var name, version, blobPath string
	var maxMemoryMB, maxExecutionMs int

	cmd := &cobra.Command{
		Use:   "register-activity",
		Short: "Register a versioned activity definition in the activity registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || version == "" || blobPath == "" {
				return fmt.Errorf("--name, --version and --blob are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			registry, err := buildActivityRegistry(ctx, cfg.Adapters.ActivityRegistry)
			if err != nil {
				return err
			}

			def := domain.ActivityDefinition{
				Name:     name,
				Version:  version,
				BlobPath: blobPath,
				Limits: domain.ResourceLimits{
					MaxMemoryMB:    maxMemoryMB,
					MaxExecutionMs: maxExecutionMs,
				},
			}
			if err := registry.Save(ctx, def); err != nil {
				return fmt.Errorf("save activity definition: %w", err)
			}
			fmt.Printf("registered %s@%s -> %s\n", name, version, blobPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Activity name")
	cmd.Flags().StringVar(&version, "version", "", "Activity version")
	cmd.Flags().StringVar(&blobPath, "blob", "", "Blob store path to the compiled WASM module")
	cmd.Flags().IntVar(&maxMemoryMB, "max-memory-mb", 64, "Sandbox memory limit in MB")
	cmd.Flags().IntVar(&maxExecutionMs, "max-execution-ms", 5000, "Sandbox wall-clock execution limit in ms")

	return cmd
}
