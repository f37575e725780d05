package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func getCmd() *cobra.Command {
	var actorType, actorID string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print an actor's current persisted state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorType == "" || actorID == "" {
				return fmt.Errorf("--type and --id are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			states, err := buildStateStore(ctx, cfg.Adapters.StateStore)
			if err != nil {
				return err
			}

			record, err := states.Load(ctx, actorType, actorID)
			if err != nil {
				return fmt.Errorf("load %s/%s: %w", actorType, actorID, err)
			}

			out, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&actorType, "type", "", "Actor type")
	cmd.Flags().StringVar(&actorID, "id", "", "Actor ID")

	return cmd
}
