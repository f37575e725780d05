package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/mqueue"
	pushqueue "github.com/oriys/actorforge/internal/queue"
)

func enqueueCmd() *cobra.Command {
	var actorType, actorID, messageType, payloadJSON, queueName string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a message for an actor",
		Long:  "Enqueues an execute/activity_completed/activity_failed/event message onto an actor's queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorType == "" || actorID == "" {
				return fmt.Errorf("--type and --id are required")
			}

			var payload map[string]interface{}
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return fmt.Errorf("parse --payload: %w", err)
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			queue := buildQueue(cfg.Adapters.Queue)
			notifier := buildNotifier(cfg.Adapters.Queue)
			defer notifier.Close()
			if queueName == "" {
				queueName = "actor:" + actorType
			}

			msg := domain.Message{
				MessageID:   uuid.NewString(),
				ActorID:     actorID,
				ActorType:   actorType,
				MessageType: domain.MessageType(messageType),
				Payload:     payload,
			}

			ctx := context.Background()
			if err := queue.Enqueue(ctx, queueName, msg, mqueue.EnqueueOptions{}); err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			if err := notifier.Notify(ctx, pushqueue.QueueMailbox); err != nil {
				fmt.Printf("warning: notify failed: %v\n", err)
			}
			fmt.Printf("enqueued %s to %s (message_id=%s)\n", msg.MessageType, queueName, msg.MessageID)
			return nil
		},
	}

	cmd.Flags().StringVar(&actorType, "type", "", "Actor type (e.g. counter)")
	cmd.Flags().StringVar(&actorID, "id", "", "Actor ID")
	cmd.Flags().StringVar(&messageType, "message-type", string(domain.MessageExecute), "Message type: execute, event, activity_completed, activity_failed")
	cmd.Flags().StringVar(&payloadJSON, "payload", "{}", "JSON-encoded message payload")
	cmd.Flags().StringVar(&queueName, "queue", "", "Queue name override (defaults to actor:<type>)")

	return cmd
}
