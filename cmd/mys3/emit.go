package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridha-boughediri/mys3/pkg/config"
	"github.com/ridha-boughediri/mys3/pkg/model"
)

// newEmitCmd publishes a synthetic completion event on the Redis events
// channel, so every running instance shows the matching notice.
func newEmitCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		verb   string
		path   string
		status int
	)

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publish a synthetic request-finished event to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			client, err := newRedisClient(cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			evt := model.NewCompletionEvent(model.RequestConfig{Verb: verb, Path: path, Status: status})
			evt.Origin = "cli"
			payload, err := evt.Encode()
			if err != nil {
				return err
			}
			receivers, err := client.Publish(ctx, cfg.Redis.EventsChannel, payload).Result()
			if err != nil {
				return fmt.Errorf("publish event: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %s delivered to %d subscriber(s)\n", evt.ID, receivers)
			return nil
		},
	}

	cmd.Flags().StringVar(&verb, "verb", "POST", "HTTP verb of the finished request")
	cmd.Flags().StringVar(&path, "path", "/bucket", "request path")
	cmd.Flags().IntVar(&status, "status", 200, "response status")
	return cmd
}
