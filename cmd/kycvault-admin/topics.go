package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Create the audit event topics on the configured Kafka cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := app.EnsureTopics(cmd.Context()); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "audit topics ready under prefix %s\n", cfg.Kafka.TopicPrefix)
		return err
	},
}
