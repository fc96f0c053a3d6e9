package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Manage per-owner upload limits",
}

var ratelimitStatusCmd = &cobra.Command{
	Use:   "status <owner-id>",
	Short: "Show an owner's current upload budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}
		used, limit, err := app.Limiter.Usage(cmd.Context(), owner)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "used %d of %d per %s\n", used, limit.Requests, limit.Window)
		return err
	},
}

var ratelimitResetCmd = &cobra.Command{
	Use:   "reset <owner-id>",
	Short: "Clear an owner's upload window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}
		if err := app.Limiter.Reset(cmd.Context(), owner); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset upload limit for %s\n", owner)
		return err
	},
}

func init() {
	ratelimitCmd.AddCommand(ratelimitStatusCmd, ratelimitResetCmd)
}
