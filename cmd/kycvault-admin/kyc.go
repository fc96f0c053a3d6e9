package main

import (
	"github.com/spf13/cobra"

	"kycvault/internal/kyc/models"
)

var (
	kycRole   string
	kycNotes  string
	kycReason string
)

var kycCmd = &cobra.Command{
	Use:   "kyc",
	Short: "Review KYC submissions",
}

var kycStatusCmd = &cobra.Command{
	Use:   "status <owner-id>",
	Short: "Show the derived KYC status of an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}
		st, err := app.KYC.GetStatus(cmd.Context(), owner, models.Role(kycRole))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var kycSubmitCmd = &cobra.Command{
	Use:   "submit <owner-id>",
	Short: "Submit an owner's documents for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}
		st, err := app.KYC.Submit(cmd.Context(), owner, models.Role(kycRole), actorFlag)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var kycApproveCmd = &cobra.Command{
	Use:   "approve <owner-id>",
	Short: "Approve every document under review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}
		st, err := app.KYC.Approve(cmd.Context(), owner, models.Role(kycRole), actorFlag, kycNotes)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var kycRejectCmd = &cobra.Command{
	Use:   "reject <owner-id>",
	Short: "Reject every document under review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}
		st, err := app.KYC.Reject(cmd.Context(), owner, models.Role(kycRole), actorFlag, kycReason)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var kycPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List owners waiting for review",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		role := models.Role(kycRole)
		if !cmd.Flags().Changed("role") {
			role = ""
		}
		pending, err := app.KYC.ListPendingReviews(cmd.Context(), role)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), pending)
	},
}

func init() {
	kycCmd.PersistentFlags().StringVar(&kycRole, "role", string(models.RoleIndividual), "Requirement set to evaluate")
	kycApproveCmd.Flags().StringVar(&kycNotes, "notes", "", "Reviewer notes")
	kycRejectCmd.Flags().StringVar(&kycReason, "reason", "", "Rejection reason (required)")
	_ = kycRejectCmd.MarkFlagRequired("reason")

	kycCmd.AddCommand(kycStatusCmd, kycSubmitCmd, kycApproveCmd, kycRejectCmd, kycPendingCmd)
}
