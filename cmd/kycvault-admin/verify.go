package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kycvault/pkg/domain"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <document-id>...",
	Short: "Check stored documents against their recorded content hash",
	Long: `verify decrypts each stored object and compares the plaintext hash with
the hash recorded at upload. The outcome is appended to the document's audit
log. The command exits non-zero if any document fails the check.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		for _, raw := range args {
			id, err := domain.ParseDocumentID(raw)
			if err != nil {
				return err
			}
			ok, err := app.Documents.VerifyIntegrity(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("%s: %w", raw, err)
			}
			status := "ok"
			if !ok {
				status = "MISMATCH"
				failed++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, status)
		}
		if failed > 0 {
			return fmt.Errorf("%d document(s) failed integrity verification", failed)
		}
		return nil
	},
}
