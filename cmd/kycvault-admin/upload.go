package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	docservice "kycvault/internal/document/service"
	"kycvault/pkg/domain"
)

var uploadMIME string

var uploadCmd = &cobra.Command{
	Use:   "upload <owner-id> <category-id> <file>",
	Short: "Run a local file through the upload pipeline",
	Long: `upload scans, validates, encrypts and stores a file exactly as the
service would for an owner. Useful for back-office ingestion and smoke tests.

Examples:
  kycvault-admin upload 6f1c...e2 national_id ./id.pdf --mime application/pdf`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}
		category, err := domain.ParseCategoryID(args[1])
		if err != nil {
			return err
		}
		content, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		res, err := app.Documents.Upload(cmd.Context(), docservice.UploadRequest{
			OwnerID:      owner,
			CategoryID:   category,
			Filename:     filepath.Base(args[2]),
			DeclaredMIME: uploadMIME,
			DeclaredSize: int64(len(content)),
			Content:      content,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"document_id":      res.Document.ID.String(),
			"status":           res.Document.Status,
			"detected_mime":    res.Document.DetectedMIME,
			"validation_score": res.Validation.Score,
			"scan_verdict":     res.Scan.Verdict,
			"extracted_data":   res.Document.ExtractedData,
			"archived":         res.Archived,
		})
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadMIME, "mime", "", "Declared MIME type")
}
