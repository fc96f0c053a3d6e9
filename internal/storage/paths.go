package storage

import (
	"path"
	"strings"
	"time"

	"kycvault/pkg/domain"
)

const (
	documentsRoot = "documents"
	backupsRoot   = "backups"
)

// Metadata identifies the object being written and drives its path.
type Metadata struct {
	DocumentID  domain.DocumentID
	OwnerID     domain.OwnerID
	CategoryID  domain.CategoryID
	Extension   string
	ContentType string
	CreatedAt   time.Time
}

// ObjectPath is documents/YYYY/MM/DD/<category>/<owner>/<documentId><ext>.
func ObjectPath(meta Metadata) string { return buildPath(documentsRoot, meta) }

// BackupPath mirrors ObjectPath under backups/.
func BackupPath(meta Metadata) string { return buildPath(backupsRoot, meta) }

func buildPath(root string, meta Metadata) string {
	t := meta.CreatedAt.UTC()
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return path.Join(
		root,
		t.Format("2006"), t.Format("01"), t.Format("02"),
		string(meta.CategoryID),
		meta.OwnerID.String(),
		meta.DocumentID.String()+normalizeExt(meta.Extension),
	)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	// Extensions come from user filenames; keep them to a safe alphabet.
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
