package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycvault/internal/document/models"
	"kycvault/internal/document/store"
	"kycvault/internal/scan"
	"kycvault/pkg/domain"
	"kycvault/pkg/platform/sentinel"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

var columns = []string{
	"id", "owner_id", "category_id", "original_filename", "declared_mime", "detected_mime",
	"size_bytes", "content_hash", "storage_path", "backup_path", "key_id", "validation_score", "scan_id",
	"scan_verdict", "scan_assumed_clean", "threat_names", "status", "extracted_data", "reviewed_by",
	"review_notes", "created_at", "updated_at", "archived_at",
}

func sampleDocument() *models.Document {
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return &models.Document{
		ID:               domain.NewDocumentID(),
		OwnerID:          domain.NewOwnerID(),
		CategoryID:       "national_id",
		OriginalFilename: "id.pdf",
		DeclaredMIME:     "application/pdf",
		DetectedMIME:     "application/pdf",
		Size:             2 << 20,
		ContentHash:      "ab12",
		StoragePath:      "documents/2026/03/04/national_id/o/d.pdf",
		KeyID:            "key-1",
		ValidationScore:  100,
		ScanID:           domain.NewScanID(),
		ScanVerdict:      scan.VerdictClean,
		Status:           models.StatusPending,
		ExtractedData:    map[string]string{"national_id_number": "1234567890"},
		CreatedAt:        at,
		UpdatedAt:        at,
	}
}

func rowFor(d *models.Document) []driver.Value {
	return []driver.Value{
		d.ID.String(), d.OwnerID.String(), string(d.CategoryID), d.OriginalFilename, d.DeclaredMIME, d.DetectedMIME,
		d.Size, d.ContentHash, d.StoragePath, d.BackupPath, d.KeyID, d.ValidationScore, d.ScanID.String(),
		string(d.ScanVerdict), d.ScanAssumedClean, "{}", string(d.Status), []byte(`{"national_id_number":"1234567890"}`),
		d.ReviewedBy, d.ReviewNotes, d.CreatedAt, d.UpdatedAt, nil,
	}
}

func TestCreate(t *testing.T) {
	t.Run("inserts every column", func(t *testing.T) {
		s, mock := newMockStore(t)
		d := sampleDocument()

		mock.ExpectExec("INSERT INTO documents").
			WithArgs(d.ID.String(), d.OwnerID.String(), "national_id", "id.pdf", "application/pdf", "application/pdf",
				d.Size, "ab12", d.StoragePath, "", "key-1", 100.0, d.ScanID.String(), "clean", false,
				sqlmock.AnyArg(), "pending", []byte(`{"national_id_number":"1234567890"}`), "", "",
				d.CreatedAt, d.UpdatedAt, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Create(context.Background(), d))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation becomes conflict", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO documents").
			WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "documents_one_active_per_category"})

		err := s.Create(context.Background(), sampleDocument())
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})
}

func TestUpdate(t *testing.T) {
	t.Run("missing row is not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.Update(context.Background(), sampleDocument())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("writes archival timestamp", func(t *testing.T) {
		s, mock := newMockStore(t)
		d := sampleDocument()
		d.Archive(d.CreatedAt.Add(time.Hour))
		mock.ExpectExec("UPDATE documents").
			WithArgs(d.ID.String(), "archived", "", "", d.UpdatedAt, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Update(context.Background(), d))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindByID(t *testing.T) {
	t.Run("loads document and audit log", func(t *testing.T) {
		s, mock := newMockStore(t)
		d := sampleDocument()
		mock.ExpectQuery("SELECT .* FROM documents WHERE id = \\$1").
			WithArgs(d.ID.String()).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(rowFor(d)...))
		mock.ExpectQuery("FROM document_audit_entries").
			WithArgs(d.ID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "event", "actor", "payload", "created_at"}).
				AddRow(int64(7), d.ID.String(), models.EntryUploaded, "owner", []byte(`{"score":100}`), d.CreatedAt))

		got, err := s.FindByID(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)
		assert.Equal(t, d.ScanID, got.ScanID)
		assert.Equal(t, "1234567890", got.ExtractedData["national_id_number"])
		assert.Nil(t, got.ArchivedAt)
		require.Len(t, got.AuditLog, 1)
		assert.Equal(t, int64(7), got.AuditLog[0].ID)
		assert.EqualValues(t, 100, got.AuditLog[0].Payload["score"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows is not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT .* FROM documents").WillReturnRows(sqlmock.NewRows(columns))

		_, err := s.FindByID(context.Background(), domain.NewDocumentID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestList(t *testing.T) {
	t.Run("builds filter in order", func(t *testing.T) {
		s, mock := newMockStore(t)
		owner := domain.NewOwnerID()
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE owner_id = $1 AND category_id = $2 AND status <> 'archived' ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`)).
			WithArgs(owner.String(), "selfie", 10, 20).
			WillReturnRows(sqlmock.NewRows(columns))

		docs, err := s.List(context.Background(), models.ListFilter{OwnerID: owner, CategoryID: "selfie", Limit: 10, Offset: 20})
		require.NoError(t, err)
		assert.Empty(t, docs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("explicit status", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE status = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`)).
			WithArgs("archived", models.DefaultListLimit, 0).
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := s.List(context.Background(), models.ListFilter{Status: models.StatusArchived})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRunInTx(t *testing.T) {
	t.Run("locks owner and commits", func(t *testing.T) {
		s, mock := newMockStore(t)
		owner := domain.NewOwnerID()
		d := sampleDocument()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
			WithArgs(LockKey(owner)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.RunInTx(context.Background(), owner, func(ctx context.Context, st store.Store) error {
			return st.Create(ctx, d)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		s, mock := newMockStore(t)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := s.RunInTx(context.Background(), domain.NewOwnerID(), func(context.Context, store.Store) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock key is stable per owner", func(t *testing.T) {
		owner := domain.NewOwnerID()
		assert.Equal(t, LockKey(owner), LockKey(owner))
		assert.NotEqual(t, LockKey(owner), LockKey(domain.NewOwnerID()))
	})
}

func TestReadsCarryStoreTimeout(t *testing.T) {
	s, mock := newMockStore(t)
	s.timeout = 20 * time.Millisecond
	mock.ExpectQuery("SELECT .* FROM documents").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows(columns))

	start := time.Now()
	_, err := s.List(context.Background(), models.ListFilter{OwnerID: domain.NewOwnerID()})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
