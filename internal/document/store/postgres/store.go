// Package postgres persists documents and their audit logs in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"kycvault/internal/document/models"
	"kycvault/internal/document/store"
	"kycvault/internal/scan"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/sentinel"
	txcontext "kycvault/pkg/platform/tx"
)

const (
	defaultTimeout  = 5 * time.Second
	uniqueViolation = "23505"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Store)(nil)
)

type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, timeout: defaultTimeout}
}

const documentColumns = `id, owner_id, category_id, original_filename, declared_mime, detected_mime,
	size_bytes, content_hash, storage_path, backup_path, key_id, validation_score, scan_id,
	scan_verdict, scan_assumed_clean, threat_names, status, extracted_data, reviewed_by,
	review_notes, created_at, updated_at, archived_at`

type documentRow struct {
	ID               uuid.UUID      `db:"id"`
	OwnerID          uuid.UUID      `db:"owner_id"`
	CategoryID       string         `db:"category_id"`
	OriginalFilename string         `db:"original_filename"`
	DeclaredMIME     string         `db:"declared_mime"`
	DetectedMIME     string         `db:"detected_mime"`
	Size             int64          `db:"size_bytes"`
	ContentHash      string         `db:"content_hash"`
	StoragePath      string         `db:"storage_path"`
	BackupPath       string         `db:"backup_path"`
	KeyID            string         `db:"key_id"`
	ValidationScore  float64        `db:"validation_score"`
	ScanID           uuid.NullUUID  `db:"scan_id"`
	ScanVerdict      string         `db:"scan_verdict"`
	ScanAssumedClean bool           `db:"scan_assumed_clean"`
	ThreatNames      pq.StringArray `db:"threat_names"`
	Status           string         `db:"status"`
	ExtractedData    []byte         `db:"extracted_data"`
	ReviewedBy       string         `db:"reviewed_by"`
	ReviewNotes      string         `db:"review_notes"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	ArchivedAt       sql.NullTime   `db:"archived_at"`
}

func (r documentRow) toModel() (*models.Document, error) {
	d := &models.Document{
		ID:               domain.DocumentID(r.ID),
		OwnerID:          domain.OwnerID(r.OwnerID),
		CategoryID:       domain.CategoryID(r.CategoryID),
		OriginalFilename: r.OriginalFilename,
		DeclaredMIME:     r.DeclaredMIME,
		DetectedMIME:     r.DetectedMIME,
		Size:             r.Size,
		ContentHash:      r.ContentHash,
		StoragePath:      r.StoragePath,
		BackupPath:       r.BackupPath,
		KeyID:            r.KeyID,
		ValidationScore:  r.ValidationScore,
		ScanVerdict:      scan.Verdict(r.ScanVerdict),
		ScanAssumedClean: r.ScanAssumedClean,
		ThreatNames:      []string(r.ThreatNames),
		Status:           models.Status(r.Status),
		ReviewedBy:       r.ReviewedBy,
		ReviewNotes:      r.ReviewNotes,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ScanID.Valid {
		d.ScanID = domain.ScanID(r.ScanID.UUID)
	}
	if r.ArchivedAt.Valid {
		at := r.ArchivedAt.Time
		d.ArchivedAt = &at
	}
	if len(r.ExtractedData) > 0 {
		if err := json.Unmarshal(r.ExtractedData, &d.ExtractedData); err != nil {
			return nil, fmt.Errorf("decode extracted data for %s: %w", d.ID, err)
		}
	}
	return d, nil
}

const insertDocument = `INSERT INTO documents (` + documentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

func (s *Store) Create(ctx context.Context, doc *models.Document) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	extracted, err := encodeJSON(doc.ExtractedData)
	if err != nil {
		return err
	}
	var scanID any
	if !doc.ScanID.IsNil() {
		scanID = doc.ScanID.String()
	}
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, insertDocument,
		doc.ID.String(), doc.OwnerID.String(), doc.CategoryID.String(), doc.OriginalFilename,
		doc.DeclaredMIME, doc.DetectedMIME, doc.Size, doc.ContentHash, doc.StoragePath,
		doc.BackupPath, doc.KeyID, doc.ValidationScore, scanID, string(doc.ScanVerdict),
		doc.ScanAssumedClean, pq.Array(nonNil(doc.ThreatNames)), string(doc.Status), extracted,
		doc.ReviewedBy, doc.ReviewNotes, doc.CreatedAt, doc.UpdatedAt, nullTime(doc.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", translate(err))
	}
	return nil
}

const updateDocument = `
	UPDATE documents
	SET status = $2, reviewed_by = $3, review_notes = $4, updated_at = $5, archived_at = $6
	WHERE id = $1`

// Update writes the mutable review and lifecycle fields. Everything else on
// a document is fixed at upload.
func (s *Store) Update(ctx context.Context, doc *models.Document) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, updateDocument,
		doc.ID.String(), string(doc.Status), doc.ReviewedBy, doc.ReviewNotes, doc.UpdatedAt, nullTime(doc.ArchivedAt))
	if err != nil {
		return fmt.Errorf("update document: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id domain.DocumentID) (*models.Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	doc, err := s.getOne(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id.String())
	if err != nil {
		return nil, err
	}
	doc.AuditLog, err = s.ListAudit(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) FindActive(ctx context.Context, ownerID domain.OwnerID, categoryID domain.CategoryID) (*models.Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.getOne(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE owner_id = $1 AND category_id = $2 AND status <> 'archived'`,
		ownerID.String(), categoryID.String())
}

func (s *Store) ListActiveByOwner(ctx context.Context, ownerID domain.OwnerID) ([]*models.Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.getMany(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE owner_id = $1 AND status <> 'archived' ORDER BY created_at DESC`, ownerID.String())
}

func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	filter = filter.Normalize()
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filter.OwnerID.IsNil() {
		add("owner_id = $%d", filter.OwnerID.String())
	}
	if filter.CategoryID != "" {
		add("category_id = $%d", filter.CategoryID.String())
	}
	switch {
	case filter.Status != "":
		add("status = $%d", string(filter.Status))
	case !filter.IncludeArchived:
		where = append(where, "status <> 'archived'")
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return s.getMany(ctx, query, args...)
}

func (s *Store) ListOwnersWithStatus(ctx context.Context, status models.Status) ([]domain.OwnerID, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var ids []uuid.UUID
	err := sqlx.SelectContext(ctx, txcontext.Executor(ctx, s.db), &ids,
		`SELECT DISTINCT owner_id FROM documents WHERE status = $1 ORDER BY owner_id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("select owners: %w", err)
	}
	out := make([]domain.OwnerID, len(ids))
	for i, id := range ids {
		out[i] = domain.OwnerID(id)
	}
	return out, nil
}

const insertAudit = `
	INSERT INTO document_audit_entries (document_id, event, actor, payload, created_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`

func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	payload, err := encodeJSON(entry.Payload)
	if err != nil {
		return err
	}
	row := txcontext.Executor(ctx, s.db).QueryRowxContext(ctx, insertAudit,
		entry.DocumentID.String(), entry.Event, entry.Actor, payload, entry.CreatedAt)
	if err := row.Scan(&entry.ID); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type auditRow struct {
	ID         int64     `db:"id"`
	DocumentID uuid.UUID `db:"document_id"`
	Event      string    `db:"event"`
	Actor      string    `db:"actor"`
	Payload    []byte    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
}

func (s *Store) ListAudit(ctx context.Context, documentID domain.DocumentID) ([]models.AuditEntry, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var rows []auditRow
	err := sqlx.SelectContext(ctx, txcontext.Executor(ctx, s.db), &rows,
		`SELECT id, document_id, event, actor, payload, created_at
		FROM document_audit_entries WHERE document_id = $1 ORDER BY id`, documentID.String())
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	out := make([]models.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := models.AuditEntry{
			ID:         r.ID,
			DocumentID: domain.DocumentID(r.DocumentID),
			Event:      r.Event,
			Actor:      r.Actor,
			CreatedAt:  r.CreatedAt,
		}
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload %d: %w", r.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// RunInTx opens a transaction and takes a transaction-scoped advisory lock
// on the owner before running fn, so concurrent uploads for one owner
// serialize while other owners proceed.
func (s *Store) RunInTx(ctx context.Context, ownerID domain.OwnerID, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
			`SELECT pg_advisory_xact_lock($1)`, LockKey(ownerID)); err != nil {
			return fmt.Errorf("lock owner %s: %w", ownerID, err)
		}
		return fn(ctx, s)
	})
}

// LockKey maps an owner to the advisory lock key used by RunInTx.
func LockKey(ownerID domain.OwnerID) int64 {
	return int64(xxhash.Sum64String("documents:" + ownerID.String()))
}

// bound applies the store timeout unless the caller, or an enclosing
// RunInTx, already set a deadline.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) getOne(ctx context.Context, query string, args ...any) (*models.Document, error) {
	var row documentRow
	if err := sqlx.GetContext(ctx, txcontext.Executor(ctx, s.db), &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return row.toModel()
}

func (s *Store) getMany(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	var rows []documentRow
	if err := sqlx.SelectContext(ctx, txcontext.Executor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	out := make([]*models.Document, 0, len(rows))
	for _, r := range rows {
		d, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pqErr.Constraint, sentinel.ErrConflict)
	}
	return err
}

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	if string(b) == "null" {
		return []byte("{}"), nil
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
