package service_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycvault/internal/document/models"
	"kycvault/internal/document/service"
	"kycvault/internal/document/service/mocks"
	"kycvault/internal/document/store"
	"kycvault/internal/document/store/memory"
	"kycvault/internal/encryption"
	"kycvault/internal/scan"
	"kycvault/internal/scan/scanners/signature"
	scanmemory "kycvault/internal/scan/store/memory"
	"kycvault/internal/storage"
	"kycvault/internal/storage/objectstore"
	"kycvault/internal/storage/objectstore/local"
	"kycvault/internal/validation"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/audit/audittest"
	"kycvault/pkg/requestcontext"
	kyctestutil "kycvault/pkg/testutil"
)

// =============================================================================
// Upload pipeline wired with real components
// =============================================================================

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	repo    *memory.Store
	local   *local.Store
	engine  *encryption.Engine
	manager *storage.Manager
	scans   *scanmemory.InMemoryStore
	sink    *audittest.RecordingSink
	metrics *service.Metrics
	svc     *service.Service
	owner   domain.OwnerID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithActor(context.Background(), "owner")
	logger := kyctestutil.DiscardLogger()
	s.sink = audittest.NewRecordingSink()
	s.repo = memory.New()
	s.owner = domain.NewOwnerID()

	var err error
	s.engine, err = encryption.New(bytes.Repeat([]byte{0x42}, encryption.KeySize),
		encryption.WithIterations(1000), encryption.WithLogger(logger))
	s.Require().NoError(err)

	s.local, err = local.New(s.T().TempDir())
	s.Require().NoError(err)
	s.manager, err = storage.New(s.local,
		storage.WithCipher(s.engine), storage.WithSink(s.sink), storage.WithLogger(logger))
	s.Require().NoError(err)

	s.scans = scanmemory.New()
	s.metrics = service.NewMetrics(prometheus.NewRegistry())
	s.svc = s.newService(s.repo, s.manager)
}

func (s *ServiceSuite) newService(repo service.Repository, objects service.ObjectStorage, opts ...service.Option) *service.Service {
	logger := kyctestutil.DiscardLogger()
	orchestrator, err := scan.New([]scan.Scanner{signature.New()}, s.scans,
		scan.WithSink(s.sink), scan.WithLogger(logger))
	s.Require().NoError(err)
	pipeline := validation.New(validation.DefaultConfig(), validation.WithLogger(logger))

	opts = append([]service.Option{
		service.WithSink(s.sink),
		service.WithLogger(logger),
		service.WithMetrics(s.metrics),
	}, opts...)
	svc, err := service.New(repo, domain.DefaultCatalog(), orchestrator, pipeline, s.engine, objects, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) pdfRequest(text string, size int) service.UploadRequest {
	content := kyctestutil.PDF(text, size)
	return service.UploadRequest{
		OwnerID:      s.owner,
		CategoryID:   "national_id",
		Filename:     "national-id.pdf",
		DeclaredMIME: "application/pdf",
		DeclaredSize: int64(len(content)),
		Content:      content,
	}
}

func (s *ServiceSuite) TestUploadTwoMegabytePDFEndToEnd() {
	req := s.pdfRequest("Republic ID 1234567890", 2<<20)

	res, err := s.svc.Upload(s.ctx, req)
	s.Require().NoError(err)

	doc := res.Document
	s.Equal(models.StatusPending, doc.Status)
	s.Equal(int64(len(req.Content)), doc.Size)
	s.Equal("application/pdf", doc.DetectedMIME)
	s.Equal(s.engine.Hash(req.Content), doc.ContentHash)
	s.NotEmpty(doc.KeyID)
	s.Equal(scan.VerdictClean, doc.ScanVerdict)
	s.Equal(100.0, doc.ValidationScore)
	s.Equal("1234567890", doc.ExtractedData["national_id_number"])
	s.Nil(res.Archived)
	s.Contains(doc.StoragePath, "/national_id/"+s.owner.String()+"/"+doc.ID.String()+".pdf")

	raw, err := s.local.Get(s.ctx, doc.StoragePath)
	s.Require().NoError(err)
	s.False(bytes.Contains(raw, []byte("1234567890")), "stored object must not contain plaintext")
	s.NotEqual(req.Content, raw)

	scans, err := s.scans.ListByDocument(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Len(scans, 1)

	listed, err := s.svc.List(s.ctx, models.ListFilter{OwnerID: s.owner, CategoryID: "national_id"})
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(doc.ID, listed[0].ID)

	dl, err := s.svc.Download(s.ctx, doc.ID, s.owner)
	s.Require().NoError(err)
	s.Equal(req.Content, dl.Content)

	info, err := s.svc.Info(s.ctx, doc.ID, s.owner)
	s.Require().NoError(err)
	s.Require().NotEmpty(info.AuditLog)
	s.Equal(models.EntryUploaded, info.AuditLog[0].Event)
	s.Equal("owner", info.AuditLog[0].Actor)

	s.True(s.sink.Has(audit.EventDocumentUploaded))
	s.True(s.sink.Has(audit.EventDocumentAccessed))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Uploads.WithLabelValues("accepted")))
}

func (s *ServiceSuite) TestSecondUploadArchivesFirst() {
	first, err := s.svc.Upload(s.ctx, s.pdfRequest("ID 1111111111", 2048))
	s.Require().NoError(err)

	second, err := s.svc.Upload(s.ctx, s.pdfRequest("ID 2222222222", 2048))
	s.Require().NoError(err)
	s.Require().NotNil(second.Archived)
	s.Equal(first.Document.ID, *second.Archived)

	active, err := s.svc.List(s.ctx, models.ListFilter{OwnerID: s.owner, CategoryID: "national_id"})
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(second.Document.ID, active[0].ID)

	old, err := s.svc.Info(s.ctx, first.Document.ID, s.owner)
	s.Require().NoError(err)
	s.Equal(models.StatusArchived, old.Status)
	s.NotNil(old.ArchivedAt)
	last := old.AuditLog[len(old.AuditLog)-1]
	s.Equal(models.EntryArchived, last.Event)
	s.Equal(second.Document.ID.String(), last.Payload["replaced_by"])
	s.True(s.sink.Has(audit.EventDocumentArchived))

	all, err := s.svc.List(s.ctx, models.ListFilter{OwnerID: s.owner, IncludeArchived: true})
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *ServiceSuite) TestInfectedUploadIsRejectedBeforeStorage() {
	req := service.UploadRequest{
		OwnerID: s.owner, CategoryID: "national_id", Filename: "id.pdf",
		DeclaredMIME: "application/pdf", Content: []byte(kyctestutil.EICAR),
	}

	_, err := s.svc.Upload(s.ctx, req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSecurity))

	s.True(s.sink.Has(audit.EventMalwareDetected))
	rejected := s.sink.OfType(audit.EventDocumentRejected)
	s.Require().Len(rejected, 1)
	s.Equal("scan_infected", rejected[0].Payload["reason"])

	objs, err := s.local.List(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(objs)
	docs, err := s.svc.List(s.ctx, models.ListFilter{OwnerID: s.owner, IncludeArchived: true})
	s.Require().NoError(err)
	s.Empty(docs)
}

func (s *ServiceSuite) TestMIMEMismatchFailsValidation() {
	req := s.pdfRequest("ID 1234567890", 2048)
	req.Filename = "id.jpg"
	req.DeclaredMIME = "image/jpeg"

	_, err := s.svc.Upload(s.ctx, req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.NotEmpty(dErrors.DetailsOf(err))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("validation")))
}

func (s *ServiceSuite) TestRequestChecks() {
	s.Run("unknown category", func() {
		req := s.pdfRequest("x", 512)
		req.CategoryID = "passport_photo_booth"
		_, err := s.svc.Upload(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing owner", func() {
		req := s.pdfRequest("x", 512)
		req.OwnerID = domain.OwnerID{}
		_, err := s.svc.Upload(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("empty content", func() {
		req := s.pdfRequest("x", 512)
		req.Content = nil
		_, err := s.svc.Upload(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("over upload ceiling", func() {
		svc := s.newService(s.repo, s.manager, service.WithMaxUploadSize(1024))
		_, err := svc.Upload(s.ctx, s.pdfRequest("x", 4096))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestAccessControl() {
	res, err := s.svc.Upload(s.ctx, s.pdfRequest("ID 1234567890", 2048))
	s.Require().NoError(err)
	intruder := domain.NewOwnerID()

	_, err = s.svc.Download(s.ctx, res.Document.ID, intruder)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.svc.Info(s.ctx, res.Document.ID, intruder)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	err = s.svc.Delete(s.ctx, res.Document.ID, intruder)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Len(s.sink.OfType(audit.EventAccessDenied), 3)

	_, err = s.svc.Download(s.ctx, domain.NewDocumentID(), s.owner)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeleteArchives() {
	res, err := s.svc.Upload(s.ctx, s.pdfRequest("ID 1234567890", 2048))
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Delete(s.ctx, res.Document.ID, s.owner))
	s.Require().NoError(s.svc.Delete(s.ctx, res.Document.ID, s.owner))

	doc, err := s.svc.Info(s.ctx, res.Document.ID, s.owner)
	s.Require().NoError(err)
	s.Equal(models.StatusArchived, doc.Status)
	s.Equal(models.EntryDeleted, doc.AuditLog[len(doc.AuditLog)-1].Event)
	s.Len(s.sink.OfType(audit.EventDocumentDeleted), 1)

	_, err = s.local.Get(s.ctx, res.Document.StoragePath)
	s.NoError(err, "encrypted object is retained after delete")
}

func (s *ServiceSuite) TestVerifyIntegrity() {
	res, err := s.svc.Upload(s.ctx, s.pdfRequest("ID 1234567890", 2048))
	s.Require().NoError(err)
	doc := res.Document

	ok, err := s.svc.VerifyIntegrity(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.True(ok)

	raw, err := s.local.Get(s.ctx, doc.StoragePath)
	s.Require().NoError(err)
	raw[len(raw)/2] ^= 0x01
	_, err = s.local.Put(s.ctx, doc.StoragePath, raw, objectstore.PutOptions{})
	s.Require().NoError(err)

	ok, err = s.svc.VerifyIntegrity(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.False(ok)
	s.True(s.sink.Has(audit.EventIntegrityMismatch))

	_, err = s.svc.Download(s.ctx, doc.ID, s.owner)
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))

	info, err := s.svc.Info(s.ctx, doc.ID, s.owner)
	s.Require().NoError(err)
	s.Equal(models.EntryTampered, info.AuditLog[len(info.AuditLog)-1].Event)
}

func (s *ServiceSuite) TestDownloadOfTamperedCiphertextIsCritical() {
	res, err := s.svc.Upload(s.ctx, s.pdfRequest("ID 1234567890", 2048))
	s.Require().NoError(err)
	doc := res.Document

	raw, err := s.local.Get(s.ctx, doc.StoragePath)
	s.Require().NoError(err)
	raw[len(raw)-1] ^= 0x01
	_, err = s.local.Put(s.ctx, doc.StoragePath, raw, objectstore.PutOptions{})
	s.Require().NoError(err)

	_, err = s.svc.Download(s.ctx, doc.ID, s.owner)
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))

	events := s.sink.OfType(audit.EventIntegrityMismatch)
	s.Require().Len(events, 1)
	s.Equal(audit.SeverityCritical, events[0].Severity)
	s.Equal("authentication_failed", events[0].Payload["reason"])
	s.False(s.sink.Has(audit.EventDocumentAccessed))

	info, err := s.svc.Info(s.ctx, doc.ID, s.owner)
	s.Require().NoError(err)
	last := info.AuditLog[len(info.AuditLog)-1]
	s.Equal(models.EntryTampered, last.Event)
	s.Equal("authentication_failed", last.Payload["reason"])
}

func (s *ServiceSuite) TestRateLimitedBeforeScanning() {
	ctrl := gomock.NewController(s.T())
	limiter := mocks.NewMockUploadLimiter(ctrl)
	// No Scan expectation: the scanner must not be reached.
	scanner := mocks.NewMockScanner(ctrl)
	pipeline := validation.New(validation.DefaultConfig(), validation.WithLogger(kyctestutil.DiscardLogger()))
	svc, err := service.New(s.repo, domain.DefaultCatalog(), scanner, pipeline, s.engine, s.manager,
		service.WithLimiter(limiter), service.WithSink(s.sink), service.WithLogger(kyctestutil.DiscardLogger()))
	s.Require().NoError(err)

	limiter.EXPECT().AllowUpload(gomock.Any(), s.owner).Return(dErrors.RateLimitError("slow down"))

	_, err = svc.Upload(s.ctx, s.pdfRequest("ID 1234567890", 2048))
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
}

// failingRepo fails every transaction after the objects are written.
type failingRepo struct {
	*memory.Store
	err error
}

func (r failingRepo) RunInTx(context.Context, domain.OwnerID, func(context.Context, store.Store) error) error {
	return r.err
}

func (s *ServiceSuite) TestMetadataFailureCompensates() {
	s.Run("stored objects are deleted", func() {
		svc := s.newService(failingRepo{Store: s.repo, err: errors.New("connection reset")}, s.manager)

		_, err := svc.Upload(s.ctx, s.pdfRequest("ID 1234567890", 2048))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		objs, err := s.local.List(s.ctx, "")
		s.Require().NoError(err)
		s.Empty(objs, "no half-written artifact remains")
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Compensations.WithLabelValues("deleted")))
	})

	s.Run("failed cleanup records orphans", func() {
		ctrl := gomock.NewController(s.T())
		objects := mocks.NewMockObjectStorage(ctrl)
		svc := s.newService(failingRepo{Store: s.repo, err: errors.New("connection reset")}, objects)
		stored := &storage.StoredObject{Path: "documents/p", BackupPath: "backups/p"}

		objects.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).Return(stored, nil)
		objects.EXPECT().Delete(gomock.Any(), "documents/p", "backups/p").Return(errors.New("bucket unavailable"))
		objects.EXPECT().RecordOrphan(gomock.Any(), "documents/p", "metadata write failed", gomock.Any())
		objects.EXPECT().RecordOrphan(gomock.Any(), "backups/p", "metadata write failed", gomock.Any())

		_, err := svc.Upload(s.ctx, s.pdfRequest("ID 1234567890", 2048))
		s.Require().Error(err)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Compensations.WithLabelValues("orphaned")))
	})
}

func (s *ServiceSuite) TestScanErrorIsNotAcceptedAsClean() {
	ctrl := gomock.NewController(s.T())
	scanner := mocks.NewMockScanner(ctrl)
	pipeline := validation.New(validation.DefaultConfig(), validation.WithLogger(kyctestutil.DiscardLogger()))
	svc, err := service.New(s.repo, domain.DefaultCatalog(), scanner, pipeline, s.engine, s.manager,
		service.WithSink(s.sink), service.WithLogger(kyctestutil.DiscardLogger()))
	s.Require().NoError(err)

	scanner.EXPECT().Scan(gomock.Any(), gomock.Any(), gomock.Any(), s.owner).
		Return(&scan.Consensus{Verdict: scan.VerdictError, ErrorCount: 1, ScannerCount: 1}, nil)

	_, err = svc.Upload(s.ctx, s.pdfRequest("ID 1234567890", 2048))
	s.Require().Error(err)
	s.False(dErrors.HasCode(err, dErrors.CodeValidation))
	rejected := s.sink.OfType(audit.EventDocumentRejected)
	s.Require().Len(rejected, 1)
	s.Equal("scan_error", rejected[0].Payload["reason"])
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := service.New(nil, domain.DefaultCatalog(), nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing repository")
	}
}
