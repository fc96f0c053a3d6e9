package buffered

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	audit "kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/audit/store/memory"
	"kycvault/pkg/requestcontext"
	kyctest "kycvault/pkg/testutil"
)

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, audit.Event) error { return f.err }

type PublisherSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	metrics *Metrics
	pub     *Publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.pub = New(s.store, WithLogger(kyctest.DiscardLogger()), WithMetrics(s.metrics), WithCapacity(4), WithBatchSize(10))
}

func (s *PublisherSuite) TestRecord() {
	s.Run("does not touch the store until flushed", func() {
		s.pub.Record(context.Background(), audit.EventDocumentUploaded, audit.SeverityInfo, map[string]any{"document_id": "doc-1"})
		events, _ := s.store.ListAll(context.Background())
		s.Empty(events)
		s.Equal(1, s.pub.Pending())
	})

	s.Run("flush persists enriched events", func() {
		fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
		ctx := requestcontext.WithTime(requestcontext.WithActor(context.Background(), "admin-1"), fixed)
		s.pub.Record(ctx, audit.EventMalwareDetected, audit.SeverityCritical, map[string]any{"owner_id": "owner-9", "document_id": "doc-2"})

		n, err := s.pub.Flush(context.Background())
		s.Require().NoError(err)
		s.Equal(2, n)

		events, _ := s.store.ListByType(context.Background(), audit.EventMalwareDetected)
		s.Require().Len(events, 1)
		e := events[0]
		s.Equal(audit.CategorySecurity, e.Category)
		s.Equal(audit.SeverityCritical, e.Severity)
		s.Equal("owner-9", e.OwnerID)
		s.Equal("doc-2", e.DocumentID)
		s.Equal("admin-1", e.ActorID)
		s.Equal(fixed, e.Timestamp)
	})
}

func (s *PublisherSuite) TestOverflowDropsOldest() {
	for i := 0; i < 6; i++ {
		s.pub.Record(context.Background(), audit.EventDocumentAccessed, audit.SeverityInfo, map[string]any{"seq": i})
	}
	s.Equal(4, s.pub.Pending())
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.EventsDropped))

	_, err := s.pub.Flush(context.Background())
	s.Require().NoError(err)
	events, _ := s.store.ListAll(context.Background())
	s.Require().Len(events, 4)
	s.Equal(2, events[0].Payload["seq"])
}

func (s *PublisherSuite) TestStoreFailureIsReportedNotRequeued() {
	pub := New(failingStore{err: errors.New("db down")}, WithLogger(kyctest.DiscardLogger()), WithMetrics(s.metrics))
	pub.Record(context.Background(), audit.EventKYCApproved, audit.SeverityInfo, nil)

	n, err := pub.Flush(context.Background())
	s.Error(err)
	s.Zero(n)
	s.Zero(pub.Pending())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.PersistFailures))
}

func (s *PublisherSuite) TestRunDrainsOnShutdown() {
	pub := New(s.store, WithLogger(kyctest.DiscardLogger()), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Run(ctx) }()

	pub.Record(context.Background(), audit.EventDocumentArchived, audit.SeverityInfo, nil)
	cancel()

	s.Require().NoError(<-done)
	events, _ := s.store.ListAll(context.Background())
	s.Len(events, 1)
}

func (s *PublisherSuite) TestCriticalEventWakesFlusher() {
	pub := New(s.store, WithLogger(kyctest.DiscardLogger()), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pub.Run(ctx) }()

	pub.Record(context.Background(), audit.EventIntegrityMismatch, audit.SeverityCritical, nil)

	s.Eventually(func() bool {
		events, _ := s.store.ListAll(context.Background())
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
