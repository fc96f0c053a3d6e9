package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"kycvault/internal/ratelimit/metrics"
	"kycvault/internal/ratelimit/models"
	"kycvault/internal/ratelimit/service"
	"kycvault/internal/ratelimit/service/mocks"
	"kycvault/internal/ratelimit/store/bucket"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/audit/audittest"
	kyctest "kycvault/pkg/testutil"
)

func TestNew(t *testing.T) {
	_, err := service.New(nil, models.Limit{Requests: 1, Window: time.Minute})
	assert.Error(t, err)
	_, err = service.New(bucket.New(), models.Limit{Requests: 0, Window: time.Minute})
	assert.Error(t, err)
}

func TestAllowUpload(t *testing.T) {
	ctx := context.Background()
	sink := audittest.NewRecordingSink()
	m := metrics.New(prometheus.NewRegistry())
	limiter, err := service.New(bucket.New(), models.Limit{Requests: 2, Window: time.Hour},
		service.WithSink(sink), service.WithMetrics(m), service.WithLogger(kyctest.DiscardLogger()))
	require.NoError(t, err)
	owner := domain.NewOwnerID()

	require.NoError(t, limiter.AllowUpload(ctx, owner))
	require.NoError(t, limiter.AllowUpload(ctx, owner))

	err = limiter.AllowUpload(ctx, owner)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
	assert.True(t, sink.Has(audit.EventUploadRateLimited))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("denied")))

	assert.NoError(t, limiter.AllowUpload(ctx, domain.NewOwnerID()), "other owners keep their own budget")

	require.NoError(t, limiter.Reset(ctx, owner))
	assert.NoError(t, limiter.AllowUpload(ctx, owner))
}

func TestAllowUploadFailsOpenOnStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockBucketStore(ctrl)
	m := metrics.New(prometheus.NewRegistry())
	limiter, err := service.New(store, models.Limit{Requests: 1, Window: time.Minute},
		service.WithMetrics(m), service.WithLogger(kyctest.DiscardLogger()))
	require.NoError(t, err)
	owner := domain.NewOwnerID()

	store.EXPECT().Allow(gomock.Any(), models.UploadKey(owner), 1, time.Minute).
		Return(nil, errors.New("connection refused"))

	assert.NoError(t, limiter.AllowUpload(context.Background(), owner))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors))
}

func TestUsageDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	limit := models.Limit{Requests: 3, Window: time.Hour}
	limiter, err := service.New(bucket.New(), limit, service.WithLogger(kyctest.DiscardLogger()))
	require.NoError(t, err)
	owner := domain.NewOwnerID()

	require.NoError(t, limiter.AllowUpload(ctx, owner))
	for range 2 {
		used, got, err := limiter.Usage(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 1, used)
		assert.Equal(t, limit, got)
	}
}
