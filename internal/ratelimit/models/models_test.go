package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kycvault/pkg/domain"
)

func TestUploadKey(t *testing.T) {
	owner := domain.NewOwnerID()
	assert.Equal(t, "upload:"+owner.String(), UploadKey(owner))
	assert.Equal(t, "user_admin", SanitizeKeySegment("user:admin"))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, (&Result{}).RetryAfterSeconds())
	assert.Equal(t, 2, (&Result{RetryAfter: 1500 * time.Millisecond}).RetryAfterSeconds())
	assert.Equal(t, 60, (&Result{RetryAfter: time.Minute}).RetryAfterSeconds())
}
