// Package models holds rate limit decisions and key helpers.
package models

import (
	"math"
	"time"

	"kycvault/pkg/domain"
)

// Result is the outcome of one sliding-window check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum one.
func (r *Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 1
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// Limit is a request budget per sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// UploadKey is the bucket key for an owner's uploads.
func UploadKey(ownerID domain.OwnerID) string {
	return "upload:" + SanitizeKeySegment(ownerID.String())
}
