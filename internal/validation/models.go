package validation

import (
	"time"

	"kycvault/pkg/domain"
)

// Check names, in execution order.
const (
	CheckFormat     = "format"
	CheckSize       = "size"
	CheckContent    = "content"
	CheckSecurity   = "basic_security"
	CheckExtraction = "extraction"
)

// Metadata is what the caller declared about the upload.
type Metadata struct {
	Filename     string
	DeclaredMIME string
	// DeclaredSize is the client-reported length; zero means not reported.
	DeclaredSize int64
	Category     domain.Category
}

// CheckResult is the outcome of one check. Non-blocking checks are reported
// but excluded from the score.
type CheckResult struct {
	Name     string
	Passed   bool
	Score    float64
	Blocking bool
	Errors   []string
	Warnings []string
	Duration time.Duration
}

type Result struct {
	IsValid        bool
	Score          float64
	Confidence     float64
	DetectedMIME   string
	Errors         []string
	Warnings       []string
	ExtractedData  map[string]string
	Checks         []CheckResult
	ProcessingTime time.Duration
}

// Check returns the named check result, if it ran.
func (r *Result) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}
