// Package validation scores an upload with an ordered set of independent
// checks: format, size, content, basic security and optional extraction.
package validation

import (
	"context"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg.withDefaults(), logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Threshold is the minimum passing score.
func (p *Pipeline) Threshold() float64 { return p.cfg.PassThreshold }

// input is shared state between checks. The content check fills text for
// the extraction check.
type input struct {
	buf       []byte
	meta      Metadata
	detected  *mimetype.MIME
	mime      string
	text      string
	extracted map[string]string
}

type check struct {
	name     string
	blocking bool
	run      func(ctx context.Context, in *input, res *CheckResult)
}

// Validate runs every check and never returns early; one failing check does
// not hide the findings of the others.
func (p *Pipeline) Validate(ctx context.Context, buf []byte, meta Metadata) *Result {
	start := time.Now()
	detected := mimetype.Detect(buf)
	in := &input{buf: buf, meta: meta, detected: detected, mime: baseMIME(detected.String())}

	checks := []check{
		{name: CheckFormat, blocking: true, run: p.checkFormat},
		{name: CheckSize, blocking: true, run: p.checkSize},
		{name: CheckContent, blocking: true, run: p.checkContent},
		{name: CheckSecurity, blocking: true, run: p.checkSecurity},
	}
	if p.cfg.ExtractionEnabled && meta.Category.ExtractionPattern != "" {
		checks = append(checks, check{name: CheckExtraction, blocking: false, run: p.checkExtraction})
	}

	res := &Result{DetectedMIME: in.mime, ExtractedData: map[string]string{}}
	var passed, total int
	var subScores float64
	for _, c := range checks {
		cr := CheckResult{Name: c.name, Blocking: c.blocking}
		checkStart := time.Now()
		c.run(ctx, in, &cr)
		cr.Duration = time.Since(checkStart)
		cr.Passed = len(cr.Errors) == 0
		if cr.Passed && cr.Score == 0 && c.blocking {
			cr.Score = 100
		}

		res.Checks = append(res.Checks, cr)
		res.Errors = append(res.Errors, cr.Errors...)
		res.Warnings = append(res.Warnings, cr.Warnings...)
		if c.blocking {
			total++
			subScores += cr.Score
			if cr.Passed {
				passed++
			}
		}
		if p.metrics != nil {
			outcome := "pass"
			if !cr.Passed {
				outcome = "fail"
			}
			p.metrics.Checks.WithLabelValues(c.name, outcome).Inc()
			p.metrics.Duration.WithLabelValues(c.name).Observe(cr.Duration.Seconds())
		}
	}
	if in.extracted != nil {
		res.ExtractedData = in.extracted
	}

	res.Score = float64(passed) / float64(total) * 100
	res.Confidence = subScores / float64(total) / 100
	res.IsValid = res.Score >= p.cfg.PassThreshold
	res.ProcessingTime = time.Since(start)

	if p.metrics != nil {
		p.metrics.Score.Observe(res.Score)
		valid := "false"
		if res.IsValid {
			valid = "true"
		}
		p.metrics.Outcomes.WithLabelValues(valid).Inc()
	}
	p.logger.DebugContext(ctx, "validation finished",
		"category", meta.Category.ID, "detected_mime", in.mime, "score", res.Score,
		"valid", res.IsValid, "errors", len(res.Errors), "warnings", len(res.Warnings))
	return res
}
