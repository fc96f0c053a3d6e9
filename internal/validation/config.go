package validation

import (
	"slices"

	strutil "kycvault/pkg/platform/strings"
)

const (
	DefaultPassThreshold = 75.0
	DefaultMinConfidence = 0.6
)

// Config holds pipeline thresholds. Zero values fall back to defaults in New.
type Config struct {
	PassThreshold     float64
	MinSize           int64
	MaxSize           int64
	HardMaxSize       int64
	SizeTolerance     float64
	ExtractionEnabled bool
	MinConfidence     float64
	MinImageWidth     int
	MinImageHeight    int
	MaxImageWidth     int
	MaxImageHeight    int
	AllowedMIMETypes  []string
	AllowedExtensions []string
}

func DefaultConfig() Config {
	return Config{
		PassThreshold:     DefaultPassThreshold,
		MinSize:           128,
		MaxSize:           10 << 20,
		HardMaxSize:       50 << 20,
		SizeTolerance:     0.05,
		ExtractionEnabled: true,
		MinConfidence:     DefaultMinConfidence,
		MinImageWidth:     100,
		MinImageHeight:    100,
		MaxImageWidth:     12000,
		MaxImageHeight:    12000,
		AllowedMIMETypes:  []string{"application/pdf", "image/jpeg", "image/png"},
		AllowedExtensions: []string{".pdf", ".jpg", ".jpeg", ".png"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PassThreshold <= 0 {
		c.PassThreshold = d.PassThreshold
	}
	if c.MaxSize <= 0 {
		c.MaxSize = d.MaxSize
	}
	if c.HardMaxSize <= 0 {
		c.HardMaxSize = d.HardMaxSize
	}
	if c.SizeTolerance < 0 {
		c.SizeTolerance = d.SizeTolerance
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.MaxImageWidth <= 0 {
		c.MaxImageWidth = d.MaxImageWidth
	}
	if c.MaxImageHeight <= 0 {
		c.MaxImageHeight = d.MaxImageHeight
	}
	c.AllowedMIMETypes = strutil.DedupeAndTrimLower(c.AllowedMIMETypes)
	if len(c.AllowedMIMETypes) == 0 {
		c.AllowedMIMETypes = d.AllowedMIMETypes
	}
	c.AllowedExtensions = strutil.DedupeAndTrimLower(c.AllowedExtensions)
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = d.AllowedExtensions
	}
	return c
}

func (c Config) allowsMIME(m string) bool { return slices.Contains(c.AllowedMIMETypes, m) }

func (c Config) allowsExtension(ext string) bool { return slices.Contains(c.AllowedExtensions, ext) }
